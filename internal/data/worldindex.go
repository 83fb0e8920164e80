package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WorldIndex holds the world geometry, loaded from world.yaml. It is
// read-only once loaded.
type WorldIndex struct {
	Name           string `yaml:"name"`
	Seed           int64  `yaml:"seed"`
	AreaDimensions int    `yaml:"area_dimensions"` // area side length in cells
	Width          int    `yaml:"width"`           // world extent in cells
	Height         int    `yaml:"height"`
}

type worldIndexFile struct {
	World WorldIndex `yaml:"world"`
}

// LoadWorldIndex reads the world index from a YAML file.
func LoadWorldIndex(path string) (*WorldIndex, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world index %s: %w", path, err)
	}
	var file worldIndexFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse world index: %w", err)
	}
	idx := file.World
	if err := idx.Validate(); err != nil {
		return nil, fmt.Errorf("world index %s: %w", path, err)
	}
	return &idx, nil
}

func (w *WorldIndex) Validate() error {
	if w.AreaDimensions <= 0 {
		return fmt.Errorf("area_dimensions must be > 0, got %d", w.AreaDimensions)
	}
	if w.Width <= 0 || w.Height <= 0 {
		return fmt.Errorf("world extent must be positive, got %dx%d", w.Width, w.Height)
	}
	return nil
}

// AreaCount is the number of areas needed to cover the world.
func (w *WorldIndex) AreaCount() int {
	d := w.AreaDimensions
	return ((w.Width + d - 1) / d) * ((w.Height + d - 1) / d)
}
