package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/elementia/worldsim/internal/area"
	"gopkg.in/yaml.v3"
)

const (
	areasDir     = "areas"
	tileExt      = ".tile"
	progressFile = "progress.yaml"
)

// FileStore keeps one file per area under <root>/areas and the simulation
// progress in <root>/progress.yaml.
type FileStore struct{}

func NewFileStore() *FileStore {
	return &FileStore{}
}

func tilePath(root string, key area.Key) string {
	return filepath.Join(root, areasDir, key.String()+tileExt)
}

func (s *FileStore) LoadTile(_ context.Context, key area.Key, root string) ([]byte, error) {
	data, err := os.ReadFile(tilePath(root, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrTileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read tile %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) SaveTile(_ context.Context, key area.Key, root string, data []byte) error {
	if err := writeFileAtomic(tilePath(root, key), data); err != nil {
		return fmt.Errorf("write tile %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) ListTiles(_ context.Context, root string) ([]area.Key, error) {
	entries, err := os.ReadDir(filepath.Join(root, areasDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list tiles: %w", err)
	}
	keys := make([]area.Key, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, tileExt) {
			continue
		}
		var k area.Key
		if _, err := fmt.Sscanf(strings.TrimSuffix(name, tileExt), "%d_%d", &k.X, &k.Y); err != nil {
			continue // not ours
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *FileStore) LoadProgress(_ context.Context, root string) (*ProgressRow, error) {
	raw, err := os.ReadFile(filepath.Join(root, progressFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	row := &ProgressRow{}
	if err := yaml.Unmarshal(raw, row); err != nil {
		return nil, fmt.Errorf("parse progress: %w", err)
	}
	return row, nil
}

func (s *FileStore) SaveProgress(_ context.Context, root string, row *ProgressRow) error {
	out := *row
	out.UpdatedAt = time.Now().UTC()
	raw, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(root, progressFile), raw); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

// writeFileAtomic writes through a temp file and renames it into place so a
// crash never leaves a half-written file behind.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
