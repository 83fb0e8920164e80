// tileconv copies saved areas and simulation progress between storage
// backends.
//
// Usage:
//
//	go run ./cmd/tileconv -from config/file.toml -to config/sqlite.toml [-verify]
//
// Both configs name a [storage] backend and root. With -verify every tile is
// decoded against the world's area dimensions before it is written.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/elementia/worldsim/internal/area"
	"github.com/elementia/worldsim/internal/config"
	"github.com/elementia/worldsim/internal/data"
	"github.com/elementia/worldsim/internal/persist"
	"go.uber.org/zap"
)

func main() {
	from := flag.String("from", "", "source config file")
	to := flag.String("to", "", "destination config file")
	verify := flag.Bool("verify", false, "decode every tile before writing it")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall time limit")
	flag.Parse()

	if *from == "" || *to == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*from, *to, *verify, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "tileconv: %v\n", err)
		os.Exit(1)
	}
}

func run(fromPath, toPath string, verify bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	srcCfg, err := config.Load(fromPath)
	if err != nil {
		return err
	}
	dstCfg, err := config.Load(toPath)
	if err != nil {
		return err
	}

	src, err := persist.Open(ctx, srcCfg, zap.NewNop())
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()
	dst, err := persist.Open(ctx, dstCfg, zap.NewNop())
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer dst.Close()

	var check func(area.Key, []byte) error
	if verify {
		idx, err := data.LoadWorldIndex(srcCfg.World.IndexPath)
		if err != nil {
			return err
		}
		dim := idx.AreaDimensions
		if srcCfg.World.AreaDimensions > 0 {
			dim = srcCfg.World.AreaDimensions
		}
		codec, err := area.NewCodec(0)
		if err != nil {
			return err
		}
		defer codec.Close()
		check = func(key area.Key, b []byte) error {
			_, err := codec.Decode(key, dim, b)
			return err
		}
	}

	res, err := convert(ctx, src, dst, check)
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s: %d tiles (%s)", src.Name, dst.Name, res.Tiles, humanize.Bytes(res.Bytes))
	if res.Progress {
		fmt.Printf(", progress at step %d", res.Step)
	}
	fmt.Println()
	return nil
}

type result struct {
	Tiles    int
	Bytes    uint64
	Progress bool
	Step     uint64
}

// convert copies every listed tile, then the progress row. Tiles are copied
// as stored; check, when set, rejects a tile before it is written.
func convert(ctx context.Context, src, dst *persist.Backend, check func(area.Key, []byte) error) (result, error) {
	var res result
	lister, ok := src.Tiles.(persist.TileLister)
	if !ok {
		return res, fmt.Errorf("%s backend cannot list tiles", src.Name)
	}
	keys, err := lister.ListTiles(ctx, src.Root)
	if err != nil {
		return res, fmt.Errorf("list tiles: %w", err)
	}
	for _, key := range keys {
		b, err := src.Tiles.LoadTile(ctx, key, src.Root)
		if err != nil {
			return res, fmt.Errorf("load tile %s: %w", key, err)
		}
		if check != nil {
			if err := check(key, b); err != nil {
				return res, fmt.Errorf("tile %s: %w", key, err)
			}
		}
		if err := dst.Tiles.SaveTile(ctx, key, dst.Root, b); err != nil {
			return res, fmt.Errorf("save tile %s: %w", key, err)
		}
		res.Tiles++
		res.Bytes += uint64(len(b))
	}

	row, err := src.Progress.LoadProgress(ctx, src.Root)
	if err != nil {
		return res, fmt.Errorf("load progress: %w", err)
	}
	if row != nil {
		if err := dst.Progress.SaveProgress(ctx, dst.Root, row); err != nil {
			return res, fmt.Errorf("save progress: %w", err)
		}
		res.Progress = true
		res.Step = row.Step
	}
	return res, nil
}
