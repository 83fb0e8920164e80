package persist

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/elementia/worldsim/internal/config"
	"go.uber.org/zap"
)

// Backend bundles the storage collaborators selected by configuration.
type Backend struct {
	Name     string
	Root     string
	Tiles    TileStore
	Progress ProgressStore
	close    func()
}

// Open selects and opens the storage backend named by cfg.Storage.Backend.
// SQL backends are migrated before they are returned.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Backend, error) {
	root := cfg.Storage.Root
	switch cfg.Storage.Backend {
	case "file":
		fs := NewFileStore()
		return &Backend{Name: "file", Root: root, Tiles: fs, Progress: fs, close: func() {}}, nil

	case "sqlite":
		path := cfg.Database.SQLitePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		st, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
		log.Info("sqlite storage ready", zap.String("path", path))
		return &Backend{Name: "sqlite", Root: root, Tiles: st, Progress: st, close: func() { _ = st.Close() }}, nil

	case "postgres":
		db, err := NewDB(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := RunMigrations(ctx, db.Pool); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		log.Info("postgres storage ready")
		return &Backend{
			Name:     "postgres",
			Root:     root,
			Tiles:    NewTileRepo(db),
			Progress: NewProgressRepo(db),
			close:    db.Close,
		}, nil
	}
	return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
}

func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}
