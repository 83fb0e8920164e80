package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/elementia/worldsim/internal/area"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps tiles and progress in a single SQLite file. It serves
// both TileStore and ProgressStore.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; loader workers queue on the connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	if err := RunSQLiteMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadTile(ctx context.Context, key area.Key, root string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM area_tiles WHERE root = ? AND area_x = ? AND area_y = ?`,
		root, key.X, key.Y,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load tile %s: %w", key, err)
	}
	return data, nil
}

func (s *SQLiteStore) SaveTile(ctx context.Context, key area.Key, root string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO area_tiles (root, area_x, area_y, data, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (root, area_x, area_y) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		root, key.X, key.Y, data, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save tile %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) ListTiles(ctx context.Context, root string) ([]area.Key, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT area_x, area_y FROM area_tiles WHERE root = ? ORDER BY area_x, area_y`, root,
	)
	if err != nil {
		return nil, fmt.Errorf("list tiles: %w", err)
	}
	defer rows.Close()

	var keys []area.Key
	for rows.Next() {
		var k area.Key
		if err := rows.Scan(&k.X, &k.Y); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) LoadProgress(ctx context.Context, root string) (*ProgressRow, error) {
	row := &ProgressRow{}
	var (
		step    int64
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT step, divisions, radius, run_id, updated_at FROM sim_progress WHERE root = ?`, root,
	).Scan(&step, &row.Divisions, &row.Radius, &row.RunID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	row.Step = uint64(step)
	row.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return row, nil
}

func (s *SQLiteStore) SaveProgress(ctx context.Context, root string, row *ProgressRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sim_progress (root, step, divisions, radius, run_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (root) DO UPDATE SET
		   step = excluded.step, divisions = excluded.divisions, radius = excluded.radius,
		   run_id = excluded.run_id, updated_at = excluded.updated_at`,
		root, int64(row.Step), row.Divisions, row.Radius, row.RunID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}
