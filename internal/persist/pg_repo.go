package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/elementia/worldsim/internal/area"
	"github.com/jackc/pgx/v5"
)

// TileRepo stores encoded areas in PostgreSQL.
type TileRepo struct {
	db *DB
}

func NewTileRepo(db *DB) *TileRepo {
	return &TileRepo{db: db}
}

func (r *TileRepo) LoadTile(ctx context.Context, key area.Key, root string) ([]byte, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT data FROM area_tiles WHERE root = $1 AND area_x = $2 AND area_y = $3`,
		root, key.X, key.Y,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load tile %s: %w", key, err)
	}
	return data, nil
}

func (r *TileRepo) SaveTile(ctx context.Context, key area.Key, root string, data []byte) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO area_tiles (root, area_x, area_y, data, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (root, area_x, area_y) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		root, key.X, key.Y, data,
	)
	if err != nil {
		return fmt.Errorf("save tile %s: %w", key, err)
	}
	return nil
}

func (r *TileRepo) ListTiles(ctx context.Context, root string) ([]area.Key, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT area_x, area_y FROM area_tiles WHERE root = $1 ORDER BY area_x, area_y`, root,
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

// ProgressRepo stores simulation progress in PostgreSQL.
type ProgressRepo struct {
	db *DB
}

func NewProgressRepo(db *DB) *ProgressRepo {
	return &ProgressRepo{db: db}
}

func (r *ProgressRepo) LoadProgress(ctx context.Context, root string) (*ProgressRow, error) {
	row := &ProgressRow{}
	var step int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT step, divisions, radius, run_id, updated_at FROM sim_progress WHERE root = $1`, root,
	).Scan(&step, &row.Divisions, &row.Radius, &row.RunID, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	row.Step = uint64(step)
	return row, nil
}

func (r *ProgressRepo) SaveProgress(ctx context.Context, root string, row *ProgressRow) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO sim_progress (root, step, divisions, radius, run_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (root) DO UPDATE SET
		   step = EXCLUDED.step, divisions = EXCLUDED.divisions, radius = EXCLUDED.radius,
		   run_id = EXCLUDED.run_id, updated_at = NOW()`,
		root, int64(row.Step), row.Divisions, row.Radius, row.RunID,
	)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}
