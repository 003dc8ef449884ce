package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"festival-mileage/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SnapshotArchive stores class ranking snapshots for reporting after the festival.
type SnapshotArchive struct {
	pool *pgxpool.Pool
}

func NewSnapshotArchive(pool *pgxpool.Pool) *SnapshotArchive {
	return &SnapshotArchive{pool: pool}
}

func (a *SnapshotArchive) ArchiveSnapshot(ctx context.Context, snapshot domain.ClassSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = a.pool.Exec(ctx, `
		INSERT INTO class_snapshots (id, created_at, data) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		snapshot.ID, snapshot.CreatedAt, raw)
	if err != nil {
		return fmt.Errorf("archive snapshot %s: %w", snapshot.ID, err)
	}
	return nil
}

// LatestSnapshot returns the most recent archived snapshot.
func (a *SnapshotArchive) LatestSnapshot(ctx context.Context) (domain.ClassSnapshot, error) {
	var raw []byte
	err := a.pool.QueryRow(ctx, `SELECT data FROM class_snapshots ORDER BY created_at DESC LIMIT 1`).Scan(&raw)
	if err != nil {
		return domain.ClassSnapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	var snapshot domain.ClassSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return domain.ClassSnapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snapshot, nil
}
