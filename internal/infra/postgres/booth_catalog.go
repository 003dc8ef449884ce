package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"festival-mileage/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// BoothCatalog loads the booth catalog kept as JSONB in Postgres. It is the
// source the document store is seeded from.
type BoothCatalog struct {
	pool *pgxpool.Pool
}

func NewBoothCatalog(pool *pgxpool.Pool) *BoothCatalog {
	return &BoothCatalog{pool: pool}
}

// LoadBooths returns every catalog row ordered by booth index.
func (c *BoothCatalog) LoadBooths(ctx context.Context) ([]domain.Booth, error) {
	rows, err := c.pool.Query(ctx, `SELECT doc_id, booth_idx, data FROM booths ORDER BY booth_idx`)
	if err != nil {
		return nil, fmt.Errorf("load booths: %w", err)
	}
	defer rows.Close()

	var booths []domain.Booth
	for rows.Next() {
		var (
			docID string
			idx   int
			raw   []byte
		)
		if err := rows.Scan(&docID, &idx, &raw); err != nil {
			return nil, fmt.Errorf("scan booth: %w", err)
		}
		booth, err := decodeCatalogBooth(docID, idx, raw)
		if err != nil {
			return nil, err
		}
		booths = append(booths, booth)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load booths: %w", err)
	}
	return booths, nil
}

// ResolveBooth loads one booth by index. The unique constraint on booth_idx
// rules out ambiguous matches here.
func (c *BoothCatalog) ResolveBooth(ctx context.Context, boothIdx int) (domain.Booth, error) {
	var (
		docID string
		raw   []byte
	)
	err := c.pool.QueryRow(ctx, `SELECT doc_id, data FROM booths WHERE booth_idx=$1`, boothIdx).Scan(&docID, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booth{}, domain.ErrInvalidReference
	}
	if err != nil {
		return domain.Booth{}, fmt.Errorf("load booth: %w", err)
	}
	return decodeCatalogBooth(docID, boothIdx, raw)
}

// UpsertBooth writes a catalog row.
func (c *BoothCatalog) UpsertBooth(ctx context.Context, booth domain.Booth) error {
	booth.VisitCount = 0
	raw, err := json.Marshal(booth)
	if err != nil {
		return fmt.Errorf("marshal booth: %w", err)
	}
	_, err = c.pool.Exec(ctx, `
		INSERT INTO booths (doc_id, booth_idx, data) VALUES ($1, $2, $3)
		ON CONFLICT (doc_id) DO UPDATE SET booth_idx = EXCLUDED.booth_idx, data = EXCLUDED.data, updated_at = now()`,
		booth.DocID, booth.Index, raw)
	if err != nil {
		return fmt.Errorf("upsert booth %d: %w", booth.Index, err)
	}
	return nil
}

func decodeCatalogBooth(docID string, idx int, raw []byte) (domain.Booth, error) {
	var booth domain.Booth
	if err := json.Unmarshal(raw, &booth); err != nil {
		return domain.Booth{}, fmt.Errorf("unmarshal booth %d: %w", idx, err)
	}
	booth.DocID = docID
	booth.Index = idx
	return booth, nil
}
