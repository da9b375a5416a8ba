// Package archive persists completed digests so past generations stay
// browsable. Live session state is deliberately not durable; only finished
// digests land here.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/krakenlabs/krakbit/models"
)

type Store struct {
	DB *sql.DB
}

// NewWithDSN opens a postgres connection and verifies it.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// SaveDigest stores one completed generation. A missing id or timestamp is
// filled in.
func (s *Store) SaveDigest(ctx context.Context, d models.Digest) (string, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	items, err := json.Marshal(d.Items)
	if err != nil {
		return "", fmt.Errorf("archive: encode items: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO digests (id, query, items, created_at) VALUES ($1,$2,$3,$4)`,
		d.ID, d.Query, items, d.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("archive: insert digest: %w", err)
	}
	return d.ID, nil
}

// ListDigests returns the most recent digests, newest first.
func (s *Store) ListDigests(ctx context.Context, limit int) ([]models.Digest, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, query, items, created_at FROM digests ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list digests: %w", err)
	}
	defer rows.Close()
	var out []models.Digest
	for rows.Next() {
		var d models.Digest
		var items []byte
		if err := rows.Scan(&d.ID, &d.Query, &items, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("archive: scan digest: %w", err)
		}
		if err := json.Unmarshal(items, &d.Items); err != nil {
			return nil, fmt.Errorf("archive: decode items for %s: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDigest loads one digest by id.
func (s *Store) GetDigest(ctx context.Context, id string) (models.Digest, error) {
	var d models.Digest
	var items []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, query, items, created_at FROM digests WHERE id=$1`, id).
		Scan(&d.ID, &d.Query, &items, &d.CreatedAt)
	if err != nil {
		return models.Digest{}, fmt.Errorf("archive: get digest %s: %w", id, err)
	}
	if err := json.Unmarshal(items, &d.Items); err != nil {
		return models.Digest{}, fmt.Errorf("archive: decode items for %s: %w", id, err)
	}
	return d, nil
}
