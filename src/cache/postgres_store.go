package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/namuan/inbox-glide-sub001/src/summary"
)

// PostgresStore keeps the cache in Postgres, for hosts that already run one
// and want summaries shared across processes.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgresStore connects and ensures the cache table exists.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	s := &PostgresStore{DB: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (ps *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := ps.DB.Exec(ctx, `
                CREATE TABLE IF NOT EXISTS summary_cache (
                        email_id    TEXT PRIMARY KEY,
                        fingerprint TEXT NOT NULL,
                        summary     JSONB NOT NULL,
                        created_at  TIMESTAMPTZ NOT NULL
                );
        `)
	return err
}

func (ps *PostgresStore) Get(ctx context.Context, emailID string) (Entry, bool, error) {
	if ps == nil || ps.DB == nil {
		return Entry{}, false, nil
	}
	var (
		entry       Entry
		summaryJSON []byte
	)
	err := ps.DB.QueryRow(ctx, `
                SELECT email_id, fingerprint, summary, created_at
                FROM summary_cache WHERE email_id = $1;
        `, emailID).Scan(&entry.EmailID, &entry.Fingerprint, &summaryJSON, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var s summary.Summary
	if err := json.Unmarshal(summaryJSON, &s); err != nil {
		return Entry{}, false, err
	}
	entry.Summary = s
	return entry, true, nil
}

func (ps *PostgresStore) Put(ctx context.Context, entry Entry) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	summaryJSON, err := json.Marshal(entry.Summary)
	if err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err = ps.DB.Exec(ctx, `
                INSERT INTO summary_cache (email_id, fingerprint, summary, created_at)
                VALUES ($1, $2, $3::jsonb, $4)
                ON CONFLICT (email_id) DO UPDATE
                SET fingerprint = EXCLUDED.fingerprint,
                    summary = EXCLUDED.summary,
                    created_at = EXCLUDED.created_at;
        `, entry.EmailID, entry.Fingerprint, summaryJSON, entry.CreatedAt)
	return err
}

func (ps *PostgresStore) Delete(ctx context.Context, emailID string) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	_, err := ps.DB.Exec(ctx, `DELETE FROM summary_cache WHERE email_id = $1;`, emailID)
	return err
}

func (ps *PostgresStore) Clear(ctx context.Context) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	_, err := ps.DB.Exec(ctx, `DELETE FROM summary_cache;`)
	return err
}

// Close releases the pool.
func (ps *PostgresStore) Close() {
	if ps != nil && ps.DB != nil {
		ps.DB.Close()
	}
}

var _ Store = (*PostgresStore)(nil)
