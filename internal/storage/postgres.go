package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/hyperjump/ruiji/internal/models"
)

// pgScore is cosine similarity over pgvector columns, 0 when either side has zero norm.
const pgScore = `CASE WHEN vector_norm(%[1]s) = 0 OR vector_norm(%[2]s) = 0 THEN 0
	ELSE 1 - (%[1]s <=> %[2]s) END`

// PostgresStore implements VectorStore on PostgreSQL with the pgvector extension.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to databaseURL, ensures the vector extension and creates the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := initPostgresSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func initPostgresSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS corpus (
			seq BIGINT PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			text TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			vector vector NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS corpus_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			dimensions INTEGER NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			built_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS search_slot (
			session_id TEXT PRIMARY KEY,
			vector vector NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceCorpus deletes the current corpus and inserts records in one transaction.
func (s *PostgresStore) ReplaceCorpus(ctx context.Context, records []*models.CorpusRecord, model string) error {
	dims, err := corpusDimensions(records)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM corpus`); err != nil {
		return fmt.Errorf("clear corpus: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO corpus (seq, key, text, label, vector) VALUES ($1, $2, $3, $4, $5::vector)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		r.Seq = int64(i)
		if _, err := stmt.ExecContext(ctx, r.Seq, r.Key, r.Text, r.Label, vectorToString(r.Vector)); err != nil {
			return fmt.Errorf("insert record %q: %w", r.Key, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO corpus_meta (id, dimensions, model, built_at) VALUES (1, $1, $2, NOW())
		 ON CONFLICT (id) DO UPDATE SET
			dimensions = EXCLUDED.dimensions,
			model = EXCLUDED.model,
			built_at = EXCLUDED.built_at`,
		dims, model,
	); err != nil {
		return fmt.Errorf("update corpus meta: %w", err)
	}
	return tx.Commit()
}

// Rank scores the corpus against query, bound as a statement parameter.
func (s *PostgresStore) Rank(ctx context.Context, query []float32, limit int) ([]*models.RankedResult, error) {
	dims, err := s.dimensions(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkQuery(query, dims); err != nil {
		return nil, err
	}
	if dims == 0 {
		return nil, nil
	}
	q := `SELECT key, text, label, ` + fmt.Sprintf(pgScore, "vector", "$1::vector") + ` AS score
	      FROM corpus ORDER BY score DESC, seq ASC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, vectorToString(query), limit)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	return scanRanked(rows)
}

// StageQuery upserts query into the slot row named slotID.
func (s *PostgresStore) StageQuery(ctx context.Context, slotID string, query []float32) error {
	dims, err := s.dimensions(ctx)
	if err != nil {
		return err
	}
	if err := checkQuery(query, dims); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_slot (session_id, vector) VALUES ($1, $2::vector)
		 ON CONFLICT (session_id) DO UPDATE SET vector = EXCLUDED.vector, created_at = NOW()`,
		slotID, vectorToString(query),
	)
	if err != nil {
		return fmt.Errorf("stage query: %w", err)
	}
	return nil
}

// RankStaged scores the corpus against the vector staged in slotID.
func (s *PostgresStore) RankStaged(ctx context.Context, slotID string, limit int) ([]*models.RankedResult, error) {
	var staged int
	err := s.db.QueryRowContext(ctx,
		`SELECT vector_dims(vector) FROM search_slot WHERE session_id = $1`, slotID,
	).Scan(&staged)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSlotMissing, slotID)
	}
	if err != nil {
		return nil, fmt.Errorf("read slot: %w", err)
	}
	dims, err := s.dimensions(ctx)
	if err != nil {
		return nil, err
	}
	if dims == 0 {
		return nil, nil
	}
	if staged != dims {
		return nil, fmt.Errorf("%w: staged vector has %d dimensions, corpus has %d", ErrDimensionMismatch, staged, dims)
	}

	q := `SELECT c.key, c.text, c.label, ` + fmt.Sprintf(pgScore, "c.vector", "s.vector") + ` AS score
	      FROM corpus c JOIN search_slot s ON s.session_id = $1
	      ORDER BY score DESC, c.seq ASC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, slotID, limit)
	if err != nil {
		return nil, fmt.Errorf("rank staged: %w", err)
	}
	return scanRanked(rows)
}

// ReleaseSlot deletes the slot row. Releasing a missing slot is not an error.
func (s *PostgresStore) ReleaseSlot(ctx context.Context, slotID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM search_slot WHERE session_id = $1`, slotID)
	return err
}

// ListRecords returns corpus records in seq order with offset and limit.
func (s *PostgresStore) ListRecords(ctx context.Context, offset, limit int) ([]*models.CorpusRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, key, text, label, vector::text FROM corpus ORDER BY seq LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*models.CorpusRecord
	for rows.Next() {
		var r models.CorpusRecord
		var vec string
		if err := rows.Scan(&r.Seq, &r.Key, &r.Text, &r.Label, &vec); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if r.Vector, err = parseVector(vec); err != nil {
			return nil, fmt.Errorf("record %q: %w", r.Key, err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Meta returns the record count and the recorded corpus dimension and model.
func (s *PostgresStore) Meta(ctx context.Context) (*models.CorpusMeta, error) {
	var meta models.CorpusMeta
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM corpus`).Scan(&meta.Records); err != nil {
		return nil, fmt.Errorf("count corpus: %w", err)
	}
	var builtAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT dimensions, model, built_at FROM corpus_meta WHERE id = 1`,
	).Scan(&meta.Dimensions, &meta.Model, &builtAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read corpus meta: %w", err)
	}
	if builtAt.Valid {
		meta.BuiltAt = builtAt.Time
	}
	return &meta, nil
}

func (s *PostgresStore) dimensions(ctx context.Context) (int, error) {
	var dims int
	err := s.db.QueryRowContext(ctx, `SELECT dimensions FROM corpus_meta WHERE id = 1`).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return dims, err
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// vectorToString converts a float32 slice to pgvector text format: [0.1,0.2,0.3].
func vectorToString(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = strconv.FormatFloat(float64(val), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVector reads pgvector text format, which is a JSON number array.
func parseVector(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("parse vector: %w", err)
	}
	return v, nil
}
