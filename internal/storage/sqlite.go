package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/vector"
)

const sqliteDriverName = "sqlite3_ruiji"

var registerDriver sync.Once

// registerSQLiteDriver registers a sqlite3 driver whose connections expose
// cosine_similarity(a BLOB, b BLOB) over little-endian float32 vectors.
func registerSQLiteDriver() {
	registerDriver.Do(func() {
		sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("cosine_similarity", sqliteCosine, true)
			},
		})
	})
}

func sqliteCosine(a, b []byte) (float64, error) {
	va, err := vector.Decode(a)
	if err != nil {
		return 0, err
	}
	vb, err := vector.Decode(b)
	if err != nil {
		return 0, err
	}
	if len(va) != len(vb) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(va), len(vb))
	}
	return vector.CosineSimilarity(va, vb), nil
}

// rankError restores ErrDimensionMismatch for errors raised inside cosine_similarity,
// which reach the caller only as SQLite error text.
func rankError(err error) error {
	if err != nil && !errors.Is(err, ErrDimensionMismatch) && strings.Contains(err.Error(), ErrDimensionMismatch.Error()) {
		return fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
	}
	return err
}

// rowQuerier is satisfied by *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements VectorStore using SQLite with an in-SQL cosine function.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private
// in-memory database on a single connection.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	registerSQLiteDriver()

	dsn := dbPath
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = dbPath + "?_busy_timeout=5000"
	}
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if inMemory {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS corpus (
		seq INTEGER PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		vector BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS corpus_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		dimensions INTEGER NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		built_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS search_slot (
		session_id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// ReplaceCorpus deletes the current corpus and inserts records in one transaction.
func (s *SQLiteStore) ReplaceCorpus(ctx context.Context, records []*models.CorpusRecord, model string) error {
	dims, err := corpusDimensions(records)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM corpus`); err != nil {
		return fmt.Errorf("failed to clear corpus: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO corpus (seq, key, text, label, vector) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		r.Seq = int64(i)
		if _, err := stmt.ExecContext(ctx, r.Seq, r.Key, r.Text, r.Label, vector.Encode(r.Vector)); err != nil {
			return fmt.Errorf("failed to insert record %q: %w", r.Key, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO corpus_meta (id, dimensions, model, built_at) VALUES (1, ?, ?, ?)`,
		dims, model, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to update corpus meta: %w", err)
	}
	return tx.Commit()
}

// Rank scores the corpus against query, bound as a statement parameter. The dimension
// check and the ranking read one snapshot so a concurrent ReplaceCorpus cannot slip between them.
func (s *SQLiteStore) Rank(ctx context.Context, query []float32, limit int) ([]*models.RankedResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	dims, err := dimensionsOf(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := checkQuery(query, dims); err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT key, text, label, cosine_similarity(vector, ?) AS score
		 FROM corpus ORDER BY score DESC, seq ASC LIMIT ?`,
		vector.Encode(query), limit,
	)
	if err != nil {
		return nil, rankError(err)
	}
	results, err := scanRanked(rows)
	return results, rankError(err)
}

// StageQuery writes query into the slot row named slotID, replacing any previous vector.
func (s *SQLiteStore) StageQuery(ctx context.Context, slotID string, query []float32) error {
	dims, err := s.dimensions(ctx)
	if err != nil {
		return err
	}
	if err := checkQuery(query, dims); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO search_slot (session_id, vector, created_at) VALUES (?, ?, ?)`,
		slotID, vector.Encode(query), time.Now().UTC(),
	)
	return err
}

// RankStaged scores the corpus against the vector staged in slotID, reading the slot,
// the corpus dimension and the corpus in one snapshot.
func (s *SQLiteStore) RankStaged(ctx context.Context, slotID string, limit int) ([]*models.RankedResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var staged []byte
	err = tx.QueryRowContext(ctx,
		`SELECT vector FROM search_slot WHERE session_id = ?`, slotID,
	).Scan(&staged)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSlotMissing, slotID)
	}
	if err != nil {
		return nil, err
	}
	dims, err := dimensionsOf(ctx, tx)
	if err != nil {
		return nil, err
	}
	if n := vector.EncodedDimensions(staged); dims != 0 && n != dims {
		return nil, fmt.Errorf("%w: staged vector has %d dimensions, corpus has %d", ErrDimensionMismatch, n, dims)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT c.key, c.text, c.label, cosine_similarity(c.vector, s.vector) AS score
		 FROM corpus c, search_slot s
		 WHERE s.session_id = ?
		 ORDER BY score DESC, c.seq ASC LIMIT ?`,
		slotID, limit,
	)
	if err != nil {
		return nil, rankError(err)
	}
	results, err := scanRanked(rows)
	return results, rankError(err)
}

// ReleaseSlot deletes the slot row. Releasing a missing slot is not an error.
func (s *SQLiteStore) ReleaseSlot(ctx context.Context, slotID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM search_slot WHERE session_id = ?`, slotID)
	return err
}

// ListRecords returns corpus records in seq order with offset and limit.
func (s *SQLiteStore) ListRecords(ctx context.Context, offset, limit int) ([]*models.CorpusRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, key, text, label, vector FROM corpus ORDER BY seq LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.CorpusRecord
	for rows.Next() {
		var r models.CorpusRecord
		var blob []byte
		if err := rows.Scan(&r.Seq, &r.Key, &r.Text, &r.Label, &blob); err != nil {
			return nil, err
		}
		if r.Vector, err = vector.Decode(blob); err != nil {
			return nil, fmt.Errorf("record %q: %w", r.Key, err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Meta returns the record count and the recorded corpus dimension and model.
func (s *SQLiteStore) Meta(ctx context.Context) (*models.CorpusMeta, error) {
	var meta models.CorpusMeta
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM corpus`).Scan(&meta.Records); err != nil {
		return nil, err
	}
	var builtAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT dimensions, model, built_at FROM corpus_meta WHERE id = 1`,
	).Scan(&meta.Dimensions, &meta.Model, &builtAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if builtAt.Valid {
		meta.BuiltAt = builtAt.Time
	}
	return &meta, nil
}

func (s *SQLiteStore) dimensions(ctx context.Context) (int, error) {
	return dimensionsOf(ctx, s.db)
}

func dimensionsOf(ctx context.Context, q rowQuerier) (int, error) {
	var dims int
	err := q.QueryRowContext(ctx, `SELECT dimensions FROM corpus_meta WHERE id = 1`).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return dims, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRanked(rows *sql.Rows) ([]*models.RankedResult, error) {
	defer rows.Close()
	var results []*models.RankedResult
	for rows.Next() {
		var r models.RankedResult
		if err := rows.Scan(&r.Key, &r.Text, &r.Label, &r.Score); err != nil {
			return nil, err
		}
		r.Rank = len(results) + 1
		results = append(results, &r)
	}
	return results, rows.Err()
}
