package ragstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Generations are
// rebuilt wholesale, so there are no migrations.
const schemaVersion = 1

var (
	// ErrSchemaMismatch indicates a database written by a different schema version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrNotFound reports a missing database file.
	ErrNotFound = errors.New("metadata store not found")
	// ErrNoBuildMeta reports a database without a committed build stamp.
	ErrNoBuildMeta = errors.New("build metadata missing")
)

// Record is the stored form of one embedded segment.
type Record struct {
	VectorID    int64
	MediaID     string
	StartTime   string
	EndTime     string
	Speaker     string
	Content     string
	Language    string
	ProcessedAt string
	StartImage  string
	EndImage    string
}

// BuildMeta stamps a database with the ingestion run that wrote it.
type BuildMeta struct {
	BuildID     string
	Model       string
	Dimension   int
	RecordCount int
	CreatedAt   time.Time
}

// Store wraps one metadata database.
type Store struct {
	db   *sql.DB
	path string
}

// Create initialises a new database at path. The file must not exist.
func Create(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("create metadata store: %s already exists", path)
	}
	store, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := store.createSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Open connects to an existing database and verifies its schema version.
func Open(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
		}
		return nil, fmt.Errorf("stat metadata store: %w", err)
	}
	store, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := store.checkSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *Store) checkSchema(ctx context.Context) error {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("%w: read schema version: %w", ErrSchemaMismatch, err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (re-run 'lectern index')",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

// InsertRecords stores records in one transaction.
func (s *Store) InsertRecords(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transcripts
		(vector_id, media_id, start_time, end_time, speaker, content, language, processed_at, start_image, end_image)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.VectorID, r.MediaID, r.StartTime, r.EndTime, r.Speaker, r.Content,
			r.Language, r.ProcessedAt, r.StartImage, r.EndImage,
		); err != nil {
			return fmt.Errorf("insert vector %d: %w", r.VectorID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

// WriteMeta replaces the build stamp.
func (s *Store) WriteMeta(ctx context.Context, meta BuildMeta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin meta tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM build_meta"); err != nil {
		return fmt.Errorf("clear build meta: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO build_meta (build_id, model, dimension, record_count, created_at) VALUES (?, ?, ?, ?, ?)",
		meta.BuildID, meta.Model, meta.Dimension, meta.RecordCount, meta.CreatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert build meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit build meta: %w", err)
	}
	return nil
}

// Meta returns the build stamp.
func (s *Store) Meta(ctx context.Context) (BuildMeta, error) {
	var (
		meta    BuildMeta
		created string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT build_id, model, dimension, record_count, created_at FROM build_meta LIMIT 1",
	).Scan(&meta.BuildID, &meta.Model, &meta.Dimension, &meta.RecordCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return BuildMeta{}, ErrNoBuildMeta
	}
	if err != nil {
		return BuildMeta{}, fmt.Errorf("read build meta: %w", err)
	}
	if t, parseErr := time.Parse(time.RFC3339Nano, created); parseErr == nil {
		meta.CreatedAt = t
	}
	return meta, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM transcripts").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// maxIDsPerQuery keeps RecordsByVectorIDs under SQLite's bound-variable limit.
const maxIDsPerQuery = 500

// RecordsByVectorIDs returns the records for ids. Unknown ids are absent
// from the map.
func (s *Store) RecordsByVectorIDs(ctx context.Context, ids []int64) (map[int64]Record, error) {
	out := make(map[int64]Record, len(ids))
	for chunk := range slices.Chunk(ids, maxIDsPerQuery) {
		if err := s.recordsIn(ctx, chunk, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) recordsIn(ctx context.Context, ids []int64, out map[int64]Record) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `SELECT vector_id, media_id, start_time, end_time, speaker, content,
		language, processed_at, start_image, end_image
		FROM transcripts WHERE vector_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.VectorID, &r.MediaID, &r.StartTime, &r.EndTime, &r.Speaker, &r.Content,
			&r.Language, &r.ProcessedAt, &r.StartImage, &r.EndImage); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		out[r.VectorID] = r
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	return nil
}
