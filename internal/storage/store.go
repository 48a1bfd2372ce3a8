package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
	defaultRecentLimit   = 50
)

var (
	// ErrNotFound is returned when no upload has the requested id.
	ErrNotFound = errors.New("upload not found")
	// ErrUploadExists is returned when an upload id is recorded twice.
	ErrUploadExists = errors.New("upload already recorded")
)

// Store is the upload ledger: one row per object a blob backend accepted.
type Store struct {
	db *sql.DB
}

// Upload is a ledger row.
type Upload struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	FileName  string    `json:"fileName"`
	MimeType  string    `json:"mimeType"`
	SHA256    string    `json:"sha256"`
	Backend   string    `json:"backend"`
	Uploader  string    `json:"uploader,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewStore opens the SQLite database at path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "telechat.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=journal_mode=WAL", path, separator, defaultBusyTimeout)
}

func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS uploads (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			file_name TEXT NOT NULL DEFAULT '',
			mime_type TEXT NOT NULL DEFAULT '',
			sha256 TEXT NOT NULL DEFAULT '',
			backend TEXT NOT NULL,
			uploader TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_created ON uploads(created_at);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit()
}

// RecordUpload inserts a ledger row. ErrUploadExists is returned on conflicts.
func (s *Store) RecordUpload(ctx context.Context, upload Upload) error {
	if upload.ID == "" {
		return errors.New("upload id required")
	}
	if upload.CreatedAt.IsZero() {
		upload.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads(id, url, file_name, mime_type, sha256, backend, uploader, size, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		upload.ID, upload.URL, upload.FileName, upload.MimeType, upload.SHA256,
		upload.Backend, upload.Uploader, upload.Size, upload.CreatedAt.UTC(),
	)
	if err != nil {
		if isConstraintError(err) {
			return ErrUploadExists
		}
		return err
	}
	return nil
}

func (s *Store) GetUpload(ctx context.Context, id string) (*Upload, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, file_name, mime_type, sha256, backend, uploader, size, created_at
		FROM uploads WHERE id = ?`, id)
	upload, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return upload, nil
}

// RecentUploads returns up to limit rows, newest first.
func (s *Store) RecentUploads(ctx context.Context, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, file_name, mime_type, sha256, backend, uploader, size, created_at
		FROM uploads ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var uploads []Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, *upload)
	}
	return uploads, rows.Err()
}

func (s *Store) CountUploads(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(row scanner) (*Upload, error) {
	var upload Upload
	if err := row.Scan(
		&upload.ID, &upload.URL, &upload.FileName, &upload.MimeType, &upload.SHA256,
		&upload.Backend, &upload.Uploader, &upload.Size, &upload.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &upload, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqliteConstraintCode
	}
	return false
}
