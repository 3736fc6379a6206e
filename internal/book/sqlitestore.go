package book

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const booksSchema = `
CREATE TABLE IF NOT EXISTS books (
	id TEXT PRIMARY KEY NOT NULL,
	title TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	publisher TEXT NOT NULL DEFAULT '',
	isbn10 TEXT NOT NULL DEFAULT '',
	isbn13 TEXT NOT NULL DEFAULT '',
	page_count INTEGER NOT NULL DEFAULT 0,
	published_date DATETIME,
	language TEXT NOT NULL DEFAULT '',
	cover_url TEXT NOT NULL DEFAULT '',
	cover_source TEXT NOT NULL DEFAULT '',
	genres TEXT NOT NULL DEFAULT '',
	enriched_at DATETIME,
	enriched_by TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_books_enriched_at ON books(enriched_at);
`

// Columns UpdateBook accepts. Anything else in the updates map is a
// programming error and is rejected rather than interpolated into SQL.
var updatableColumns = map[string]bool{
	"title":          true,
	"author":         true,
	"description":    true,
	"publisher":      true,
	"isbn10":         true,
	"isbn13":         true,
	"page_count":     true,
	"published_date": true,
	"language":       true,
	"cover_url":      true,
	"cover_source":   true,
	"genres":         true,
	"enriched_at":    true,
	"enriched_by":    true,
}

// SQLiteRepository implements Repository over a local SQLite database.
type SQLiteRepository struct {
	db     *sql.DB
	dbPath string
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a repository for the given database file.
// Call Connect before use.
func NewSQLiteRepository(dbPath string) *SQLiteRepository {
	return &SQLiteRepository{dbPath: dbPath}
}

// Connect opens the database and creates the books table if missing.
func (s *SQLiteRepository) Connect() error {
	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open books database: %w", err)
	}
	if _, err := db.Exec(booksSchema); err != nil {
		closeErr := db.Close()
		return errors.Join(fmt.Errorf("failed to create books table: %w", err), closeErr)
	}
	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteRepository) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// AddBook inserts a new record, assigning an ID if the record has none.
func (s *SQLiteRepository) AddBook(ctx context.Context, rec *Record) (*Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (id, title, author, description, publisher, isbn10, isbn13,
			page_count, published_date, language, cover_url, cover_source, genres,
			enriched_at, enriched_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.Author, rec.Description, rec.Publisher,
		rec.ISBN10, rec.ISBN13, rec.PageCount, nullTime(rec.PublishedDate),
		rec.Language, rec.CoverURL, rec.CoverSource, joinGenres(rec.Genres),
		nullTime(rec.EnrichedAt), rec.EnrichedBy, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert book: %w", err)
	}
	return rec, nil
}

// GetBook returns the record with the given ID.
func (s *SQLiteRepository) GetBook(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM books WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// FindBooksByTitle returns up to limit records whose title contains the given
// pattern, case-insensitively.
func (s *SQLiteRepository) FindBooksByTitle(ctx context.Context, pattern string, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM books WHERE title LIKE ? COLLATE NOCASE ORDER BY created_at DESC LIMIT ?`,
		"%"+pattern+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query books by title: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRecords(rows)
}

// ListBooksNeedingEnrichment returns records missing enrichable fields,
// newest first.
func (s *SQLiteRepository) ListBooksNeedingEnrichment(ctx context.Context, limit int, coverOnly, force bool) ([]*Record, error) {
	query := selectColumns + ` FROM books`
	switch {
	case force:
		// All books, regardless of completeness.
	case coverOnly:
		query += ` WHERE cover_url = ''`
	default:
		query += ` WHERE description = '' OR cover_url = '' OR publisher = '' OR (isbn10 = '' AND isbn13 = '')`
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query books needing enrichment: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRecords(rows)
}

// UpdateBook applies field updates and returns the refreshed record.
func (s *SQLiteRepository) UpdateBook(ctx context.Context, id string, updates map[string]any) (*Record, error) {
	if len(updates) == 0 {
		return s.GetBook(ctx, id)
	}

	var sets []string
	var args []any
	for col, val := range updates {
		if !updatableColumns[col] {
			return nil, fmt.Errorf("refusing to update unknown column %q", col)
		}
		if vs, ok := val.([]string); ok {
			val = joinGenres(vs)
		}
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE books SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update book %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.GetBook(ctx, id)
}

// SetBookAuthor replaces the record's author.
func (s *SQLiteRepository) SetBookAuthor(ctx context.Context, id, author string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE books SET author = ? WHERE id = ?`, author, id)
	if err != nil {
		return fmt.Errorf("failed to set author for book %s: %w", id, err)
	}
	return nil
}

// SetBookPublisher attaches a publisher if the record has none.
func (s *SQLiteRepository) SetBookPublisher(ctx context.Context, id, publisher string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE books SET publisher = ? WHERE id = ? AND publisher = ''`, publisher, id)
	if err != nil {
		return fmt.Errorf("failed to set publisher for book %s: %w", id, err)
	}
	return nil
}

const selectColumns = `SELECT id, title, author, description, publisher, isbn10, isbn13,
	page_count, published_date, language, cover_url, cover_source, genres,
	enriched_at, enriched_by, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var published, enriched, created sql.NullTime
	var genres string
	err := row.Scan(&rec.ID, &rec.Title, &rec.Author, &rec.Description, &rec.Publisher,
		&rec.ISBN10, &rec.ISBN13, &rec.PageCount, &published, &rec.Language,
		&rec.CoverURL, &rec.CoverSource, &genres, &enriched, &rec.EnrichedBy, &created)
	if err != nil {
		return nil, err
	}
	if published.Valid {
		rec.PublishedDate = published.Time
	}
	if enriched.Valid {
		rec.EnrichedAt = enriched.Time
	}
	if created.Valid {
		rec.CreatedAt = created.Time
	}
	rec.Genres = splitGenres(genres)
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// Genres are a UI-facing tag set stored as a single delimited column.
const genreSeparator = "\x1f"

func joinGenres(genres []string) string {
	return strings.Join(genres, genreSeparator)
}

func splitGenres(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, genreSeparator)
}
