// Package catalog implements the local catalog provider: a read-only SQLite
// snapshot of a bibliographic catalog, queried by ISBN first and by fuzzy
// title/author matching second. It never invents data; it only returns rows
// that already exist.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"github.com/mybibliotheca/libris/internal/book"
	libriserrors "github.com/mybibliotheca/libris/internal/errors"
	"github.com/mybibliotheca/libris/internal/provider"
)

const providerName = "catalog"

// SimilarityThreshold is the minimum combined title/author similarity for a
// fuzzy match to count.
const SimilarityThreshold = 0.7

const (
	titleWeight  = 0.6
	authorWeight = 0.4
)

// Provider looks up books in a local catalog database. The connection is
// established lazily on first use and reused; the orchestrator calls
// providers sequentially so no locking is needed.
type Provider struct {
	dbPath string

	once    sync.Once
	db      *sql.DB
	openErr error
}

var _ provider.Provider = (*Provider)(nil)

// New builds the catalog provider from viper configuration. A missing or
// nonexistent catalog.dbfile leaves the provider constructed but unavailable.
func New() *Provider {
	return &Provider{dbPath: viper.GetString("catalog.dbfile")}
}

func (p *Provider) Name() string  { return providerName }
func (p *Provider) Priority() int { return 2 }

func (p *Provider) conn() (*sql.DB, error) {
	p.once.Do(func() {
		if p.dbPath == "" {
			p.openErr = libriserrors.NewProviderUnavailableError(providerName, "no catalog database configured")
			return
		}
		if _, err := os.Stat(p.dbPath); err != nil {
			p.openErr = libriserrors.NewProviderUnavailableError(providerName, fmt.Sprintf("catalog database not found: %s", p.dbPath))
			return
		}
		db, err := sql.Open("sqlite", p.dbPath+"?mode=ro")
		if err != nil {
			p.openErr = fmt.Errorf("failed to open catalog database: %w", err)
			return
		}
		p.db = db
	})
	return p.db, p.openErr
}

// Ping verifies the catalog database opens and answers a query.
func (p *Provider) Ping(ctx context.Context) error {
	db, err := p.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Fetch looks the book up by cleaned ISBN (exact first, partial second) and
// falls back to fuzzy title/author matching. Returns nil, nil when no row
// clears the similarity threshold.
func (p *Provider) Fetch(ctx context.Context, title, author, isbn string, existing *book.Record) (*book.Candidate, error) {
	db, err := p.conn()
	if err != nil {
		return nil, err
	}

	if clean := book.CleanISBN(isbn); clean != "" {
		cand, err := p.lookupISBN(ctx, db, clean)
		if err != nil || cand != nil {
			return cand, err
		}
	}

	if strings.TrimSpace(title) == "" {
		return nil, nil
	}
	return p.lookupFuzzy(ctx, db, title, author)
}

const catalogColumns = "title, author, publisher, year, isbn, pages, description, cover_url, genres, language, source_url"

func (p *Provider) lookupISBN(ctx context.Context, db *sql.DB, isbn string) (*book.Candidate, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+catalogColumns+" FROM catalog WHERE isbn = ? LIMIT 1", isbn)
	cand, err := scanCandidate(row)
	if err == nil {
		return cand, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog isbn lookup: %w", err)
	}

	// Partial match catches rows stored with check digits or prefixes the
	// cleaned form lacks.
	row = db.QueryRowContext(ctx,
		"SELECT "+catalogColumns+" FROM catalog WHERE isbn LIKE ? LIMIT 1", "%"+isbn+"%")
	cand, err = scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog partial isbn lookup: %w", err)
	}
	return cand, nil
}

// lookupFuzzy narrows candidates with a LIKE on the longest title word, then
// ranks them by weighted title/author similarity in memory.
func (p *Provider) lookupFuzzy(ctx context.Context, db *sql.DB, title, author string) (*book.Candidate, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+catalogColumns+" FROM catalog WHERE title LIKE ? LIMIT 200",
		"%"+longestWord(title)+"%")
	if err != nil {
		return nil, fmt.Errorf("catalog title search: %w", err)
	}
	defer rows.Close()

	var best *book.Candidate
	bestScore := 0.0
	for rows.Next() {
		cand, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog title search scan: %w", err)
		}
		score := matchScore(title, author, cand)
		if score > bestScore {
			best, bestScore = cand, score
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog title search: %w", err)
	}

	if bestScore < SimilarityThreshold {
		return nil, nil
	}
	slog.Debug("catalog fuzzy match", "title", title, "matched", best.Title, "score", bestScore)
	best.Confidence = bestScore
	return best, nil
}

// matchScore weights title similarity 60/40 against author similarity when an
// author is given; title-only queries use the title ratio alone.
func matchScore(title, author string, cand *book.Candidate) float64 {
	titleSim := Similarity(title, cand.Title)
	if strings.TrimSpace(author) == "" || cand.Author == "" {
		return titleSim
	}
	return titleWeight*titleSim + authorWeight*Similarity(author, cand.Author)
}

func longestWord(s string) string {
	longest := ""
	for _, w := range strings.Fields(s) {
		w = strings.TrimFunc(w, unicode.IsPunct)
		if len(w) > len(longest) {
			longest = w
		}
	}
	return longest
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*book.Candidate, error) {
	var (
		cand      book.Candidate
		year      sql.NullInt64
		pages     sql.NullInt64
		publisher sql.NullString
		isbn      sql.NullString
		desc      sql.NullString
		coverURL  sql.NullString
		genres    sql.NullString
		language  sql.NullString
		sourceURL sql.NullString
	)
	err := row.Scan(&cand.Title, &cand.Author, &publisher, &year, &isbn,
		&pages, &desc, &coverURL, &genres, &language, &sourceURL)
	if err != nil {
		return nil, err
	}

	cand.Publisher = publisher.String
	cand.Year = int(year.Int64)
	cand.ISBN = book.CleanISBN(isbn.String)
	cand.Pages = int(pages.Int64)
	cand.Description = desc.String
	cand.CoverURL = coverURL.String
	cand.Language = language.String
	if genres.String != "" {
		for _, g := range strings.Split(genres.String, ",") {
			if g = strings.TrimSpace(g); g != "" {
				cand.Genres = append(cand.Genres, g)
			}
		}
	}
	if sourceURL.String != "" {
		cand.Sources = []string{sourceURL.String}
	}
	cand.Source = providerName
	return &cand, nil
}
