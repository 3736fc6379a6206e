// Package book defines the records the enrichment pipeline operates on and
// the repository boundary behind which they are persisted.
package book

import (
	"strings"
	"time"
)

// Record is a book as stored in the library. The enrichment engine works on a
// transient copy; the repository owns the canonical record. ID is immutable
// once created and Language is a two-letter code or empty.
type Record struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`

	Description   string    `json:"description,omitempty"`
	Publisher     string    `json:"publisher,omitempty"`
	ISBN10        string    `json:"isbn10,omitempty"`
	ISBN13        string    `json:"isbn13,omitempty"`
	PageCount     int       `json:"page_count,omitempty"`
	PublishedDate time.Time `json:"published_date,omitempty"`
	Language      string    `json:"language,omitempty"`
	CoverURL      string    `json:"cover_url,omitempty"`
	Genres        []string  `json:"genres,omitempty"`

	// CoverSource tags where the current cover came from ("ai", "catalog",
	// "store" or empty for user-supplied covers).
	CoverSource string `json:"cover_source,omitempty"`

	// EnrichedAt and EnrichedBy record the last successful enrichment so the
	// batch runner can enforce its re-enrichment cooldown.
	EnrichedAt time.Time `json:"enriched_at,omitempty"`
	EnrichedBy string    `json:"enriched_by,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ISBN returns the best available ISBN for lookups, preferring the 13-digit
// form.
func (r *Record) ISBN() string {
	if r.ISBN13 != "" {
		return r.ISBN13
	}
	return r.ISBN10
}

// HasISBN reports whether either ISBN form is populated.
func (r *Record) HasISBN() bool {
	return r.ISBN13 != "" || r.ISBN10 != ""
}

// MissingFields lists the enrichable fields the record lacks, in a stable
// order. Used by dry-run reporting.
func (r *Record) MissingFields() []string {
	var missing []string
	if r.Description == "" {
		missing = append(missing, "description")
	}
	if r.CoverURL == "" {
		missing = append(missing, "cover")
	}
	if r.Publisher == "" {
		missing = append(missing, "publisher")
	}
	if !r.HasISBN() {
		missing = append(missing, "isbn")
	}
	return missing
}

// Candidate is unvalidated metadata returned by a single provider call. It is
// scored, merged and discarded; it is never persisted as-is.
type Candidate struct {
	Title       string   `json:"title,omitempty"`
	Subtitle    string   `json:"subtitle,omitempty"`
	Author      string   `json:"author,omitempty"`
	Translator  string   `json:"translator,omitempty"`
	Description string   `json:"description,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	Year        int      `json:"year,omitempty"`
	ISBN        string   `json:"isbn,omitempty"`
	Pages       int      `json:"pages,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Language    string   `json:"language,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`

	// QualityScore is computed by the scorer after parsing; Confidence is the
	// provider's own self-assessment when it reports one.
	QualityScore float64 `json:"quality_score"`
	Confidence   float64 `json:"confidence,omitempty"`

	// Source names the provider that produced the candidate; Sources are
	// citation URLs when the provider supplies them.
	Source     string    `json:"source,omitempty"`
	Model      string    `json:"model,omitempty"`
	Sources    []string  `json:"sources,omitempty"`
	EnrichedAt time.Time `json:"enriched_at,omitempty"`
}

// CleanISBN returns the candidate ISBN stripped of dashes and spaces.
func (c *Candidate) CleanISBN() string {
	return CleanISBN(c.ISBN)
}

// CleanISBN strips dashes and spaces from an ISBN string.
func CleanISBN(isbn string) string {
	isbn = strings.ReplaceAll(isbn, "-", "")
	isbn = strings.ReplaceAll(isbn, " ", "")
	return strings.TrimSpace(isbn)
}
