// Package provider defines the interface metadata sources implement and the
// capability interfaces the orchestrator branches on.
package provider

import (
	"context"

	"github.com/mybibliotheca/libris/internal/book"
)

// Provider defines the interface for fetching book metadata from an external
// source. Each implementation handles its own authentication, rate limiting
// and transformation into the common Candidate shape.
type Provider interface {
	// Name returns the human-readable name of the source (e.g., "WebSearch").
	Name() string

	// Priority returns the position in the fallback chain. Lower values are
	// tried first.
	Priority() int

	// Ping tests the connection to the source and returns an error if it
	// cannot be reached for whatever reason.
	Ping(ctx context.Context) error

	// Fetch retrieves metadata for a book identified by title/author and an
	// optional ISBN. The existing record, when given, lets the provider
	// embed known partial data in its query.
	// Returns nil, nil if nothing was found (allows the next provider to try).
	// Returns nil, error for actual errors (network issues, rate limits, etc.)
	Fetch(ctx context.Context, title, author, isbn string, existing *book.Record) (*book.Candidate, error)
}

// CoverSearcher is implemented only by providers that can locate cover
// images on the web. The orchestrator checks for this interface rather than
// inspecting provider names.
type CoverSearcher interface {
	// FindCover returns a verified, directly-fetchable image URL for the
	// book's cover, or "" if none was found.
	FindCover(ctx context.Context, title, author, isbn string) (string, error)
}

// URLFetcher is implemented by providers keyed by a product page URL rather
// than title/author, such as bookstore scrapers.
type URLFetcher interface {
	// FetchURL retrieves metadata from a specific product page.
	// Returns nil, nil for unsupported domains.
	FetchURL(ctx context.Context, pageURL string) (*book.Candidate, error)
}
