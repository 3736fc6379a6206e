package book

import "context"

// Repository is the persistence boundary for book records. The enrichment
// engine only reads records and submits field-level updates; it never owns
// storage. Implementations are not required to be safe for concurrent use by
// the same batch run, which processes books sequentially.
type Repository interface {
	// GetBook returns the record with the given ID, or ErrNotFound.
	GetBook(ctx context.Context, id string) (*Record, error)

	// ListBooksNeedingEnrichment returns up to limit records missing at least
	// one enrichable field. When coverOnly is true only records without a
	// cover URL are returned; when force is true every record is returned.
	ListBooksNeedingEnrichment(ctx context.Context, limit int, coverOnly, force bool) ([]*Record, error)

	// UpdateBook applies the given field updates to a record and returns the
	// updated record. A nil record with nil error means the update was
	// silently dropped; callers treat that as a failure for the book.
	UpdateBook(ctx context.Context, id string, updates map[string]any) (*Record, error)

	// SetBookAuthor replaces the record's author relationship.
	SetBookAuthor(ctx context.Context, id, author string) error

	// SetBookPublisher attaches a publisher relationship if the record has none.
	SetBookPublisher(ctx context.Context, id, publisher string) error
}
