package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mybibliotheca/libris/internal/book"
	"github.com/mybibliotheca/libris/internal/provider"
)

// fakeProvider is a scriptable provider for orchestrator tests.
type fakeProvider struct {
	name      string
	priority  int
	candidate *book.Candidate
	err       error
	calls     int

	coverURL string
	coverErr error
}

var (
	_ provider.Provider      = (*fakeProvider)(nil)
	_ provider.CoverSearcher = (*coverFakeProvider)(nil)
)

func (f *fakeProvider) Name() string                   { return f.name }
func (f *fakeProvider) Priority() int                  { return f.priority }
func (f *fakeProvider) Ping(ctx context.Context) error { return nil }
func (f *fakeProvider) Fetch(ctx context.Context, title, author, isbn string, existing *book.Record) (*book.Candidate, error) {
	f.calls++
	return f.candidate, f.err
}

// coverFakeProvider additionally implements CoverSearcher.
type coverFakeProvider struct {
	fakeProvider
}

func (f *coverFakeProvider) FindCover(ctx context.Context, title, author, isbn string) (string, error) {
	return f.coverURL, f.coverErr
}

func insufficientBook() *book.Record {
	return &book.Record{
		ID:     "b1",
		Title:  "Сенки над Балканите",
		Author: "",
	}
}

func goodCandidate() *book.Candidate {
	return &book.Candidate{
		Title:       "Сенки над Балканите",
		Author:      "Иван Петров",
		Description: strings.Repeat("о", 60),
		Publisher:   "Бард",
		ISBN:        "9789546557778",
		CoverURL:    "https://example.com/cover.jpg",
		Confidence:  0.9,
		Source:      "websearch",
	}
}

func TestNewOrchestratorRequiresProviders(t *testing.T) {
	_, err := NewOrchestrator()
	assert.Error(t, err)
}

func TestEnrichSkipsSufficientBook(t *testing.T) {
	p := &fakeProvider{name: "websearch"}
	o, err := NewOrchestrator(p)
	require.NoError(t, err)

	rec := &book.Record{
		Title:       "A Latin Book",
		Description: strings.Repeat("x", 150),
		Publisher:   "Press",
		ISBN13:      "9780545010221",
	}

	d := o.Enrich(context.Background(), rec, Options{MinQuality: 0.7})
	assert.Equal(t, book.OutcomeSkipped, d.Outcome)
	assert.Equal(t, "already sufficient", d.Reason)
	assert.Zero(t, p.calls)
}

func TestEnrichForceBypassesSufficiency(t *testing.T) {
	p := &fakeProvider{name: "websearch", candidate: goodCandidate()}
	o, err := NewOrchestrator(p)
	require.NoError(t, err)

	rec := &book.Record{
		Title:       "A Latin Book",
		Description: strings.Repeat("x", 150),
		Publisher:   "Press",
		ISBN13:      "9780545010221",
	}

	d := o.Enrich(context.Background(), rec, Options{Force: true, MinQuality: 0.7})
	assert.Equal(t, book.OutcomeAccepted, d.Outcome)
	assert.Equal(t, 1, p.calls)
}

func TestEnrichAcceptsGoodCandidate(t *testing.T) {
	p := &fakeProvider{name: "websearch", candidate: goodCandidate()}
	o, err := NewOrchestrator(p)
	require.NoError(t, err)

	d := o.Enrich(context.Background(), insufficientBook(), Options{MinQuality: 0.7})
	require.Equal(t, book.OutcomeAccepted, d.Outcome)
	require.NotNil(t, d.Candidate)
	assert.InDelta(t, 0.945, d.Candidate.QualityScore, 0.0001)
	assert.False(t, d.Candidate.EnrichedAt.IsZero())
}

func TestEnrichFallsBackToSecondProvider(t *testing.T) {
	first := &fakeProvider{name: "websearch", priority: 1, err: errors.New("timeout")}
	second := &fakeProvider{name: "generative", priority: 2, candidate: goodCandidate()}
	o, err := NewOrchestrator(second, first)
	require.NoError(t, err)

	d := o.Enrich(context.Background(), insufficientBook(), Options{MinQuality: 0.7})
	assert.Equal(t, book.OutcomeAccepted, d.Outcome)
	assert.Equal(t, 1, first.calls, "lower priority value is tried first")
	assert.Equal(t, 1, second.calls)
}

func TestEnrichNoCandidateWhenAllProvidersFail(t *testing.T) {
	first := &fakeProvider{name: "websearch", priority: 1, err: errors.New("timeout")}
	second := &fakeProvider{name: "generative", priority: 2}
	o, err := NewOrchestrator(first, second)
	require.NoError(t, err)

	d := o.Enrich(context.Background(), insufficientBook(), Options{MinQuality: 0.7})
	assert.Equal(t, book.OutcomeNoCandidate, d.Outcome)
	assert.Equal(t, "no provider returned data", d.Reason)
}

func TestEnrichRejectsBelowThreshold(t *testing.T) {
	// Title and author only scores exactly the validation floor.
	thin := &book.Candidate{Title: "Сенки над Балканите", Author: "Иван Петров"}
	p := &fakeProvider{name: "websearch", candidate: thin}
	o, err := NewOrchestrator(p)
	require.NoError(t, err)

	d := o.Enrich(context.Background(), insufficientBook(), Options{MinQuality: 0.7})
	assert.Equal(t, book.OutcomeRejected, d.Outcome)
	assert.Contains(t, d.Reason, "below threshold")
}

func TestEnrichAcceptsAtLoweredThreshold(t *testing.T) {
	thin := &book.Candidate{Title: "Сенки над Балканите", Author: "Иван Петров"}
	p := &fakeProvider{name: "websearch", candidate: thin}
	o, err := NewOrchestrator(p)
	require.NoError(t, err)

	d := o.Enrich(context.Background(), insufficientBook(), Options{MinQuality: 0.4})
	assert.Equal(t, book.OutcomeAccepted, d.Outcome)
}

func TestEnrichRejectsMissingAuthor(t *testing.T) {
	noAuthor := goodCandidate()
	noAuthor.Author = ""
	p := &fakeProvider{name: "websearch", candidate: noAuthor}
	o, err := NewOrchestrator(p)
	require.NoError(t, err)

	d := o.Enrich(context.Background(), insufficientBook(), Options{MinQuality: 0.7})
	assert.Equal(t, book.OutcomeRejected, d.Outcome)
	assert.Contains(t, d.Reason, "validation failed")
}

func TestEnrichBackfillsCover(t *testing.T) {
	cand := goodCandidate()
	cand.CoverURL = ""

	p := &coverFakeProvider{fakeProvider{name: "websearch", candidate: cand, coverURL: "https://example.com/found.jpg"}}
	o, err := NewOrchestrator(p)
	require.NoError(t, err)

	d := o.Enrich(context.Background(), insufficientBook(), Options{MinQuality: 0.7, DownloadCovers: true})
	require.Equal(t, book.OutcomeAccepted, d.Outcome)
	assert.Equal(t, "https://example.com/found.jpg", d.Candidate.CoverURL)
}

func TestEnrichSkipsBackfillWhenDisabled(t *testing.T) {
	cand := goodCandidate()
	cand.CoverURL = ""

	p := &coverFakeProvider{fakeProvider{name: "websearch", candidate: cand, coverURL: "https://example.com/found.jpg"}}
	o, err := NewOrchestrator(p)
	require.NoError(t, err)

	d := o.Enrich(context.Background(), insufficientBook(), Options{MinQuality: 0.7})
	require.Equal(t, book.OutcomeAccepted, d.Outcome)
	assert.Empty(t, d.Candidate.CoverURL)
}

func TestEnrichBackfillIgnoresNonSearchers(t *testing.T) {
	cand := goodCandidate()
	cand.CoverURL = ""

	// Plain providers do not participate in cover search.
	p := &fakeProvider{name: "generative", candidate: cand}
	o, err := NewOrchestrator(p)
	require.NoError(t, err)

	d := o.Enrich(context.Background(), insufficientBook(), Options{MinQuality: 0.7, DownloadCovers: true})
	require.Equal(t, book.OutcomeAccepted, d.Outcome)
	assert.Empty(t, d.Candidate.CoverURL)
}
