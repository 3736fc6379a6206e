package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mybibliotheca/libris/internal/book"
	libriserrors "github.com/mybibliotheca/libris/internal/errors"
	"github.com/mybibliotheca/libris/internal/provider"
)

// Options configures a single orchestrator invocation.
type Options struct {
	// Force skips the sufficiency check and always queries providers.
	Force bool
	// RequireCover restricts the sufficiency check to cover presence only.
	RequireCover bool
	// DownloadCovers enables the cover backfill step for candidates that
	// arrive without one.
	DownloadCovers bool
	// MinQuality is the score threshold below which candidates are rejected.
	MinQuality float64
}

// Orchestrator drives the provider chain for one book at a time: sufficiency
// check, fetch with fallback, score, validate, cover backfill. It always
// returns a definite decision; provider failures degrade to NoCandidate.
type Orchestrator struct {
	providers []provider.Provider
}

// NewOrchestrator builds an orchestrator over the given provider chain,
// sorted by priority. At least one provider is required; a chain with zero
// providers is a configuration error, not something to discover per book.
func NewOrchestrator(providers ...provider.Provider) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one metadata provider must be configured")
	}

	sorted := make([]provider.Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})

	return &Orchestrator{providers: sorted}, nil
}

// Providers returns the configured chain in fetch order.
func (o *Orchestrator) Providers() []provider.Provider {
	return o.providers
}

// Enrich runs the full decision pipeline for one record.
func (o *Orchestrator) Enrich(ctx context.Context, rec *book.Record, opts Options) book.Decision {
	if !opts.Force && IsSufficient(rec, opts.RequireCover) {
		slog.Debug("book already sufficient", "id", rec.ID, "title", rec.Title)
		return book.Skipped("already sufficient")
	}

	cand := o.fetchCandidate(ctx, rec)
	if cand == nil {
		return book.NoCandidate("no provider returned data")
	}

	if cand.QualityScore == 0 {
		cand.QualityScore = Score(cand)
	}

	if err := Validate(cand); err != nil {
		slog.Info("candidate failed validation",
			"id", rec.ID, "title", rec.Title, "source", cand.Source, "reason", err)
		return book.Rejected(fmt.Sprintf("validation failed: %v", err))
	}

	if cand.QualityScore < opts.MinQuality {
		return book.Rejected(fmt.Sprintf("quality %.2f below threshold %.2f",
			cand.QualityScore, opts.MinQuality))
	}

	if cand.CoverURL == "" && opts.DownloadCovers {
		o.backfillCover(ctx, rec, cand)
	}

	if cand.EnrichedAt.IsZero() {
		cand.EnrichedAt = time.Now()
	}
	return book.Accepted(cand)
}

// fetchCandidate walks the provider chain until one returns data. Errors are
// logged and treated as "no candidate from this provider" so a flaky provider
// never aborts the pipeline.
func (o *Orchestrator) fetchCandidate(ctx context.Context, rec *book.Record) *book.Candidate {
	for _, p := range o.providers {
		cand, err := p.Fetch(ctx, rec.Title, rec.Author, rec.ISBN(), rec)
		if err != nil {
			switch {
			case libriserrors.IsProviderUnavailable(err):
				slog.Debug("provider unavailable", "provider", p.Name(), "error", err)
			case libriserrors.IsRateLimitError(err):
				slog.Warn("provider rate limited", "provider", p.Name(), "error", err)
			default:
				slog.Warn("provider fetch failed",
					"provider", p.Name(), "id", rec.ID, "title", rec.Title, "error", err)
			}
			continue
		}
		if cand != nil {
			slog.Debug("provider returned candidate",
				"provider", p.Name(), "id", rec.ID, "title", rec.Title)
			return cand
		}
	}
	return nil
}

// backfillCover asks the first web-capable provider for a cover URL. Only
// providers implementing CoverSearcher participate.
func (o *Orchestrator) backfillCover(ctx context.Context, rec *book.Record, cand *book.Candidate) {
	for _, p := range o.providers {
		searcher, ok := p.(provider.CoverSearcher)
		if !ok {
			continue
		}
		coverURL, err := searcher.FindCover(ctx, cand.Title, cand.Author, rec.ISBN())
		if err != nil {
			slog.Warn("cover search failed", "provider", p.Name(), "title", cand.Title, "error", err)
			continue
		}
		if coverURL != "" {
			slog.Info("cover backfilled", "provider", p.Name(), "title", cand.Title, "url", coverURL)
			cand.CoverURL = coverURL
			return
		}
	}
}
