// Package batch drives the enrichment orchestrator across a list of books:
// strictly sequential, paced between books, with per-book failure isolation
// and aggregate statistics.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mybibliotheca/libris/internal/book"
	"github.com/mybibliotheca/libris/internal/covers"
	"github.com/mybibliotheca/libris/internal/enrich"
	"github.com/mybibliotheca/libris/internal/ratelimit"
	"github.com/mybibliotheca/libris/internal/status"
)

// Cooldown is how long a successfully enriched book is left alone before it
// may be re-processed. Force overrides it.
const Cooldown = 24 * time.Hour

// sampleLimit caps the per-run title samples kept for reporting.
const sampleLimit = 10

// Options configures one batch run.
type Options struct {
	Force          bool
	RequireCover   bool
	DownloadCovers bool
	MinQuality     float64
	// DryRun reports what each book is missing without calling providers or
	// persisting anything.
	DryRun bool
	// Delay is the pause between books. Zero disables pacing.
	Delay time.Duration
}

// ProgressFunc receives a statistics snapshot after each processed book.
type ProgressFunc func(stats Stats, current *book.Record)

// Runner executes batch enrichment runs.
type Runner struct {
	orch    *enrich.Orchestrator
	repo    book.Repository
	store   *status.Store
	coverDL *covers.Downloader
}

// New builds a runner. The status store and cover downloader are optional;
// nil disables status persistence and cover downloading respectively.
func New(orch *enrich.Orchestrator, repo book.Repository, store *status.Store, coverDL *covers.Downloader) *Runner {
	return &Runner{orch: orch, repo: repo, store: store, coverDL: coverDL}
}

// Run processes the books strictly sequentially. A single book's failure is
// counted and logged, never propagated; the only returned error is context
// cancellation between books.
func (r *Runner) Run(ctx context.Context, books []book.Record, opts Options, onProgress ProgressFunc) (*Stats, error) {
	stats := &Stats{Total: len(books), StartedAt: time.Now()}
	defer func() { stats.CompletedAt = time.Now() }()

	var run *status.Run
	var runErr error
	if r.store != nil {
		var err error
		run, err = r.store.Acquire(len(books), opts.Force)
		if err != nil {
			return stats, err
		}
		defer func() {
			if err := r.store.Release(run, runErr); err != nil {
				slog.Warn("failed to release run status", "error", err)
			}
		}()
	}

	// The limiter admits the first book immediately and paces the rest, so
	// the delay is naturally skipped after the final book.
	limiter := ratelimit.NewWithDelay("batch", opts.Delay)

	for i := range books {
		rec := &books[i]

		if err := limiter.Wait(ctx); err != nil {
			runErr = fmt.Errorf("batch run cancelled: %w", err)
			return stats, runErr
		}

		r.processBook(ctx, rec, opts, stats)
		stats.Processed++

		if run != nil {
			r.updateStatus(run, stats)
		}
		if onProgress != nil {
			onProgress(*stats, rec)
		}
	}

	slog.Info("batch run complete",
		"total", stats.Total,
		"enriched", stats.Enriched,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", stats.Duration().Round(time.Millisecond))
	return stats, nil
}

func (r *Runner) processBook(ctx context.Context, rec *book.Record, opts Options, stats *Stats) {
	if !opts.Force && !rec.EnrichedAt.IsZero() && time.Since(rec.EnrichedAt) < Cooldown {
		slog.Info("book in re-enrichment cooldown, skipping",
			"id", rec.ID, "title", rec.Title, "enriched_at", rec.EnrichedAt)
		stats.Skipped++
		stats.sampleSkipped(rec.Title)
		return
	}

	if opts.DryRun {
		missing := rec.MissingFields()
		if len(missing) == 0 {
			stats.Skipped++
			stats.sampleSkipped(rec.Title)
		} else {
			slog.Info("dry run: book needs enrichment", "id", rec.ID, "title", rec.Title, "missing", missing)
			stats.NeedingEnrichment++
		}
		return
	}

	decision := r.orch.Enrich(ctx, rec, enrich.Options{
		Force:          opts.Force,
		RequireCover:   opts.RequireCover,
		DownloadCovers: opts.DownloadCovers,
		MinQuality:     opts.MinQuality,
	})

	switch decision.Outcome {
	case book.OutcomeSkipped:
		stats.Skipped++
		stats.sampleSkipped(rec.Title)

	case book.OutcomeNoCandidate, book.OutcomeRejected:
		slog.Warn("no usable metadata for book",
			"id", rec.ID, "title", rec.Title, "outcome", decision.Outcome, "reason", decision.Reason)
		stats.Failed++
		stats.sampleNoMetadata(rec.Title)

	case book.OutcomeAccepted:
		if err := r.persist(ctx, rec, decision.Candidate, stats); err != nil {
			slog.Error("failed to persist enrichment", "id", rec.ID, "title", rec.Title, "error", err)
			stats.Failed++
			return
		}
		stats.Enriched++
		stats.sampleEnriched(rec.Title)
	}
}

// persist merges the candidate and writes the changed fields through the
// repository. Cover handling happens here: once a download is attempted, the
// remote URL is never stored as a fallback.
func (r *Runner) persist(ctx context.Context, rec *book.Record, cand *book.Candidate, stats *Stats) error {
	merged, updates := enrich.Merge(rec, cand)

	// Reconcile a differing author against the title script; Merge itself
	// only fills an empty author field.
	if rec.Author != "" && cand.Author != "" && cand.Author != rec.Author {
		if name, ok := enrich.ReconcileAuthor(rec.Title, rec.Author, cand.Author); ok {
			merged.Author = name
			updates["author"] = name
		}
	}

	if coverURL, ok := updates["cover_url"].(string); ok && r.coverDL != nil {
		localPath, err := r.coverDL.Download(ctx, coverURL, rec.ID)
		if err != nil {
			slog.Warn("cover download failed, dropping cover from update",
				"id", rec.ID, "url", coverURL, "error", err)
			delete(updates, "cover_url")
			delete(updates, "cover_source")
		} else {
			updates["cover_url"] = localPath
		}
	}

	if len(updates) == 0 {
		return nil
	}

	updates["enriched_at"] = time.Now()
	updates["enriched_by"] = cand.Source

	updated, err := r.repo.UpdateBook(ctx, rec.ID, updates)
	if err != nil {
		return err
	}
	if updated == nil {
		return fmt.Errorf("repository dropped update for book %s", rec.ID)
	}

	if author, ok := updates["author"].(string); ok {
		if err := r.repo.SetBookAuthor(ctx, rec.ID, author); err != nil {
			slog.Warn("failed to link author", "id", rec.ID, "author", author, "error", err)
		}
	}
	if publisher, ok := updates["publisher"].(string); ok {
		if err := r.repo.SetBookPublisher(ctx, rec.ID, publisher); err != nil {
			slog.Warn("failed to link publisher", "id", rec.ID, "publisher", publisher, "error", err)
		}
	}

	if _, ok := updates["cover_url"]; ok {
		stats.CoversFound++
	}
	if _, ok := updates["description"]; ok {
		stats.DescriptionsAdded++
	}

	*rec = merged
	return nil
}

func (r *Runner) updateStatus(run *status.Run, stats *Stats) {
	run.Processed = stats.Processed
	run.Enriched = stats.Enriched
	run.Failed = stats.Failed
	run.EnrichedBooks = stats.EnrichedBooks
	run.SkippedBooks = stats.SkippedBooks
	if err := r.store.Save(run); err != nil {
		slog.Warn("failed to save run status", "error", err)
	}
}
