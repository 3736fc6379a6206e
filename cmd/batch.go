package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/mybibliotheca/libris/internal/batch"
	"github.com/mybibliotheca/libris/internal/book"
	"github.com/mybibliotheca/libris/internal/config"
	"github.com/mybibliotheca/libris/internal/covers"
	"github.com/mybibliotheca/libris/internal/script"
	"github.com/mybibliotheca/libris/internal/status"
)

// BatchCmd runs enrichment over every book missing metadata, sequentially.
type BatchCmd struct {
	Limit         int     `short:"n" help:"Maximum number of books to process" default:"20"`
	Force         bool    `short:"f" help:"Re-enrich books even when they look sufficient or are in cooldown"`
	CoversOnly    bool    `help:"Only backfill missing covers"`
	BulgarianOnly bool    `help:"Only process books with a Cyrillic title or bg language (default unless --force or --covers-only)"`
	DryRun        bool    `help:"Report what each book is missing without calling providers"`
	MinQuality    float64 `help:"Minimum quality score (default from config)"`
	NoCovers      bool    `help:"Skip cover search and download"`
	Delay         string  `help:"Delay between books (default from config)"`
}

func (b *BatchCmd) Run() error {
	if b.MinQuality > 0 {
		config.SetMinQuality(b.MinQuality)
	}
	if b.NoCovers {
		config.SetDownloadCovers(false)
	}

	delay := config.RateLimitDelay
	if b.Delay != "" {
		parsed, err := time.ParseDuration(b.Delay)
		if err != nil {
			return fmt.Errorf("invalid --delay: %w", err)
		}
		delay = parsed
	}

	orch, err := buildOrchestrator()
	if err != nil {
		return err
	}

	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx := context.Background()
	records, err := repo.ListBooksNeedingEnrichment(ctx, b.Limit, b.CoversOnly, b.Force)
	if err != nil {
		return fmt.Errorf("select books: %w", err)
	}

	// Regular runs focus on the Bulgarian shelf; --force and --covers-only
	// widen the selection to everything.
	bulgarianOnly := b.BulgarianOnly || (!b.Force && !b.CoversOnly)

	books := make([]book.Record, 0, len(records))
	for _, rec := range records {
		if bulgarianOnly && !script.IsBulgarian(rec.Title, rec.Language) {
			continue
		}
		books = append(books, *rec)
	}

	if len(books) == 0 {
		slog.Info("no books need enrichment")
		return nil
	}
	slog.Info("starting batch run", "books", len(books), "dry_run", b.DryRun, "force", b.Force)

	var coverDL *covers.Downloader
	if config.DownloadCovers && !b.DryRun {
		coverDL = covers.NewDownloader(viper.GetString("covers.dir"))
	}

	runner := batch.New(orch, repo, status.NewStore(viper.GetString("status.file")), coverDL)

	stats, err := runner.Run(ctx, books, batch.Options{
		Force:          b.Force,
		RequireCover:   b.CoversOnly,
		DownloadCovers: config.DownloadCovers,
		MinQuality:     config.MinQuality,
		DryRun:         b.DryRun,
		Delay:          delay,
	}, func(s batch.Stats, current *book.Record) {
		slog.Info("progress",
			"processed", fmt.Sprintf("%d/%d", s.Processed, s.Total),
			"book", current.Title,
			"enriched", s.Enriched,
			"failed", s.Failed)
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nProcessed %d books in %s\n", stats.Processed, stats.Duration().Round(time.Second))
	if stats.Processed > 0 {
		perBook := stats.Duration() / time.Duration(stats.Processed)
		fmt.Printf("  avg per book: %s\n", perBook.Round(time.Millisecond))
	}
	if b.DryRun {
		fmt.Printf("  needing enrichment: %d\n", stats.NeedingEnrichment)
	} else {
		fmt.Printf("  enriched: %d (%.0f%%)\n", stats.Enriched, stats.SuccessRate())
		fmt.Printf("  skipped:  %d\n", stats.Skipped)
		fmt.Printf("  failed:   %d\n", stats.Failed)
		fmt.Printf("  covers found: %d, descriptions added: %d\n", stats.CoversFound, stats.DescriptionsAdded)
	}
	if len(stats.NoMetadataBooks) > 0 {
		fmt.Println("  no metadata found for:")
		for _, title := range stats.NoMetadataBooks {
			fmt.Printf("    - %s\n", title)
		}
	}
	return nil
}
