package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mybibliotheca/libris/internal/book"
	"github.com/mybibliotheca/libris/internal/config"
	"github.com/mybibliotheca/libris/internal/covers"
	"github.com/mybibliotheca/libris/internal/enrich"
	"github.com/spf13/viper"
)

// EnrichCmd enriches a single book, either one stored in the library (by ID)
// or an ad-hoc title/author lookup printed as JSON.
type EnrichCmd struct {
	ID     string `help:"Library book ID to enrich and persist"`
	Title  string `help:"Book title for an ad-hoc lookup"`
	Author string `help:"Book author for an ad-hoc lookup"`
	ISBN   string `help:"ISBN for an ad-hoc lookup"`

	Force        bool    `short:"f" help:"Enrich even if the book already looks sufficient"`
	RequireCover bool    `help:"Only check/enrich the cover"`
	MinQuality   float64 `help:"Minimum quality score (default from config)"`
	NoCovers     bool    `help:"Skip cover search and download"`
}

func (e *EnrichCmd) Run() error {
	if e.ID == "" && e.Title == "" {
		return fmt.Errorf("either --id or --title is required")
	}

	if e.MinQuality > 0 {
		config.SetMinQuality(e.MinQuality)
	}
	if e.NoCovers {
		config.SetDownloadCovers(false)
	}

	orch, err := buildOrchestrator()
	if err != nil {
		return err
	}

	ctx := context.Background()
	opts := enrich.Options{
		Force:          e.Force,
		RequireCover:   e.RequireCover,
		DownloadCovers: config.DownloadCovers,
		MinQuality:     config.MinQuality,
	}

	if e.ID == "" {
		rec := &book.Record{Title: e.Title, Author: e.Author, ISBN13: book.CleanISBN(e.ISBN)}
		decision := orch.Enrich(ctx, rec, opts)
		return printDecision(decision)
	}

	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	rec, err := repo.GetBook(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("load book %s: %w", e.ID, err)
	}

	decision := orch.Enrich(ctx, rec, opts)
	if decision.Outcome != book.OutcomeAccepted {
		slog.Info("book not enriched", "id", e.ID, "outcome", decision.Outcome, "reason", decision.Reason)
		return nil
	}

	merged, updates := enrich.Merge(rec, decision.Candidate)
	if len(updates) == 0 {
		slog.Info("candidate added nothing new", "id", e.ID, "title", rec.Title)
		return nil
	}

	if coverURL, ok := updates["cover_url"].(string); ok && config.DownloadCovers {
		dl := covers.NewDownloader(viper.GetString("covers.dir"))
		localPath, err := dl.Download(ctx, coverURL, rec.ID)
		if err != nil {
			slog.Warn("cover download failed, dropping cover from update", "url", coverURL, "error", err)
			delete(updates, "cover_url")
			delete(updates, "cover_source")
		} else {
			updates["cover_url"] = localPath
		}
	}

	updates["enriched_at"] = time.Now()
	updates["enriched_by"] = decision.Candidate.Source
	if _, err := repo.UpdateBook(ctx, rec.ID, updates); err != nil {
		return fmt.Errorf("persist enrichment: %w", err)
	}

	slog.Info("book enriched",
		"id", rec.ID,
		"title", merged.Title,
		"source", decision.Candidate.Source,
		"quality", fmt.Sprintf("%.2f", decision.Candidate.QualityScore),
		"fields", len(updates))
	return nil
}

func printDecision(d book.Decision) error {
	if d.Outcome != book.OutcomeAccepted {
		fmt.Printf("%s: %s\n", d.Outcome, d.Reason)
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(d.Candidate)
}
