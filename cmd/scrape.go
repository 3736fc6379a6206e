package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mybibliotheca/libris/internal/enrich"
	"github.com/mybibliotheca/libris/internal/provider/bookstore"
)

// ScrapeCmd parses a bookstore product page into candidate metadata. With
// --book-id the result is merged into a stored book instead of printed.
type ScrapeCmd struct {
	URL    string `arg:"" help:"Product page URL from a supported storefront"`
	BookID string `help:"Merge the scraped metadata into this library book"`
}

func (s *ScrapeCmd) Run() error {
	scraper := bookstore.New()

	ctx := context.Background()
	cand, err := scraper.FetchURL(ctx, s.URL)
	if err != nil {
		return err
	}
	if cand == nil {
		return fmt.Errorf("unsupported storefront (supported: %s)",
			strings.Join(scraper.SupportedDomains(), ", "))
	}

	cand.QualityScore = enrich.Score(cand)

	if s.BookID == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cand)
	}

	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	rec, err := repo.GetBook(ctx, s.BookID)
	if err != nil {
		return fmt.Errorf("load book %s: %w", s.BookID, err)
	}

	_, updates := enrich.Merge(rec, cand)
	if len(updates) == 0 {
		slog.Info("scraped page added nothing new", "id", s.BookID, "url", s.URL)
		return nil
	}

	updates["enriched_at"] = time.Now()
	updates["enriched_by"] = cand.Source
	if _, err := repo.UpdateBook(ctx, rec.ID, updates); err != nil {
		return fmt.Errorf("persist scraped metadata: %w", err)
	}

	slog.Info("book updated from storefront", "id", s.BookID, "url", s.URL, "fields", len(updates))
	return nil
}
