package cmd

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/mybibliotheca/libris/internal/book"
	"github.com/mybibliotheca/libris/internal/enrich"
	"github.com/mybibliotheca/libris/internal/provider"
	"github.com/mybibliotheca/libris/internal/provider/catalog"
	"github.com/mybibliotheca/libris/internal/provider/generative"
	"github.com/mybibliotheca/libris/internal/provider/websearch"
)

// buildOrchestrator assembles the provider chain: websearch first, the local
// catalog second when one is configured, the generative model as last
// resort. Providers missing credentials stay in the chain; they report
// themselves unavailable per call and the orchestrator moves past them.
func buildOrchestrator() (*enrich.Orchestrator, error) {
	providers := []provider.Provider{
		websearch.New(),
		generative.New(),
	}
	if viper.GetString("catalog.dbfile") != "" {
		providers = append(providers, catalog.New())
	}
	return enrich.NewOrchestrator(providers...)
}

// openRepository connects to the library database.
func openRepository() (*book.SQLiteRepository, error) {
	repo := book.NewSQLiteRepository(viper.GetString("books.dbfile"))
	if err := repo.Connect(); err != nil {
		return nil, fmt.Errorf("open library database: %w", err)
	}
	return repo, nil
}
