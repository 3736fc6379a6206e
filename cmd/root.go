// Package cmd wires the libris CLI: configuration, logging and the
// enrichment commands.
package cmd

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/mybibliotheca/libris/internal/cache"
	"github.com/mybibliotheca/libris/internal/config"
)

// CLI represents the complete command structure for the libris application
type CLI struct {
	// Global flags
	Verbose bool `help:"Enable debug logging"`

	// Database flags
	BooksDB   string `help:"Path to the library SQLite database" default:"./books.db"`
	CatalogDB string `help:"Path to the local catalog SQLite database (optional)"`

	// Cache flags
	CacheDBFile string `help:"Path to cache SQLite database file" default:"./cache.db"`
	CacheTTL    string `help:"Cache time-to-live duration (e.g., 720h for 30 days)" default:"720h"`

	Enrich EnrichCmd `cmd:"" help:"Enrich a single book's metadata"`
	Batch  BatchCmd  `cmd:"" help:"Run batch enrichment over books missing metadata"`
	Scrape ScrapeCmd `cmd:"" help:"Scrape metadata from a bookstore product page"`
	Status StatusCmd `cmd:"" help:"Show the current batch run status"`
	Cache  CacheCmd  `cmd:"" help:"Manage the response cache"`
}

// CacheCmd groups cache management subcommands.
type CacheCmd struct {
	Invalidate cache.InvalidateCacheCmd `cmd:"" help:"Delete cached responses for a source"`
}

// Execute runs the Kong-based CLI
func Execute() {
	// Parse first so --verbose can raise the log level.
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("libris"),
		kong.Description("Book metadata enrichment for the MyBibliotheca library."),
		kong.UsageOnError(),
	)

	initLogging(cli.Verbose)
	initConfig()
	updateGlobalConfig(&cli)

	err := ctx.Run()
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	// API keys live in the environment; a .env file is the development
	// convenience path.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	viper.SetDefault("books.dbfile", "./books.db")
	viper.SetDefault("cache.dbfile", "./cache.db")
	viper.SetDefault("cache.ttl", "720h") // 30 days
	viper.SetDefault("status.file", "./enrichment-status.json")
	viper.SetDefault("covers.dir", "./covers")

	viper.AutomaticEnv()
	if err := viper.BindEnv("websearch.api_key", "PERPLEXITY_API_KEY"); err != nil {
		slog.Error("Failed to bind environment variable", "error", err)
	}
	if err := viper.BindEnv("generative.api_key", "GEMINI_API_KEY"); err != nil {
		slog.Error("Failed to bind environment variable", "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
	}

	config.InitConfig()
}

func updateGlobalConfig(cli *CLI) {
	viper.Set("books.dbfile", cli.BooksDB)
	viper.Set("cache.dbfile", cli.CacheDBFile)
	viper.Set("cache.ttl", cli.CacheTTL)
	if cli.CatalogDB != "" {
		viper.Set("catalog.dbfile", cli.CatalogDB)
	}
}

func initLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
