// Package config holds the global configuration shared across commands.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Global configuration variables
var (
	// MinQuality is the minimum quality score a candidate needs to be merged.
	MinQuality float64
	// RateLimitDelay is the pause between books in a batch run.
	RateLimitDelay time.Duration
	// DownloadCovers controls whether cover backfill searches are attempted.
	DownloadCovers bool
	// ProviderTimeout bounds individual provider HTTP calls.
	ProviderTimeout time.Duration
)

// InitConfig initializes the global configuration from viper.
func InitConfig() {
	viper.SetDefault("enrichment.min_quality", 0.7)
	viper.SetDefault("enrichment.rate_limit_delay", "1s")
	viper.SetDefault("enrichment.download_covers", true)
	viper.SetDefault("enrichment.timeout", "30s")

	MinQuality = viper.GetFloat64("enrichment.min_quality")
	RateLimitDelay = viper.GetDuration("enrichment.rate_limit_delay")
	DownloadCovers = viper.GetBool("enrichment.download_covers")
	ProviderTimeout = viper.GetDuration("enrichment.timeout")
}

// SetMinQuality overrides the quality threshold for the current run.
func SetMinQuality(q float64) {
	MinQuality = q
}

// SetDownloadCovers overrides the cover download flag for the current run.
func SetDownloadCovers(enabled bool) {
	DownloadCovers = enabled
}
