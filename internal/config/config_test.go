package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestInitConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	InitConfig()

	assert.Equal(t, 0.7, MinQuality)
	assert.Equal(t, time.Second, RateLimitDelay)
	assert.True(t, DownloadCovers)
	assert.Equal(t, 30*time.Second, ProviderTimeout)
}

func TestInitConfigReadsOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("enrichment.min_quality", 0.4)
	viper.Set("enrichment.rate_limit_delay", "250ms")
	viper.Set("enrichment.download_covers", false)

	InitConfig()

	assert.Equal(t, 0.4, MinQuality)
	assert.Equal(t, 250*time.Millisecond, RateLimitDelay)
	assert.False(t, DownloadCovers)
}

func TestSetters(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	InitConfig()

	SetMinQuality(0.3)
	assert.Equal(t, 0.3, MinQuality)

	SetDownloadCovers(false)
	assert.False(t, DownloadCovers)
}
