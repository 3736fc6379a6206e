package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) {
	t.Helper()

	require.NoError(t, ResetGlobalCache())
	viper.Reset()
	viper.Set("cache.dbfile", filepath.Join(t.TempDir(), "cache.db"))

	t.Cleanup(func() {
		_ = ResetGlobalCache()
		viper.Reset()
	})
}

func TestSetAndGet(t *testing.T) {
	setupCache(t)

	db, err := GetGlobalCache()
	require.NoError(t, err)

	require.NoError(t, db.Set("websearch_cache", "key1", `{"title":"Тютюн"}`, time.Hour))

	data, found, err := db.Get("websearch_cache", "key1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"title":"Тютюн"}`, data)
}

func TestGetMissingKey(t *testing.T) {
	setupCache(t)

	db, err := GetGlobalCache()
	require.NoError(t, err)

	_, found, err := db.Get("websearch_cache", "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExpiredEntryIsMiss(t *testing.T) {
	setupCache(t)

	db, err := GetGlobalCache()
	require.NoError(t, err)

	require.NoError(t, db.Set("bookstore_cache", "url", "data", -time.Minute))

	_, found, err := db.Get("bookstore_cache", "url")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidTableNameRejected(t *testing.T) {
	setupCache(t)

	db, err := GetGlobalCache()
	require.NoError(t, err)

	err = db.Set("books; DROP TABLE websearch_cache", "k", "v", time.Hour)
	assert.Error(t, err)

	_, _, err = db.Get("whatever_cache", "k")
	assert.Error(t, err)
}

func TestGetOrFetchCachesResult(t *testing.T) {
	setupCache(t)

	type payload struct {
		Title string `json:"title"`
	}

	calls := 0
	fetch := func() (*payload, error) {
		calls++
		return &payload{Title: "Под игото"}, nil
	}

	got, fromCache, err := GetOrFetch("websearch_cache", "isbn:9789540900001", fetch)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "Под игото", got.Title)

	got, fromCache, err = GetOrFetch("websearch_cache", "isbn:9789540900001", fetch)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, "Под игото", got.Title)

	assert.Equal(t, 1, calls)
}

func TestGetOrFetchWithNegativeTTL(t *testing.T) {
	setupCache(t)

	type result struct {
		NotFound bool `json:"not_found"`
	}

	_, fromCache, err := GetOrFetchWithTTL("coversearch_cache", "missing-book",
		func() (*result, error) {
			return &result{NotFound: true}, nil
		},
		SelectNegativeCacheTTL(func(r *result) bool { return r.NotFound }))
	require.NoError(t, err)
	assert.False(t, fromCache)

	// The negative result is still served from cache on the next call.
	got, fromCache, err := GetOrFetchWithTTL("coversearch_cache", "missing-book",
		func() (*result, error) {
			t.Fatal("fetcher should not be called on cache hit")
			return nil, nil
		},
		SelectNegativeCacheTTL(func(r *result) bool { return r.NotFound }))
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.True(t, got.NotFound)
}

func TestInvalidateSource(t *testing.T) {
	setupCache(t)

	db, err := GetGlobalCache()
	require.NoError(t, err)

	require.NoError(t, db.Set("websearch_cache", "a", "1", time.Hour))
	require.NoError(t, db.Set("websearch_cache", "b", "2", time.Hour))

	deleted, err := db.InvalidateSource("websearch_cache")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	_, found, err := db.Get("websearch_cache", "a")
	require.NoError(t, err)
	assert.False(t, found)
}
