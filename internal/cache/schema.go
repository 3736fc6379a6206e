package cache

// SQL schemas for cache tables.
// All cache tables use "cache_key" as the primary key column for consistency.

// WebSearchCacheSchema defines the schema for the AI web-search metadata cache.
const WebSearchCacheSchema = `
CREATE TABLE IF NOT EXISTS websearch_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_websearch_expires_at ON websearch_cache(expires_at);
`

// CoverSearchCacheSchema defines the schema for the cover-image search cache.
const CoverSearchCacheSchema = `
CREATE TABLE IF NOT EXISTS coversearch_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_coversearch_expires_at ON coversearch_cache(expires_at);
`

// BookstoreCacheSchema defines the schema for scraped storefront pages.
const BookstoreCacheSchema = `
CREATE TABLE IF NOT EXISTS bookstore_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bookstore_expires_at ON bookstore_cache(expires_at);
`

// AllCacheSchemas lists every cache table schema for initialization.
var AllCacheSchemas = []string{
	WebSearchCacheSchema,
	CoverSearchCacheSchema,
	BookstoreCacheSchema,
}

// ValidCacheTableNames whitelists table names accepted in cache operations.
var ValidCacheTableNames = map[string]bool{
	"websearch_cache":   true,
	"coversearch_cache": true,
	"bookstore_cache":   true,
}
