package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mybibliotheca/libris/internal/cache"
	"github.com/mybibliotheca/libris/internal/config"
	libriserrors "github.com/mybibliotheca/libris/internal/errors"
)

func setup(t *testing.T, baseURL string) *Provider {
	t.Helper()

	require.NoError(t, cache.ResetGlobalCache())
	viper.Reset()
	viper.Set("cache.dbfile", filepath.Join(t.TempDir(), "cache.db"))
	viper.Set("websearch.api_key", "test-key")
	viper.Set("websearch.base_url", baseURL)
	viper.Set("websearch.rate_limit", 1000)
	config.InitConfig()

	t.Cleanup(func() {
		_ = cache.ResetGlobalCache()
		viper.Reset()
	})

	return New()
}

func chatServer(t *testing.T, content string, citations []string, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
			"citations": citations,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestFetchParsesResponse(t *testing.T) {
	content := `{"title": "Тютюн", "author": "Димитър Димов", "publisher": "Хермес",
		"isbn": "9789542611178", "year": 1951,
		"description": "Роман за възхода и падението на една тютюнева фамилия от трийсетте години.",
		"cover_url": "https://example.com/t.jpg", "confidence": 0.92}`
	srv := chatServer(t, content, []string{"https://biblioman.chitanka.info/books/1"}, nil)
	defer srv.Close()

	p := setup(t, srv.URL)

	cand, err := p.Fetch(context.Background(), "Тютюн", "Димитър Димов", "", nil)
	require.NoError(t, err)
	require.NotNil(t, cand)

	assert.Equal(t, "Тютюн", cand.Title)
	assert.Equal(t, "Хермес", cand.Publisher)
	assert.Equal(t, "9789542611178", cand.ISBN)
	assert.Equal(t, providerName, cand.Source)
	assert.Equal(t, []string{"https://biblioman.chitanka.info/books/1"}, cand.Sources)
	assert.Greater(t, cand.QualityScore, 0.7)
}

func TestFetchUsesCache(t *testing.T) {
	calls := 0
	srv := chatServer(t, `{"title": "Тютюн", "author": "Димитър Димов"}`, nil, &calls)
	defer srv.Close()

	p := setup(t, srv.URL)

	_, err := p.Fetch(context.Background(), "Тютюн", "Димитър Димов", "9789542611178", nil)
	require.NoError(t, err)
	_, err = p.Fetch(context.Background(), "Тютюн", "Димитър Димов", "9789542611178", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestFetchWithoutAPIKey(t *testing.T) {
	p := setup(t, "http://unused.invalid")
	p.apiKey = ""

	_, err := p.Fetch(context.Background(), "T", "A", "", nil)
	assert.True(t, libriserrors.IsProviderUnavailable(err))
}

func TestFetchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := setup(t, srv.URL)

	_, err := p.Fetch(context.Background(), "T", "A", "", nil)
	assert.True(t, libriserrors.IsRateLimitError(err))
}

func TestFetchMalformedResponseIsNoCandidate(t *testing.T) {
	srv := chatServer(t, "I'm sorry, I could not find this book.", nil, nil)
	defer srv.Close()

	p := setup(t, srv.URL)

	cand, err := p.Fetch(context.Background(), "T", "A", "", nil)
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestFetchUnparseableResponseNegativeCached(t *testing.T) {
	// Garbage from the model must be stored as a miss, not as a month-long
	// positive entry holding the raw prose.
	srv := chatServer(t, "I'm sorry, I could not find this book.", nil, nil)
	defer srv.Close()

	p := setup(t, srv.URL)

	cand, err := p.Fetch(context.Background(), "Тютюн", "Димитър Димов", "", nil)
	require.NoError(t, err)
	assert.Nil(t, cand)

	db, err := cache.GetGlobalCache()
	require.NoError(t, err)
	data, ok, err := db.Get("websearch_cache", lookupKey("Тютюн", "Димитър Димов", ""))
	require.NoError(t, err)
	require.True(t, ok)

	var cached searchResult
	require.NoError(t, json.Unmarshal([]byte(data), &cached))
	assert.True(t, cached.NotFound)
	assert.Empty(t, cached.Content)
}

func TestFetchFallsBackToSuppliedIdentity(t *testing.T) {
	srv := chatServer(t, `{"publisher": "Хермес", "description": "Някакво описание."}`, nil, nil)
	defer srv.Close()

	p := setup(t, srv.URL)

	cand, err := p.Fetch(context.Background(), "Тютюн", "Димитър Димов", "", nil)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "Тютюн", cand.Title)
	assert.Equal(t, "Димитър Димов", cand.Author)
}

func TestFindCoverNotFound(t *testing.T) {
	srv := chatServer(t, "NOT_FOUND", nil, nil)
	defer srv.Close()

	p := setup(t, srv.URL)

	url, err := p.FindCover(context.Background(), "T", "A", "")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestFindCoverVerifiesImage(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
	}))
	defer imgSrv.Close()

	coverURL := imgSrv.URL + "/covers/tyutyun.jpg"
	srv := chatServer(t, coverURL, nil, nil)
	defer srv.Close()

	p := setup(t, srv.URL)

	// The test server's host is not on the production allow-list.
	oldTokens := coverDomainTokens
	coverDomainTokens = append([]string{"127.0.0.1"}, oldTokens...)
	t.Cleanup(func() { coverDomainTokens = oldTokens })

	url, err := p.FindCover(context.Background(), "Тютюн", "Димитър Димов", "")
	require.NoError(t, err)
	assert.Equal(t, coverURL, url)
}

func TestFindCoverRejectsNonImageContent(t *testing.T) {
	htmlSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
	}))
	defer htmlSrv.Close()

	srv := chatServer(t, htmlSrv.URL+"/fake.jpg", nil, nil)
	defer srv.Close()

	p := setup(t, srv.URL)

	oldTokens := coverDomainTokens
	coverDomainTokens = append([]string{"127.0.0.1"}, oldTokens...)
	t.Cleanup(func() { coverDomainTokens = oldTokens })

	url, err := p.FindCover(context.Background(), "T", "A", "")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestFindCoverRejectsDisallowedDomain(t *testing.T) {
	srv := chatServer(t, "https://evil.example.net/cover.jpg", nil, nil)
	defer srv.Close()

	p := setup(t, srv.URL)

	url, err := p.FindCover(context.Background(), "T", "A", "")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestAllowedCoverDomain(t *testing.T) {
	assert.True(t, allowedCoverDomain("https://cdn.ozone.bg/media/cover.jpg"))
	assert.True(t, allowedCoverDomain("https://biblioman.chitanka.info/covers/1.png"))
	assert.False(t, allowedCoverDomain("https://random-site.example/cover.jpg"))
	assert.False(t, allowedCoverDomain("://not a url"))
}

func TestLookupKeyPrefersISBN(t *testing.T) {
	assert.Equal(t, "isbn:9789542611178", lookupKey("Тютюн", "Димов", "978-954-261-117-8"))
	assert.Equal(t, "title:тютюн|author:димов", lookupKey("Тютюн", "Димов", ""))
}
