// Package websearch implements the primary metadata provider, backed by a
// web-search-capable AI chat-completions API. It is the only provider that
// can also locate cover images.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/mybibliotheca/libris/internal/book"
	"github.com/mybibliotheca/libris/internal/cache"
	"github.com/mybibliotheca/libris/internal/config"
	"github.com/mybibliotheca/libris/internal/enrich"
	libriserrors "github.com/mybibliotheca/libris/internal/errors"
	"github.com/mybibliotheca/libris/internal/provider"
	"github.com/mybibliotheca/libris/internal/provider/payload"
	"github.com/mybibliotheca/libris/internal/ratelimit"
)

const (
	providerName   = "websearch"
	defaultBaseURL = "https://api.perplexity.ai"
	defaultModel   = "sonar"

	defaultMaxTokens   = 1024
	defaultTemperature = 0.1
)

// coverDomainTokens is the allow-list for cover search results. A proposed
// image URL must come from one of these hosts before we even try to verify it.
var coverDomainTokens = []string{
	"chitanka",
	"helikon.bg",
	"ozone.bg",
	"ciela.com",
	"knizhen-pazar",
	"books.google",
	"goodreads",
	"openlibrary",
	"archive.org",
}

var imageURLPattern = regexp.MustCompile(`https?://[^\s"'<>\\)]+\.(?:jpg|jpeg|png|webp)(?:\?[^\s"'<>\\)]*)?`)

// Provider queries the web-search API for book metadata and cover images.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	limiter *ratelimit.Limiter

	clientOnce sync.Once
	client     *http.Client
}

var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.CoverSearcher = (*Provider)(nil)
)

// New builds the websearch provider from viper configuration. The API key
// comes from websearch.api_key or the PERPLEXITY_API_KEY environment
// variable; a missing key leaves the provider constructed but unavailable.
func New() *Provider {
	viper.SetDefault("websearch.base_url", defaultBaseURL)
	viper.SetDefault("websearch.model", defaultModel)
	viper.SetDefault("websearch.rate_limit", 1)

	apiKey := viper.GetString("websearch.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("PERPLEXITY_API_KEY")
	}

	return &Provider{
		apiKey:  apiKey,
		model:   viper.GetString("websearch.model"),
		baseURL: strings.TrimRight(viper.GetString("websearch.base_url"), "/"),
		limiter: ratelimit.New(providerName, viper.GetInt("websearch.rate_limit")),
	}
}

func (p *Provider) Name() string  { return providerName }
func (p *Provider) Priority() int { return 1 }

func (p *Provider) httpClient() *http.Client {
	p.clientOnce.Do(func() {
		p.client = &http.Client{Timeout: config.ProviderTimeout}
	})
	return p.client
}

// Ping verifies credentials are present and the API host resolves. Any HTTP
// response counts as reachable; only transport errors fail.
func (p *Provider) Ping(ctx context.Context) error {
	if p.apiKey == "" {
		return libriserrors.NewProviderUnavailableError(providerName, "no API key configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("websearch API unreachable: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

// searchResult is the cached form of one chat-completions call.
type searchResult struct {
	Content   string   `json:"content"`
	Citations []string `json:"citations,omitempty"`
	NotFound  bool     `json:"not_found,omitempty"`
}

// Fetch asks the web-search model for a single JSON object describing the
// book. Responses are cached; malformed responses degrade to "no candidate"
// rather than an error.
func (p *Provider) Fetch(ctx context.Context, title, author, isbn string, existing *book.Record) (*book.Candidate, error) {
	if p.apiKey == "" {
		return nil, libriserrors.NewProviderUnavailableError(providerName, "no API key configured")
	}

	cacheKey := lookupKey(title, author, isbn)

	result, fromCache, err := cache.GetOrFetchWithTTL("websearch_cache", cacheKey,
		func() (*searchResult, error) {
			return p.search(ctx, title, author, isbn, existing)
		},
		cache.SelectNegativeCacheTTL(func(r *searchResult) bool { return r.NotFound }))
	if err != nil {
		return nil, err
	}

	slog.Debug("websearch lookup", "key", cacheKey, "from_cache", fromCache)

	if result.NotFound {
		return nil, nil
	}

	parsed, method, err := payload.Parse(result.Content)
	if err != nil {
		slog.Warn("websearch response not parseable", "key", cacheKey, "error", err)
		return nil, nil
	}
	slog.Debug("websearch response parsed", "key", cacheKey, "method", method)

	cand := parsed.ToCandidate(providerName, p.model, title, author, result.Citations)
	cand.Description = enrich.ScrubCitations(cand.Description)
	cand.QualityScore = enrich.Score(cand)
	return cand, nil
}

func (p *Provider) search(ctx context.Context, title, author, isbn string, existing *book.Record) (*searchResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	content, citations, err := p.chat(ctx, metadataSystemPrompt, buildMetadataQuery(title, author, isbn, existing))
	if err != nil {
		return nil, err
	}
	if content == "" {
		return &searchResult{NotFound: true}, nil
	}
	// An unparseable response is stored as a miss so it only lingers for the
	// negative-cache TTL instead of suppressing retries for a month.
	if _, _, err := payload.Parse(content); err != nil {
		slog.Warn("websearch response not parseable", "title", title, "error", err)
		return &searchResult{NotFound: true}, nil
	}
	return &searchResult{Content: content, Citations: citations}, nil
}

const metadataSystemPrompt = "You are a bibliographic research assistant. " +
	"Search the web for the requested book edition and respond with exactly one JSON object, no prose. " +
	"Use the keys: title, subtitle, author, translator, publisher, year, isbn, pages, genres, language, description, cover_url, confidence. " +
	"Omit keys you cannot verify. confidence is your 0-1 estimate that the data describes the requested edition."

func buildMetadataQuery(title, author, isbn string, existing *book.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Find complete bibliographic metadata for the book %q", title)
	if author != "" {
		fmt.Fprintf(&b, " by %q", author)
	}
	b.WriteString(".")

	if isbn != "" {
		fmt.Fprintf(&b, " The ISBN is %s.", isbn)
	}
	if existing != nil && existing.Publisher != "" {
		fmt.Fprintf(&b, " The publisher is known to be %q.", existing.Publisher)
	}

	b.WriteString(" Prefer the Bulgarian edition when one exists, with the description in the same language as the title.")
	return b.String()
}

// coverResult is the cached form of one cover search.
type coverResult struct {
	URL      string `json:"url,omitempty"`
	NotFound bool   `json:"not_found,omitempty"`
}

const coverSystemPrompt = "You locate book cover images. " +
	"Respond with exactly one direct image URL (ending in .jpg, .jpeg, .png or .webp) for the requested book's cover, " +
	"from a bookstore or library catalog site. If you cannot find one, respond with exactly NOT_FOUND."

// FindCover searches for a direct cover image URL. Every proposed URL must
// match the domain allow-list and be independently verified reachable with an
// image content type before it is trusted. Misses are negative-cached.
func (p *Provider) FindCover(ctx context.Context, title, author, isbn string) (string, error) {
	if p.apiKey == "" {
		return "", libriserrors.NewProviderUnavailableError(providerName, "no API key configured")
	}

	cacheKey := "cover:" + lookupKey(title, author, isbn)

	result, _, err := cache.GetOrFetchWithTTL("coversearch_cache", cacheKey,
		func() (*coverResult, error) {
			return p.searchCover(ctx, title, author, isbn)
		},
		cache.SelectNegativeCacheTTL(func(r *coverResult) bool { return r.NotFound }))
	if err != nil {
		return "", err
	}
	return result.URL, nil
}

func (p *Provider) searchCover(ctx context.Context, title, author, isbn string) (*coverResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("Find the cover image for the book %q", title)
	if author != "" {
		query += fmt.Sprintf(" by %q", author)
	}
	if isbn != "" {
		query += fmt.Sprintf(" (ISBN %s)", isbn)
	}

	content, _, err := p.chat(ctx, coverSystemPrompt, query)
	if err != nil {
		return nil, err
	}

	if strings.Contains(content, "NOT_FOUND") {
		return &coverResult{NotFound: true}, nil
	}

	for _, candidate := range imageURLPattern.FindAllString(content, -1) {
		if !allowedCoverDomain(candidate) {
			slog.Debug("cover URL rejected by domain allow-list", "url", candidate)
			continue
		}
		if p.verifyImageURL(ctx, candidate) {
			return &coverResult{URL: candidate}, nil
		}
		slog.Debug("cover URL failed verification", "url", candidate)
	}
	return &coverResult{NotFound: true}, nil
}

func allowedCoverDomain(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, token := range coverDomainTokens {
		if strings.Contains(host, token) {
			return true
		}
	}
	return false
}

// verifyImageURL checks a URL actually serves an image. HEAD first; servers
// that reject HEAD get a GET whose body is discarded.
func (p *Provider) verifyImageURL(ctx context.Context, imageURL string) bool {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, imageURL, nil)
		if err != nil {
			return false
		}
		resp, err := p.httpClient().Do(req)
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return strings.HasPrefix(resp.Header.Get("Content-Type"), "image/")
		}
		if method == http.MethodHead &&
			(resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusForbidden) {
			continue
		}
		return false
	}
	return false
}

// chat performs one chat-completions call and returns the message content
// plus any citation URLs.
func (p *Provider) chat(ctx context.Context, system, user string) (string, []string, error) {
	reqBody := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("websearch API call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", nil, libriserrors.NewRateLimitError("websearch API rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", nil, fmt.Errorf("websearch API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil, nil
	}
	return parsed.Choices[0].Message.Content, parsed.Citations, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

func lookupKey(title, author, isbn string) string {
	if isbn != "" {
		return "isbn:" + book.CleanISBN(isbn)
	}
	return "title:" + strings.ToLower(strings.TrimSpace(title)) + "|author:" + strings.ToLower(strings.TrimSpace(author))
}
