// Package bookstore implements the store-scraper provider: given a product
// page URL from a supported storefront, it parses the page's structured
// markup into candidate metadata. Unsupported domains return nothing rather
// than an error so callers can probe freely.
package bookstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/viper"

	"github.com/mybibliotheca/libris/internal/book"
	"github.com/mybibliotheca/libris/internal/cache"
	"github.com/mybibliotheca/libris/internal/config"
	"github.com/mybibliotheca/libris/internal/provider"
	"github.com/mybibliotheca/libris/internal/ratelimit"
)

const providerName = "bookstore"

const userAgent = "Mozilla/5.0 (compatible; libris/1.0; +https://github.com/mybibliotheca/libris)"

// siteParser extracts candidate metadata from one storefront's page layout.
type siteParser func(doc *goquery.Document, pageURL string) *book.Candidate

// Scraper fetches and parses bookstore product pages. Pages are cached so
// repeat lookups do not re-hit the store.
type Scraper struct {
	limiter *ratelimit.Limiter
	parsers map[string]siteParser

	clientOnce sync.Once
	client     *http.Client
}

var _ provider.URLFetcher = (*Scraper)(nil)

// New builds the scraper with the supported storefront parsers registered.
func New() *Scraper {
	viper.SetDefault("bookstore.rate_limit", 1)
	return &Scraper{
		limiter: ratelimit.New(providerName, viper.GetInt("bookstore.rate_limit")),
		parsers: map[string]siteParser{
			"ozone.bg":   parseOzone,
			"ciela.com":  parseCiela,
			"helikon.bg": parseHelikon,
		},
	}
}

// Name returns the provider tag used on candidates produced by this scraper.
func (s *Scraper) Name() string { return providerName }

// SupportedDomains lists the storefronts this scraper can parse.
func (s *Scraper) SupportedDomains() []string {
	domains := make([]string, 0, len(s.parsers))
	for d := range s.parsers {
		domains = append(domains, d)
	}
	return domains
}

func (s *Scraper) httpClient() *http.Client {
	s.clientOnce.Do(func() {
		s.client = &http.Client{Timeout: config.ProviderTimeout}
	})
	return s.client
}

// FetchURL downloads and parses a product page. Returns nil, nil for domains
// without a registered parser and for pages whose markup yields no title.
func (s *Scraper) FetchURL(ctx context.Context, pageURL string) (*book.Candidate, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid product URL %q", pageURL)
	}

	parser := s.parserFor(parsed.Host)
	if parser == nil {
		slog.Debug("unsupported bookstore domain", "host", parsed.Host)
		return nil, nil
	}

	page, fromCache, err := cache.GetOrFetch("bookstore_cache", pageURL,
		func() (*cachedPage, error) {
			return s.download(ctx, pageURL)
		})
	if err != nil {
		return nil, err
	}
	slog.Debug("bookstore page fetched", "url", pageURL, "from_cache", fromCache)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse product page: %w", err)
	}

	cand := parser(doc, pageURL)
	if cand == nil || strings.TrimSpace(cand.Title) == "" {
		return nil, nil
	}
	cand.Source = providerName
	cand.Sources = []string{pageURL}
	return cand, nil
}

func (s *Scraper) parserFor(host string) siteParser {
	host = strings.ToLower(host)
	for domain, parser := range s.parsers {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return parser
		}
	}
	return nil
}

type cachedPage struct {
	HTML string `json:"html"`
}

func (s *Scraper) download(ctx context.Context, pageURL string) (*cachedPage, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch product page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("product page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read product page: %w", err)
	}
	return &cachedPage{HTML: string(body)}, nil
}

// applyLabeledField maps a Bulgarian spec-sheet label onto a candidate field.
// Shared by all storefront parsers; each store only differs in where the
// label/value pairs live in the markup.
func applyLabeledField(cand *book.Candidate, label, value string) {
	label = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ":")))
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}

	switch {
	case strings.Contains(label, "автор"):
		cand.Author = value
	case strings.Contains(label, "преводач"):
		cand.Translator = value
	case strings.Contains(label, "издател"):
		cand.Publisher = value
	case strings.Contains(label, "година"):
		cand.Year = extractYear(value)
	case strings.Contains(label, "страници") || strings.Contains(label, "брой стр"):
		cand.Pages, _ = strconv.Atoi(leadingDigits(value))
	case strings.Contains(label, "isbn") || strings.Contains(label, "баркод"):
		cand.ISBN = book.CleanISBN(value)
	case strings.Contains(label, "категори") || strings.Contains(label, "жанр"):
		for _, g := range strings.Split(value, ",") {
			if g = strings.TrimSpace(g); g != "" {
				cand.Genres = append(cand.Genres, g)
			}
		}
	case strings.Contains(label, "език"):
		if strings.Contains(strings.ToLower(value), "българ") {
			cand.Language = "bg"
		}
	}
}

func extractYear(value string) int {
	for _, field := range strings.FieldsFunc(value, func(r rune) bool {
		return r < '0' || r > '9'
	}) {
		if len(field) == 4 {
			year, _ := strconv.Atoi(field)
			return year
		}
	}
	return 0
}

func leadingDigits(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// resolveURL makes a possibly-relative image URL absolute against the page.
func resolveURL(pageURL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	resolved, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return resolved.String()
}
