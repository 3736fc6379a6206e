// Package generative implements the fallback metadata provider: a plain
// text-generation model with no web access. It is used only when the
// websearch provider yields nothing, and it can never source cover images.
package generative

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/spf13/viper"
	"google.golang.org/api/option"

	"github.com/mybibliotheca/libris/internal/book"
	"github.com/mybibliotheca/libris/internal/enrich"
	libriserrors "github.com/mybibliotheca/libris/internal/errors"
	"github.com/mybibliotheca/libris/internal/provider"
	"github.com/mybibliotheca/libris/internal/provider/payload"
	"github.com/mybibliotheca/libris/internal/ratelimit"
)

const (
	providerName = "generative"
	defaultModel = "gemini-2.0-flash"

	defaultTemperature = 0.1

	// confidenceCeiling caps self-reported confidence. Without web access the
	// model is describing the book from memory, so its answers never qualify
	// for the high-confidence scoring bonus.
	confidenceCeiling = 0.6
)

// Provider generates book metadata from the model's own knowledge of the
// title and author.
type Provider struct {
	apiKey  string
	model   string
	limiter *ratelimit.Limiter

	// generate is swapped out in tests; the default calls the Gemini API.
	generate func(ctx context.Context, prompt string) (string, error)
}

var _ provider.Provider = (*Provider)(nil)

// New builds the generative provider from viper configuration. The API key
// comes from generative.api_key or the GEMINI_API_KEY environment variable.
func New() *Provider {
	viper.SetDefault("generative.model", defaultModel)
	viper.SetDefault("generative.rate_limit", 1)

	apiKey := viper.GetString("generative.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	p := &Provider{
		apiKey:  apiKey,
		model:   viper.GetString("generative.model"),
		limiter: ratelimit.New(providerName, viper.GetInt("generative.rate_limit")),
	}
	p.generate = p.generateContent
	return p
}

func (p *Provider) Name() string  { return providerName }
func (p *Provider) Priority() int { return 3 }

// Ping verifies credentials are configured. The client is created per call,
// so there is no persistent connection to test.
func (p *Provider) Ping(ctx context.Context) error {
	if p.apiKey == "" {
		return libriserrors.NewProviderUnavailableError(providerName, "no API key configured")
	}
	return nil
}

// Fetch asks the model to describe the book from its training knowledge.
// Results are tagged lower-trust: confidence is capped and the description is
// model-generated rather than sourced.
func (p *Provider) Fetch(ctx context.Context, title, author, isbn string, existing *book.Record) (*book.Candidate, error) {
	if p.apiKey == "" {
		return nil, libriserrors.NewProviderUnavailableError(providerName, "no API key configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	text, err := p.generate(ctx, buildPrompt(title, author, isbn))
	if err != nil {
		return nil, fmt.Errorf("generative fetch failed: %w", err)
	}

	parsed, method, err := payload.Parse(text)
	if err != nil {
		slog.Warn("generative response not parseable", "title", title, "error", err)
		return nil, nil
	}
	slog.Debug("generative response parsed", "title", title, "method", method)

	cand := parsed.ToCandidate(providerName, p.model, title, author, nil)
	if cand.Confidence > confidenceCeiling {
		cand.Confidence = confidenceCeiling
	}
	// A model without web access cannot know a real cover URL; drop anything
	// it hallucinated.
	cand.CoverURL = ""
	cand.QualityScore = enrich.Score(cand)
	return cand, nil
}

func buildPrompt(title, author, isbn string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Describe the book %q", title)
	if author != "" {
		fmt.Fprintf(&b, " by %q", author)
	}
	if isbn != "" {
		fmt.Fprintf(&b, " (ISBN %s)", isbn)
	}
	b.WriteString(" from your existing knowledge. Respond with exactly one JSON object, no prose, using the keys: ")
	b.WriteString("title, subtitle, author, translator, publisher, year, isbn, pages, genres, language, description, confidence. ")
	b.WriteString("Write the description in the same language as the title. Omit keys you are not sure about. ")
	b.WriteString("confidence is your 0-1 estimate of how well you actually know this book.")
	return b.String()
}

func (p *Provider) generateContent(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create generative client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(p.model)
	model.SetTemperature(defaultTemperature)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned")
	}
	if txt, ok := content.Parts[0].(genai.Text); ok {
		return string(txt), nil
	}
	return "", fmt.Errorf("unexpected response format")
}
