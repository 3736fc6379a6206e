package enrich

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mybibliotheca/libris/internal/book"
)

// ValidationFloor is the absolute minimum quality score below which a
// candidate is never considered for merging, regardless of the configured
// per-run threshold.
const ValidationFloor = 0.4

// Field weights for the base quality score. They sum to 1.00.
const (
	weightTitle       = 0.20
	weightAuthor      = 0.20
	weightDescription = 0.20
	weightPublisher   = 0.10
	weightISBN        = 0.10
	weightCover       = 0.10
	weightYear        = 0.03
	weightPages       = 0.03
	weightGenres      = 0.04
)

// scoreDescriptionMinLength is the length a description needs to earn its
// weight. Shorter blurbs are usually truncated search snippets.
const scoreDescriptionMinLength = 50

const confidenceBonusThreshold = 0.8

// trustedSourceTokens are domain fragments whose presence in a citation URL
// earns the source-trust bonus. Chitanka hosts the authoritative Bulgarian
// bibliographic catalog.
var trustedSourceTokens = []string{"chitanka", "biblioman"}

// Score maps a candidate to a quality score in [0,1] based on field
// completeness, with small multiplicative bonuses for high provider
// confidence and trusted citation sources.
func Score(c *book.Candidate) float64 {
	score := 0.0

	if strings.TrimSpace(c.Title) != "" {
		score += weightTitle
	}
	if strings.TrimSpace(c.Author) != "" {
		score += weightAuthor
	}
	if utf8.RuneCountInString(c.Description) > scoreDescriptionMinLength {
		score += weightDescription
	}
	if strings.TrimSpace(c.Publisher) != "" {
		score += weightPublisher
	}
	if c.CleanISBN() != "" {
		score += weightISBN
	}
	if strings.TrimSpace(c.CoverURL) != "" {
		score += weightCover
	}
	if c.Year > 0 {
		score += weightYear
	}
	if c.Pages > 0 {
		score += weightPages
	}
	if len(c.Genres) > 0 {
		score += weightGenres
	}

	if c.Confidence > confidenceBonusThreshold {
		score *= 1.05
	}
	if hasTrustedSource(c.Sources) {
		score *= 1.05
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func hasTrustedSource(sources []string) bool {
	for _, src := range sources {
		lower := strings.ToLower(src)
		for _, token := range trustedSourceTokens {
			if strings.Contains(lower, token) {
				return true
			}
		}
	}
	return false
}

// Validate checks the structural requirements a candidate must meet before
// any merge is considered. The quality score must already be computed.
func Validate(c *book.Candidate) error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("candidate has no title")
	}
	if strings.TrimSpace(c.Author) == "" {
		return fmt.Errorf("candidate has no author")
	}
	if c.QualityScore < ValidationFloor {
		return fmt.Errorf("quality score %.2f below floor %.2f", c.QualityScore, ValidationFloor)
	}
	return nil
}
