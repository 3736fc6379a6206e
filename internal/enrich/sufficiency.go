// Package enrich implements the enrichment engine: the sufficiency check,
// quality scoring, the field-level merger and the orchestrator that drives
// providers with fallback.
package enrich

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mybibliotheca/libris/internal/book"
	"github.com/mybibliotheca/libris/internal/script"
)

// minDescriptionLength is the number of characters a description needs before
// it counts towards sufficiency.
const minDescriptionLength = 100

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// IsSufficient reports whether a record already has enough metadata to skip
// enrichment. With requireCover set, only the cover matters (cover backfill
// mode). Otherwise books with a Cyrillic title or a "bg" language code must
// have a cover unconditionally, and every book needs at least three of:
// description over 100 characters, valid cover URL, publisher, ISBN.
func IsSufficient(rec *book.Record, requireCover bool) bool {
	hasDescription := utf8.RuneCountInString(strings.TrimSpace(rec.Description)) > minDescriptionLength
	hasCover := IsValidCoverURL(rec.CoverURL)
	hasPublisher := strings.TrimSpace(rec.Publisher) != ""
	hasISBN := rec.HasISBN()

	if requireCover {
		return hasCover
	}

	if script.IsBulgarian(rec.Title, rec.Language) && !hasCover {
		return false
	}

	count := 0
	for _, ok := range []bool{hasDescription, hasCover, hasPublisher, hasISBN} {
		if ok {
			count++
		}
	}
	return count >= 3
}

// IsValidCoverURL reports whether a cover URL is an absolute http(s) URL that
// plausibly points at a real image. URLs under a "cache" path segment get a
// stricter check: they must end with an image extension and must not carry an
// ISBN-like run of digits in the path. That second rule is a deny-list for a
// known broken cache-proxy URL shape, not general validation.
func IsValidCoverURL(coverURL string) bool {
	coverURL = strings.TrimSpace(coverURL)
	if coverURL == "" {
		return false
	}

	u, err := url.Parse(coverURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}

	path := strings.ToLower(u.Path)

	if isCachePath(path) {
		return hasImageExtension(path) && !hasISBNLikeSegment(u.Path)
	}

	// Outside cache paths an extension before the query string is enough.
	return hasImageExtension(path)
}

func hasImageExtension(lowerPath string) bool {
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lowerPath, ext) {
			return true
		}
	}
	return false
}

func isCachePath(lowerPath string) bool {
	for _, seg := range strings.Split(lowerPath, "/") {
		if seg == "cache" {
			return true
		}
	}
	return false
}

// hasISBNLikeSegment reports whether any path segment is a bare 10- or
// 13-digit number, the shape the broken proxy uses for books it failed to
// resolve.
func hasISBNLikeSegment(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		base := seg
		if idx := strings.LastIndex(base, "."); idx > 0 {
			base = base[:idx]
		}
		if len(base) != 10 && len(base) != 13 {
			continue
		}
		allDigits := true
		for _, r := range base {
			if !unicode.IsDigit(r) {
				allDigits = false
				break
			}
		}
		if allDigits {
			return true
		}
	}
	return false
}
