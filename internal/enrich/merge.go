package enrich

import (
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mybibliotheca/libris/internal/book"
	"github.com/mybibliotheca/libris/internal/script"
)

// descriptionReplaceMargin is how many characters longer a candidate
// description must be to replace an existing description that already matches
// the title's script.
const descriptionReplaceMargin = 50

// citationMarkerPattern matches inline citation markers ([1], [2][3]) that
// web-search models leave in generated prose.
var citationMarkerPattern = regexp.MustCompile(`\[\d+\]`)

// ScrubCitations removes citation markers from model-generated text and
// collapses the whitespace they leave behind.
func ScrubCitations(text string) string {
	text = citationMarkerPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// Merge combines a validated candidate into an existing record using
// conservative field rules. It never mutates the input; it returns the merged
// record plus the map of column updates that actually changed, ready for
// Repository.UpdateBook. Only the cover and (under the language gate) the
// description may replace populated fields; everything else fills blanks.
func Merge(existing *book.Record, c *book.Candidate) (book.Record, map[string]any) {
	merged := *existing
	merged.Genres = slices.Clone(existing.Genres)
	updates := make(map[string]any)

	titleScript := script.Detect(existing.Title)

	mergeTitle(&merged, c, updates)
	mergeAuthor(&merged, c, updates)
	mergeDescription(&merged, existing, c, titleScript, updates)
	mergeCover(&merged, c, updates)
	mergeSimpleFields(&merged, c, updates)
	mergeGenres(&merged, c, updates)
	mergeLanguage(&merged, c, updates)

	return merged, updates
}

func mergeTitle(merged *book.Record, c *book.Candidate, updates map[string]any) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return
	}
	if sub := strings.TrimSpace(c.Subtitle); sub != "" {
		title = title + ": " + sub
	}
	if utf8.RuneCountInString(title) > utf8.RuneCountInString(merged.Title) {
		merged.Title = title
		updates["title"] = title
	}
}

func mergeAuthor(merged *book.Record, c *book.Candidate, updates map[string]any) {
	if merged.Author != "" {
		return
	}
	author := strings.TrimSpace(c.Author)
	if author == "" {
		return
	}
	merged.Author = author
	updates["author"] = author
}

// mergeDescription applies the language gate: the title's script is ground
// truth. An empty existing description accepts anything (with a warning on a
// script mismatch). A populated one is replaced only when the candidate
// matches the title's script and either the existing text does not, is
// littered with citation markers, or the candidate is substantially longer.
func mergeDescription(merged, existing *book.Record, c *book.Candidate, titleScript script.Script, updates map[string]any) {
	desc := ScrubCitations(c.Description)
	if desc == "" {
		return
	}

	candScript := script.Detect(desc)

	if existing.Description == "" {
		if !script.Matches(candScript, titleScript) {
			slog.Warn("accepting description with mismatched script for empty field",
				"title", existing.Title,
				"title_script", titleScript,
				"description_script", candScript)
		}
		merged.Description = desc
		updates["description"] = desc
		return
	}

	if !script.Matches(candScript, titleScript) {
		return
	}

	existingMatches := script.Matches(script.Detect(existing.Description), titleScript)
	hasCitations := citationMarkerPattern.MatchString(existing.Description)
	longer := utf8.RuneCountInString(desc) >= utf8.RuneCountInString(existing.Description)+descriptionReplaceMargin

	if !existingMatches || hasCitations || longer {
		merged.Description = desc
		updates["description"] = desc
	}
}

func mergeCover(merged *book.Record, c *book.Candidate, updates map[string]any) {
	cover := strings.TrimSpace(c.CoverURL)
	if cover == "" || cover == merged.CoverURL {
		return
	}
	merged.CoverURL = cover
	merged.CoverSource = "ai"
	updates["cover_url"] = cover
	updates["cover_source"] = "ai"
}

func mergeSimpleFields(merged *book.Record, c *book.Candidate, updates map[string]any) {
	if merged.Publisher == "" && strings.TrimSpace(c.Publisher) != "" {
		merged.Publisher = strings.TrimSpace(c.Publisher)
		updates["publisher"] = merged.Publisher
	}

	switch isbn := c.CleanISBN(); len(isbn) {
	case 13:
		if merged.ISBN13 == "" {
			merged.ISBN13 = isbn
			updates["isbn13"] = isbn
		}
	case 10:
		if merged.ISBN10 == "" {
			merged.ISBN10 = isbn
			updates["isbn10"] = isbn
		}
	default:
		if isbn != "" && merged.ISBN13 == "" && merged.ISBN10 == "" {
			merged.ISBN13 = isbn
			updates["isbn13"] = isbn
		}
	}

	if merged.PageCount == 0 && c.Pages > 0 {
		merged.PageCount = c.Pages
		updates["page_count"] = c.Pages
	}

	if merged.PublishedDate.IsZero() && c.Year > 0 {
		merged.PublishedDate = time.Date(c.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		updates["published_date"] = merged.PublishedDate
	}
}

func mergeGenres(merged *book.Record, c *book.Candidate, updates map[string]any) {
	added := false
	for _, g := range c.Genres {
		g = strings.TrimSpace(g)
		if g == "" || slices.Contains(merged.Genres, g) {
			continue
		}
		merged.Genres = append(merged.Genres, g)
		added = true
	}
	if added {
		updates["genres"] = merged.Genres
	}
}

// mergeLanguage forces "bg" when both the title and an author name are
// Cyrillic. This is the one rule that overrides a populated field other than
// the cover.
func mergeLanguage(merged *book.Record, c *book.Candidate, updates map[string]any) {
	if !script.HasCyrillic(merged.Title) {
		return
	}
	if !script.HasCyrillic(c.Author) && !script.HasCyrillic(merged.Author) {
		return
	}
	if merged.Language == "bg" {
		return
	}
	merged.Language = "bg"
	updates["language"] = "bg"
}

// ReconcileAuthor picks the best candidate author name for a record whose
// author differs from what a provider returned. Multiple names separated by
// commas or semicolons are split and the one matching the title's script is
// preferred. Returns ok=false when no update should be made, in particular
// when the change would attach a Cyrillic name to a Latin-titled book or vice
// versa.
func ReconcileAuthor(title, currentAuthor, candidateAuthor string) (string, bool) {
	candidateAuthor = strings.TrimSpace(candidateAuthor)
	if candidateAuthor == "" {
		return "", false
	}

	titleScript := script.Detect(title)

	names := splitAuthorNames(candidateAuthor)
	picked := names[0]
	for _, name := range names {
		if script.Matches(script.Detect(name), titleScript) {
			picked = name
			break
		}
	}

	if picked == currentAuthor {
		return "", false
	}
	if currentAuthor != "" && !script.Matches(script.Detect(picked), titleScript) {
		return "", false
	}
	return picked, true
}

func splitAuthorNames(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var names []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	if len(names) == 0 {
		names = []string{strings.TrimSpace(s)}
	}
	return names
}
