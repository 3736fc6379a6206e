// Package script classifies text by writing system. The enrichment pipeline
// uses a single classifier so that sufficiency checks, merging and author
// reconciliation all agree on what counts as Cyrillic.
package script

import "unicode"

// Script is the writing-system classification of a piece of text.
type Script int

const (
	// Unknown means the text contains no Latin or Cyrillic letters.
	Unknown Script = iota
	// Latin means the text contains Latin letters and no Cyrillic.
	Latin
	// Cyrillic means the text contains Cyrillic letters and no Latin.
	Cyrillic
	// Mixed means the text contains both Latin and Cyrillic letters.
	Mixed
)

func (s Script) String() string {
	switch s {
	case Latin:
		return "latin"
	case Cyrillic:
		return "cyrillic"
	case Mixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// Detect classifies text as Cyrillic, Latin, Mixed or Unknown.
// Only letters participate in the classification; digits, punctuation and
// whitespace are ignored.
func Detect(text string) Script {
	var hasCyrillic, hasLatin bool
	for _, r := range text {
		switch {
		case r >= 0x0400 && r <= 0x04FF:
			hasCyrillic = true
		case unicode.IsLetter(r) && r < 0x0400:
			hasLatin = true
		}
		if hasCyrillic && hasLatin {
			return Mixed
		}
	}
	switch {
	case hasCyrillic:
		return Cyrillic
	case hasLatin:
		return Latin
	default:
		return Unknown
	}
}

// HasCyrillic reports whether text contains any character in the Cyrillic
// Unicode block (U+0400 to U+04FF).
func HasCyrillic(text string) bool {
	for _, r := range text {
		if r >= 0x0400 && r <= 0x04FF {
			return true
		}
	}
	return false
}

// Matches reports whether a candidate script is consistent with a reference
// script. Mixed text is consistent with both Latin and Cyrillic references;
// Unknown text is consistent with nothing.
func Matches(candidate, reference Script) bool {
	if candidate == Unknown || reference == Unknown {
		return false
	}
	if candidate == reference {
		return true
	}
	return candidate == Mixed || reference == Mixed
}

// IsBulgarian reports whether a book looks like a Bulgarian edition: a
// Cyrillic title or an explicit "bg" language code.
func IsBulgarian(title, language string) bool {
	return HasCyrillic(title) || language == "bg"
}

// PreferCatalog reports whether the local Bulgarian catalog should be tried
// for a lookup. The catalog only holds Cyrillic-script records, so Latin-only
// queries skip it.
func PreferCatalog(title, author string) bool {
	return HasCyrillic(title) || HasCyrillic(author)
}
