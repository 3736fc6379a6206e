// Package payload parses the JSON documents AI providers return. Model output
// is not guaranteed well-formed, so extraction is a tagged sequence of
// attempts: strict parse, fenced code block, brace scan. The caller always
// learns which method succeeded.
package payload

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mybibliotheca/libris/internal/book"
)

// Method records how the JSON document was recovered from the model output.
type Method int

const (
	// ParsedStrict means the whole response was valid JSON.
	ParsedStrict Method = iota
	// ParsedFenced means the JSON was extracted from a ```-fenced block.
	ParsedFenced
	// ParsedBraceScan means the JSON was the largest brace-delimited
	// substring. Lowest confidence.
	ParsedBraceScan
	// ParseFailed means no method produced a valid document.
	ParseFailed
)

func (m Method) String() string {
	switch m {
	case ParsedStrict:
		return "strict"
	case ParsedFenced:
		return "fenced"
	case ParsedBraceScan:
		return "brace-scan"
	default:
		return "failed"
	}
}

// Payload is the common shape AI providers are instructed to return. All
// fields are optional; numeric fields tolerate being sent as strings.
type Payload struct {
	Title       string      `json:"title"`
	Subtitle    string      `json:"subtitle"`
	Author      string      `json:"author"`
	Translator  string      `json:"translator"`
	Publisher   string      `json:"publisher"`
	Year        FlexInt     `json:"year"`
	ISBN        FlexString  `json:"isbn"`
	Pages       FlexInt     `json:"pages"`
	Genres      FlexStrings `json:"genres"`
	Language    string      `json:"language"`
	Description string      `json:"description"`
	CoverURL    string      `json:"cover_url"`
	Confidence  float64     `json:"confidence"`
}

// FlexInt unmarshals from a JSON number or a numeric string. Models routinely
// quote years and page counts.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		// Tolerate values like "1994 г." by taking the leading digits.
		digits := leadingDigits(s)
		if digits == "" {
			*f = 0
			return nil
		}
		n, _ = strconv.Atoi(digits)
	}
	*f = FlexInt(n)
	return nil
}

func leadingDigits(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// FlexString unmarshals from a JSON string or a bare number. ISBNs sometimes
// arrive unquoted.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		*f = ""
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

// FlexStrings unmarshals from a JSON array of strings or a single
// comma-separated string.
type FlexStrings []string

func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	var out []string
	for _, part := range strings.Split(single, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*f = out
	return nil
}

// payloadSchema bounds the field types we accept. Unknown fields pass
// through; wrong types (an object where a string belongs) fail validation so
// a half-hallucinated document is rejected rather than silently zeroed.
const payloadSchema = `{
	"type": "object",
	"properties": {
		"title":       {"type": "string"},
		"subtitle":    {"type": "string"},
		"author":      {"type": "string"},
		"translator":  {"type": "string"},
		"publisher":   {"type": "string"},
		"year":        {"type": ["integer", "string", "null"]},
		"isbn":        {"type": ["string", "integer", "null"]},
		"pages":       {"type": ["integer", "string", "null"]},
		"genres":      {"type": ["array", "string", "null"]},
		"language":    {"type": "string"},
		"description": {"type": "string"},
		"cover_url":   {"type": ["string", "null"]},
		"confidence":  {"type": "number", "minimum": 0, "maximum": 1}
	}
}`

var compiledSchema = jsonschema.MustCompileString("payload.json", payloadSchema)

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Parse recovers a metadata payload from raw model output. The returned
// Method tells the caller how much to trust the result; on ParseFailed the
// payload is nil and the error describes the last attempt.
func Parse(raw string) (*Payload, Method, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ParseFailed, fmt.Errorf("empty response")
	}

	if p, err := decodeAndValidate(raw); err == nil {
		return p, ParsedStrict, nil
	}

	if m := fencedBlockPattern.FindStringSubmatch(raw); m != nil {
		if p, err := decodeAndValidate(m[1]); err == nil {
			return p, ParsedFenced, nil
		}
	}

	if candidate := largestBraceSubstring(raw); candidate != "" {
		if p, err := decodeAndValidate(candidate); err == nil {
			return p, ParsedBraceScan, nil
		}
	}

	return nil, ParseFailed, fmt.Errorf("no parseable JSON object in response")
}

func decodeAndValidate(raw string) (*Payload, error) {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("response is not a JSON object")
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &p, nil
}

// largestBraceSubstring returns the longest balanced {...} substring, or ""
// when the braces never balance. Strings are tracked so braces inside quoted
// values do not confuse the scan.
func largestBraceSubstring(s string) string {
	best := ""
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			switch {
			case escaped:
				escaped = false
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					if cand := s[start : i+1]; len(cand) > len(best) {
						best = cand
					}
					i = len(s)
				}
			}
		}
	}
	return best
}

// ToCandidate converts a parsed payload into the common candidate shape.
// Title and author fall back to the originally supplied values so a provider
// never returns a blank identity for a book it was asked about by name.
func (p *Payload) ToCandidate(source, model, fallbackTitle, fallbackAuthor string, sources []string) *book.Candidate {
	c := &book.Candidate{
		Title:       strings.TrimSpace(p.Title),
		Subtitle:    strings.TrimSpace(p.Subtitle),
		Author:      strings.TrimSpace(p.Author),
		Translator:  strings.TrimSpace(p.Translator),
		Publisher:   strings.TrimSpace(p.Publisher),
		Year:        int(p.Year),
		ISBN:        book.CleanISBN(string(p.ISBN)),
		Pages:       int(p.Pages),
		Genres:      []string(p.Genres),
		Language:    strings.TrimSpace(p.Language),
		Description: strings.TrimSpace(p.Description),
		CoverURL:    strings.TrimSpace(p.CoverURL),
		Confidence:  p.Confidence,
		Source:      source,
		Model:       model,
		Sources:     sources,
		EnrichedAt:  time.Now(),
	}
	if c.Title == "" {
		c.Title = fallbackTitle
	}
	if c.Author == "" {
		c.Author = fallbackAuthor
	}
	return c
}
