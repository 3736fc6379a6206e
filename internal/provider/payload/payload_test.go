package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `{
	"title": "Тютюн",
	"author": "Димитър Димов",
	"publisher": "Хермес",
	"year": 1951,
	"isbn": "9789542611178",
	"pages": 824,
	"genres": ["роман", "класика"],
	"description": "Роман за възхода и падението на една тютюнева фамилия.",
	"cover_url": "https://example.com/tyutyun.jpg",
	"confidence": 0.95
}`

func TestParseStrict(t *testing.T) {
	p, method, err := Parse(validDoc)
	require.NoError(t, err)
	assert.Equal(t, ParsedStrict, method)
	assert.Equal(t, "Тютюн", p.Title)
	assert.Equal(t, "Димитър Димов", p.Author)
	assert.EqualValues(t, 1951, p.Year)
	assert.EqualValues(t, []string{"роман", "класика"}, p.Genres)
	assert.Equal(t, 0.95, p.Confidence)
}

func TestParseFencedBlock(t *testing.T) {
	raw := "Here is the book information you asked for:\n\n```json\n" + validDoc + "\n```\n\nLet me know if you need more."
	p, method, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, ParsedFenced, method)
	assert.Equal(t, "Тютюн", p.Title)
}

func TestParseBraceScan(t *testing.T) {
	raw := "The metadata is " + validDoc + " according to my search."
	p, method, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, ParsedBraceScan, method)
	assert.Equal(t, "Хермес", p.Publisher)
}

func TestParseBraceScanIgnoresBracesInStrings(t *testing.T) {
	raw := `noise {"title": "A {strange} title", "author": "X"} noise`
	p, method, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, ParsedBraceScan, method)
	assert.Equal(t, "A {strange} title", p.Title)
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"prose only", "I could not find any information about this book."},
		{"array not object", `[1, 2, 3]`},
		{"unbalanced braces", `{"title": "broken`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, method, err := Parse(tt.raw)
			assert.Nil(t, p)
			assert.Equal(t, ParseFailed, method)
			assert.Error(t, err)
		})
	}
}

func TestParseRejectsWrongTypes(t *testing.T) {
	// A nested object where a string belongs fails schema validation.
	_, method, err := Parse(`{"title": {"bg": "Тютюн"}, "author": "X"}`)
	assert.Equal(t, ParseFailed, method)
	assert.Error(t, err)
}

func TestParseTolerantNumericFields(t *testing.T) {
	p, _, err := Parse(`{"title": "T", "author": "A", "year": "1994 г.", "pages": "320", "isbn": 9789546557778}`)
	require.NoError(t, err)
	assert.EqualValues(t, 1994, p.Year)
	assert.EqualValues(t, 320, p.Pages)
	assert.EqualValues(t, "9789546557778", p.ISBN)
}

func TestParseGenresFromString(t *testing.T) {
	p, _, err := Parse(`{"title": "T", "author": "A", "genres": "роман, класика"}`)
	require.NoError(t, err)
	assert.EqualValues(t, []string{"роман", "класика"}, p.Genres)
}

func TestToCandidateFallsBackToSuppliedIdentity(t *testing.T) {
	p := &Payload{Description: "Some description."}
	c := p.ToCandidate("websearch", "sonar", "Под игото", "Иван Вазов", nil)

	assert.Equal(t, "Под игото", c.Title)
	assert.Equal(t, "Иван Вазов", c.Author)
	assert.Equal(t, "websearch", c.Source)
	assert.False(t, c.EnrichedAt.IsZero())
}

func TestToCandidateCleansISBN(t *testing.T) {
	p := &Payload{Title: "T", Author: "A", ISBN: "978-954-655-777-8"}
	c := p.ToCandidate("websearch", "sonar", "", "", nil)
	assert.Equal(t, "9789546557778", c.ISBN)
}
