package book

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo := NewSQLiteRepository(filepath.Join(t.TempDir(), "books.db"))
	require.NoError(t, repo.Connect())
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestAddAndGetBook(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec, err := repo.AddBook(ctx, &Record{
		Title:  "Под игото",
		Author: "Иван Вазов",
		Genres: []string{"Класика", "Роман"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	got, err := repo.GetBook(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Под игото", got.Title)
	assert.Equal(t, "Иван Вазов", got.Author)
	assert.Equal(t, []string{"Класика", "Роман"}, got.Genres)
}

func TestGetBookNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetBook(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateBook(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec, err := repo.AddBook(ctx, &Record{Title: "Тютюн", Author: "Димитър Димов"})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	updated, err := repo.UpdateBook(ctx, rec.ID, map[string]any{
		"description": "Роман за тютюневата индустрия.",
		"isbn13":      "9789540900001",
		"enriched_at": now,
		"genres":      []string{"Роман"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Роман за тютюневата индустрия.", updated.Description)
	assert.Equal(t, "9789540900001", updated.ISBN13)
	assert.Equal(t, []string{"Роман"}, updated.Genres)
	assert.WithinDuration(t, now, updated.EnrichedAt, time.Second)
}

func TestUpdateBookRejectsUnknownColumn(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec, err := repo.AddBook(ctx, &Record{Title: "X"})
	require.NoError(t, err)

	_, err = repo.UpdateBook(ctx, rec.ID, map[string]any{"nope; DROP TABLE books": 1})
	assert.Error(t, err)
}

func TestListBooksNeedingEnrichment(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	complete := &Record{
		Title:       "Complete",
		Author:      "A",
		Description: "desc",
		Publisher:   "pub",
		ISBN13:      "9781111111111",
		CoverURL:    "https://example.com/c.jpg",
	}
	_, err := repo.AddBook(ctx, complete)
	require.NoError(t, err)

	missingCover := &Record{
		Title:       "No cover",
		Author:      "B",
		Description: "desc",
		Publisher:   "pub",
		ISBN13:      "9782222222222",
	}
	_, err = repo.AddBook(ctx, missingCover)
	require.NoError(t, err)

	missingAll := &Record{Title: "Sparse", Author: "C"}
	_, err = repo.AddBook(ctx, missingAll)
	require.NoError(t, err)

	books, err := repo.ListBooksNeedingEnrichment(ctx, 0, false, false)
	require.NoError(t, err)
	assert.Len(t, books, 2)

	coverless, err := repo.ListBooksNeedingEnrichment(ctx, 0, true, false)
	require.NoError(t, err)
	assert.Len(t, coverless, 2)

	all, err := repo.ListBooksNeedingEnrichment(ctx, 0, false, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := repo.ListBooksNeedingEnrichment(ctx, 1, false, true)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSetBookPublisherOnlyFillsEmpty(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec, err := repo.AddBook(ctx, &Record{Title: "X", Publisher: "Бард"})
	require.NoError(t, err)

	require.NoError(t, repo.SetBookPublisher(ctx, rec.ID, "Сиела"))

	got, err := repo.GetBook(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Бард", got.Publisher)
}
