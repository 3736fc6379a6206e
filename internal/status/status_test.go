package status

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mybibliotheca/libris/internal/testutil"
)

func newTestStore(t *testing.T) (*Store, *testutil.TestEnv) {
	t.Helper()
	env := testutil.NewTestEnv(t)
	return NewStore(env.Path("status", "enrichment.json")), env
}

func TestLoadMissingFileIsIdle(t *testing.T) {
	store, _ := newTestStore(t)

	run, err := store.Load()
	require.NoError(t, err)
	assert.False(t, run.Running)
	assert.Zero(t, run.Processed)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	run := &Run{
		Running:       true,
		Limit:         25,
		Force:         true,
		Processed:     3,
		Enriched:      2,
		Failed:        1,
		EnrichedBooks: []string{"Тютюн"},
	}
	require.NoError(t, store.Save(run))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.True(t, loaded.Running)
	assert.Equal(t, 25, loaded.Limit)
	assert.Equal(t, 2, loaded.Enriched)
	assert.Equal(t, []string{"Тютюн"}, loaded.EnrichedBooks)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	store, env := newTestStore(t)

	require.NoError(t, store.Save(&Run{Running: true}))
	require.NoError(t, store.Save(&Run{Running: false}))

	entries, err := os.ReadDir(env.Path("status"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "enrichment.json", entries[0].Name())
}

func TestAcquireBlocksSecondRun(t *testing.T) {
	store, _ := newTestStore(t)

	run, err := store.Acquire(10, false)
	require.NoError(t, err)
	assert.True(t, run.Running)

	_, err = store.Acquire(10, false)
	assert.ErrorContains(t, err, "already active")
}

func TestReleaseClearsFlagEvenOnError(t *testing.T) {
	store, _ := newTestStore(t)

	run, err := store.Acquire(10, false)
	require.NoError(t, err)

	require.NoError(t, store.Release(run, errors.New("provider exploded")))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.False(t, loaded.Running)
	assert.Equal(t, "provider exploded", loaded.Error)
	assert.False(t, loaded.CompletedAt.IsZero())

	// A new run can start after release.
	_, err = store.Acquire(5, true)
	assert.NoError(t, err)
}
