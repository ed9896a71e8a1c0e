package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"swaggerd/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "swaggerd.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestPutAndListSpecs(t *testing.T) {
	store := openTestStore(t)

	first, err := store.PutSpec("petstore", domain.UpstreamConfig{
		APIBaseURL: "https://petstore.example.com",
		SpecURL:    "https://petstore.example.com/openapi.json",
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.Equal(t, "petstore", first.Prefix)
	require.False(t, first.CreatedAt.IsZero())

	_, err = store.PutSpec("weather", domain.UpstreamConfig{
		APIBaseURL: "https://weather.example.com",
		SpecPath:   "testdata/weather.json",
	})
	require.NoError(t, err)

	records, err := store.ListSpecs()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "petstore", records[0].Prefix)
	require.Equal(t, "weather", records[1].Prefix)
	require.Equal(t, "https://petstore.example.com", records[0].Config.APIBaseURL)
}

func TestPutSpecReplacesRecord(t *testing.T) {
	store := openTestStore(t)

	_, err := store.PutSpec("petstore", domain.UpstreamConfig{APIBaseURL: "https://old.example.com", Prefix: "petstore"})
	require.NoError(t, err)
	_, err = store.PutSpec("petstore", domain.UpstreamConfig{APIBaseURL: "https://new.example.com", Prefix: "petstore"})
	require.NoError(t, err)

	records, err := store.ListSpecs()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "https://new.example.com", records[0].Config.APIBaseURL)
}

func TestToolStatesRoundTrip(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SetToolEnabled("petstore", "listPets", false))
	require.NoError(t, store.SetToolEnabled("petstore", "getPet", true))

	states, err := store.ToolStates()
	require.NoError(t, err)
	require.False(t, states["petstore"]["listPets"])
	require.True(t, states["petstore"]["getPet"])

	// Toggling is idempotent and last-write-wins.
	require.NoError(t, store.SetToolEnabled("petstore", "listPets", false))
	require.NoError(t, store.SetToolEnabled("petstore", "listPets", true))

	states, err = store.ToolStates()
	require.NoError(t, err)
	require.True(t, states["petstore"]["listPets"])
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "swaggerd.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	err = store.SetToolEnabled("petstore", "listPets", true)
	require.ErrorIs(t, err, domain.ErrStoreClosed)

	_, err = store.ListSpecs()
	require.ErrorIs(t, err, domain.ErrStoreClosed)
}
