package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRememberRoundTrip(t *testing.T) {
	t.Parallel()
	store := NewRememberStoreAt(filepath.Join(t.TempDir(), "session.toml"))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, loaded, "no file means no session")

	require.NoError(t, store.Save(RememberedSession{
		UID:   "u1",
		Email: "u1@example.com",
		Token: "tok-123",
	}))

	loaded, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "u1", loaded.UID)
	require.Equal(t, "tok-123", loaded.Token)
	require.False(t, loaded.SavedAt.IsZero(), "save stamps the time")
}

func TestRememberClearIsIdempotent(t *testing.T) {
	t.Parallel()
	store := NewRememberStoreAt(filepath.Join(t.TempDir(), "session.toml"))

	require.NoError(t, store.Clear(), "clearing a missing file is fine")

	require.NoError(t, store.Save(RememberedSession{UID: "u1", Email: "e", Token: "t"}))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestRememberIgnoresIncompleteRecord(t *testing.T) {
	t.Parallel()
	store := NewRememberStoreAt(filepath.Join(t.TempDir(), "session.toml"))

	// A record without a token cannot restore anything.
	require.NoError(t, store.Save(RememberedSession{UID: "u1", Email: "e"}))
	loaded, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestRememberSaveOverwrites(t *testing.T) {
	t.Parallel()
	store := NewRememberStoreAt(filepath.Join(t.TempDir(), "session.toml"))

	require.NoError(t, store.Save(RememberedSession{UID: "old", Email: "a", Token: "t1"}))
	require.NoError(t, store.Save(RememberedSession{UID: "new", Email: "b", Token: "t2"}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "new", loaded.UID)
	require.Equal(t, "t2", loaded.Token)
}
