package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaulted/rankkey/ordering"
	"github.com/vaulted/rankkey/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ordering.Store {
		s, err := Open(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestEscapesScopeNames(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	e := ordering.Entry{ContextID: "../lists/1", UserID: "a/b", ItemID: "x", Rank: "0|100000:"}
	require.NoError(t, s.Upsert(ctx, e))

	_, err = os.Stat(filepath.Join(s.Dir(), "%2E.%2Flists%2F1", "a%2Fb.json"))
	require.NoError(t, err)

	got, err := s.ListEntries(ctx, e.ContextID, e.UserID)
	require.NoError(t, err)
	assert.Equal(t, []ordering.Entry{e}, got)
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "%", escape(""))
	assert.Equal(t, "%2E.", escape(".."))
	assert.Equal(t, "%2E", escape("."))
	assert.Equal(t, "list-1", escape("list-1"))
	assert.NotEqual(t, escape(""), escape("%"))
}

func TestDeleteLastEntryRemovesFile(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, ordering.Entry{ContextID: "c", UserID: "u", ItemID: "x", Rank: "0|100000:"}))
	require.NoError(t, s.Delete(ctx, "c", "x", "u"))

	_, err = os.Stat(s.path("c", "u"))
	assert.True(t, os.IsNotExist(err))
}

func TestCorruptFile(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	path := s.path("c", "u")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), dirPerms))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), filePerms))

	_, err = s.ListEntries(ctx, "c", "u")
	assert.ErrorIs(t, err, errCorruptFile)
}
