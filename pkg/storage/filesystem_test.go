package storage

import (
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	path, n, err := store.SaveStream("req-1/20240101_tor.pdf", strings.NewReader("pdf-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "req-1/20240101_tor.pdf", path)
	assert.Equal(t, int64(9), n)

	f, err := store.Open(path)
	require.NoError(t, err)
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "pdf-bytes", string(body))

	require.NoError(t, store.Delete(path))
	require.NoError(t, store.Delete(path))
	_, err = store.Open(path)
	require.Error(t, err)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.SaveStream("../escape.txt", strings.NewReader("x"))
	require.Error(t, err)
	_, err = store.Open("/etc/passwd")
	require.Error(t, err)
	assert.Empty(t, store.Path("../../x"))
}

func TestLocalStorageNeverOverwrites(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.SaveStream("req-1/tor.pdf", strings.NewReader("first"))
	require.NoError(t, err)
	_, _, err = store.SaveStream("req-1/tor.pdf", strings.NewReader("second"))
	require.ErrorIs(t, err, fs.ErrExist)

	f, err := store.Open("req-1/tor.pdf")
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "first", string(body))
}
