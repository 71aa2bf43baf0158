package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paper-annotator/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "mirror")
		_, err := local.New(dir)
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := local.New(" ")
		require.Error(t, err)
	})
	t.Run("file instead of directory", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(f, nil, 0o600))
		_, err := local.New(f)
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(dir)
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "papers/2023/a.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	full := filepath.Join(dir, "papers", "2023", "a.pdf")
	assert.Equal(t, "file://"+full, uri)
	data, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	entries, err := os.ReadDir(filepath.Dir(full))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	store, err := local.New(t.TempDir())
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.pdf", "", strings.NewReader("x"))
	require.Error(t, err)
	_, err = store.PutObject(context.Background(), "", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestPutObjectCanceled(t *testing.T) {
	store, err := local.New(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.PutObject(ctx, "a.pdf", "", strings.NewReader("x"))
	require.ErrorIs(t, err, context.Canceled)
}
