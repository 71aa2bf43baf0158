package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paper-annotator/internal/paper"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0o600))
	}
}

func TestDirectoryDiscover(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"2023/b.pdf",
		"2023/a.PDF",
		"2023/notes.txt",
		"2022/c.pdf",
		"misc/d.pdf",
	)

	items, err := NewDirectory(root, nil, 2, nil).Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []paper.WorkItem{
		{Source: filepath.Join(root, "2022", "c.pdf"), Group: "2022", ID: "c.pdf"},
		{Source: filepath.Join(root, "2023", "a.PDF"), Group: "2023", ID: "a.PDF"},
		{Source: filepath.Join(root, "2023", "b.pdf"), Group: "2023", ID: "b.pdf"},
	}, items)
}

func TestDirectoryYearFilter(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "2023/a.pdf", "2022/c.pdf")

	items, err := NewDirectory(root, []string{"2023"}, 0, nil).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a.pdf", items[0].ID)
}

func TestDirectoryMissingRoot(t *testing.T) {
	_, err := NewDirectory(filepath.Join(t.TempDir(), "missing"), nil, 1, nil).Discover(context.Background())
	require.Error(t, err)
}

func TestDirectoryCanceled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "2023/a.pdf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDirectory(root, nil, 1, nil).Discover(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
