package gcs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(nil, "bucket")
	require.Error(t, err)

	_, err = Open(context.Background(), " ")
	require.Error(t, err)
}

func TestURI(t *testing.T) {
	assert.Equal(t, "gs://papers/raw/2023/a.pdf", URI("papers", "raw/2023/a.pdf"))
}

func TestPutObjectRequiresPath(t *testing.T) {
	s := &BlobStore{bucket: "papers"}
	_, err := s.PutObject(context.Background(), "/", "", strings.NewReader("x"))
	require.Error(t, err)
}
