package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenRequiresNames(t *testing.T) {
	_, err := Open(context.Background(), "", "topic")
	require.Error(t, err)
	_, err = Open(context.Background(), "project", " ")
	require.Error(t, err)
}

func TestPublishWithoutTopic(t *testing.T) {
	_, err := (&Publisher{}).Publish(context.Background(), "records", map[string]string{"a": "b"})
	require.Error(t, err)
	require.NoError(t, (&Publisher{}).Close())
}
