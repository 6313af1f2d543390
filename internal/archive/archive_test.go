package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectName(t *testing.T) {
	bogota := time.FixedZone("COT", -5*3600)
	m := Message{ID: "abc", ReceivedAt: time.Date(2025, 1, 31, 21, 0, 0, 0, bogota)}
	assert.Equal(t, "messages/2025/02/01/abc.json", ObjectName(m))
}

func TestParseURI(t *testing.T) {
	bucket, object, err := ParseURI("gs://raw-messages/messages/2025/01/01/x.json")
	require.NoError(t, err)
	assert.Equal(t, "raw-messages", bucket)
	assert.Equal(t, "messages/2025/01/01/x.json", object)

	for _, bad := range []string{"s3://b/o", "gs://bucket", "gs://bucket/", "gs:///obj"} {
		_, _, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestMemory_ArchiveAndFetch(t *testing.T) {
	ctx := context.Background()
	var a Memory
	m := Message{
		ID:             "m1",
		ReceivedAt:     time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
		Source:         "api",
		Text:           "20k almuerzo",
		Parsed:         map[string]any{"category": "restaurant"},
		TransactionIDs: []string{"T1"},
	}

	uri, err := a.Archive(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "mem://messages/2025/03/14/m1.json", uri)

	got, err := a.Fetch(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, m.Text, got.Text)
	assert.Equal(t, "restaurant", got.Parsed["category"])
	assert.Equal(t, []string{"T1"}, got.TransactionIDs)
	assert.True(t, m.ReceivedAt.Equal(got.ReceivedAt))

	_, err = a.Fetch(ctx, "mem://nope")
	assert.Error(t, err)
}
