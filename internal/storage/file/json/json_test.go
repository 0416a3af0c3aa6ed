package json

import (
	"testing"

	"github.com/drakos74/free-model/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type history map[string][]float64

func TestBlobStorage(t *testing.T) {
	shard := BlobShard(t.TempDir(), "models")
	s, err := shard("session")
	require.NoError(t, err)

	k := storage.Key{Model: "net", Label: storage.HistoryLabel}
	var h history
	err = s.Load(k, &h)
	assert.ErrorIs(t, err, storage.NotFoundErr)

	require.NoError(t, s.Store(k, history{"loss": {3, 2, 1}}))
	require.NoError(t, s.Load(k, &h))
	assert.Equal(t, history{"loss": {3, 2, 1}}, h)

	var wrong []string
	err = s.Load(k, &wrong)
	assert.ErrorIs(t, err, storage.CouldNotLoadErr)

	other, err := shard("other")
	require.NoError(t, err)
	err = other.Load(k, &h)
	assert.ErrorIs(t, err, storage.NotFoundErr)
}

func TestNewJsonBlob(t *testing.T) {
	s := NewJsonBlob("", "models", "session", true)
	assert.Equal(t, storage.DefaultDir, s.path)
}
