package storage

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentStore_PinFetchUnpin(t *testing.T) {
	ctx := context.Background()
	objects := NewMemoryS3Client()
	store := NewContentStore(objects, "aarna", "evidence/")

	pinned, err := store.PinFile(ctx, strings.NewReader("survey"))
	require.NoError(t, err)
	assert.Equal(t, "evidence/"+pinned.CID, pinned.Key)
	assert.Equal(t, 6, pinned.Size)
	assert.Equal(t, "memory://aarna/evidence/"+pinned.CID, pinned.URL)

	again, err := store.PinFile(ctx, strings.NewReader("survey"))
	require.NoError(t, err)
	assert.Equal(t, pinned.CID, again.CID)

	data, err := store.Fetch(ctx, pinned.CID)
	require.NoError(t, err)
	assert.Equal(t, "survey", string(data))

	require.NoError(t, store.UnpinFile(ctx, pinned.CID))
	_, err = store.Fetch(ctx, pinned.CID)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestContentStore_DetectsTampering(t *testing.T) {
	ctx := context.Background()
	objects := NewMemoryS3Client()
	store := NewContentStore(objects, "aarna", "")

	pinned, err := store.PinFile(ctx, strings.NewReader("original"))
	require.NoError(t, err)
	require.NoError(t, objects.Upload(ctx, "aarna", pinned.Key, bytes.NewReader([]byte("altered"))))

	_, err = store.Fetch(ctx, pinned.CID)
	assert.ErrorContains(t, err, "does not match")
}
