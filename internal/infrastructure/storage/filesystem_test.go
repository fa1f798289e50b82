package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemStore_RoundTrip(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	bidID := uuid.New()
	ref, err := store.Store(ctx, bidID, "technical_proposal", []byte("proposal body"))
	require.NoError(t, err)
	assert.Contains(t, ref, bidID.String())

	data, err := store.Fetch(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("proposal body"), data)
}

func TestFilesystemStore_SanitizesDocumentType(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Store(ctx, uuid.New(), "bid bond / 2026", []byte("bond"))
	require.NoError(t, err)
	assert.NotContains(t, ref, " ")

	data, err := store.Fetch(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("bond"), data)
}

func TestFilesystemStore_RejectsTraversal(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Fetch(context.Background(), "../etc/passwd")
	assert.ErrorContains(t, err, "invalid document reference")
}

func TestFilesystemStore_UnknownReference(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Fetch(context.Background(), "missing/one/two")
	assert.Error(t, err)
}
