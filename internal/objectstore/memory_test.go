package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGetRoundTripsGzipped(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "raw/a", []byte("hello"), true))

	got, err := store.Get(ctx, "raw/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestMemoryStoreGetMissingReturnsErrNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListWithDelimiterGroupsCommonPrefixes(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "raw/cust/AWS/acct/2026-07-30/0.jsonl.gz", []byte("x"), false))
	require.NoError(t, store.Put(ctx, "raw/cust/AWS/acct/2026-07-29/0.jsonl.gz", []byte("y"), false))

	entries, err := store.List(ctx, "raw/cust/AWS/acct/", "/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "raw/cust/AWS/acct/2026-07-29/", entries[0].Key)
	assert.Equal(t, "raw/cust/AWS/acct/2026-07-30/", entries[1].Key)
}

func TestMemoryStoreCopyDuplicatesBody(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "src", []byte("body"), false))
	require.NoError(t, store.Copy(ctx, "src", "dst"))

	got, err := store.Get(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), got)
}
