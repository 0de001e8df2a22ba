package durablestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerBackend_WriteReadRoundTripAndRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b1, err := NewBadgerBackend(dir)
	require.NoError(t, err)
	_, err = b1.Initialize(ctx)
	require.NoError(t, err)

	require.NoError(t, b1.WriteRecords(ctx, WriteSet{
		MetaStore: "meta",
		Meta:      []Record{{ID: "inventory", Payload: []byte(`{"collections":{"books":{"b1":{"v":1,"p":false}}}}`)}},
		DocsStore: "docs",
		Docs:      []Record{{ID: "books/b1", Payload: []byte(`{"payload":{"title":"Dune"}}`)}},
	}))
	require.NoError(t, b1.Close())

	b2, err := NewBadgerBackend(dir)
	require.NoError(t, err)
	defer b2.Close()
	inv, err := b2.Initialize(ctx)
	require.NoError(t, err)

	entry, ok := inv.Get("books", "b1")
	require.True(t, ok)
	assert.EqualValues(t, 1, entry.V)

	payload, err := b2.ReadRecord(ctx, "docs", "books/b1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"payload":{"title":"Dune"}}`, string(payload))
}

func TestBadgerBackend_ClearAllLeavesEmptyInventoryInPlace(t *testing.T) {
	ctx := context.Background()
	b, err := NewBadgerBackend(t.TempDir())
	require.NoError(t, err)
	defer b.Close()
	_, err = b.Initialize(ctx)
	require.NoError(t, err)
	require.NoError(t, b.WriteRecords(ctx, WriteSet{DocsStore: "docs", Docs: []Record{{ID: "books/b1", Payload: []byte("x")}}}))

	require.NoError(t, b.ClearAll(ctx))

	all, err := b.ReadAllRecords(ctx, "docs")
	require.NoError(t, err)
	assert.Empty(t, all)

	inv, err := b.Initialize(ctx)
	require.NoError(t, err)
	assert.Empty(t, inv.Collections)
}

func TestBadgerBackend_ReadAllRecordsRespectsStorePrefix(t *testing.T) {
	ctx := context.Background()
	b, err := NewBadgerBackend(t.TempDir())
	require.NoError(t, err)
	defer b.Close()
	_, err = b.Initialize(ctx)
	require.NoError(t, err)

	require.NoError(t, b.WriteRecords(ctx, WriteSet{
		MetaStore: "meta",
		Meta:      []Record{{ID: "inventory", Payload: []byte("m")}},
		DocsStore: "docs",
		Docs:      []Record{{ID: "books/b1", Payload: []byte("d")}},
	}))

	docs, err := b.ReadAllRecords(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "books/b1", docs[0].ID)
}
