package durablestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDoc is a minimal DocObserver used to exercise RestoreDocFromDurableRecord
// without depending on a real live-document implementation.
type fakeDoc struct {
	collection, id string

	version        any
	data           any
	typeName       string
	preventCompose bool
	submitSource   bool
	pendingOps     []OpRecord
	opErrorCB      func(error)
	restored       bool
}

func (d *fakeDoc) Collection() string { return d.collection }
func (d *fakeDoc) ID() string         { return d.id }

func (d *fakeDoc) SetVersion(v any)             { d.version = v }
func (d *fakeDoc) SetPreventCompose(v bool)     { d.preventCompose = v }
func (d *fakeDoc) SetSubmitSource(v bool)       { d.submitSource = v }
func (d *fakeDoc) SetPendingOps(ops []OpRecord) { d.pendingOps = ops }
func (d *fakeDoc) SetData(data any)             { d.data = data }
func (d *fakeDoc) SetType(typeName string, registry TypeRegistry) {
	d.typeName = typeName
}
func (d *fakeDoc) SetOpErrorCallback(cb func(error)) { d.opErrorCB = cb }
func (d *fakeDoc) EmitRestore()                      { d.restored = true }

func newTestStore(t *testing.T, opts func(*StoreOptions)) *Store {
	t.Helper()
	ctx := context.Background()
	o := DefaultStoreOptions()
	o.Strategy = NewSingleTableSchema(NewMemoryBackend(), NewCodec())
	if opts != nil {
		opts(&o)
	}
	store, err := NewStore(ctx, o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func putDocSync(t *testing.T, store *Store, rec DocumentRecord) error {
	t.Helper()
	done := make(chan error, 1)
	store.PutDoc(rec, func(err error) { done <- err })
	return <-done
}

// S1 — happy-path create.
func TestStore_S1_HappyPathCreate(t *testing.T) {
	var beforeCount, persistCount int
	store := newTestStore(t, nil)
	store.OnBeforePersist(func(docs []DocumentRecord) { beforeCount++; assert.Len(t, docs, 1) })
	store.OnPersist(func(docs []DocumentRecord) { persistCount++; assert.Len(t, docs, 1) })

	err := putDocSync(t, store, DocumentRecord{
		Collection: "books", ID: "b1", TypeName: "json0",
		Data: map[string]any{"title": "Dune"}, Version: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, beforeCount)
	assert.Equal(t, 1, persistCount)

	inv := store.ReadInventory()
	entry, ok := inv.Get("books", "b1")
	require.True(t, ok)
	assert.EqualValues(t, 1, entry.V)
	assert.False(t, entry.P)

	rec, err := store.GetDoc(context.Background(), "books", "b1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.EqualValues(t, 1, rec.Version)
	assert.Equal(t, map[string]any{"title": "Dune"}, rec.Data)
}

// S2 — two ops with composition prevented: persist on inflight, then ack.
func TestStore_S2_InflightThenAck(t *testing.T) {
	store := newTestStore(t, nil)

	opA := OpRecord{Op: "opA", Src: "", Seq: 1, V: 2}
	err := putDocSync(t, store, DocumentRecord{
		Collection: "books", ID: "b1", Version: 2,
		InflightOp: &opA, PendingOps: []OpRecord{{Op: "opB", Seq: 2, V: 3}},
	})
	require.NoError(t, err)

	entry, ok := store.ReadInventory().Get("books", "b1")
	require.True(t, ok)
	assert.True(t, entry.P)

	rec, err := store.GetDoc(context.Background(), "books", "b1")
	require.NoError(t, err)
	require.NotNil(t, rec.InflightOp)
	assert.NotEmpty(t, rec.InflightOp.Src, "inflight op src must be substituted with the connection id")

	err = putDocSync(t, store, DocumentRecord{
		Collection: "books", ID: "b1", Version: 3,
		InflightOp: nil, PendingOps: nil,
	})
	require.NoError(t, err)

	entry, ok = store.ReadInventory().Get("books", "b1")
	require.True(t, ok)
	assert.False(t, entry.P)
	assert.EqualValues(t, 3, entry.V)
}

// S3 — version regression rejected, later equal/advancing writes succeed.
func TestStore_S3_VersionRegressionRejected(t *testing.T) {
	store := newTestStore(t, nil)

	require.NoError(t, putDocSync(t, store, DocumentRecord{Collection: "books", ID: "b1", Version: 3}))

	err := putDocSync(t, store, DocumentRecord{Collection: "books", ID: "b1", Version: 2})
	assert.Error(t, err)
	entry, _ := store.ReadInventory().Get("books", "b1")
	assert.EqualValues(t, 3, entry.V)

	require.NoError(t, putDocSync(t, store, DocumentRecord{Collection: "books", ID: "b1", Version: 3}))
	require.NoError(t, putDocSync(t, store, DocumentRecord{Collection: "books", ID: "b1", Version: 4}))
}

// S4 — auto-flush off, then bulk write via individual puts + flush.
func TestStore_S4_AutoFlushOffThenFlush(t *testing.T) {
	var persistCount int
	store := newTestStore(t, nil)
	store.OnPersist(func([]DocumentRecord) { persistCount++ })

	store.SetAutoFlush(false)
	for i := 0; i < 5; i++ {
		store.PutDoc(DocumentRecord{Collection: "books", ID: string(rune('a' + i)), Version: 1}, func(error) {})
	}

	assert.Equal(t, 5, store.GetWriteQueueSize())
	assert.True(t, store.HasPendingWrites())
	assert.Equal(t, 0, persistCount)

	done := make(chan error, 1)
	store.Flush(func(err error) { done <- err })
	require.NoError(t, <-done)

	assert.Equal(t, 1, persistCount)
	assert.Equal(t, 0, store.GetWriteQueueSize())

	store.SetAutoFlush(true)
	assert.True(t, store.IsAutoFlush())
}

// S5 — encryption round-trip.
func TestStore_S5_EncryptionRoundTrip(t *testing.T) {
	backend := NewMemoryBackend()
	store := newTestStore(t, func(o *StoreOptions) {
		o.Strategy = NewSingleTableSchema(backend, &Codec{Encryptor: base64Encryptor{}})
	})

	require.NoError(t, putDocSync(t, store, DocumentRecord{
		Collection: "books", ID: "b1", Data: map[string]any{"title": "Dune"},
	}))

	raw, err := backend.ReadRecord(context.Background(), "docs", "books/b1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "encrypted_payload")
	assert.NotContains(t, string(raw), "Dune")

	rec, err := store.GetDoc(context.Background(), "books", "b1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Dune"}, rec.Data)
}

// S6 — restore after restart: a fresh Store over the same backend recovers
// pending ops, with any persisted inflight op prepended to pendingOps.
func TestStore_S6_RestoreAfterRestart(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	store1 := newTestStore(t, func(o *StoreOptions) {
		o.Strategy = NewSingleTableSchema(backend, NewCodec())
		o.ConnID = "conn-1"
	})
	opA := OpRecord{Op: "opA", Seq: 1, V: 2}
	require.NoError(t, putDocSync(t, store1, DocumentRecord{
		Collection: "books", ID: "b1", Version: 2, Data: map[string]any{"title": "Dune"},
		InflightOp: &opA,
	}))
	require.NoError(t, store1.Close())

	store2, err := NewStore(ctx, StoreOptions{
		Strategy:        NewSingleTableSchema(backend, NewCodec()),
		MaxBatchSize:    10,
		OpErrorCallback: func(error) {},
	})
	require.NoError(t, err)
	defer store2.Close()

	doc := &fakeDoc{collection: "books", id: "b1"}
	require.NoError(t, store2.RestoreDocFromDurableRecord(ctx, doc))

	assert.True(t, doc.restored)
	assert.Len(t, doc.pendingOps, 1)
	assert.Equal(t, "opA", doc.pendingOps[0].Op)
	assert.EqualValues(t, 2, doc.version)
	assert.Equal(t, map[string]any{"title": "Dune"}, doc.data)
	assert.NotNil(t, doc.opErrorCB)
}

func TestStore_RestoreMissingRecordIsNotAnError(t *testing.T) {
	store := newTestStore(t, nil)
	doc := &fakeDoc{collection: "books", id: "missing"}
	err := store.RestoreDocFromDurableRecord(context.Background(), doc)
	require.NoError(t, err)
	assert.False(t, doc.restored)
}

func TestStore_IsDocInInventory(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, putDocSync(t, store, DocumentRecord{Collection: "books", ID: "b1", Version: 5}))

	assert.True(t, store.IsDocInInventory("books", "b1", nil))
	assert.True(t, store.IsDocInInventory("books", "b1", 5))
	assert.True(t, store.IsDocInInventory("books", "b1", 3))
	assert.False(t, store.IsDocInInventory("books", "b1", 6))
	assert.False(t, store.IsDocInInventory("books", "missing", nil))
}

func TestStore_HasPendingDocsAndForEach(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, putDocSync(t, store, DocumentRecord{Collection: "books", ID: "b1", Version: 1}))
	assert.False(t, store.HasPendingDocs())

	op := OpRecord{Op: "x", Seq: 1, V: 2}
	require.NoError(t, putDocSync(t, store, DocumentRecord{Collection: "books", ID: "b2", Version: 2, InflightOp: &op}))
	assert.True(t, store.HasPendingDocs())

	var visited []string
	store.ForEachPendingDocCollectionId(func(collection, id string) {
		visited = append(visited, collection+"/"+id)
	})
	assert.Equal(t, []string{"books/b2"}, visited)
}

func TestStore_PutDocsBulk(t *testing.T) {
	var persistCount int
	store := newTestStore(t, nil)
	store.OnPersist(func([]DocumentRecord) { persistCount++ })

	done := make(chan error, 1)
	store.PutDocsBulk([]DocumentRecord{
		{Collection: "books", ID: "b1", Version: 1},
		{Collection: "books", ID: "b2", Version: 1},
	}, func(err error) { done <- err })
	require.NoError(t, <-done)

	assert.Equal(t, 1, persistCount)
	rec, err := store.GetDoc(context.Background(), "books", "b2")
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestStore_DeleteDatabase(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, putDocSync(t, store, DocumentRecord{Collection: "books", ID: "b1", Version: 1}))

	require.NoError(t, store.DeleteDatabase(context.Background()))

	assert.False(t, store.HasPendingDocs())
	assert.Empty(t, store.ReadInventory().Collections)
}

func TestStore_NewStoreWithoutStrategyReturnsMissingStorage(t *testing.T) {
	_, err := NewStore(context.Background(), StoreOptions{})
	assert.ErrorIs(t, err, ErrMissingStorage)
}

func TestStore_GetDocsBulkOmitsMissingIds(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, putDocSync(t, store, DocumentRecord{Collection: "books", ID: "b1", Version: 1}))
	require.NoError(t, putDocSync(t, store, DocumentRecord{Collection: "books", ID: "b2", Version: 1}))

	recs, err := store.GetDocsBulk(context.Background(), "books", []string{"b1", "missing", "b2"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
