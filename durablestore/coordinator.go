package durablestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the durable-store coordinator (spec §4.6): it orchestrates the
// schema strategy and write batcher, applies version-monotonicity and
// type-consistency checks, emits lifecycle events, and restores cached
// document state on request.
type Store struct {
	strategy        SchemaStrategy
	batcher         *docBatcher
	inv             *Inventory
	versionDecoder  func(data any) any
	opErrorCallback func(error)
	connID          string
	typeRegistry    TypeRegistry
	logger          *zap.Logger

	mu          sync.Mutex
	ready       bool
	onReady     []func()
	onBefore    []func([]DocumentRecord)
	onPersist   []func([]DocumentRecord)
	onNoPending []func()
	onErr       []func(error)
}

// NewStore constructs a Store against opts.Strategy, opens the backend,
// loads the inventory, and emits "ready" once.
func NewStore(ctx context.Context, opts StoreOptions) (*Store, error) {
	if opts.Strategy == nil {
		return nil, ErrMissingStorage
	}
	logger := opts.Logger
	if logger == nil {
		if opts.Debug {
			logger, _ = zap.NewDevelopment()
		} else {
			logger = zap.NewNop()
		}
	}
	connID := opts.ConnID
	if connID == "" {
		connID = uuid.NewString()
	}
	opErrorCallback := opts.OpErrorCallback
	if opErrorCallback == nil {
		opErrorCallback = func(error) {}
	}

	s := &Store{
		strategy:        opts.Strategy,
		versionDecoder:  opts.ExternalVersionDecoder,
		opErrorCallback: opErrorCallback,
		connID:          connID,
		typeRegistry:    opts.TypeRegistry,
		logger:          logger,
	}

	if err := s.strategy.InitializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	inv, err := s.strategy.ReadInventory(ctx)
	if err != nil {
		return nil, err
	}
	s.inv = inv

	s.batcher = newDocBatcher(s.strategy, s.inv, opts.MaxBatchSize, s.recordVersion, batcherEvents{
		beforePersist: func(docs []DocumentRecord) {
			s.mu.Lock()
			listeners := append([]func([]DocumentRecord){}, s.onBefore...)
			s.mu.Unlock()
			for _, l := range listeners {
				l(docs)
			}
		},
		persist: func(docs []DocumentRecord) {
			s.mu.Lock()
			listeners := append([]func([]DocumentRecord){}, s.onPersist...)
			s.mu.Unlock()
			for _, l := range listeners {
				l(docs)
			}
		},
		noPersistPending: func() {
			s.mu.Lock()
			listeners := append([]func(){}, s.onNoPending...)
			s.mu.Unlock()
			for _, l := range listeners {
				l()
			}
		},
		error: func(err error) {
			s.logger.Warn("durablestore: backend error", zap.Error(err))
			s.mu.Lock()
			listeners := append([]func(error){}, s.onErr...)
			s.mu.Unlock()
			for _, l := range listeners {
				l(err)
			}
		},
	})

	s.mu.Lock()
	s.ready = true
	listeners := append([]func(){}, s.onReady...)
	s.mu.Unlock()
	for _, l := range listeners {
		l()
	}
	s.logger.Debug("durablestore: ready")

	return s, nil
}

// recordVersion computes the inventory version for rec, using the
// configured ExternalVersionDecoder when set and rec.Data is present.
func (s *Store) recordVersion(rec DocumentRecord) any {
	if s.versionDecoder != nil && rec.Data != nil {
		return s.versionDecoder(rec.Data)
	}
	if s.versionDecoder != nil && rec.Data == nil {
		return nil
	}
	return rec.Version
}

// OnReady registers a listener fired once initialization completes. If
// initialization has already completed, it fires immediately.
func (s *Store) OnReady(fn func()) {
	s.mu.Lock()
	alreadyReady := s.ready
	if !alreadyReady {
		s.onReady = append(s.onReady, fn)
	}
	s.mu.Unlock()
	if alreadyReady {
		fn()
	}
}

func (s *Store) OnBeforePersist(fn func(docs []DocumentRecord)) {
	s.mu.Lock()
	s.onBefore = append(s.onBefore, fn)
	s.mu.Unlock()
}

func (s *Store) OnPersist(fn func(docs []DocumentRecord)) {
	s.mu.Lock()
	s.onPersist = append(s.onPersist, fn)
	s.mu.Unlock()
}

func (s *Store) OnNoPersistPending(fn func()) {
	s.mu.Lock()
	s.onNoPending = append(s.onNoPending, fn)
	s.mu.Unlock()
}

func (s *Store) OnError(fn func(error)) {
	s.mu.Lock()
	s.onErr = append(s.onErr, fn)
	s.mu.Unlock()
}

func (s *Store) isReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// prepareInflightSrc substitutes ConnID into rec's inflight op Src when it
// is empty, so the op reattaches to this session on restore (spec §3).
func (s *Store) prepareInflightSrc(rec *DocumentRecord) {
	if rec.InflightOp != nil && rec.InflightOp.Src == "" {
		rec.InflightOp.Src = s.connID
	}
}

// deepCopyRecord copies rec's PendingOps/InflightOp so the live doc object
// may keep mutating its own copies without aliasing into the record the
// batcher holds (spec §5).
func deepCopyRecord(rec DocumentRecord) DocumentRecord {
	out := rec
	out.PendingOps = append([]OpRecord(nil), rec.PendingOps...)
	if rec.InflightOp != nil {
		op := *rec.InflightOp
		out.InflightOp = &op
	}
	return out
}

// PutDoc copies doc (substituting the connection id into an empty inflight
// Src), enqueues the copy, and reports the result on cb per spec §4.5.
func (s *Store) PutDoc(doc DocumentRecord, cb func(error)) {
	if !s.isReady() {
		cb(ErrNotReady)
		return
	}
	rec := deepCopyRecord(doc)
	s.prepareInflightSrc(&rec)
	s.batcher.putDoc(rec, cb)
}

// PutDocsBulk enqueues every doc and flushes once, per spec §4.5
// putDocsBulk.
func (s *Store) PutDocsBulk(docs []DocumentRecord, cb func(error)) {
	if !s.isReady() {
		cb(ErrNotReady)
		return
	}
	recs := make([]DocumentRecord, len(docs))
	for i, d := range docs {
		rec := deepCopyRecord(d)
		s.prepareInflightSrc(&rec)
		recs[i] = rec
	}
	s.batcher.putDocsBulk(recs, cb)
}

// GetDoc returns the persisted DocumentRecord for (collection, id), or nil
// if absent.
func (s *Store) GetDoc(ctx context.Context, collection, id string) (*DocumentRecord, error) {
	if !s.isReady() {
		return nil, ErrNotReady
	}
	return s.strategy.ReadRecord(ctx, collection, id)
}

// GetDocsBulk returns the persisted records for the given ids in
// collection; missing ids are omitted.
func (s *Store) GetDocsBulk(ctx context.Context, collection string, ids []string) ([]DocumentRecord, error) {
	if !s.isReady() {
		return nil, ErrNotReady
	}
	return s.strategy.ReadRecordsBulk(ctx, collection, ids)
}

// RestoreDocFromDurableRecord loads the persisted record for doc's
// (collection, id) and repopulates doc from it, per spec §4.6. A missing
// record is not an error: the doc is left unchanged.
func (s *Store) RestoreDocFromDurableRecord(ctx context.Context, doc DocObserver) error {
	if !s.isReady() {
		return ErrNotReady
	}
	rec, err := s.strategy.ReadRecord(ctx, doc.Collection(), doc.ID())
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	doc.SetVersion(rec.Version)
	doc.SetData(rec.Data)
	doc.SetType(rec.TypeName, s.typeRegistry)
	doc.SetPreventCompose(rec.PreventCompose)
	doc.SetSubmitSource(rec.SubmitSource)

	pending := make([]OpRecord, 0, len(rec.PendingOps)+1)
	if rec.InflightOp != nil {
		pending = append(pending, *rec.InflightOp)
	}
	pending = append(pending, rec.PendingOps...)
	doc.SetOpErrorCallback(s.opErrorCallback)
	doc.SetPendingOps(pending)

	doc.EmitRestore()
	return nil
}

// IsDocInInventory tests membership, and optionally a version threshold,
// per spec §4.4.
func (s *Store) IsDocInInventory(collection, id string, minVersion any) bool {
	s.mu.Lock()
	entry, exists := s.inv.Get(collection, id)
	s.mu.Unlock()
	if !exists {
		return false
	}
	if minVersion == nil {
		return true
	}
	cmp, ok := compareVersions(entry.V, minVersion)
	return ok && cmp >= 0
}

// HasPendingDocs reports whether any inventory entry has pending work.
func (s *Store) HasPendingDocs() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byID := range s.inv.Collections {
		for _, entry := range byID {
			if entry.P {
				return true
			}
		}
	}
	return false
}

// ForEachPendingDocCollectionId visits every (collection, id) with pending
// work exactly once.
func (s *Store) ForEachPendingDocCollectionId(fn func(collection, id string)) {
	s.mu.Lock()
	type pair struct{ collection, id string }
	var pending []pair
	for collection, byID := range s.inv.Collections {
		for id, entry := range byID {
			if entry.P {
				pending = append(pending, pair{collection, id})
			}
		}
	}
	s.mu.Unlock()
	for _, p := range pending {
		fn(p.collection, p.id)
	}
}

// Flush delegates to the batcher's flush contract.
func (s *Store) Flush(cb func(error)) {
	s.batcher.flush(cb)
}

// SetAutoFlush delegates to the batcher.
func (s *Store) SetAutoFlush(v bool) {
	s.batcher.setAutoFlush(v)
}

// IsAutoFlush delegates to the batcher.
func (s *Store) IsAutoFlush() bool {
	return s.batcher.isAutoFlush()
}

// GetWriteQueueSize delegates to the batcher.
func (s *Store) GetWriteQueueSize() int {
	return s.batcher.queueSize()
}

// HasPendingWrites delegates to the batcher.
func (s *Store) HasPendingWrites() bool {
	return s.batcher.hasPendingWrites()
}

// ReadInventory returns a snapshot of the current in-memory inventory.
func (s *Store) ReadInventory() Inventory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Inventory{Collections: make(map[string]map[string]InventoryEntry, len(s.inv.Collections))}
	for collection, byID := range s.inv.Collections {
		copyByID := make(map[string]InventoryEntry, len(byID))
		for id, entry := range byID {
			copyByID[id] = entry
		}
		out.Collections[collection] = copyByID
	}
	return out
}

// DeleteDatabase forwards to the backend, destroying all state, and
// replaces the in-memory inventory with an empty one.
func (s *Store) DeleteDatabase(ctx context.Context) error {
	if err := s.strategy.DeleteDatabase(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.inv.Collections = make(map[string]map[string]InventoryEntry)
	s.mu.Unlock()
	return nil
}

// Close stops the batcher's drain loop and closes the underlying schema
// strategy (and its backend).
func (s *Store) Close() error {
	s.batcher.close()
	return s.strategy.Close()
}
