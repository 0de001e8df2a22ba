package durablestore

import (
	"context"
	"sync"
	"time"
)

// queueItem is one pending persistence request (spec §4.5, QueueItem).
type queueItem struct {
	record     DocumentRecord
	enqueuedAt time.Time
	cb         func(error)
}

// batcherEvents are the lifecycle hooks the coordinator wires into its
// batcher so C5 never needs to know about C6's event fan-out.
type batcherEvents struct {
	beforePersist    func(docs []DocumentRecord)
	persist          func(docs []DocumentRecord)
	noPersistPending func()
	error            func(err error)
}

// docBatcher is the FIFO write-batching engine of spec §4.5. It owns the
// queue and the in-memory inventory, and runs its drain loop on a single
// background goroutine signalled over a buffered channel, so that
// putDoc/flush/setAutoFlush are ordinary mutex-guarded calls that never
// block on an in-flight drain.
type docBatcher struct {
	mu           sync.Mutex
	strategy     SchemaStrategy
	inv          *Inventory
	maxBatchSize int
	versionOf    func(rec DocumentRecord) any
	events       batcherEvents

	ready        bool
	busy         bool
	autoFlush    bool
	queue        []queueItem
	flushWaiters []func()

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

func newDocBatcher(strategy SchemaStrategy, inv *Inventory, maxBatchSize int, versionOf func(DocumentRecord) any, events batcherEvents) *docBatcher {
	if maxBatchSize <= 0 {
		maxBatchSize = 10
	}
	b := &docBatcher{
		strategy:     strategy,
		inv:          inv,
		maxBatchSize: maxBatchSize,
		versionOf:    versionOf,
		events:       events,
		autoFlush:    true,
		ready:        true,
		signal:       make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go b.loop(context.Background())
	return b
}

func (b *docBatcher) loop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		case <-b.signal:
			b.drainAll(ctx)
		}
	}
}

func (b *docBatcher) wake() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// putDoc enqueues record and, if auto-flush is on and the batcher is idle,
// wakes the drain loop.
func (b *docBatcher) putDoc(record DocumentRecord, cb func(error)) {
	b.mu.Lock()
	b.queue = append(b.queue, queueItem{record: record, enqueuedAt: time.Now(), cb: cb})
	shouldDrain := b.autoFlush && !b.busy && b.ready
	b.mu.Unlock()
	if shouldDrain {
		b.wake()
	}
}

// flush registers cb to fire once the queue next empties, kicking off a
// drain if one isn't already running. If the queue is already empty, cb
// fires immediately.
func (b *docBatcher) flush(cb func(error)) {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		cb(nil)
		return
	}
	b.flushWaiters = append(b.flushWaiters, func() { cb(nil) })
	shouldDrain := !b.busy
	b.mu.Unlock()
	if shouldDrain {
		b.wake()
	}
}

// setAutoFlush toggles draining. Re-enabling with pending items and not
// busy kicks off a drain.
func (b *docBatcher) setAutoFlush(v bool) {
	b.mu.Lock()
	b.autoFlush = v
	shouldDrain := v && !b.busy && len(b.queue) > 0
	b.mu.Unlock()
	if shouldDrain {
		b.wake()
	}
}

func (b *docBatcher) isAutoFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.autoFlush
}

func (b *docBatcher) queueSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *docBatcher) hasPendingWrites() bool {
	return b.queueSize() > 0
}

// putDocsBulk saves the current autoFlush, forces it false, enqueues every
// record, then flushes, restoring autoFlush before invoking cb.
func (b *docBatcher) putDocsBulk(records []DocumentRecord, cb func(error)) {
	b.mu.Lock()
	saved := b.autoFlush
	b.autoFlush = false
	b.mu.Unlock()

	if len(records) == 0 {
		b.mu.Lock()
		b.autoFlush = saved
		shouldDrain := saved && !b.busy && len(b.queue) > 0
		b.mu.Unlock()
		if shouldDrain {
			b.wake()
		}
		cb(nil)
		return
	}

	done := make(chan struct{})
	for _, r := range records {
		b.putDoc(r, func(error) {})
	}
	b.flush(func(err error) {
		b.mu.Lock()
		b.autoFlush = saved
		shouldDrain := saved && !b.busy && len(b.queue) > 0
		b.mu.Unlock()
		if shouldDrain {
			b.wake()
		}
		close(done)
		cb(err)
	})
	<-done
}

// popBatch splits the front of queue into a maximal prefix with no
// repeated keys, bounded by maxSize (spec I6).
func popBatch(queue []queueItem, maxSize int) (batch, rest []queueItem) {
	seen := make(map[string]bool, maxSize)
	i := 0
	for i < len(queue) && len(batch) < maxSize {
		key := queue[i].record.Key()
		if seen[key] {
			break
		}
		seen[key] = true
		batch = append(batch, queue[i])
		i++
	}
	return batch, queue[i:]
}

// drainAll commits successive batches until the queue is empty, or until
// auto-flush is off and no flush is waiting.
func (b *docBatcher) drainAll(ctx context.Context) {
	for {
		b.mu.Lock()
		if b.busy || (!b.autoFlush && len(b.flushWaiters) == 0) || len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		b.busy = true
		batch, rest := popBatch(b.queue, b.maxBatchSize)
		b.queue = rest
		b.mu.Unlock()

		b.drainOneBatch(ctx, batch)

		b.mu.Lock()
		b.busy = false
		empty := len(b.queue) == 0
		var waiters []func()
		if empty {
			waiters = b.flushWaiters
			b.flushWaiters = nil
		}
		b.mu.Unlock()

		if empty {
			if b.events.noPersistPending != nil {
				b.events.noPersistPending()
			}
			for _, w := range waiters {
				w()
			}
			return
		}
	}
}

// drainOneBatch runs the validate -> apply -> emit -> commit -> complete
// steps of spec §4.5 for one batch.
func (b *docBatcher) drainOneBatch(ctx context.Context, batch []queueItem) {
	type validItem struct {
		queueItem
		version any
		pending bool
	}

	var valid []validItem
	b.mu.Lock()
	for _, item := range batch {
		version := b.versionOf(item.record)
		entry, exists := b.inv.Get(item.record.Collection, item.record.ID)
		if exists {
			if !sameVersionType(entry.V, version) {
				err := &VersionTypeMismatchError{Collection: item.record.Collection, ID: item.record.ID, Stored: entry.V, Candidate: version}
				item.cb(err)
				continue
			}
			if cmp, ok := compareVersions(entry.V, version); ok && cmp > 0 {
				err := &VersionRegressionError{Collection: item.record.Collection, ID: item.record.ID, Stored: entry.V, Candidate: version}
				item.cb(err)
				continue
			}
		}
		pending := item.record.InflightOp != nil || len(item.record.PendingOps) > 0
		valid = append(valid, validItem{queueItem: item, version: version, pending: pending})
	}

	if len(valid) == 0 {
		b.mu.Unlock()
		return
	}

	// Snapshot the touched entries so a commit failure can roll the
	// in-memory apply back, preserving I5 (inventory never points at an
	// unpersisted record).
	type priorEntry struct {
		entry  InventoryEntry
		exists bool
	}
	priors := make(map[string]priorEntry, len(valid))
	docs := make([]DocumentRecord, 0, len(valid))
	for _, v := range valid {
		key := v.record.Collection + "/" + v.record.ID
		if _, seen := priors[key]; !seen {
			entry, exists := b.inv.Get(v.record.Collection, v.record.ID)
			priors[key] = priorEntry{entry: entry, exists: exists}
		}
		b.inv.Set(v.record.Collection, v.record.ID, InventoryEntry{V: v.version, P: v.pending})
		docs = append(docs, v.record)
	}
	invSnapshot := b.inv
	b.mu.Unlock()

	if b.events.beforePersist != nil {
		b.events.beforePersist(docs)
	}

	err := b.strategy.WriteRecords(ctx, invSnapshot, docs)

	if err != nil {
		b.mu.Lock()
		for _, v := range valid {
			key := v.record.Collection + "/" + v.record.ID
			p := priors[key]
			if p.exists {
				b.inv.Set(v.record.Collection, v.record.ID, p.entry)
			} else {
				b.inv.Delete(v.record.Collection, v.record.ID)
			}
		}
		b.mu.Unlock()

		if b.events.persist != nil {
			b.events.persist(docs)
		}
		if b.events.error != nil {
			b.events.error(err)
		}
		for _, v := range valid {
			v.cb(err)
		}
		return
	}

	if b.events.persist != nil {
		b.events.persist(docs)
	}
	for _, v := range valid {
		v.cb(nil)
	}
}

// close stops the drain goroutine. Later calls are no-ops.
func (b *docBatcher) close() {
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}
	<-b.done
}
