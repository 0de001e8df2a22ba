package durablestore

import "go.uber.org/zap"

// StoreOptions configures a Store (spec §6, "Coordinator construction
// inputs").
type StoreOptions struct {
	// Strategy is the schema strategy (single-table or collection-per-
	// table) the Store writes through. Required.
	Strategy SchemaStrategy

	// MaxBatchSize bounds how many queued items a single drain commits
	// together. Defaults to 10.
	MaxBatchSize int

	// ExternalVersionDecoder, when set, replaces a record's native
	// Version for inventory comparisons.
	ExternalVersionDecoder func(data any) any

	// OpErrorCallback receives OT conflicts surfaced during replay of a
	// restored op. Defaults to a no-op.
	OpErrorCallback func(error)

	// ConnID is substituted into an inflight op's Src when a doc is
	// persisted with an empty Src, so the op reattaches to this session on
	// restore. When empty, NewStore generates a random UUID.
	ConnID string

	// Debug enables verbose lifecycle logging.
	Debug bool

	// Logger receives lifecycle and error events. When nil and Debug is
	// set, a zap.NewDevelopment() logger is created.
	Logger *zap.Logger

	// TypeRegistry resolves a persisted typeName back to an OpType during
	// restore.
	TypeRegistry TypeRegistry
}

// DefaultStoreOptions returns a StoreOptions with every optional field at
// its spec-mandated default. Strategy must still be set by the caller.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		MaxBatchSize:    10,
		OpErrorCallback: func(error) {},
	}
}
