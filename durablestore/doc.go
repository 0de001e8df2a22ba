// Package durablestore implements an offline-first durable persistence
// layer for collaborative documents edited with operational transforms.
//
// A Store batches incoming document snapshots, maintains an in-memory
// inventory of every persisted (collection, id) pair and its version, and
// commits each batch to a pluggable storage backend in one atomic
// transaction. It does not implement the OT algorithms, the wire protocol,
// or the live document object — those are external collaborators reached
// through the narrow DocObserver and TypeRegistry interfaces.
package durablestore
