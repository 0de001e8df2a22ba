package durablestore

import "context"

// InventoryOp names the mutation applied to one inventory entry inside
// UpdateInventoryItem.
type InventoryOp int

const (
	InventoryAdd InventoryOp = iota
	InventoryUpdate
	InventoryRemove
)

// SchemaStrategy maps the logical (docs|meta, collection?, id) tuple to a
// physical layout (spec §4.2). The coordinator depends only on this
// interface and never branches on which concrete strategy is in play.
type SchemaStrategy interface {
	// InitializeSchema prepares whatever physical structures the strategy
	// needs (buckets, tables, ...).
	InitializeSchema(ctx context.Context) error

	// ReadInventory returns the current persisted inventory.
	ReadInventory(ctx context.Context) (*Inventory, error)

	// WriteRecords commits docs together with the inventory they imply,
	// atomically.
	WriteRecords(ctx context.Context, inv *Inventory, docs []DocumentRecord) error

	// ReadRecord returns the persisted DocumentRecord for (collection, id),
	// or nil if absent.
	ReadRecord(ctx context.Context, collection, id string) (*DocumentRecord, error)

	// ReadRecordsBulk returns the persisted records for the given ids in
	// collection; missing ids are omitted.
	ReadRecordsBulk(ctx context.Context, collection string, ids []string) ([]DocumentRecord, error)

	// ReadAllRecords returns every persisted record in collection.
	ReadAllRecords(ctx context.Context, collection string) ([]DocumentRecord, error)

	// DeleteRecord removes (collection, id)'s doc record from storage.
	// TableSchema also deletes its inventory row in the same transaction;
	// SingleTableSchema leaves the persisted inventory record unchanged.
	DeleteRecord(ctx context.Context, collection, id string) error

	// GetInventoryType reports "json" (single-table) or "table"
	// (collection-per-table).
	GetInventoryType() string

	// DeleteDatabase destroys every persisted record and leaves an empty
	// inventory in place.
	DeleteDatabase(ctx context.Context) error

	// Close releases any resources the strategy (or its backend) holds.
	Close() error
}
