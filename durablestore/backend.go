package durablestore

import "context"

// Record is a single stored value: an id and its already-serialized
// payload. Backends never interpret the payload bytes.
type Record struct {
	ID      string
	Payload []byte
}

// WriteSet groups the records an atomic writeRecords call must commit
// together. MetaStore/DocsStore name the logical stores each slice belongs
// to (e.g. "meta"/"docs" for the single-table strategy, or a per-collection
// table name for the table strategy).
type WriteSet struct {
	MetaStore  string
	Meta       []Record
	DocsStore  string
	Docs       []Record
}

// Backend is the pluggable storage contract (spec §4.1). A coordinator is
// polymorphic over this capability set; ReadRecordsBulk is optional — when
// a backend returns ErrNotImplemented, callers fall back to ReadRecord per
// id.
type Backend interface {
	// Initialize opens or creates the store and returns the persisted
	// inventory (empty on first run). Must be idempotent after success.
	Initialize(ctx context.Context) (*Inventory, error)

	// WriteRecords commits ws atomically: either every record in every
	// store it names becomes visible, or none do.
	WriteRecords(ctx context.Context, ws WriteSet) error

	// ReadRecord returns the payload for id in storeName, or (nil, nil)
	// if absent.
	ReadRecord(ctx context.Context, storeName, id string) ([]byte, error)

	// ReadRecordsBulk returns the records present in storeName for the
	// given ids; missing ids are omitted. Returns ErrNotImplemented if the
	// backend has no bulk path.
	ReadRecordsBulk(ctx context.Context, storeName string, ids []string) ([]Record, error)

	// ReadAllRecords returns every record in storeName.
	ReadAllRecords(ctx context.Context, storeName string) ([]Record, error)

	// DeleteRecord removes id from storeName, if present.
	DeleteRecord(ctx context.Context, storeName, id string) error

	// ClearStore removes every record in storeName.
	ClearStore(ctx context.Context, storeName string) error

	// ClearAll removes every record in every store and leaves an empty
	// inventory in place.
	ClearAll(ctx context.Context) error

	// IsReady reports whether the backend can serve requests.
	// MemoryBackend reports true only between Initialize and Close.
	// BoltBackend and RedisBackend report true whenever they hold a
	// handle, including before Initialize and after Close; BadgerBackend
	// reports true while its database is open. None of the three tracks
	// whether Initialize has run.
	IsReady() bool

	// Close releases any resources the backend holds.
	Close() error
}

// ErrNotImplemented is returned by ReadRecordsBulk implementations that
// have no bulk read path.
var ErrNotImplemented = errNotImplemented{}

type errNotImplemented struct{}

func (errNotImplemented) Error() string { return "durablestore: not implemented" }
