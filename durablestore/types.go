package durablestore

// OpRecord is the persisted shape of one operational-transform operation.
//
// Source is a flattened truthiness flag: the live op's original source
// reference is never persisted, only whether it had one.
type OpRecord struct {
	Op     any    `json:"op"`
	Src    string `json:"src"`
	Seq    int64  `json:"seq"`
	V      int64  `json:"v"`
	Source bool   `json:"source"`
}

// DocumentRecord is the persisted form of one document.
type DocumentRecord struct {
	Collection     string     `json:"collection"`
	ID             string     `json:"id"`
	TypeName       string     `json:"typeName,omitempty"`
	Version        any        `json:"version"`
	Data           any        `json:"data"`
	PendingOps     []OpRecord `json:"pendingOps"`
	InflightOp     *OpRecord  `json:"inflightOp"`
	PreventCompose bool       `json:"preventCompose"`
	SubmitSource   bool       `json:"submitSource"`
}

// Key returns the storage key this record is addressed by: "collection/id".
func (r *DocumentRecord) Key() string {
	return r.Collection + "/" + r.ID
}

// InventoryEntry is the inventory's per-document summary: its version (as
// recorded by the native version or an externalVersionDecoder) and whether
// it currently has an inflight or pending op.
type InventoryEntry struct {
	V any  `json:"v"`
	P bool `json:"p"`
}

// Inventory is the compact index of every persisted document: collection ->
// id -> InventoryEntry. It mirrors what a backend's meta store (or
// dedicated inventory table) holds on disk.
type Inventory struct {
	Collections map[string]map[string]InventoryEntry `json:"collections"`
}

// NewInventory returns an empty, ready-to-use Inventory.
func NewInventory() *Inventory {
	return &Inventory{Collections: make(map[string]map[string]InventoryEntry)}
}

// Get returns the entry for (collection, id) and whether it exists.
func (inv *Inventory) Get(collection, id string) (InventoryEntry, bool) {
	byID, ok := inv.Collections[collection]
	if !ok {
		return InventoryEntry{}, false
	}
	entry, ok := byID[id]
	return entry, ok
}

// Set records the entry for (collection, id), creating the collection map
// if this is its first entry.
func (inv *Inventory) Set(collection, id string, entry InventoryEntry) {
	byID, ok := inv.Collections[collection]
	if !ok {
		byID = make(map[string]InventoryEntry)
		inv.Collections[collection] = byID
	}
	byID[id] = entry
}

// Delete removes the entry for (collection, id), if present.
func (inv *Inventory) Delete(collection, id string) {
	if byID, ok := inv.Collections[collection]; ok {
		delete(byID, id)
	}
}
