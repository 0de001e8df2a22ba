package durablestore

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// BoltBackend is the on-disk Backend implementation backed by bbolt. Each
// logical store name becomes its own bucket, created lazily on first use
// inside the same transaction that writes to it.
type BoltBackend struct {
	db *bolt.DB
}

// NewBoltBackend opens (creating if absent) a bbolt database at path.
func NewBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("durablestore: open bolt db: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

var boltMetaBucket = []byte("meta")

func (b *BoltBackend) Initialize(ctx context.Context) (*Inventory, error) {
	inv := NewInventory()
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(boltMetaBucket)
		if err != nil {
			return err
		}
		raw := bkt.Get([]byte("inventory"))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, inv)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return inv, nil
}

// WriteRecords commits every meta and doc record in ws inside a single
// bbolt read-write transaction, giving atomicity across both stores.
func (b *BoltBackend) WriteRecords(ctx context.Context, ws WriteSet) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if ws.MetaStore != "" && len(ws.Meta) > 0 {
			bkt, err := tx.CreateBucketIfNotExists([]byte(ws.MetaStore))
			if err != nil {
				return err
			}
			for _, r := range ws.Meta {
				if err := bkt.Put([]byte(r.ID), r.Payload); err != nil {
					return err
				}
			}
		}
		if ws.DocsStore != "" && len(ws.Docs) > 0 {
			bkt, err := tx.CreateBucketIfNotExists([]byte(ws.DocsStore))
			if err != nil {
				return err
			}
			for _, r := range ws.Docs {
				if err := bkt.Put([]byte(r.ID), r.Payload); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (b *BoltBackend) ReadRecord(ctx context.Context, storeName, id string) ([]byte, error) {
	var payload []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(storeName))
		if bkt == nil {
			return nil
		}
		if v := bkt.Get([]byte(id)); v != nil {
			payload = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return payload, nil
}

// ReadRecordsBulk is not implemented natively; callers fall back to
// ReadRecord per id.
func (b *BoltBackend) ReadRecordsBulk(ctx context.Context, storeName string, ids []string) ([]Record, error) {
	return nil, ErrNotImplemented
}

func (b *BoltBackend) ReadAllRecords(ctx context.Context, storeName string) ([]Record, error) {
	var out []Record
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(storeName))
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(k, v []byte) error {
			out = append(out, Record{ID: string(k), Payload: append([]byte(nil), v...)})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return out, nil
}

func (b *BoltBackend) DeleteRecord(ctx context.Context, storeName, id string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(storeName))
		if bkt == nil {
			return nil
		}
		return bkt.Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (b *BoltBackend) ClearStore(ctx context.Context, storeName string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(storeName)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(storeName))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (b *BoltBackend) ClearAll(ctx context.Context) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		var names [][]byte
		if err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, append([]byte(nil), name...))
			return nil
		}); err != nil {
			return err
		}
		for _, name := range names {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucketIfNotExists(boltMetaBucket)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (b *BoltBackend) IsReady() bool {
	return b.db != nil
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
