package durablestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerBackend is a second on-disk Backend implementation, backed by
// Badger. Badger has a single flat keyspace, so logical stores are
// distinguished by a "<store>/<id>" key prefix.
type BadgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend opens (creating if absent) a Badger database at path.
func NewBadgerBackend(path string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("durablestore: open badger db: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func badgerKey(storeName, id string) []byte {
	return []byte(storeName + "/" + id)
}

func (b *BadgerBackend) Initialize(ctx context.Context) (*Inventory, error) {
	inv := NewInventory()
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey("meta", "inventory"))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, inv)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return inv, nil
}

func (b *BadgerBackend) WriteRecords(ctx context.Context, ws WriteSet) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, r := range ws.Meta {
			if err := txn.Set(badgerKey(ws.MetaStore, r.ID), r.Payload); err != nil {
				return err
			}
		}
		for _, r := range ws.Docs {
			if err := txn.Set(badgerKey(ws.DocsStore, r.ID), r.Payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (b *BadgerBackend) ReadRecord(ctx context.Context, storeName, id string) ([]byte, error) {
	var payload []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(storeName, id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			payload = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return payload, nil
}

func (b *BadgerBackend) ReadRecordsBulk(ctx context.Context, storeName string, ids []string) ([]Record, error) {
	return nil, ErrNotImplemented
}

func (b *BadgerBackend) ReadAllRecords(ctx context.Context, storeName string) ([]Record, error) {
	var out []Record
	prefix := []byte(storeName + "/")
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), storeName+"/")
			err := item.Value(func(val []byte) error {
				out = append(out, Record{ID: id, Payload: append([]byte(nil), val...)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return out, nil
}

func (b *BadgerBackend) DeleteRecord(ctx context.Context, storeName, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(storeName, id))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (b *BadgerBackend) ClearStore(ctx context.Context, storeName string) error {
	prefix := []byte(storeName + "/")
	err := b.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, bytes.Clone(it.Item().Key()))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (b *BadgerBackend) ClearAll(ctx context.Context) error {
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (b *BadgerBackend) IsReady() bool {
	return b.db != nil && !b.db.IsClosed()
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
