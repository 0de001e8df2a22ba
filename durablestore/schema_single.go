package durablestore

import (
	"context"
	"fmt"
)

const (
	singleDocsStore = "docs"
	singleMetaStore = "meta"
	inventoryID     = "inventory"
)

// SingleTableSchema implements the default single-table-per-type layout:
// all collections share the "docs" store keyed by "collection/id"; the
// inventory lives as one record with id "inventory" in the "meta" store.
type SingleTableSchema struct {
	backend Backend
	codec   *Codec
}

// NewSingleTableSchema wraps backend with the single-table layout.
func NewSingleTableSchema(backend Backend, codec *Codec) *SingleTableSchema {
	return &SingleTableSchema{backend: backend, codec: codec}
}

func (s *SingleTableSchema) InitializeSchema(ctx context.Context) error {
	_, err := s.backend.Initialize(ctx)
	return err
}

func (s *SingleTableSchema) ReadInventory(ctx context.Context) (*Inventory, error) {
	raw, err := s.backend.ReadRecord(ctx, singleMetaStore, inventoryID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	if raw == nil {
		return NewInventory(), nil
	}
	inv := NewInventory()
	if err := s.codec.Decode(raw, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *SingleTableSchema) WriteRecords(ctx context.Context, inv *Inventory, docs []DocumentRecord) error {
	metaPayload, err := s.codec.Encode(inv)
	if err != nil {
		return err
	}
	docRecords := make([]Record, 0, len(docs))
	for _, d := range docs {
		payload, err := s.codec.Encode(d)
		if err != nil {
			return err
		}
		docRecords = append(docRecords, Record{ID: d.Key(), Payload: payload})
	}
	return s.backend.WriteRecords(ctx, WriteSet{
		MetaStore: singleMetaStore,
		Meta:      []Record{{ID: inventoryID, Payload: metaPayload}},
		DocsStore: singleDocsStore,
		Docs:      docRecords,
	})
}

func (s *SingleTableSchema) ReadRecord(ctx context.Context, collection, id string) (*DocumentRecord, error) {
	raw, err := s.backend.ReadRecord(ctx, singleDocsStore, collection+"/"+id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	if raw == nil {
		return nil, nil
	}
	var rec DocumentRecord
	if err := s.codec.Decode(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SingleTableSchema) ReadRecordsBulk(ctx context.Context, collection string, ids []string) ([]DocumentRecord, error) {
	keys := make([]string, len(ids))
	keyToID := make(map[string]string, len(ids))
	for i, id := range ids {
		key := collection + "/" + id
		keys[i] = key
		keyToID[key] = id
	}
	raws, err := s.backend.ReadRecordsBulk(ctx, singleDocsStore, keys)
	if err == ErrNotImplemented {
		out := make([]DocumentRecord, 0, len(ids))
		for _, id := range ids {
			rec, err := s.ReadRecord(ctx, collection, id)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				out = append(out, *rec)
			}
		}
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	out := make([]DocumentRecord, 0, len(raws))
	for _, r := range raws {
		var rec DocumentRecord
		if err := s.codec.Decode(r.Payload, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SingleTableSchema) ReadAllRecords(ctx context.Context, collection string) ([]DocumentRecord, error) {
	all, err := s.backend.ReadAllRecords(ctx, singleDocsStore)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	prefix := collection + "/"
	var out []DocumentRecord
	for _, r := range all {
		if len(r.ID) <= len(prefix) || r.ID[:len(prefix)] != prefix {
			continue
		}
		var rec DocumentRecord
		if err := s.codec.Decode(r.Payload, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SingleTableSchema) DeleteRecord(ctx context.Context, collection, id string) error {
	if err := s.backend.DeleteRecord(ctx, singleDocsStore, collection+"/"+id); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (s *SingleTableSchema) GetInventoryType() string { return "json" }

func (s *SingleTableSchema) DeleteDatabase(ctx context.Context) error {
	if err := s.backend.ClearAll(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (s *SingleTableSchema) Close() error { return s.backend.Close() }
