package durablestore

import (
	"context"
	"database/sql"
	"fmt"
)

// IndexedField names a field extracted from a doc's Data tree into its own
// first-class column.
type IndexedField struct {
	Name string
	Path []string
}

// TableSchema implements the collection-per-table layout: one physical
// table per declared collection, with first-class columns for declared
// indexed fields, plus a dedicated inventory table. It talks to *sql.DB
// directly rather than through Backend, since it needs real SQL columns —
// mirroring why the teacher's AdvancedSQLAdapter does the same.
type TableSchema struct {
	db          *sql.DB
	codec       *Codec
	collections map[string][]IndexedField
}

// NewTableSchema prepares a collection-per-table strategy over db.
// collections maps each declared collection name to the indexed fields its
// table should carry as first-class columns.
func NewTableSchema(db *sql.DB, codec *Codec, collections map[string][]IndexedField) *TableSchema {
	return &TableSchema{db: db, codec: codec, collections: collections}
}

func (s *TableSchema) docsTable(collection string) string {
	return "docs_" + collection
}

func (s *TableSchema) InitializeSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS durablestore_inventory (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			version TEXT,
			pending BOOLEAN NOT NULL DEFAULT 0,
			PRIMARY KEY (collection, id)
		)`); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS durablestore_meta (
			id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		)`); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}

	for collection, fields := range s.collections {
		cols := "id TEXT PRIMARY KEY, data BLOB NOT NULL"
		for _, f := range fields {
			cols += fmt.Sprintf(", %s TEXT", f.Name)
		}
		query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.docsTable(collection), cols)
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendFailure, err)
		}
	}
	return tx.Commit()
}

func (s *TableSchema) ReadInventory(ctx context.Context) (*Inventory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT collection, id, version, pending FROM durablestore_inventory`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	defer rows.Close()

	inv := NewInventory()
	for rows.Next() {
		var collection, id string
		var version sql.NullString
		var pending bool
		if err := rows.Scan(&collection, &id, &version, &pending); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
		}
		var v any
		if version.Valid {
			v = version.String
		}
		inv.Set(collection, id, InventoryEntry{V: v, P: pending})
	}
	return inv, rows.Err()
}

// WriteRecords commits every doc record plus the inventory rows it implies
// in one SQL transaction.
func (s *TableSchema) WriteRecords(ctx context.Context, inv *Inventory, docs []DocumentRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	defer tx.Rollback()

	for _, d := range docs {
		payload, err := s.codec.Encode(d)
		if err != nil {
			return err
		}
		fields := s.collections[d.Collection]
		cols := []string{"id", "data"}
		vals := []any{d.ID, payload}
		placeholders := []string{"?", "?"}
		for _, f := range fields {
			cols = append(cols, f.Name)
			vals = append(vals, extractPath(d.Data, f.Path))
			placeholders = append(placeholders, "?")
		}
		query := fmt.Sprintf(
			"INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
			s.docsTable(d.Collection), join(cols, ","), join(placeholders, ","),
		)
		if _, err := tx.ExecContext(ctx, query, vals...); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendFailure, err)
		}

		entry, _ := inv.Get(d.Collection, d.ID)
		var version any
		if entry.V != nil {
			version = fmt.Sprintf("%v", entry.V)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO durablestore_inventory (collection, id, version, pending) VALUES (?, ?, ?, ?)`,
			d.Collection, d.ID, version, entry.P,
		); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendFailure, err)
		}
	}
	return tx.Commit()
}

func (s *TableSchema) ReadRecord(ctx context.Context, collection, id string) (*DocumentRecord, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE id = ?", s.docsTable(collection))
	row := s.db.QueryRowContext(ctx, query, id)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	var rec DocumentRecord
	if err := s.codec.Decode(payload, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *TableSchema) ReadRecordsBulk(ctx context.Context, collection string, ids []string) ([]DocumentRecord, error) {
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

func (s *TableSchema) ReadAllRecords(ctx context.Context, collection string) ([]DocumentRecord, error) {
	query := fmt.Sprintf("SELECT data FROM %s", s.docsTable(collection))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	defer rows.Close()

	var out []DocumentRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
		}
		var rec DocumentRecord
		if err := s.codec.Decode(payload, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *TableSchema) DeleteRecord(ctx context.Context, collection, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.docsTable(collection))
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM durablestore_inventory WHERE collection = ? AND id = ?`, collection, id,
	); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return tx.Commit()
}

func (s *TableSchema) GetInventoryType() string { return "table" }

// DeleteDatabase drops every declared collection table plus the inventory
// and meta tables, then recreates the (now empty) schema.
func (s *TableSchema) DeleteDatabase(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	defer tx.Rollback()

	for collection := range s.collections {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", s.docsTable(collection))); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendFailure, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS durablestore_inventory"); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS durablestore_meta"); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return s.InitializeSchema(ctx)
}

func (s *TableSchema) Close() error { return s.db.Close() }

func extractPath(data any, path []string) any {
	cur := data
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
