// Package schema performs DDL against SQLite, which cannot change a
// column's type or default in place. Every mutating operation is
// guarded by introspection so re-running it is safe.
package schema

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaConflict reports DDL that would violate an idempotence
// assumption, e.g. a leftover working column from an interrupted run.
var ErrSchemaConflict = errors.New("schema conflict")

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Migration units receive a Store bound to their own transaction.
type DBTX interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Store applies and inspects schema on a single connection or transaction.
type Store struct {
	conn DBTX
}

func New(conn DBTX) *Store {
	return &Store{conn: conn}
}

// Conn exposes the underlying connection for data statements.
func (s *Store) Conn() DBTX {
	return s.conn
}

// Column is one row of PRAGMA table_info.
type Column struct {
	CID     int
	Name    string
	Type    string
	NotNull bool
	Default *string
	PK      bool
}

// Index is one row of PRAGMA index_list.
type Index struct {
	Name   string
	Unique bool
}

// Tables lists user tables, excluding SQLite internals.
func (s *Store) Tables() ([]string, error) {
	rows, err := s.conn.Query(
		"SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// TableExists checks sqlite_master for a table.
func (s *Store) TableExists(table string) (bool, error) {
	var name string
	err := s.conn.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Columns lists the columns of a table via PRAGMA table_info.
func (s *Store) Columns(table string) ([]Column, error) {
	rows, err := s.conn.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&c.CID, &c.Name, &c.Type, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		c.NotNull = notNull != 0
		c.PK = pk != 0
		if dflt.Valid {
			c.Default = &dflt.String
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// ColumnExists checks a table for a column, case-insensitively the way
// SQLite itself treats identifiers.
func (s *Store) ColumnExists(table, column string) (bool, error) {
	cols, err := s.Columns(table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if strings.EqualFold(c.Name, column) {
			return true, nil
		}
	}
	return false, nil
}

// Indexes lists the named indexes of a table.
func (s *Store) Indexes(table string) ([]Index, error) {
	rows, err := s.conn.Query(fmt.Sprintf("PRAGMA index_list(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("index_list %s: %w", table, err)
	}
	defer rows.Close()

	var idxs []Index
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial int
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, err
		}
		idxs = append(idxs, Index{Name: name, Unique: unique != 0})
	}
	return idxs, rows.Err()
}

// IndexExists checks a table for an index by name.
func (s *Store) IndexExists(table, index string) (bool, error) {
	idxs, err := s.Indexes(table)
	if err != nil {
		return false, err
	}
	for _, ix := range idxs {
		if strings.EqualFold(ix.Name, index) {
			return true, nil
		}
	}
	return false, nil
}

// CreateTable runs a CREATE TABLE IF NOT EXISTS statement.
func (s *Store) CreateTable(ddl string) error {
	if _, err := s.conn.Exec(ddl); err != nil {
		return fmt.Errorf("create table: %w\nSQL: %s", err, ddl)
	}
	return nil
}

// AddColumn adds a column if it is not already present. definition is
// the full column definition, e.g. "priority INTEGER DEFAULT 0".
func (s *Store) AddColumn(table, column, definition string) error {
	exists, err := s.ColumnExists(table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %q ADD COLUMN %s %s", table, column, definition)
	if _, err := s.conn.Exec(stmt); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// RenameColumn renames a column; no-op when the target name already
// exists and the source is gone (a previous run finished the rename).
func (s *Store) RenameColumn(table, from, to string) error {
	fromExists, err := s.ColumnExists(table, from)
	if err != nil {
		return err
	}
	toExists, err := s.ColumnExists(table, to)
	if err != nil {
		return err
	}
	if !fromExists && toExists {
		return nil
	}
	if !fromExists {
		return fmt.Errorf("rename %s.%s: %w: source column missing", table, from, ErrSchemaConflict)
	}
	if toExists {
		return fmt.Errorf("rename %s.%s -> %s: %w: target column exists", table, from, to, ErrSchemaConflict)
	}
	stmt := fmt.Sprintf("ALTER TABLE %q RENAME COLUMN %q TO %q", table, from, to)
	if _, err := s.conn.Exec(stmt); err != nil {
		return fmt.Errorf("rename column %s.%s: %w", table, from, err)
	}
	return nil
}

// DropColumn drops a column if present.
func (s *Store) DropColumn(table, column string) error {
	exists, err := s.ColumnExists(table, column)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %q DROP COLUMN %q", table, column)
	if _, err := s.conn.Exec(stmt); err != nil {
		return fmt.Errorf("drop column %s.%s: %w", table, column, err)
	}
	return nil
}

// CreateIndex runs a CREATE INDEX IF NOT EXISTS statement.
func (s *Store) CreateIndex(ddl string) error {
	if _, err := s.conn.Exec(ddl); err != nil {
		return fmt.Errorf("create index: %w\nSQL: %s", err, ddl)
	}
	return nil
}
