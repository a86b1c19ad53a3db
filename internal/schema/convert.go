package schema

import (
	"database/sql"
	"fmt"
)

// Transform recomputes one value during a column conversion. It receives
// the current value (nil for NULL) and returns the replacement (nil for
// NULL). It is applied in Go rather than SQL because SQLite cannot
// express the conversions this engine needs.
type Transform func(old *string) (*string, error)

func workingName(column string) string {
	return column + "_new"
}

func backupName(column string) string {
	return column + "_old"
}

// ConvertColumn re-types or reformats a column. SQLite cannot alter a
// column in place, so the conversion is staged:
//
//  1. add a working column with the new definition
//  2. recompute every row's value in Go and write it to the working column
//  3. rename the original column to a "_old" backup (kept, never dropped here)
//  4. rename the working column into the original name
//
// A backup column already in place means a previous run completed; the
// call is a no-op. A leftover working column without the backup means an
// interrupted run whose transaction should have rolled back, and is
// reported as ErrSchemaConflict.
func (s *Store) ConvertColumn(table, column, newDefinition string, fn Transform) error {
	backup := backupName(column)
	working := workingName(column)

	backupExists, err := s.ColumnExists(table, backup)
	if err != nil {
		return err
	}
	if backupExists {
		return nil
	}
	workingExists, err := s.ColumnExists(table, working)
	if err != nil {
		return err
	}
	if workingExists {
		return fmt.Errorf("convert %s.%s: %w: leftover working column %s", table, column, ErrSchemaConflict, working)
	}
	colExists, err := s.ColumnExists(table, column)
	if err != nil {
		return err
	}
	if !colExists {
		return fmt.Errorf("convert %s.%s: %w: column missing", table, column, ErrSchemaConflict)
	}

	if err := s.AddColumn(table, working, newDefinition); err != nil {
		return err
	}
	if err := s.recompute(table, column, working, fn); err != nil {
		return err
	}
	if err := s.RenameColumn(table, column, backup); err != nil {
		return err
	}
	if err := s.RenameColumn(table, working, column); err != nil {
		return err
	}
	return nil
}

// RevertColumn undoes ConvertColumn: the converted column is dropped and
// the backup restored under its original name. A missing backup column
// means there is nothing to revert.
func (s *Store) RevertColumn(table, column string) error {
	backup := backupName(column)
	backupExists, err := s.ColumnExists(table, backup)
	if err != nil {
		return err
	}
	if !backupExists {
		return nil
	}
	if err := s.DropColumn(table, column); err != nil {
		return err
	}
	if err := s.RenameColumn(table, backup, column); err != nil {
		return err
	}
	return nil
}

func (s *Store) recompute(table, from, to string, fn Transform) error {
	rows, err := s.conn.Query(fmt.Sprintf("SELECT rowid, %q FROM %q", from, table))
	if err != nil {
		return fmt.Errorf("read %s.%s: %w", table, from, err)
	}
	defer rows.Close()

	type update struct {
		rowid int64
		value *string
	}
	var updates []update
	for rows.Next() {
		var rowid int64
		var raw sql.NullString
		if err := rows.Scan(&rowid, &raw); err != nil {
			return err
		}
		var old *string
		if raw.Valid {
			old = &raw.String
		}
		next, err := fn(old)
		if err != nil {
			return fmt.Errorf("transform %s.%s rowid %d: %w", table, from, rowid, err)
		}
		updates = append(updates, update{rowid: rowid, value: next})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	stmt := fmt.Sprintf("UPDATE %q SET %q=? WHERE rowid=?", table, to)
	for _, u := range updates {
		var arg interface{}
		if u.value != nil {
			arg = *u.value
		}
		if _, err := s.conn.Exec(stmt, arg, u.rowid); err != nil {
			return fmt.Errorf("write %s.%s rowid %d: %w", table, to, u.rowid, err)
		}
	}
	return nil
}
