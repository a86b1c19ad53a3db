package migrations

import (
	"shoptrack/internal/dates"
	"shoptrack/internal/schema"
)

// dateColumns are the free-text date columns converted to ISO-8601.
var dateColumns = []struct {
	table  string
	column string
}{
	{"legacy_jobs", "delivery_required_date"},
	{"legacy_jobs", "drawing_release_date"},
	{"order_items", "delivery_required_date"},
	{"order_items", "drawing_release_date"},
}

func normalizeDate(old *string) (*string, error) {
	if old == nil {
		return nil, nil
	}
	return dates.Normalize(*old), nil
}

func normalizeDatesUp(s *schema.Store) error {
	for _, dc := range dateColumns {
		exists, err := s.TableExists(dc.table)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		hasColumn, err := s.ColumnExists(dc.table, dc.column)
		if err != nil {
			return err
		}
		if !hasColumn {
			continue
		}
		if err := s.ConvertColumn(dc.table, dc.column, "TEXT", normalizeDate); err != nil {
			return err
		}
	}
	return nil
}

func normalizeDatesDown(s *schema.Store) error {
	for _, dc := range dateColumns {
		exists, err := s.TableExists(dc.table)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := s.RevertColumn(dc.table, dc.column); err != nil {
			return err
		}
	}
	return nil
}
