package migrations

import (
	"fmt"
	"log"

	"shoptrack/internal/drawings"
	"shoptrack/internal/match"
	"shoptrack/internal/schema"
)

// matchDrawingsUp syncs the alias mapping, refreshes the drawing-file
// index and backfills detail drawing locations through the tiered
// matcher. Each input is optional; what is configured runs.
func matchDrawingsUp(cfg Config) func(*schema.Store) error {
	return func(s *schema.Store) error {
		if cfg.AliasFile != "" {
			aliases, err := match.LoadAliasFile(cfg.AliasFile)
			if err != nil {
				return err
			}
			if err := match.SyncAliases(s.Conn(), aliases); err != nil {
				return err
			}
		}
		if cfg.DrawingsDir != "" {
			if err := drawings.New(s.Conn()).Scan(cfg.DrawingsDir); err != nil {
				return err
			}
		}
		var indexed int
		if err := s.Conn().QueryRow("SELECT COUNT(*) FROM drawing_files WHERE is_active=1").Scan(&indexed); err != nil {
			return fmt.Errorf("count drawing index: %w", err)
		}
		if indexed == 0 {
			log.Printf("migrate: drawing index empty, location matching skipped")
			return nil
		}
		return match.New(s.Conn()).BackfillLocations()
	}
}

func matchDrawingsDown(s *schema.Store) error {
	for _, stmt := range []string{
		"UPDATE detail_drawings SET file_location=NULL",
		"DELETE FROM drawing_files",
		"DELETE FROM customer_folder_aliases",
	} {
		if _, err := s.Conn().Exec(stmt); err != nil {
			return fmt.Errorf("reverse drawing match: %w", err)
		}
	}
	return nil
}
