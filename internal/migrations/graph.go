package migrations

import (
	"fmt"
	"log"

	"shoptrack/internal/bom"
	"shoptrack/internal/identity"
	"shoptrack/internal/schema"
)

func backfillAssembliesUp(s *schema.Store) error {
	jobsOK, err := requireLegacy(s, "legacy_jobs")
	if err != nil {
		return err
	}
	assembliesExist, err := s.TableExists("legacy_assemblies")
	if err != nil {
		return err
	}
	if !jobsOK || !assembliesExist {
		log.Printf("migrate: legacy sources incomplete, assembly backfill skipped")
		return nil
	}
	return bom.New(s.Conn()).BackfillMissingAssemblies()
}

func buildPartGraphUp(s *schema.Store) error {
	exists, err := s.TableExists("legacy_assemblies")
	if err != nil {
		return err
	}
	if !exists {
		log.Printf("migrate: legacy_assemblies not present, graph construction skipped")
		return nil
	}
	if err := bom.New(s.Conn()).BuildGraph(); err != nil {
		return err
	}
	// Graph construction creates assembly_details rows after the
	// unique-key pass already ran; key the new rows so the location
	// matcher can trace them to a customer.
	keyed, err := s.ColumnExists("legacy_jobs", "unique_key")
	if err != nil {
		return err
	}
	if !keyed {
		return nil
	}
	return identity.New(s.Conn()).BackfillUniqueKeys()
}

func buildPartGraphDown(s *schema.Store) error {
	for _, stmt := range []string{
		"DELETE FROM part_tree",
		"DELETE FROM assembly_details",
		"DELETE FROM detail_drawings",
		"UPDATE drawing_files SET part_id=NULL",
		"DELETE FROM parts",
	} {
		if _, err := s.Conn().Exec(stmt); err != nil {
			return fmt.Errorf("reverse graph build: %w", err)
		}
	}
	return nil
}

func reclassifyPartsUp(s *schema.Store) error {
	return bom.New(s.Conn()).ReclassifyParts()
}
