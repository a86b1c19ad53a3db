package migrations

import (
	"fmt"
	"log"

	"shoptrack/internal/identity"
	"shoptrack/internal/oefeed"
	"shoptrack/internal/schema"
)

// requireLegacy reports whether a legacy source table is present and
// non-empty. Units consuming legacy data skip with a notice otherwise.
func requireLegacy(s *schema.Store, table string) (bool, error) {
	exists, err := s.TableExists(table)
	if err != nil {
		return false, err
	}
	if !exists {
		log.Printf("migrate: %s not present, skipping", table)
		return false, nil
	}
	var n int
	if err := s.Conn().QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n); err != nil {
		return false, fmt.Errorf("count %s: %w", table, err)
	}
	if n == 0 {
		log.Printf("migrate: %s is empty, skipping", table)
		return false, nil
	}
	return true, nil
}

func extractCustomersUp(s *schema.Store) error {
	ok, err := requireLegacy(s, "legacy_jobs")
	if err != nil || !ok {
		return err
	}
	return identity.New(s.Conn()).ExtractCustomers()
}

func extractCustomersDown(s *schema.Store) error {
	for _, stmt := range []string{"DELETE FROM contacts", "DELETE FROM customers"} {
		if _, err := s.Conn().Exec(stmt); err != nil {
			return fmt.Errorf("reverse customer extraction: %w", err)
		}
	}
	return nil
}

func buildOrdersUp(s *schema.Store) error {
	ok, err := requireLegacy(s, "legacy_jobs")
	if err != nil || !ok {
		return err
	}
	return identity.New(s.Conn()).BuildOrders()
}

func buildOrdersDown(s *schema.Store) error {
	for _, stmt := range []string{
		"DELETE FROM order_items",
		"DELETE FROM jobs",
		"DELETE FROM purchase_orders",
	} {
		if _, err := s.Conn().Exec(stmt); err != nil {
			return fmt.Errorf("reverse order build: %w", err)
		}
	}
	return nil
}

func uniqueKeysUp(s *schema.Store) error {
	ok, err := requireLegacy(s, "legacy_jobs")
	if err != nil || !ok {
		return err
	}
	if err := s.AddColumn("legacy_jobs", "unique_key", "TEXT"); err != nil {
		return err
	}
	return identity.New(s.Conn()).BackfillUniqueKeys()
}

func uniqueKeysDown(s *schema.Store) error {
	exists, err := s.TableExists("legacy_jobs")
	if err != nil {
		return err
	}
	if exists {
		if err := s.DropColumn("legacy_jobs", "unique_key"); err != nil {
			return err
		}
	}
	_, err = s.Conn().Exec("UPDATE assembly_details SET unique_key=NULL")
	return err
}

func rewriteLegacyNPOUp(s *schema.Store) error {
	return identity.New(s.Conn()).RewriteLegacySyntheticPOs()
}

func poActivityUp(cfg Config) func(*schema.Store) error {
	return func(s *schema.Store) error {
		if cfg.OEFeedPath == "" {
			log.Printf("migrate: no oe feed configured, po activity flags unchanged")
			return nil
		}
		valid, err := oefeed.Read(cfg.OEFeedPath)
		if err != nil {
			return err
		}
		return identity.New(s.Conn()).MarkInactivePOs(valid)
	}
}

func poActivityDown(s *schema.Store) error {
	_, err := s.Conn().Exec("UPDATE purchase_orders SET is_active=1, closed_at=NULL")
	if err != nil {
		return fmt.Errorf("reset po activity: %w", err)
	}
	return nil
}
