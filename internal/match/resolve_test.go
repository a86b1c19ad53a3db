package match_test

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"shoptrack/internal/match"
	"shoptrack/internal/testutil"
)

func setup(t *testing.T) *sql.DB {
	t.Helper()
	db := testutil.SetupTestDB(t)
	testutil.CreateLegacyTables(t, db)
	testutil.MigrateBase(t, db)
	return db
}

func indexFile(t *testing.T, db *sql.DB, name, path string) {
	t.Helper()
	if _, err := db.Exec(
		"INSERT INTO drawing_files (file_name, file_path, is_active) VALUES (?, ?, 1)", name, path); err != nil {
		t.Fatalf("index %s: %v", path, err)
	}
}

func TestResolvePrefersStoredLocation(t *testing.T) {
	db := setup(t)
	if _, err := db.Exec(
		"INSERT INTO detail_drawings (drawing_number, file_location) VALUES ('DRW-1', '/vault/known/DRW-1.pdf')"); err != nil {
		t.Fatalf("seed detail drawing: %v", err)
	}
	// A tempting fuzzy candidate that must lose to the stored location.
	indexFile(t, db, "DRW-1.pdf", "/vault/other/DRW-1.pdf")

	loc, err := match.New(db).Resolve("DRW-1", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc == nil || *loc != "/vault/known/DRW-1.pdf" {
		t.Errorf("Resolve = %v, want stored location", loc)
	}
}

func TestResolveFuzzyPersistsLocation(t *testing.T) {
	db := setup(t)
	if _, err := db.Exec(
		"INSERT INTO detail_drawings (drawing_number) VALUES ('DRW-2')"); err != nil {
		t.Fatalf("seed detail drawing: %v", err)
	}
	indexFile(t, db, "DRW-2_revB.pdf", "/vault/Acme/DRW-2_revB.pdf")

	m := match.New(db)
	loc, err := m.Resolve("DRW-2", "Acme")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc == nil || *loc != "/vault/Acme/DRW-2_revB.pdf" {
		t.Fatalf("Resolve = %v, want fuzzy hit", loc)
	}

	var stored sql.NullString
	db.QueryRow("SELECT file_location FROM detail_drawings WHERE drawing_number='DRW-2'").Scan(&stored)
	if !stored.Valid || stored.String != *loc {
		t.Errorf("persisted location = %v, want %s", stored, *loc)
	}
}

func TestResolveScopedMissDoesNotFallBack(t *testing.T) {
	db := setup(t)
	indexFile(t, db, "DRW-3.pdf", "/vault/Borealis/DRW-3.pdf")

	loc, err := match.New(db).Resolve("DRW-3", "Acme")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc != nil {
		t.Errorf("Resolve = %q, want nil for out-of-scope candidates", *loc)
	}
}

func TestResolveUsesAliasTable(t *testing.T) {
	db := setup(t)
	if err := match.SyncAliases(db, map[string]string{"acme fabrication": "AFAB"}); err != nil {
		t.Fatalf("SyncAliases: %v", err)
	}
	indexFile(t, db, "DRW-4.pdf", "/vault/AFAB/DRW-4.pdf")

	loc, err := match.New(db).Resolve("DRW-4", "Acme Fabrication")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc == nil || *loc != "/vault/AFAB/DRW-4.pdf" {
		t.Errorf("Resolve = %v, want alias-folder hit", loc)
	}
}

func TestLoadAliasFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	content := "aliases:\n" +
		"  - customer: Acme Fabrication\n" +
		"    folder: AFAB\n" +
		"  - customer: \"\"\n" +
		"    folder: IGNORED\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write alias file: %v", err)
	}

	aliases, err := match.LoadAliasFile(path)
	if err != nil {
		t.Fatalf("LoadAliasFile: %v", err)
	}
	if len(aliases) != 1 {
		t.Fatalf("aliases = %v, want one entry", aliases)
	}
	if aliases["acme fabrication"] != "AFAB" {
		t.Errorf("alias = %q, want AFAB under lower-cased key", aliases["acme fabrication"])
	}
}

func TestSyncAliasesUpserts(t *testing.T) {
	db := setup(t)
	if err := match.SyncAliases(db, map[string]string{"acme": "OLD"}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if err := match.SyncAliases(db, map[string]string{"acme": "NEW"}); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	aliases, err := match.Aliases(db)
	if err != nil {
		t.Fatalf("Aliases: %v", err)
	}
	if aliases["acme"] != "NEW" {
		t.Errorf("alias = %q, want NEW after upsert", aliases["acme"])
	}
}

func TestBackfillLocationsPicksOneCustomerDeterministically(t *testing.T) {
	db := setup(t)
	// Duplicated legacy rows trace the same job line to two customers.
	testutil.InsertLegacyJob(t, db, testutil.LegacyJob{
		JobNumber: "J-7", LineNumber: 1, PartNumber: "DRW-8", CustomerName: "Acme",
	})
	testutil.InsertLegacyJob(t, db, testutil.LegacyJob{
		JobNumber: "J-7", LineNumber: 1, PartNumber: "DRW-8", CustomerName: "Borealis",
	})
	if _, err := db.Exec("ALTER TABLE legacy_jobs ADD COLUMN unique_key TEXT"); err != nil {
		t.Fatalf("add unique_key: %v", err)
	}
	if _, err := db.Exec("UPDATE legacy_jobs SET unique_key = job_number || '|' || line_number"); err != nil {
		t.Fatalf("backfill unique_key: %v", err)
	}
	for _, name := range []string{"Acme", "Borealis"} {
		if _, err := db.Exec("INSERT INTO customers (name) VALUES (?)", name); err != nil {
			t.Fatalf("seed customer %s: %v", name, err)
		}
	}
	if _, err := db.Exec(
		"INSERT INTO assembly_details (drawing_number, part_number, unique_key) VALUES ('DRW-8', 'DRW-8', 'J-7|1')"); err != nil {
		t.Fatalf("seed assembly detail: %v", err)
	}
	if _, err := db.Exec("INSERT INTO detail_drawings (drawing_number) VALUES ('DRW-8')"); err != nil {
		t.Fatalf("seed detail drawing: %v", err)
	}
	indexFile(t, db, "DRW-8.pdf", "/vault/Acme/DRW-8.pdf")
	indexFile(t, db, "DRW-8.pdf", "/vault/Borealis/DRW-8.pdf")

	if err := match.New(db).BackfillLocations(); err != nil {
		t.Fatalf("BackfillLocations: %v", err)
	}

	// The greatest customer name scopes the match, every run.
	var stored sql.NullString
	db.QueryRow("SELECT file_location FROM detail_drawings WHERE drawing_number='DRW-8'").Scan(&stored)
	if !stored.Valid || stored.String != "/vault/Borealis/DRW-8.pdf" {
		t.Errorf("file_location = %v, want the Borealis-scoped path", stored)
	}
}

func TestBackfillLocations(t *testing.T) {
	db := setup(t)
	testutil.InsertLegacyJob(t, db, testutil.LegacyJob{
		JobNumber: "J-1", LineNumber: 1, PartNumber: "DRW-5", CustomerName: "Acme",
	})
	if _, err := db.Exec("ALTER TABLE legacy_jobs ADD COLUMN unique_key TEXT"); err != nil {
		t.Fatalf("add unique_key: %v", err)
	}
	if _, err := db.Exec("UPDATE legacy_jobs SET unique_key = job_number || '|' || line_number"); err != nil {
		t.Fatalf("backfill unique_key: %v", err)
	}
	if _, err := db.Exec("INSERT INTO customers (name) VALUES ('Acme')"); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	if _, err := db.Exec(
		"INSERT INTO assembly_details (drawing_number, part_number, unique_key) VALUES ('DRW-5', 'DRW-5', 'J-1|1')"); err != nil {
		t.Fatalf("seed assembly detail: %v", err)
	}
	if _, err := db.Exec("INSERT INTO detail_drawings (drawing_number) VALUES ('DRW-5')"); err != nil {
		t.Fatalf("seed detail drawing: %v", err)
	}
	// The in-scope file and a decoy under another customer.
	indexFile(t, db, "DRW-5.pdf", "/vault/Borealis/DRW-5.pdf")
	indexFile(t, db, "DRW-5.pdf", "/vault/Acme/DRW-5.pdf")

	if err := match.New(db).BackfillLocations(); err != nil {
		t.Fatalf("BackfillLocations: %v", err)
	}

	var stored sql.NullString
	db.QueryRow("SELECT file_location FROM detail_drawings WHERE drawing_number='DRW-5'").Scan(&stored)
	if !stored.Valid || stored.String != "/vault/Acme/DRW-5.pdf" {
		t.Errorf("file_location = %v, want customer-scoped path", stored)
	}
}
