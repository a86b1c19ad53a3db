// Package testutil provides the shared in-memory database setup used
// across the engine's tests.
package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"shoptrack/internal/migrate"
	"shoptrack/internal/migrations"
)

// SetupTestDB opens an in-memory SQLite database with foreign keys
// enabled and closes it when the test finishes.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	// Every pooled connection to :memory: is its own database.
	testDB.SetMaxOpenConns(1)
	if _, err := testDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return testDB
}

// CreateLegacyTables creates empty legacy source tables in the shape
// the flat export arrives in.
func CreateLegacyTables(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS legacy_jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_number TEXT NOT NULL,
			line_number INTEGER NOT NULL,
			part_number TEXT DEFAULT '',
			description TEXT DEFAULT '',
			customer_name TEXT DEFAULT '',
			customer_contact TEXT DEFAULT '',
			contact_email TEXT DEFAULT '',
			po_number TEXT DEFAULT '',
			oe_number TEXT DEFAULT '',
			quantity INTEGER DEFAULT 1,
			status TEXT DEFAULT 'pending',
			delivery_required_date TEXT DEFAULT '',
			drawing_release_date TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS legacy_assemblies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			drawing_number TEXT NOT NULL,
			part_number TEXT NOT NULL,
			description TEXT DEFAULT '',
			quantity INTEGER DEFAULT 1,
			status TEXT DEFAULT 'pending',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	} {
		if _, err := db.Exec(ddl); err != nil {
			t.Fatalf("Failed to create legacy table: %v", err)
		}
	}
}

// LegacyJob is one flat legacy row for seeding tests.
type LegacyJob struct {
	JobNumber       string
	LineNumber      int
	PartNumber      string
	Description     string
	CustomerName    string
	CustomerContact string
	ContactEmail    string
	PONumber        string
	OENumber        string
	Quantity        int
	Status          string
	DeliveryDate    string
	ReleaseDate     string
}

// InsertLegacyJob inserts a flat row, defaulting quantity and status.
func InsertLegacyJob(t *testing.T, db *sql.DB, row LegacyJob) {
	t.Helper()
	if row.Quantity == 0 {
		row.Quantity = 1
	}
	if row.Status == "" {
		row.Status = "pending"
	}
	_, err := db.Exec(`INSERT INTO legacy_jobs
		(job_number, line_number, part_number, description, customer_name,
		 customer_contact, contact_email, po_number, oe_number, quantity,
		 status, delivery_required_date, drawing_release_date)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		row.JobNumber, row.LineNumber, row.PartNumber, row.Description,
		row.CustomerName, row.CustomerContact, row.ContactEmail, row.PONumber,
		row.OENumber, row.Quantity, row.Status, row.DeliveryDate, row.ReleaseDate)
	if err != nil {
		t.Fatalf("Failed to insert legacy job row: %v", err)
	}
}

// InsertLegacyAssembly inserts one assemblies source row.
func InsertLegacyAssembly(t *testing.T, db *sql.DB, drawing, part, description string, quantity int) {
	t.Helper()
	if quantity == 0 {
		quantity = 1
	}
	_, err := db.Exec(
		"INSERT INTO legacy_assemblies (drawing_number, part_number, description, quantity) VALUES (?,?,?,?)",
		drawing, part, description, quantity)
	if err != nil {
		t.Fatalf("Failed to insert legacy assembly row: %v", err)
	}
}

// MigrateAll runs the full migration set against db.
func MigrateAll(t *testing.T, db *sql.DB, cfg migrations.Config) {
	t.Helper()
	runner, err := migrate.NewRunner(db, migrations.Units(cfg))
	if err != nil {
		t.Fatalf("Failed to build runner: %v", err)
	}
	if err := runner.Up(); err != nil {
		t.Fatalf("Migrations failed: %v", err)
	}
}

// MigrateBase applies only the base schema unit, for tests that drive
// individual components by hand.
func MigrateBase(t *testing.T, db *sql.DB) {
	t.Helper()
	runner, err := migrate.NewRunner(db, migrations.Units(migrations.Config{})[:1])
	if err != nil {
		t.Fatalf("Failed to build runner: %v", err)
	}
	if err := runner.Up(); err != nil {
		t.Fatalf("Base schema migration failed: %v", err)
	}
}
