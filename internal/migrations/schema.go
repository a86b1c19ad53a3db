package migrations

import (
	"fmt"
	"log"

	"shoptrack/internal/schema"
)

// baseTables is the normalized target schema. Order matters: referenced
// tables first.
var baseTables = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		usage_count INTEGER DEFAULT 0,
		last_used DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER REFERENCES customers(id) ON DELETE SET NULL,
		name TEXT NOT NULL,
		email TEXT,
		usage_count INTEGER DEFAULT 0,
		last_used DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(customer_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		po_number TEXT NOT NULL UNIQUE,
		oe_number TEXT,
		contact_id INTEGER REFERENCES contacts(id) ON DELETE SET NULL,
		is_active INTEGER DEFAULT 1,
		closed_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_number TEXT NOT NULL UNIQUE,
		po_id INTEGER NOT NULL REFERENCES purchase_orders(id) ON DELETE CASCADE,
		priority INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS parts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		drawing_number TEXT NOT NULL,
		revision TEXT NOT NULL DEFAULT '-',
		is_assembly INTEGER,
		has_parent INTEGER DEFAULT 0,
		previous_id INTEGER REFERENCES parts(id),
		next_id INTEGER REFERENCES parts(id),
		unit_price REAL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(drawing_number, revision)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		part_id INTEGER REFERENCES parts(id),
		line_number INTEGER NOT NULL,
		quantity INTEGER DEFAULT 1,
		status TEXT DEFAULT 'pending',
		delivery_required_date TEXT,
		drawing_release_date TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(job_id, line_number)
	)`,
	`CREATE TABLE IF NOT EXISTS part_tree (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id INTEGER NOT NULL REFERENCES parts(id),
		child_id INTEGER NOT NULL REFERENCES parts(id),
		quantity INTEGER DEFAULT 1,
		UNIQUE(parent_id, child_id)
	)`,
	`CREATE TABLE IF NOT EXISTS drawing_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		part_id INTEGER REFERENCES parts(id),
		file_name TEXT NOT NULL,
		file_path TEXT NOT NULL UNIQUE,
		is_active INTEGER DEFAULT 1,
		last_modified_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS detail_drawings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		drawing_number TEXT NOT NULL UNIQUE,
		description TEXT DEFAULT '',
		is_assembly INTEGER,
		file_location TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS assembly_details (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		drawing_number TEXT NOT NULL,
		part_number TEXT NOT NULL,
		quantity INTEGER DEFAULT 1,
		status TEXT DEFAULT 'pending',
		unique_key TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(drawing_number, part_number)
	)`,
	`CREATE TABLE IF NOT EXISTS customer_folder_aliases (
		customer_name TEXT PRIMARY KEY,
		folder_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		display_name TEXT,
		role TEXT DEFAULT 'user',
		active INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_login DATETIME
	)`,
}

var baseIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_contacts_customer_id ON contacts(customer_id)",
	"CREATE INDEX IF NOT EXISTS idx_purchase_orders_oe_number ON purchase_orders(oe_number)",
	"CREATE INDEX IF NOT EXISTS idx_purchase_orders_is_active ON purchase_orders(is_active)",
	"CREATE INDEX IF NOT EXISTS idx_jobs_po_id ON jobs(po_id)",
	"CREATE INDEX IF NOT EXISTS idx_order_items_job_id ON order_items(job_id)",
	"CREATE INDEX IF NOT EXISTS idx_order_items_part_id ON order_items(part_id)",
	"CREATE INDEX IF NOT EXISTS idx_parts_drawing_number ON parts(drawing_number)",
	"CREATE INDEX IF NOT EXISTS idx_part_tree_parent_id ON part_tree(parent_id)",
	"CREATE INDEX IF NOT EXISTS idx_part_tree_child_id ON part_tree(child_id)",
	"CREATE INDEX IF NOT EXISTS idx_drawing_files_file_name ON drawing_files(file_name)",
	"CREATE INDEX IF NOT EXISTS idx_drawing_files_part_id ON drawing_files(part_id)",
	"CREATE INDEX IF NOT EXISTS idx_assembly_details_drawing_number ON assembly_details(drawing_number)",
	"CREATE INDEX IF NOT EXISTS idx_assembly_details_part_number ON assembly_details(part_number)",
	"CREATE INDEX IF NOT EXISTS idx_assembly_details_unique_key ON assembly_details(unique_key)",
}

// baseDropOrder reverses dependency order for Down.
var baseDropOrder = []string{
	"users", "customer_folder_aliases", "assembly_details", "detail_drawings",
	"drawing_files", "part_tree", "order_items", "parts", "jobs",
	"purchase_orders", "contacts", "customers",
}

func baseSchemaUp(s *schema.Store) error {
	for _, ddl := range baseTables {
		if err := s.CreateTable(ddl); err != nil {
			return err
		}
	}
	for _, ddl := range baseIndexes {
		if err := s.CreateIndex(ddl); err != nil {
			return err
		}
	}
	return nil
}

func baseSchemaDown(s *schema.Store) error {
	for _, table := range baseDropOrder {
		if _, err := s.Conn().Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", table)); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}

// noRevert is the Down of data-repair units whose input state is gone.
// Reversal is a logged no-op so a batch rollback can continue past them.
func noRevert(name string) func(*schema.Store) error {
	return func(*schema.Store) error {
		log.Printf("migrate: %s repairs data in place, nothing to reverse", name)
		return nil
	}
}
