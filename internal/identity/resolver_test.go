package identity_test

import (
	"database/sql"
	"regexp"
	"testing"

	"shoptrack/internal/identity"
	"shoptrack/internal/models"
	"shoptrack/internal/testutil"
)

func setup(t *testing.T) *sql.DB {
	t.Helper()
	db := testutil.SetupTestDB(t)
	testutil.CreateLegacyTables(t, db)
	testutil.MigrateBase(t, db)
	return db
}

func TestSyntheticPONumber(t *testing.T) {
	if got := identity.SyntheticPONumber("OE-100", "JOB-1", 2); got != "NPO-OE-100-JOB-1-2" {
		t.Errorf("SyntheticPONumber = %q", got)
	}
	if got := identity.SyntheticPONumber("", "JOB-1", 2); got != "NPO-NA-JOB-1-2" {
		t.Errorf("SyntheticPONumber with empty oe = %q", got)
	}
}

func TestExtractCustomersAndContacts(t *testing.T) {
	db := setup(t)
	rows := []testutil.LegacyJob{
		{JobNumber: "J-1", LineNumber: 1, CustomerName: "Acme", CustomerContact: "Jo", ContactEmail: "jo@acme.example"},
		{JobNumber: "J-1", LineNumber: 2, CustomerName: "Acme", CustomerContact: "Jo"},
		{JobNumber: "J-2", LineNumber: 1, CustomerName: "Acme", CustomerContact: "Sam"},
		{JobNumber: "J-3", LineNumber: 1, CustomerName: "Borealis", CustomerContact: "Kim"},
		{JobNumber: "J-4", LineNumber: 1},
	}
	for _, r := range rows {
		testutil.InsertLegacyJob(t, db, r)
	}

	r := identity.New(db)
	if err := r.ExtractCustomers(); err != nil {
		t.Fatalf("ExtractCustomers: %v", err)
	}
	// Running twice must not duplicate.
	if err := r.ExtractCustomers(); err != nil {
		t.Fatalf("repeat ExtractCustomers: %v", err)
	}

	var customers int
	db.QueryRow("SELECT COUNT(*) FROM customers").Scan(&customers)
	if customers != 2 {
		t.Errorf("customers = %d, want 2", customers)
	}

	var usage int
	if err := db.QueryRow("SELECT usage_count FROM customers WHERE name='Acme'").Scan(&usage); err != nil {
		t.Fatalf("read Acme: %v", err)
	}
	if usage != 2 {
		t.Errorf("Acme usage_count = %d, want 2 distinct jobs", usage)
	}

	var contacts int
	db.QueryRow("SELECT COUNT(*) FROM contacts").Scan(&contacts)
	if contacts != 3 {
		t.Errorf("contacts = %d, want 3", contacts)
	}
	var email sql.NullString
	if err := db.QueryRow(`SELECT ct.email FROM contacts ct
		JOIN customers c ON c.id=ct.customer_id
		WHERE c.name='Acme' AND ct.name='Jo'`).Scan(&email); err != nil {
		t.Fatalf("read Jo: %v", err)
	}
	if !email.Valid || email.String != "jo@acme.example" {
		t.Errorf("Jo email = %v", email)
	}
}

func TestBuildOrdersMergesDuplicatePOs(t *testing.T) {
	db := setup(t)
	rows := []testutil.LegacyJob{
		{JobNumber: "J-1", LineNumber: 1, CustomerName: "Acme", CustomerContact: "Jo", PONumber: "PO-777", OENumber: "OE-1"},
		// Same PO number under a different customer context merges.
		{JobNumber: "J-2", LineNumber: 1, CustomerName: "Borealis", CustomerContact: "Kim", PONumber: "PO-777"},
	}
	for _, r := range rows {
		testutil.InsertLegacyJob(t, db, r)
	}
	r := identity.New(db)
	if err := r.ExtractCustomers(); err != nil {
		t.Fatalf("ExtractCustomers: %v", err)
	}
	if err := r.BuildOrders(); err != nil {
		t.Fatalf("BuildOrders: %v", err)
	}

	var pos int
	db.QueryRow("SELECT COUNT(*) FROM purchase_orders").Scan(&pos)
	if pos != 1 {
		t.Errorf("purchase_orders = %d, want 1 merged PO", pos)
	}
	var jobs int
	db.QueryRow("SELECT COUNT(DISTINCT po_id) FROM jobs").Scan(&jobs)
	if jobs != 1 {
		t.Errorf("jobs reference %d POs, want 1", jobs)
	}
}

func TestBuildOrdersSyntheticPO(t *testing.T) {
	db := setup(t)
	testutil.InsertLegacyJob(t, db, testutil.LegacyJob{
		JobNumber: "JOB-TEST", LineNumber: 1, PartNumber: "TEST-PART",
		CustomerName: "客户A", OENumber: "OE-9",
	})
	r := identity.New(db)
	if err := r.ExtractCustomers(); err != nil {
		t.Fatalf("ExtractCustomers: %v", err)
	}
	if err := r.BuildOrders(); err != nil {
		t.Fatalf("BuildOrders: %v", err)
	}

	var poNumber string
	if err := db.QueryRow(`SELECT po.po_number FROM purchase_orders po
		JOIN jobs j ON j.po_id = po.id WHERE j.job_number='JOB-TEST'`).Scan(&poNumber); err != nil {
		t.Fatalf("read po: %v", err)
	}
	want := regexp.MustCompile(`^NPO-.+-JOB-TEST-1$`)
	if !want.MatchString(poNumber) {
		t.Errorf("po_number = %q, want NPO-<oe>-JOB-TEST-1", poNumber)
	}
	if poNumber != "NPO-OE-9-JOB-TEST-1" {
		t.Errorf("po_number = %q, want NPO-OE-9-JOB-TEST-1", poNumber)
	}

	var line int
	if err := db.QueryRow(`SELECT oi.line_number FROM order_items oi
		JOIN jobs j ON j.id = oi.job_id WHERE j.job_number='JOB-TEST'`).Scan(&line); err != nil {
		t.Fatalf("read order item: %v", err)
	}
	if line != 1 {
		t.Errorf("line_number = %d, want 1", line)
	}
}

func TestBuildOrdersCreatesNoOrphanPOs(t *testing.T) {
	db := setup(t)
	// Multi-line job without a PO: one synthetic order, not one per line.
	for line := 1; line <= 3; line++ {
		testutil.InsertLegacyJob(t, db, testutil.LegacyJob{
			JobNumber: "J-1", LineNumber: line, OENumber: "OE-1",
		})
	}
	// PO-less later line of a job whose first line has a real PO.
	testutil.InsertLegacyJob(t, db, testutil.LegacyJob{JobNumber: "J-2", LineNumber: 1, PONumber: "PO-9"})
	testutil.InsertLegacyJob(t, db, testutil.LegacyJob{JobNumber: "J-2", LineNumber: 2})

	if err := identity.New(db).BuildOrders(); err != nil {
		t.Fatalf("BuildOrders: %v", err)
	}

	var pos, referenced int
	db.QueryRow("SELECT COUNT(*) FROM purchase_orders").Scan(&pos)
	db.QueryRow("SELECT COUNT(DISTINCT po_id) FROM jobs").Scan(&referenced)
	if pos != 2 {
		t.Errorf("purchase_orders = %d, want 2 (one per job)", pos)
	}
	if pos != referenced {
		t.Errorf("%d purchase orders but only %d referenced by jobs", pos, referenced)
	}

	var poNumber string
	if err := db.QueryRow(`SELECT po.po_number FROM purchase_orders po
		JOIN jobs j ON j.po_id = po.id WHERE j.job_number='J-1'`).Scan(&poNumber); err != nil {
		t.Fatalf("read J-1 po: %v", err)
	}
	if poNumber != "NPO-OE-1-J-1-1" {
		t.Errorf("J-1 po_number = %q, want the first line's synthetic number", poNumber)
	}

	var items int
	db.QueryRow("SELECT COUNT(*) FROM order_items").Scan(&items)
	if items != 5 {
		t.Errorf("order_items = %d, want all 5 lines", items)
	}
}

func TestBuildOrdersIsIdempotent(t *testing.T) {
	db := setup(t)
	testutil.InsertLegacyJob(t, db, testutil.LegacyJob{JobNumber: "J-1", LineNumber: 1, PONumber: "PO-1"})
	testutil.InsertLegacyJob(t, db, testutil.LegacyJob{JobNumber: "J-1", LineNumber: 2, PONumber: "PO-1"})

	r := identity.New(db)
	for i := 0; i < 2; i++ {
		if err := r.BuildOrders(); err != nil {
			t.Fatalf("BuildOrders run %d: %v", i+1, err)
		}
	}
	counts := map[string]int{}
	for _, table := range []string{"purchase_orders", "jobs", "order_items"} {
		var n int
		db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
		counts[table] = n
	}
	if counts["purchase_orders"] != 1 || counts["jobs"] != 1 || counts["order_items"] != 2 {
		t.Errorf("counts after repeat = %v", counts)
	}
}

func TestOrderItemUniqueness(t *testing.T) {
	db := setup(t)
	testutil.InsertLegacyJob(t, db, testutil.LegacyJob{JobNumber: "J-1", LineNumber: 1, PONumber: "PO-1"})
	r := identity.New(db)
	if err := r.BuildOrders(); err != nil {
		t.Fatalf("BuildOrders: %v", err)
	}

	var jobID int
	db.QueryRow("SELECT id FROM jobs WHERE job_number='J-1'").Scan(&jobID)

	var before int
	db.QueryRow("SELECT COUNT(*) FROM order_items").Scan(&before)
	_, err := db.Exec("INSERT INTO order_items (job_id, line_number) VALUES (?, 1)", jobID)
	if err == nil {
		t.Fatal("expected uniqueness violation on (job_id, line_number)")
	}
	var after int
	db.QueryRow("SELECT COUNT(*) FROM order_items").Scan(&after)
	if after != before {
		t.Errorf("row count changed from %d to %d after failed insert", before, after)
	}
}

func TestBackfillUniqueKeys(t *testing.T) {
	db := setup(t)
	testutil.InsertLegacyJob(t, db, testutil.LegacyJob{JobNumber: "JOB-TEST", LineNumber: 1, PartNumber: "TEST-PART"})
	testutil.InsertLegacyJob(t, db, testutil.LegacyJob{JobNumber: "J-2", LineNumber: 4, PartNumber: "SHARED"})
	testutil.InsertLegacyJob(t, db, testutil.LegacyJob{JobNumber: "J-3", LineNumber: 1, PartNumber: "SHARED"})
	if _, err := db.Exec("ALTER TABLE legacy_jobs ADD COLUMN unique_key TEXT"); err != nil {
		t.Fatalf("add unique_key: %v", err)
	}
	for _, part := range []string{"TEST-PART", "SHARED", "ORPHAN"} {
		if _, err := db.Exec(
			"INSERT INTO assembly_details (drawing_number, part_number) VALUES ('ASM-GA-1', ?)", part); err != nil {
			t.Fatalf("seed assembly_details: %v", err)
		}
	}

	r := identity.New(db)
	if err := r.BackfillUniqueKeys(); err != nil {
		t.Fatalf("BackfillUniqueKeys: %v", err)
	}

	var key sql.NullString
	db.QueryRow("SELECT unique_key FROM legacy_jobs WHERE job_number='JOB-TEST'").Scan(&key)
	if key.String != models.UniqueKey("JOB-TEST", 1) {
		t.Errorf("legacy unique_key = %v, want JOB-TEST|1", key)
	}

	db.QueryRow("SELECT unique_key FROM assembly_details WHERE part_number='TEST-PART'").Scan(&key)
	if !key.Valid || key.String != "JOB-TEST|1" {
		t.Errorf("detail unique_key = %v, want JOB-TEST|1", key)
	}

	// Ambiguous and orphaned parts stay NULL, never guessed.
	for _, part := range []string{"SHARED", "ORPHAN"} {
		db.QueryRow("SELECT unique_key FROM assembly_details WHERE part_number=?", part).Scan(&key)
		if key.Valid {
			t.Errorf("%s unique_key = %q, want NULL", part, key.String)
		}
	}
}

func TestRewriteLegacySyntheticPOs(t *testing.T) {
	db := setup(t)
	testutil.InsertLegacyJob(t, db, testutil.LegacyJob{JobNumber: "J-9", LineNumber: 1, OENumber: "OE-5"})
	r := identity.New(db)
	if err := r.BuildOrders(); err != nil {
		t.Fatalf("BuildOrders: %v", err)
	}

	// Forge an obsolete-scheme number onto the job's PO.
	if _, err := db.Exec(
		"UPDATE purchase_orders SET po_number='NPO-20210314-ACME-7'"); err != nil {
		t.Fatalf("forge obsolete number: %v", err)
	}

	if err := r.RewriteLegacySyntheticPOs(); err != nil {
		t.Fatalf("RewriteLegacySyntheticPOs: %v", err)
	}
	var poNumber string
	db.QueryRow("SELECT po_number FROM purchase_orders").Scan(&poNumber)
	if poNumber != "NPO-OE-5-J-9-1" {
		t.Errorf("rewritten po_number = %q, want NPO-OE-5-J-9-1", poNumber)
	}

	// Running again must not transform a final-scheme number.
	if err := r.RewriteLegacySyntheticPOs(); err != nil {
		t.Fatalf("repeat rewrite: %v", err)
	}
	var again string
	db.QueryRow("SELECT po_number FROM purchase_orders").Scan(&again)
	if again != poNumber {
		t.Errorf("po_number changed on repeat: %q -> %q", poNumber, again)
	}
}

func TestMarkInactivePOs(t *testing.T) {
	db := setup(t)
	seed := []struct {
		number string
		oe     interface{}
	}{
		{"PO-1", "OE-1"},
		{"PO-2", "OE-2"},
		{"PO-3", nil},
	}
	for _, s := range seed {
		if _, err := db.Exec(
			"INSERT INTO purchase_orders (po_number, oe_number) VALUES (?, ?)", s.number, s.oe); err != nil {
			t.Fatalf("seed %s: %v", s.number, err)
		}
	}

	r := identity.New(db)
	if err := r.MarkInactivePOs(map[string]struct{}{"OE-1": {}}); err != nil {
		t.Fatalf("MarkInactivePOs: %v", err)
	}

	for number, want := range map[string]int{"PO-1": 1, "PO-2": 0, "PO-3": 1} {
		var active int
		db.QueryRow("SELECT is_active FROM purchase_orders WHERE po_number=?", number).Scan(&active)
		if active != want {
			t.Errorf("%s is_active = %d, want %d", number, active, want)
		}
	}

	var closedAt sql.NullString
	db.QueryRow("SELECT closed_at FROM purchase_orders WHERE po_number='PO-2'").Scan(&closedAt)
	if !closedAt.Valid {
		t.Error("deactivated PO should record closed_at")
	}
}
