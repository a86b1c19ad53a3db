// Package identity normalizes customer, contact, purchase-order and job
// identity out of the legacy flat jobs table, where every line-item row
// repeats its customer and PO text.
package identity

import (
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strings"

	"shoptrack/internal/models"
	"shoptrack/internal/schema"
)

// Resolver extracts and repairs identity rows. All methods operate on
// the connection they were constructed with, so a migration unit can
// bind one to its own transaction.
type Resolver struct {
	conn schema.DBTX
}

func New(conn schema.DBTX) *Resolver {
	return &Resolver{conn: conn}
}

// legacyLine is one row of legacy_jobs.
type legacyLine struct {
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
	CreatedAt       string
}

func (r *Resolver) legacyLines() ([]legacyLine, error) {
	rows, err := r.conn.Query(`SELECT job_number, line_number,
		COALESCE(part_number,''), COALESCE(description,''),
		COALESCE(customer_name,''), COALESCE(customer_contact,''),
		COALESCE(contact_email,''), COALESCE(po_number,''),
		COALESCE(oe_number,''), COALESCE(quantity,1),
		COALESCE(status,'pending'),
		COALESCE(delivery_required_date,''), COALESCE(drawing_release_date,''),
		COALESCE(created_at,'')
		FROM legacy_jobs ORDER BY job_number, line_number`)
	if err != nil {
		return nil, fmt.Errorf("read legacy_jobs: %w", err)
	}
	defer rows.Close()

	var lines []legacyLine
	for rows.Next() {
		var l legacyLine
		if err := rows.Scan(&l.JobNumber, &l.LineNumber, &l.PartNumber, &l.Description,
			&l.CustomerName, &l.CustomerContact, &l.ContactEmail, &l.PONumber,
			&l.OENumber, &l.Quantity, &l.Status, &l.DeliveryDate, &l.ReleaseDate,
			&l.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ExtractCustomers builds customers and contacts from the legacy table.
// Distinct customer names become customers; distinct (customer, contact)
// pairs become contacts. Usage counters are the count of distinct jobs
// referencing each entity and last_used is the newest job timestamp.
func (r *Resolver) ExtractCustomers() error {
	_, err := r.conn.Exec(`INSERT INTO customers (name, usage_count, last_used)
		SELECT customer_name, COUNT(DISTINCT job_number), MAX(created_at)
		FROM legacy_jobs
		WHERE customer_name <> ''
		GROUP BY customer_name
		ON CONFLICT(name) DO UPDATE SET
			usage_count = excluded.usage_count,
			last_used = excluded.last_used,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("extract customers: %w", err)
	}

	_, err = r.conn.Exec(`INSERT INTO contacts (customer_id, name, email, usage_count, last_used)
		SELECT c.id, lj.customer_contact, NULLIF(MAX(lj.contact_email),''),
			COUNT(DISTINCT lj.job_number), MAX(lj.created_at)
		FROM legacy_jobs lj
		JOIN customers c ON c.name = lj.customer_name
		WHERE lj.customer_contact <> ''
		GROUP BY c.id, lj.customer_contact
		ON CONFLICT(customer_id, name) DO UPDATE SET
			usage_count = excluded.usage_count,
			last_used = excluded.last_used,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("extract contacts: %w", err)
	}
	return nil
}

// SyntheticPONumber is the final synthetic numbering scheme for legacy
// rows without a real purchase order. (job_number, line_number) is
// unique, so the result is too. An absent oe_number keeps the slot with
// a fixed "NA" placeholder rather than collapsing two separators.
func SyntheticPONumber(oeNumber, jobNumber string, lineNumber int) string {
	if oeNumber == "" {
		oeNumber = "NA"
	}
	return fmt.Sprintf("NPO-%s-%s-%d", oeNumber, jobNumber, lineNumber)
}

// BuildOrders creates purchase_orders, jobs and order_items from the
// legacy table. A po_number that already exists is merged onto the
// existing purchase order regardless of its customer context, because a
// real PO number is globally unique by construction. A job keeps the
// purchase order derived from its lowest line number; later lines of a
// seen job never materialize a purchase order, so a multi-line job
// without a real PO yields exactly one synthetic row and no orphans.
func (r *Resolver) BuildOrders() error {
	lines, err := r.legacyLines()
	if err != nil {
		return err
	}

	poIDs := make(map[string]int)
	jobIDs := make(map[string]int)
	for _, l := range lines {
		jobID, ok := jobIDs[l.JobNumber]
		if !ok {
			poNumber := l.PONumber
			if poNumber == "" {
				poNumber = SyntheticPONumber(l.OENumber, l.JobNumber, l.LineNumber)
			}
			poID, ok := poIDs[poNumber]
			if !ok {
				poID, err = r.ensurePurchaseOrder(poNumber, l)
				if err != nil {
					return err
				}
				poIDs[poNumber] = poID
			}
			jobID, err = r.ensureJob(l.JobNumber, poID)
			if err != nil {
				return err
			}
			jobIDs[l.JobNumber] = jobID
		}

		if err := r.ensureOrderItem(jobID, l); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) ensurePurchaseOrder(poNumber string, l legacyLine) (int, error) {
	var id int
	err := r.conn.QueryRow("SELECT id FROM purchase_orders WHERE po_number=?", poNumber).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup po %s: %w", poNumber, err)
	}

	contactID, err := r.contactID(l.CustomerName, l.CustomerContact)
	if err != nil {
		return 0, err
	}
	res, err := r.conn.Exec(
		"INSERT INTO purchase_orders (po_number, oe_number, contact_id) VALUES (?, NULLIF(?,''), ?)",
		poNumber, l.OENumber, contactID)
	if err != nil {
		return 0, fmt.Errorf("insert po %s: %w", poNumber, err)
	}
	id64, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id64), nil
}

func (r *Resolver) contactID(customer, contact string) (interface{}, error) {
	if customer == "" || contact == "" {
		return nil, nil
	}
	var id int
	err := r.conn.QueryRow(`SELECT ct.id FROM contacts ct
		JOIN customers c ON c.id = ct.customer_id
		WHERE c.name=? AND ct.name=?`, customer, contact).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup contact %s/%s: %w", customer, contact, err)
	}
	return id, nil
}

func (r *Resolver) ensureJob(jobNumber string, poID int) (int, error) {
	var id int
	err := r.conn.QueryRow("SELECT id FROM jobs WHERE job_number=?", jobNumber).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup job %s: %w", jobNumber, err)
	}
	res, err := r.conn.Exec("INSERT INTO jobs (job_number, po_id) VALUES (?, ?)", jobNumber, poID)
	if err != nil {
		return 0, fmt.Errorf("insert job %s: %w", jobNumber, err)
	}
	id64, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id64), nil
}

func (r *Resolver) ensureOrderItem(jobID int, l legacyLine) error {
	var id int
	err := r.conn.QueryRow(
		"SELECT id FROM order_items WHERE job_id=? AND line_number=?", jobID, l.LineNumber).Scan(&id)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("lookup order item %d/%d: %w", jobID, l.LineNumber, err)
	}
	_, err = r.conn.Exec(`INSERT INTO order_items
		(job_id, line_number, quantity, status, delivery_required_date, drawing_release_date)
		VALUES (?, ?, ?, ?, NULLIF(?,''), NULLIF(?,''))`,
		jobID, l.LineNumber, l.Quantity, l.Status, l.DeliveryDate, l.ReleaseDate)
	if err != nil {
		return fmt.Errorf("insert order item %d/%d: %w", jobID, l.LineNumber, err)
	}
	return nil
}

// BackfillUniqueKeys writes the "{job_number}|{line_number}" key onto
// every legacy row and onto assembly_details rows whose part number can
// be traced to exactly one owning job line. Ambiguous or unmatched
// detail rows keep NULL; a guessed key would corrupt downstream joins.
func (r *Resolver) BackfillUniqueKeys() error {
	_, err := r.conn.Exec(
		"UPDATE legacy_jobs SET unique_key = job_number || '|' || line_number WHERE unique_key IS NULL OR unique_key = ''")
	if err != nil {
		return fmt.Errorf("backfill legacy unique_key: %w", err)
	}

	rows, err := r.conn.Query(
		"SELECT id, part_number FROM assembly_details WHERE unique_key IS NULL")
	if err != nil {
		return fmt.Errorf("read assembly_details: %w", err)
	}
	defer rows.Close()

	type detail struct {
		id         int
		partNumber string
	}
	var details []detail
	for rows.Next() {
		var d detail
		if err := rows.Scan(&d.id, &d.partNumber); err != nil {
			return err
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range details {
		key, err := r.ownerKey(d.partNumber)
		if err != nil {
			return err
		}
		if key == nil {
			log.Printf("identity: no owning job for assembly detail %d (part %s), unique_key stays NULL", d.id, d.partNumber)
			continue
		}
		if _, err := r.conn.Exec("UPDATE assembly_details SET unique_key=? WHERE id=?", *key, d.id); err != nil {
			return fmt.Errorf("backfill assembly detail %d: %w", d.id, err)
		}
	}
	return nil
}

// ownerKey finds the unique job line owning a part number. More than
// one owner is ambiguous and resolves to nil, never to a guess.
func (r *Resolver) ownerKey(partNumber string) (*string, error) {
	if partNumber == "" {
		return nil, nil
	}
	rows, err := r.conn.Query(
		"SELECT DISTINCT job_number, line_number FROM legacy_jobs WHERE part_number=? LIMIT 2", partNumber)
	if err != nil {
		return nil, fmt.Errorf("lookup owner of %s: %w", partNumber, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var job string
		var line int
		if err := rows.Scan(&job, &line); err != nil {
			return nil, err
		}
		keys = append(keys, models.UniqueKey(job, line))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(keys) != 1 {
		return nil, nil
	}
	return &keys[0], nil
}

// obsoleteNPO matches the retired NPO-{YYYYMMDD}-{CUSTOMER}-{SEQ}
// scheme. Final-scheme numbers embed a job number in the second slot
// and never carry a bare eight-digit date there, so converted numbers
// cannot match twice.
var obsoleteNPO = regexp.MustCompile(`^NPO-(\d{8})-(.+)-(\d+)$`)

// RewriteLegacySyntheticPOs upgrades purchase orders still numbered
// under the retired scheme to NPO-{oe}-{job}-{line}, derived from the
// order's first job line. Orders whose owning line cannot be found are
// left untouched and logged.
func (r *Resolver) RewriteLegacySyntheticPOs() error {
	rows, err := r.conn.Query(
		"SELECT id, po_number, COALESCE(oe_number,'') FROM purchase_orders WHERE po_number LIKE 'NPO-%'")
	if err != nil {
		return fmt.Errorf("read synthetic pos: %w", err)
	}
	defer rows.Close()

	type po struct {
		id     int
		number string
		oe     string
	}
	var stale []po
	for rows.Next() {
		var p po
		if err := rows.Scan(&p.id, &p.number, &p.oe); err != nil {
			return err
		}
		if obsoleteNPO.MatchString(p.number) {
			stale = append(stale, p)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range stale {
		var job string
		var line int
		err := r.conn.QueryRow(`SELECT j.job_number, oi.line_number
			FROM jobs j JOIN order_items oi ON oi.job_id = j.id
			WHERE j.po_id = ?
			ORDER BY j.job_number, oi.line_number LIMIT 1`, p.id).Scan(&job, &line)
		if err == sql.ErrNoRows {
			log.Printf("identity: obsolete PO %s has no job lines, left unchanged", p.number)
			continue
		}
		if err != nil {
			return fmt.Errorf("resolve owner of %s: %w", p.number, err)
		}
		next := SyntheticPONumber(p.oe, job, line)
		if next == p.number {
			continue
		}
		if _, err := r.conn.Exec(
			"UPDATE purchase_orders SET po_number=?, updated_at=CURRENT_TIMESTAMP WHERE id=?",
			next, p.id); err != nil {
			return fmt.Errorf("rewrite %s -> %s: %w", p.number, next, err)
		}
		log.Printf("identity: rewrote %s -> %s", p.number, next)
	}
	return nil
}

// MarkInactivePOs deactivates purchase orders whose oe_number is absent
// from the authoritative order-entry list. Orders without an oe_number
// have nothing to compare and keep their current flag.
func (r *Resolver) MarkInactivePOs(validOEs map[string]struct{}) error {
	rows, err := r.conn.Query(
		"SELECT id, oe_number FROM purchase_orders WHERE oe_number IS NOT NULL AND oe_number <> ''")
	if err != nil {
		return fmt.Errorf("read po oe numbers: %w", err)
	}
	defer rows.Close()

	var inactive []int
	var active []int
	for rows.Next() {
		var id int
		var oe string
		if err := rows.Scan(&id, &oe); err != nil {
			return err
		}
		if _, ok := validOEs[strings.TrimSpace(oe)]; ok {
			active = append(active, id)
		} else {
			inactive = append(inactive, id)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range inactive {
		if _, err := r.conn.Exec(
			"UPDATE purchase_orders SET is_active=0, closed_at=COALESCE(closed_at, CURRENT_TIMESTAMP) WHERE id=?", id); err != nil {
			return fmt.Errorf("deactivate po %d: %w", id, err)
		}
	}
	for _, id := range active {
		if _, err := r.conn.Exec(
			"UPDATE purchase_orders SET is_active=1 WHERE id=?", id); err != nil {
			return fmt.Errorf("reactivate po %d: %w", id, err)
		}
	}
	log.Printf("identity: po activity flags set (%d active, %d inactive)", len(active), len(inactive))
	return nil
}
