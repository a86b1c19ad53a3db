// Package bom derives the part/assembly graph from the legacy flat
// assemblies table: parts, part_tree edges, detail drawings and their
// assembly detail lines.
package bom

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"shoptrack/internal/models"
	"shoptrack/internal/schema"
)

// assemblyMarker identifies general-arrangement drawings. The legacy
// data mixed case-sensitive and case-insensitive checks for it; the
// canonical rule here is case-insensitive.
const assemblyMarker = "-ga-"

// notAssemblyPrefix marks routing-ticket numbers, which are never
// assemblies even without other evidence.
const notAssemblyPrefix = "rt-"

// Classify applies the naming convention to a drawing number. Numbers
// with the GA marker are assemblies, RT-prefixed numbers without it are
// definitely not, and everything else stays unknown rather than false.
func Classify(drawingNumber string) models.AssemblyFlag {
	lower := strings.ToLower(drawingNumber)
	if strings.Contains(lower, assemblyMarker) {
		return models.Assembly
	}
	if strings.HasPrefix(lower, notAssemblyPrefix) {
		return models.NotAssembly
	}
	return models.AssemblyUnknown
}

type Builder struct {
	conn schema.DBTX
}

func New(conn schema.DBTX) *Builder {
	return &Builder{conn: conn}
}

func (b *Builder) sourceCount() (int, error) {
	var n int
	err := b.conn.QueryRow("SELECT COUNT(*) FROM legacy_assemblies").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count legacy_assemblies: %w", err)
	}
	return n, nil
}

// BackfillMissingAssemblies ensures every assembly-marked part number
// seen in the legacy job table exists in the assemblies source before
// graph construction. Missing ones get a placeholder row whose
// description is the job's free-text description and whose drawing
// number duplicates the part number.
func (b *Builder) BackfillMissingAssemblies() error {
	rows, err := b.conn.Query(`SELECT lj.part_number, MAX(COALESCE(lj.description,''))
		FROM legacy_jobs lj
		WHERE lj.part_number <> ''
		  AND lj.part_number NOT IN (SELECT drawing_number FROM legacy_assemblies)
		GROUP BY lj.part_number`)
	if err != nil {
		return fmt.Errorf("scan legacy jobs for assemblies: %w", err)
	}
	defer rows.Close()

	type missing struct {
		partNumber  string
		description string
	}
	var todo []missing
	for rows.Next() {
		var m missing
		if err := rows.Scan(&m.partNumber, &m.description); err != nil {
			return err
		}
		if Classify(m.partNumber) == models.Assembly {
			todo = append(todo, m)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range todo {
		_, err := b.conn.Exec(`INSERT INTO legacy_assemblies (drawing_number, part_number, description, quantity)
			VALUES (?, ?, ?, 1)`, m.partNumber, m.partNumber, m.description)
		if err != nil {
			return fmt.Errorf("backfill assembly %s: %w", m.partNumber, err)
		}
		log.Printf("bom: backfilled missing assembly %s from legacy jobs", m.partNumber)
	}
	return nil
}

// BuildGraph constructs parts, part_tree edges, detail drawings and
// assembly details from the legacy assemblies table, then enforces the
// self-reference invariant. An empty source is a logged no-op; the
// builder never fabricates edges from incomplete data.
func (b *Builder) BuildGraph() error {
	n, err := b.sourceCount()
	if err != nil {
		return err
	}
	if n == 0 {
		log.Printf("bom: legacy_assemblies is empty, skipping graph construction")
		return nil
	}

	rows, err := b.conn.Query(`SELECT drawing_number, part_number,
		COALESCE(description,''), COALESCE(quantity,1), COALESCE(status,'pending')
		FROM legacy_assemblies ORDER BY drawing_number, part_number`)
	if err != nil {
		return fmt.Errorf("read legacy_assemblies: %w", err)
	}
	defer rows.Close()

	type line struct {
		drawing     string
		part        string
		description string
		quantity    int
		status      string
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.drawing, &l.part, &l.description, &l.quantity, &l.status); err != nil {
			return err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, l := range lines {
		if err := b.ensureDetailDrawing(l.drawing, l.description); err != nil {
			return err
		}
		parentID, err := b.ensurePart(l.drawing)
		if err != nil {
			return err
		}
		if err := b.ensureAssemblyDetail(l.drawing, l.part, l.quantity, l.status); err != nil {
			return err
		}
		if l.part == "" || l.part == l.drawing {
			continue
		}
		childID, err := b.ensurePart(l.part)
		if err != nil {
			return err
		}
		if err := b.ensureEdge(parentID, childID, l.quantity); err != nil {
			return err
		}
	}

	if err := b.EnsureSelfReferences(); err != nil {
		return err
	}
	return b.markParented()
}

func (b *Builder) ensureDetailDrawing(drawing, description string) error {
	flag := Classify(drawing)
	// COALESCE keeps a known flag; classification never downgrades.
	_, err := b.conn.Exec(`INSERT INTO detail_drawings (drawing_number, description, is_assembly)
		VALUES (?, ?, ?)
		ON CONFLICT(drawing_number) DO UPDATE SET
			is_assembly = COALESCE(detail_drawings.is_assembly, excluded.is_assembly)`,
		drawing, description, nullableFlag(flag))
	if err != nil {
		return fmt.Errorf("ensure detail drawing %s: %w", drawing, err)
	}
	return nil
}

func (b *Builder) ensurePart(drawingNumber string) (int, error) {
	var id int
	err := b.conn.QueryRow(
		"SELECT id FROM parts WHERE drawing_number=? AND revision='-'", drawingNumber).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup part %s: %w", drawingNumber, err)
	}
	flag := Classify(drawingNumber)
	res, err := b.conn.Exec(
		"INSERT INTO parts (drawing_number, revision, is_assembly) VALUES (?, '-', ?)",
		drawingNumber, nullableFlag(flag))
	if err != nil {
		return 0, fmt.Errorf("insert part %s: %w", drawingNumber, err)
	}
	id64, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id64), nil
}

func (b *Builder) ensureAssemblyDetail(drawing, part string, quantity int, status string) error {
	if part == "" {
		return nil
	}
	_, err := b.conn.Exec(`INSERT INTO assembly_details (drawing_number, part_number, quantity, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(drawing_number, part_number) DO NOTHING`,
		drawing, part, quantity, status)
	if err != nil {
		return fmt.Errorf("ensure assembly detail %s/%s: %w", drawing, part, err)
	}
	return nil
}

func (b *Builder) ensureEdge(parentID, childID, quantity int) error {
	_, err := b.conn.Exec(`INSERT INTO part_tree (parent_id, child_id, quantity)
		VALUES (?, ?, ?)
		ON CONFLICT(parent_id, child_id) DO NOTHING`,
		parentID, childID, quantity)
	if err != nil {
		return fmt.Errorf("ensure edge %d->%d: %w", parentID, childID, err)
	}
	return nil
}

// EnsureSelfReferences inserts the missing root entry for every
// assembly drawing: an assembly_details row whose part_number equals
// the drawing number, quantity 1, status pending. Existing roots are
// left alone, so the scan is idempotent.
func (b *Builder) EnsureSelfReferences() error {
	rows, err := b.conn.Query(`SELECT dd.drawing_number FROM detail_drawings dd
		WHERE dd.is_assembly = 1
		  AND NOT EXISTS (
			SELECT 1 FROM assembly_details ad
			WHERE ad.drawing_number = dd.drawing_number
			  AND ad.part_number = dd.drawing_number)`)
	if err != nil {
		return fmt.Errorf("scan for missing self references: %w", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return err
		}
		missing = append(missing, d)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range missing {
		_, err := b.conn.Exec(`INSERT INTO assembly_details (drawing_number, part_number, quantity, status)
			VALUES (?, ?, 1, 'pending')`, d, d)
		if err != nil {
			return fmt.Errorf("insert self reference %s: %w", d, err)
		}
	}
	if len(missing) > 0 {
		log.Printf("bom: inserted %d missing self references", len(missing))
	}
	return nil
}

// ReclassifyParts re-applies the naming rules to parts and detail
// drawings whose flag is still unknown. Known flags are not downgraded.
func (b *Builder) ReclassifyParts() error {
	for _, stmt := range []string{
		"UPDATE parts SET is_assembly=1 WHERE is_assembly IS NULL AND lower(drawing_number) LIKE '%-ga-%'",
		"UPDATE parts SET is_assembly=0 WHERE is_assembly IS NULL AND lower(drawing_number) LIKE 'rt-%'",
		"UPDATE detail_drawings SET is_assembly=1 WHERE is_assembly IS NULL AND lower(drawing_number) LIKE '%-ga-%'",
		"UPDATE detail_drawings SET is_assembly=0 WHERE is_assembly IS NULL AND lower(drawing_number) LIKE 'rt-%'",
	} {
		if _, err := b.conn.Exec(stmt); err != nil {
			return fmt.Errorf("reclassify: %w", err)
		}
	}
	return nil
}

func (b *Builder) markParented() error {
	_, err := b.conn.Exec(
		"UPDATE parts SET has_parent=1 WHERE id IN (SELECT child_id FROM part_tree)")
	if err != nil {
		return fmt.Errorf("mark parented: %w", err)
	}
	return nil
}

func nullableFlag(f models.AssemblyFlag) interface{} {
	v := f.NullableInt()
	if v == nil {
		return nil
	}
	return *v
}
