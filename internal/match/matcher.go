// Package match resolves drawing and part numbers to file-system
// locations using a tiered exact → fuzzy strategy over the drawing-file
// index.
package match

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"shoptrack/internal/schema"
)

// Candidate is one drawing-file index entry considered by the fuzzy
// tiers. Candidates must arrive in the stable fetch order (file name
// ascending, then id) so ties always break the same way.
type Candidate struct {
	ID       int
	FileName string
	FilePath string
}

type Matcher struct {
	conn schema.DBTX
}

func New(conn schema.DBTX) *Matcher {
	return &Matcher{conn: conn}
}

// Match picks the best candidate for a query, or nil. The tiers are
// strict: with a customer hint only candidates whose path contains the
// customer name or its folder alias qualify, and no hit means no match.
// Without a hint the first candidate wins. Exact-match resolution
// happens before candidates are fetched; see Resolve.
func Match(customerHint string, aliases map[string]string, candidates []Candidate) *Candidate {
	if customerHint != "" {
		scope := strings.ToLower(customerHint)
		alias := strings.ToLower(aliases[scope])
		for i := range candidates {
			path := strings.ToLower(candidates[i].FilePath)
			if strings.Contains(path, scope) || (alias != "" && strings.Contains(path, alias)) {
				return &candidates[i]
			}
		}
		return nil
	}
	if len(candidates) > 0 {
		return &candidates[0]
	}
	return nil
}

// Resolve returns the file location for a drawing or part number, or
// nil when nothing qualifies.
//
//  1. exact: a stored file_location on the detail drawing itself
//  2. scoped fuzzy: substring search over the file index, limited to
//     paths containing the customer name or its folder alias
//  3. unscoped fuzzy: substring search, only without a customer hint
//
// A fuzzy hit is persisted back onto the detail drawing so the next
// lookup is exact; persistence failure is logged and does not fail the
// match.
func (m *Matcher) Resolve(query, customerHint string) (*string, error) {
	var stored sql.NullString
	err := m.conn.QueryRow(
		"SELECT file_location FROM detail_drawings WHERE drawing_number=?", query).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("exact lookup %s: %w", query, err)
	}
	if stored.Valid && stored.String != "" {
		return &stored.String, nil
	}

	candidates, err := m.candidates(query)
	if err != nil {
		return nil, err
	}
	aliases, err := Aliases(m.conn)
	if err != nil {
		return nil, err
	}

	hit := Match(customerHint, aliases, candidates)
	if hit == nil {
		return nil, nil
	}
	m.persist(query, hit.FilePath)
	return &hit.FilePath, nil
}

// candidates fetches active index entries containing the query, in the
// stable order the tie-break depends on.
func (m *Matcher) candidates(query string) ([]Candidate, error) {
	rows, err := m.conn.Query(
		"SELECT id, file_name, file_path FROM drawing_files WHERE is_active=1 AND file_name LIKE ? ORDER BY file_name ASC, id ASC",
		"%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("candidate search %s: %w", query, err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.FileName, &c.FilePath); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (m *Matcher) persist(query, location string) {
	_, err := m.conn.Exec(
		"UPDATE detail_drawings SET file_location=? WHERE drawing_number=? AND (file_location IS NULL OR file_location='')",
		location, query)
	if err != nil {
		log.Printf("match: could not persist location for %s: %v", query, err)
	}
	// Lazy part association on the index entry itself.
	_, err = m.conn.Exec(`UPDATE drawing_files
		SET part_id = (SELECT id FROM parts WHERE drawing_number=? AND revision='-')
		WHERE file_path=? AND part_id IS NULL
		  AND EXISTS (SELECT 1 FROM parts WHERE drawing_number=? AND revision='-')`,
		query, location, query)
	if err != nil {
		log.Printf("match: could not associate %s with %s: %v", location, query, err)
	}
}

// BackfillLocations resolves every detail drawing without a stored
// location. Misses are data-quality gaps, not errors.
func (m *Matcher) BackfillLocations() error {
	// MAX keeps the customer pick deterministic when duplicated legacy
	// rows trace one key to several customer names.
	rows, err := m.conn.Query(`SELECT dd.drawing_number, COALESCE(MAX(c.name),'')
		FROM detail_drawings dd
		LEFT JOIN assembly_details ad ON ad.drawing_number = dd.drawing_number
			AND ad.part_number = dd.drawing_number
		LEFT JOIN legacy_jobs lj ON lj.unique_key = ad.unique_key
		LEFT JOIN customers c ON c.name = lj.customer_name
		WHERE dd.file_location IS NULL OR dd.file_location = ''
		GROUP BY dd.drawing_number`)
	if err != nil {
		return fmt.Errorf("read unlocated drawings: %w", err)
	}
	defer rows.Close()

	type target struct {
		drawing  string
		customer string
	}
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.drawing, &t.customer); err != nil {
			return err
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	matched := 0
	for _, t := range targets {
		loc, err := m.Resolve(t.drawing, t.customer)
		if err != nil {
			return err
		}
		if loc == nil {
			log.Printf("match: no location for drawing %s", t.drawing)
			continue
		}
		matched++
	}
	log.Printf("match: located %d of %d drawings", matched, len(targets))
	return nil
}
