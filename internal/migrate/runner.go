// Package migrate applies ordered, individually transactional migration
// units against one SQLite database. Units are expected to guard their
// own effects with schema introspection; the runner only tracks which
// sequences have been recorded and never retries an applied unit.
package migrate

import (
	"database/sql"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"

	"shoptrack/internal/schema"
)

// Unit is one named migration with a reversal. Seq is the explicit
// execution order; names carry a matching numeric prefix by convention
// but ordering never derives from the name.
type Unit struct {
	Seq  int
	Name string
	Up   func(*schema.Store) error
	Down func(*schema.Store) error
}

// Status reports one unit's applied state.
type Status struct {
	Seq       int
	Name      string
	Applied   bool
	AppliedAt string
	BatchID   string
}

type Runner struct {
	db    *sql.DB
	units []Unit
}

// NewRunner sorts units by sequence and rejects duplicates.
func NewRunner(db *sql.DB, units []Unit) (*Runner, error) {
	sorted := make([]Unit, len(units))
	copy(sorted, units)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Seq == sorted[i-1].Seq {
			return nil, fmt.Errorf("duplicate migration sequence %d (%s, %s)",
				sorted[i].Seq, sorted[i-1].Name, sorted[i].Name)
		}
	}
	return &Runner{db: db, units: sorted}, nil
}

func (r *Runner) ensureTracking() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		seq INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		batch_id TEXT NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func (r *Runner) applied() (map[int]Status, error) {
	if err := r.ensureTracking(); err != nil {
		return nil, err
	}
	rows, err := r.db.Query("SELECT seq, name, batch_id, applied_at FROM schema_migrations ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]Status)
	for rows.Next() {
		st := Status{Applied: true}
		if err := rows.Scan(&st.Seq, &st.Name, &st.BatchID, &st.AppliedAt); err != nil {
			return nil, err
		}
		out[st.Seq] = st
	}
	return out, rows.Err()
}

// Up applies every unrecorded unit in ascending sequence, each in its
// own transaction. The first failing unit rolls back and aborts the run;
// units applied before it stay applied. All units applied by one call
// share a batch id so Down can reverse them as a group.
func (r *Runner) Up() error {
	done, err := r.applied()
	if err != nil {
		return err
	}
	batch := uuid.NewString()
	ran := 0
	for _, u := range r.units {
		if _, ok := done[u.Seq]; ok {
			continue
		}
		if err := r.runUp(u, batch); err != nil {
			return err
		}
		ran++
	}
	if ran == 0 {
		log.Printf("migrate: nothing to apply (%d units recorded)", len(done))
	}
	return nil
}

func (r *Runner) runUp(u Unit, batch string) error {
	log.Printf("migrate: applying %03d %s", u.Seq, u.Name)
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin %s: %w", u.Name, err)
	}
	defer tx.Rollback()

	if err := u.Up(schema.New(tx)); err != nil {
		return fmt.Errorf("migration %s: %w", u.Name, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (seq, name, batch_id) VALUES (?, ?, ?)",
		u.Seq, u.Name, batch); err != nil {
		return fmt.Errorf("record %s: %w", u.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", u.Name, err)
	}
	return nil
}

// Down reverses the most recently applied batch in descending sequence.
func (r *Runner) Down() error {
	done, err := r.applied()
	if err != nil {
		return err
	}
	if len(done) == 0 {
		log.Printf("migrate: nothing to reverse")
		return nil
	}
	latest := ""
	latestSeq := -1
	for _, st := range done {
		if st.Seq > latestSeq {
			latestSeq = st.Seq
			latest = st.BatchID
		}
	}
	var targets []int
	for seq, st := range done {
		if st.BatchID == latest {
			targets = append(targets, seq)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(targets)))
	return r.reverse(targets)
}

// DownN reverses the n most recently applied units regardless of batch.
func (r *Runner) DownN(n int) error {
	done, err := r.applied()
	if err != nil {
		return err
	}
	var seqs []int
	for seq := range done {
		seqs = append(seqs, seq)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(seqs)))
	if n < len(seqs) {
		seqs = seqs[:n]
	}
	return r.reverse(seqs)
}

func (r *Runner) reverse(seqs []int) error {
	bySeq := make(map[int]Unit, len(r.units))
	for _, u := range r.units {
		bySeq[u.Seq] = u
	}
	for _, seq := range seqs {
		u, ok := bySeq[seq]
		if !ok {
			return fmt.Errorf("recorded migration %d has no registered unit", seq)
		}
		if u.Down == nil {
			return fmt.Errorf("migration %s is not reversible", u.Name)
		}
		log.Printf("migrate: reversing %03d %s", u.Seq, u.Name)
		tx, err := r.db.Begin()
		if err != nil {
			return fmt.Errorf("begin %s: %w", u.Name, err)
		}
		if err := func() error {
			defer tx.Rollback()
			if err := u.Down(schema.New(tx)); err != nil {
				return fmt.Errorf("reverse %s: %w", u.Name, err)
			}
			if _, err := tx.Exec("DELETE FROM schema_migrations WHERE seq=?", u.Seq); err != nil {
				return fmt.Errorf("unrecord %s: %w", u.Name, err)
			}
			return tx.Commit()
		}(); err != nil {
			return err
		}
	}
	return nil
}

// Statuses lists every registered unit with its applied state.
func (r *Runner) Statuses() ([]Status, error) {
	done, err := r.applied()
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(r.units))
	for _, u := range r.units {
		if st, ok := done[u.Seq]; ok {
			st.Name = u.Name
			out = append(out, st)
			continue
		}
		out = append(out, Status{Seq: u.Seq, Name: u.Name})
	}
	return out, nil
}
