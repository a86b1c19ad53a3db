// Package drawings maintains the drawing_files index the location
// matcher searches: one row per file under the drawings directory.
package drawings

import (
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"strings"

	"shoptrack/internal/schema"
)

// indexedExtensions limits the scan to drawing formats.
var indexedExtensions = map[string]bool{
	".pdf": true,
	".dwg": true,
	".dxf": true,
	".tif": true,
}

type Indexer struct {
	conn schema.DBTX
}

func New(conn schema.DBTX) *Indexer {
	return &Indexer{conn: conn}
}

// Scan walks root and reconciles the index: new files are inserted,
// known files get their timestamp refreshed, and rows whose file is
// gone are deactivated rather than deleted so stored associations
// survive a share outage.
func (ix *Indexer) Scan(root string) error {
	seen := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !indexedExtensions[ext] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		seen[path] = true
		modified := info.ModTime().UTC().Format("2006-01-02 15:04:05")
		_, err = ix.conn.Exec(`INSERT INTO drawing_files (file_name, file_path, is_active, last_modified_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT(file_path) DO UPDATE SET
				is_active = 1,
				last_modified_at = excluded.last_modified_at`,
			d.Name(), path, modified)
		if err != nil {
			return fmt.Errorf("index %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}

	deactivated, err := ix.deactivateMissing(root, seen)
	if err != nil {
		return err
	}
	log.Printf("drawings: indexed %d files under %s (%d deactivated)", len(seen), root, deactivated)
	return nil
}

func (ix *Indexer) deactivateMissing(root string, seen map[string]bool) (int, error) {
	rows, err := ix.conn.Query(
		"SELECT id, file_path FROM drawing_files WHERE is_active=1 AND file_path LIKE ?",
		filepath.Clean(root)+string(filepath.Separator)+"%")
	if err != nil {
		return 0, fmt.Errorf("read index: %w", err)
	}
	defer rows.Close()

	var gone []int
	for rows.Next() {
		var id int
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return 0, err
		}
		if !seen[path] {
			gone = append(gone, id)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range gone {
		if _, err := ix.conn.Exec("UPDATE drawing_files SET is_active=0 WHERE id=?", id); err != nil {
			return 0, fmt.Errorf("deactivate %d: %w", id, err)
		}
	}
	return len(gone), nil
}
