package match

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"shoptrack/internal/schema"
)

// aliasFile is the YAML shape of the customer→folder mapping file:
//
//	aliases:
//	  - customer: Acme Fabrication
//	    folder: ACME
type aliasFile struct {
	Aliases []struct {
		Customer string `yaml:"customer"`
		Folder   string `yaml:"folder"`
	} `yaml:"aliases"`
}

// LoadAliasFile parses a YAML alias mapping.
func LoadAliasFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	var f aliasFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse alias file %s: %w", path, err)
	}
	out := make(map[string]string, len(f.Aliases))
	for _, a := range f.Aliases {
		if a.Customer == "" || a.Folder == "" {
			continue
		}
		out[strings.ToLower(a.Customer)] = a.Folder
	}
	return out, nil
}

// SyncAliases upserts a mapping into customer_folder_aliases. The
// matcher reads only the table, never the file.
func SyncAliases(conn schema.DBTX, aliases map[string]string) error {
	for customer, folder := range aliases {
		_, err := conn.Exec(`INSERT INTO customer_folder_aliases (customer_name, folder_name)
			VALUES (?, ?)
			ON CONFLICT(customer_name) DO UPDATE SET folder_name = excluded.folder_name`,
			customer, folder)
		if err != nil {
			return fmt.Errorf("sync alias %s: %w", customer, err)
		}
	}
	return nil
}

// Aliases reads the mapping table, keyed by lower-cased customer name.
func Aliases(conn schema.DBTX) (map[string]string, error) {
	rows, err := conn.Query("SELECT customer_name, folder_name FROM customer_folder_aliases")
	if err != nil {
		return nil, fmt.Errorf("read aliases: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var customer, folder string
		if err := rows.Scan(&customer, &folder); err != nil {
			return nil, err
		}
		out[strings.ToLower(customer)] = folder
	}
	return out, rows.Err()
}
