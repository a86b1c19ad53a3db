package migrations

import (
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"shoptrack/internal/schema"
)

// seedUsersUp creates the admin account the serving process expects.
// The default password must be changed on first login.
func seedUsersUp(s *schema.Store) error {
	var id int
	err := s.Conn().QueryRow("SELECT id FROM users WHERE username='admin'").Scan(&id)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("lookup admin user: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	_, err = s.Conn().Exec(
		"INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)",
		"admin", string(hash), "Administrator", "admin")
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func seedUsersDown(s *schema.Store) error {
	_, err := s.Conn().Exec("DELETE FROM users WHERE username='admin'")
	return err
}
