package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const auditLogSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	audit_id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	action TEXT NOT NULL,
	subject TEXT,
	outcome TEXT NOT NULL,
	detail TEXT
);`

// OpenDB opens (creating if needed) the sqlite audit mirror under the home
// directory. The caller hands the result to SetDB and closes it on shutdown.
func OpenDB(homeDir string) (*sql.DB, error) {
	path := filepath.Join(homeDir, "audit.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit db dir: %w", err)
	}

	d, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	d.SetMaxOpenConns(1)
	d.SetMaxIdleConns(1)

	ctx := context.Background()
	if _, err := d.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		d.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := d.ExecContext(ctx, auditLogSchema); err != nil {
		d.Close()
		return nil, fmt.Errorf("create audit_log table: %w", err)
	}
	return d, nil
}
