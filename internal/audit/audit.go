// Package audit writes an append-only JSONL trail of tool invocations and
// event-subscription lifecycle transitions, mirrored into a sqlite
// audit_log table when one is attached.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type entry struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	Subject   string `json:"subject,omitempty"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
}

var (
	mu        sync.Mutex
	file      *os.File
	db        *sql.DB
	failCount atomic.Int64
)

func Init(homeDir string) error {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		return nil
	}
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	file = f
	return nil
}

// SetDB configures a database mirror for audit entries. Pass nil to stop
// mirroring; the caller owns the handle.
func SetDB(d *sql.DB) {
	mu.Lock()
	defer mu.Unlock()
	db = d
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// FailCount returns the total number of failure outcomes since startup.
func FailCount() int64 {
	return failCount.Load()
}

// Record appends one audit entry. Secrets are scrubbed from the detail
// before persistence.
func Record(action, subject, outcome, detail string) {
	if outcome == "failure" {
		failCount.Add(1)
	}

	detail = scrub(detail)
	subject = scrub(subject)

	mu.Lock()
	defer mu.Unlock()

	ev := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Action:    action,
		Subject:   subject,
		Outcome:   outcome,
		Detail:    detail,
	}
	if file != nil {
		b, err := json.Marshal(ev)
		if err == nil {
			_, _ = file.Write(append(b, '\n'))
		}
	}

	// Mirror into the audit_log table when a database is attached.
	if db != nil {
		_, _ = db.ExecContext(context.Background(), `
			INSERT INTO audit_log (timestamp, action, subject, outcome, detail)
			VALUES (?, ?, ?, ?, ?);
		`, ev.Timestamp, ev.Action, ev.Subject, ev.Outcome, ev.Detail)
	}
}

// scrub removes bearer credentials from free-form text.
func scrub(s string) string {
	lower := strings.ToLower(s)
	if idx := strings.Index(lower, "bearer "); idx >= 0 {
		end := idx + len("bearer ")
		for end < len(s) && s[end] != ' ' && s[end] != '"' && s[end] != '\n' {
			end++
		}
		return s[:idx] + "bearer [REDACTED]" + s[end:]
	}
	return s
}
