package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Notification tells a waiting user a copy is being held for them.
type Notification struct {
	At            time.Time
	UserID        string
	Name          string
	Email         string
	BookID        string
	Title         string
	Barcode       string
	ReservationID string
	Deadline      time.Time
}

// Line renders the notification as one ledger line.
func (n Notification) Line() string {
	return fmt.Sprintf("[%s] %s <%s> may collect %q (book %s, copy %s) before %s (reservation %s)",
		n.At.Format(time.RFC3339), n.Name, n.Email, n.Title, n.BookID, n.Barcode,
		n.Deadline.Format(time.RFC3339), n.ReservationID)
}

// Notifier delivers reservation notifications.
type Notifier interface {
	Notify(notifications ...Notification) error
}

// FileLedger appends notifications to a text file, one line each.
type FileLedger struct {
	path string
}

// NewFileLedger returns a ledger writing to path. The file is created on first use.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

func (l *FileLedger) Notify(notifications ...Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open notification ledger: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, n := range notifications {
		sb.WriteString(n.Line())
		sb.WriteByte('\n')
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("write notification ledger: %w", err)
	}
	return f.Sync()
}

type nopNotifier struct{}

func (nopNotifier) Notify(...Notification) error { return nil }
