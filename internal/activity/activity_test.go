// Package activity tests cover best-effort recording and paging.
package activity

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"filegate/internal/db"
)

type memStore struct {
	rows    []db.ActivityEntry
	fail    error
	lastLim int
}

func (m *memStore) InsertActivity(_ context.Context, e db.ActivityEntry) (int64, error) {
	if m.fail != nil {
		return 0, m.fail
	}
	e.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, e)
	return e.ID, nil
}

func (m *memStore) ListActivity(_ context.Context, limit, offset int) ([]db.ActivityEntry, error) {
	m.lastLim = limit
	return m.rows, nil
}

func (m *memStore) CountActivity(context.Context) (int64, error) {
	return int64(len(m.rows)), nil
}

// TestRecordStatus maps OK to success and failures to error.
func TestRecordStatus(t *testing.T) {
	m := &memStore{}
	r := NewRecorder(m, nil)
	r.Record(context.Background(), Entry{Action: "upload", Target: "/a", OK: true})
	r.Record(context.Background(), Entry{Action: "login_failed", Target: "eve", Details: "invalid credentials"})

	if len(m.rows) != 2 {
		t.Fatalf("rows=%d", len(m.rows))
	}
	if m.rows[0].Status != db.StatusSuccess || m.rows[1].Status != db.StatusError {
		t.Fatalf("statuses=%q,%q", m.rows[0].Status, m.rows[1].Status)
	}
	if m.rows[1].UserID != nil {
		t.Fatalf("expected nil user id")
	}
}

// TestRecordFailureIsLogged swallows store errors after logging them.
func TestRecordFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	m := &memStore{fail: errors.New("disk full")}
	r := NewRecorder(m, slog.New(slog.NewTextHandler(&buf, nil)))
	r.Record(context.Background(), Entry{Action: "delete"})
	if !strings.Contains(buf.String(), "disk full") {
		t.Fatalf("expected failure in log, got %q", buf.String())
	}
}

// TestListClampsLimit applies the default and maximum page sizes.
func TestListClampsLimit(t *testing.T) {
	m := &memStore{}
	r := NewRecorder(m, nil)
	if _, err := r.List(context.Background(), 0, 0); err != nil || m.lastLim != DefaultLimit {
		t.Fatalf("default limit=%d err=%v", m.lastLim, err)
	}
	if _, err := r.List(context.Background(), 10000, -3); err != nil || m.lastLim != MaxLimit {
		t.Fatalf("max limit=%d err=%v", m.lastLim, err)
	}
}
