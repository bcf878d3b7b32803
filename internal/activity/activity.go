// Package activity records the append-only audit trail. Recording is best
// effort: a failed write is logged and never fails the request it describes.
package activity

import (
	"context"
	"log/slog"
	"time"

	"filegate/internal/db"
)

type Store interface {
	InsertActivity(ctx context.Context, e db.ActivityEntry) (int64, error)
	ListActivity(ctx context.Context, limit, offset int) ([]db.ActivityEntry, error)
	CountActivity(ctx context.Context) (int64, error)
}

// Entry describes one audited action.
type Entry struct {
	UserID     *int64
	Action     string
	Target     string
	SourceAddr string
	OK         bool
	Details    string
}

// Record is a single listed audit row.
type Record struct {
	ID         int64     `json:"id,string"`
	UserID     *int64    `json:"user_id"`
	Username   string    `json:"user"`
	Action     string    `json:"action"`
	Target     string    `json:"target"`
	SourceAddr string    `json:"ip_address"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"`
	Details    string    `json:"details"`
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type Recorder struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// Record appends e. Failures are logged at warn level.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.store == nil {
		return
	}
	status := db.StatusSuccess
	if !e.OK {
		status = db.StatusError
	}
	// The request context may already be cancelled once the response is out.
	ctx = context.WithoutCancel(ctx)
	_, err := r.store.InsertActivity(ctx, db.ActivityEntry{
		UserID:     e.UserID,
		Action:     e.Action,
		Target:     e.Target,
		SourceAddr: e.SourceAddr,
		CreatedAt:  r.now().Unix(),
		Status:     status,
		Details:    e.Details,
	})
	if err != nil {
		r.logger.Warn("activity log write failed", "action", e.Action, "target", e.Target, "err", err)
	}
}

// Total returns the number of audit rows recorded so far.
func (r *Recorder) Total(ctx context.Context) (int64, error) {
	return r.store.CountActivity(ctx)
}

// List returns a page of audit rows, newest first. limit is clamped to
// [1, MaxLimit] with DefaultLimit for non-positive values; negative offsets
// become 0.
func (r *Recorder) List(ctx context.Context, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.store.ListActivity(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, Record{
			ID:         row.ID,
			UserID:     row.UserID,
			Username:   row.Username,
			Action:     row.Action,
			Target:     row.Target,
			SourceAddr: row.SourceAddr,
			Timestamp:  time.Unix(row.CreatedAt, 0).UTC(),
			Status:     row.Status,
			Details:    row.Details,
		})
	}
	return out, nil
}
