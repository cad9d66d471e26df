package server

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
)

const auditQueueSize = 1024

// Auditor appends request outcomes to the audit_events table. Writes happen
// on a single background worker; Record never blocks.
type Auditor struct {
	db    *sql.DB
	queue chan Outcome
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewAuditor starts the audit worker. A nil db yields a nil Auditor, on
// which every method is a no-op.
func NewAuditor(db *sql.DB) *Auditor {
	if db == nil {
		return nil
	}
	a := &Auditor{
		db:    db,
		queue: make(chan Outcome, auditQueueSize),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Record queues an outcome. When the queue is full or the auditor is
// closed the event is dropped.
func (a *Auditor) Record(out Outcome) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		Warn("auditor closed, event dropped", map[string]any{"request_id": out.RequestID})
		return
	}
	select {
	case a.queue <- out:
	default:
		Warn("audit queue full, event dropped", map[string]any{"request_id": out.RequestID})
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (a *Auditor) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Auditor) run() {
	defer a.wg.Done()
	for out := range a.queue {
		if err := a.insert(out); err != nil {
			Error("audit insert failed", map[string]any{"request_id": out.RequestID}, err)
		}
	}
}

func (a *Auditor) insert(out Outcome) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, occurred_at, request_id, method, name, status,
			bytes, duration_ms, client_ip, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.New(),
		out.Time,
		out.RequestID,
		out.Method,
		nullString(out.Name),
		out.Status,
		out.Bytes,
		out.Duration.Milliseconds(),
		out.ClientIP,
		nullString(out.UserAgent),
	)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
