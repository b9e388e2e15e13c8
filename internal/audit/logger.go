package audit

import (
	"context"
	"sync"
	"time"

	"github.com/keyfold/keyfold-core/internal/authz"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Log is the minimal logging interface the audit logger needs.
type Log interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLog is a logger that does nothing.
type noopLog struct{}

func (noopLog) Warn(string, ...any)  {}
func (noopLog) Error(string, ...any) {}

// Logger writes audit entries through a bounded queue so callers never
// block: recording an event is fire-and-forget, and when the queue is full
// the entry is dropped with a warning rather than stalling the caller.
//
// It satisfies authz.AuditSink.
type Logger struct {
	repo  Repository
	queue chan AuditLog
	log   Log

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewLogger creates an audit logger and starts its writer goroutine.
// queueSize falls back to 256 when non-positive; log may be nil.
func NewLogger(repo Repository, queueSize int, log Log) *Logger {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = noopLog{}
	}

	l := &Logger{
		repo:  repo,
		queue: make(chan AuditLog, queueSize),
		log:   log,
	}
	l.wg.Add(1)
	go l.drain()
	return l
}

// LogEvent enqueues a generic audit entry. Never blocks.
func (l *Logger) LogEvent(action, entityType, entityID, userID, status string, details map[string]any) {
	l.enqueue(AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Status:     status,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	})
}

// RecordDecision enqueues an authorisation decision. Never blocks.
func (l *Logger) RecordDecision(decision authz.Decision) {
	status := StatusDenied
	details := map[string]any{}
	if decision.Granted {
		status = StatusGranted
		details["matched"] = decision.Matched
	} else {
		details["reason"] = string(decision.Reason)
	}

	l.enqueue(AuditLog{
		Action:     string(decision.Operation),
		EntityType: "device",
		EntityID:   decision.DeviceID,
		UserID:     decision.UserID,
		Status:     status,
		Details:    details,
		CreatedAt:  decision.Timestamp,
	})
}

// Close stops accepting entries, flushes the queue and waits for the writer.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.queue)
	})
	l.wg.Wait()
}

// enqueue adds an entry, dropping it when the queue is full.
func (l *Logger) enqueue(entry AuditLog) {
	defer func() {
		// Sends on a closed queue are dropped rather than panicking the
		// caller; audit entries after Close have nowhere to go anyway.
		if recover() != nil {
			l.log.Warn("audit entry dropped after logger close", "action", entry.Action)
		}
	}()

	select {
	case l.queue <- entry:
	default:
		l.log.Warn("audit queue full, dropping entry",
			"action", entry.Action, "entity_id", entry.EntityID)
	}
}

// drain writes queued entries until the queue closes.
func (l *Logger) drain() {
	defer l.wg.Done()
	for entry := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := l.repo.Create(ctx, &entry); err != nil {
			l.log.Error("writing audit entry failed",
				"action", entry.Action, "error", err.Error())
		}
		cancel()
	}
}
