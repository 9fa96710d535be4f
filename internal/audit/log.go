package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Store persists entries in append order.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, subject string, limit int) ([]Entry, error)
}

// Log assigns sequence numbers and appends entries. The store append is
// fail-closed: if it errors, the caller's operation must not proceed as if
// audited. Sink delivery is best-effort and asynchronous.
type Log struct {
	mu     sync.Mutex
	seq    uint64
	store  Store
	outbox chan Entry
	logger *slog.Logger
	now    func() time.Time
}

func NewLog(store Store, logger *slog.Logger) *Log {
	return &Log{
		store:  store,
		outbox: make(chan Entry, 256),
		logger: logger,
		now:    time.Now,
	}
}

// Record appends one entry. Seq and Timestamp are assigned here; callers fill
// the rest.
func (l *Log) Record(ctx context.Context, e Entry) error {
	l.mu.Lock()
	l.seq++
	e.Seq = l.seq
	e.Timestamp = l.now().UTC()
	l.mu.Unlock()

	if err := l.store.Append(ctx, e); err != nil {
		return err
	}

	select {
	case l.outbox <- e:
	default:
		l.logger.WarnContext(ctx, "audit outbox full, entry not forwarded to sink", "seq", e.Seq)
	}
	return nil
}

// List returns entries for a subject in append order. Empty subject returns
// all entries.
func (l *Log) List(ctx context.Context, subject string, limit int) ([]Entry, error) {
	return l.store.List(ctx, subject, limit)
}

// Outbox exposes recorded entries for the sink worker.
func (l *Log) Outbox() <-chan Entry { return l.outbox }

// Sink is an external destination for audit entries, such as a Kafka topic.
type Sink interface {
	Publish(ctx context.Context, e Entry) error
}

// Worker drains the log's outbox into a sink. Sink failures are logged and
// dropped; the store already holds the authoritative record.
type Worker struct {
	log    *Log
	sink   Sink
	logger *slog.Logger
}

func NewWorker(log *Log, sink Sink, logger *slog.Logger) *Worker {
	return &Worker{log: log, sink: sink, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-w.log.Outbox():
			if err := w.sink.Publish(ctx, e); err != nil {
				w.logger.WarnContext(ctx, "audit sink publish failed", "seq", e.Seq, "error", err)
			}
		}
	}
}
