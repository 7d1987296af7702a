// Package worker relays committed audit outbox entries to the export topic.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Producer publishes one keyed message. internal/platform/kafka provides the
// franz-go implementation.
type Producer interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Worker polls the outbox table and publishes unpublished rows in creation
// order. Rows are locked with SKIP LOCKED so several replicas can relay safely.
type Worker struct {
	db        *sql.DB
	producer  Producer
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func NewWorker(db *sql.DB, producer Producer, opts ...Option) *Worker {
	w := &Worker{
		db:        db,
		producer:  producer,
		logger:    slog.Default(),
		batchSize: 100,
		interval:  time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. Relay errors are logged and retried on the
// next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := w.RelayOnce(ctx)
			if err != nil {
				w.logger.WarnContext(ctx, "audit outbox relay failed", "error", err)
				continue
			}
			if n > 0 {
				w.logger.DebugContext(ctx, "audit outbox relayed", "count", n)
			}
		}
	}
}

type outboxRow struct {
	id      string
	key     string
	payload []byte
}

// RelayOnce publishes one batch and marks it published. A publish failure
// rolls the batch back so every row is retried; consumers dedupe on payload id.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select outbox: %w", err)
	}
	var batch []outboxRow
	for rows.Next() {
		var r outboxRow
		if err := rows.Scan(&r.id, &r.key, &r.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox: %w", err)
		}
		batch = append(batch, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(batch))
	for _, r := range batch {
		if err := w.producer.Publish(ctx, []byte(r.key), r.payload); err != nil {
			return 0, fmt.Errorf("publish outbox entry %s: %w", r.id, err)
		}
		ids = append(ids, r.id)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`,
		time.Now(), pq.Array(ids),
	); err != nil {
		return 0, fmt.Errorf("mark outbox published: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	return len(batch), nil
}
