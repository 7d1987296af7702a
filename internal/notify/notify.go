// Package notify delivers in-app notifications after successful actions.
// Delivery is best-effort: callers never roll back an action because a
// notification failed.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "carepilot/pkg/domain"
)

type Notification struct {
	UserID  id.UserID
	Title   string
	Message string
	Link    string
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// PostgresNotifier stores notifications in the notifications table for the
// web client to poll.
type PostgresNotifier struct {
	db *sql.DB
}

func NewPostgresNotifier(db *sql.DB) *PostgresNotifier {
	return &PostgresNotifier{db: db}
}

func (p *PostgresNotifier) Send(ctx context.Context, n Notification) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, link, read, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6)
	`, uuid.New(), uuid.UUID(n.UserID), n.Title, n.Message, n.Link, time.Now())
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// LogNotifier only logs. It is used when no database is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Send(ctx context.Context, n Notification) error {
	l.logger.InfoContext(ctx, "notification",
		"user_id", n.UserID.String(),
		"title", n.Title,
		"link", n.Link,
	)
	return nil
}
