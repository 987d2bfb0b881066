package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riverfold/event-registration/internal/model"
)

// Outbox records are written inside the same transaction as the state
// change they describe, so a committed admission or promotion always has
// its notification queued and a rolled-back one never does. Delivery is the
// dispatcher's problem, not the transaction's.

func admissionNotification(reg *model.Registration, now time.Time) model.Notification {
	kind := model.NotificationRegistrationWaitlisted
	title := "You are on the waitlist"
	message := "The event is currently full. You have been added to the waitlist and will be confirmed automatically when a spot opens up."
	if reg.Status == model.StatusConfirmed {
		kind = model.NotificationRegistrationConfirmed
		title = "Registration confirmed"
		message = "Your registration has been confirmed. We look forward to seeing you."
	}
	return model.Notification{
		ID:             uuid.New().String(),
		EventID:        reg.EventID,
		Type:           kind,
		RecipientType:  "participant",
		Title:          title,
		Message:        message,
		RecipientCount: 1,
		CreatedBy:      reg.UserID,
		CreatedAt:      now,
	}
}

func promotionNotification(reg *model.Registration, now time.Time) model.Notification {
	return model.Notification{
		ID:             uuid.New().String(),
		EventID:        reg.EventID,
		Type:           model.NotificationWaitlistPromoted,
		RecipientType:  "participant",
		Title:          "A spot opened up",
		Message:        "You have been moved off the waitlist. Your registration is now confirmed.",
		RecipientCount: 1,
		CreatedBy:      reg.UserID,
		CreatedAt:      now,
	}
}

func cancellationNotification(reg *model.Registration, now time.Time) model.Notification {
	return model.Notification{
		ID:             uuid.New().String(),
		EventID:        reg.EventID,
		Type:           model.NotificationRegistrationCancelled,
		RecipientType:  "participant",
		Title:          "Registration cancelled",
		Message:        "Your registration has been cancelled.",
		RecipientCount: 1,
		CreatedBy:      reg.UserID,
		CreatedAt:      now,
	}
}

func insertOutbox(ctx context.Context, tx pgx.Tx, n model.Notification) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO notification_outbox
		 (id, event_id, type, recipient_type, title, message, recipient_count, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.EventID, n.Type, n.RecipientType, n.Title, n.Message,
		n.RecipientCount, n.CreatedBy, n.CreatedAt); err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

// OutboxRepository is the dispatcher's view of the notification outbox.
type OutboxRepository struct {
	db *pgxpool.Pool
}

// NewOutboxRepository constructs an OutboxRepository.
func NewOutboxRepository(db *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// FetchPending returns up to limit undelivered notifications, oldest first.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]model.Notification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, type, recipient_type, title, message, recipient_count, created_by, created_at
		 FROM notification_outbox
		 WHERE sent_at IS NULL
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending notifications: %w", err)
	}
	defer rows.Close()

	var pending []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.EventID, &n.Type, &n.RecipientType,
			&n.Title, &n.Message, &n.RecipientCount, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		pending = append(pending, n)
	}
	return pending, rows.Err()
}

// MarkSent records a successful delivery.
func (r *OutboxRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE notification_outbox SET sent_at = $2 WHERE id = $1`,
		id, at); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}
