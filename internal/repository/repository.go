// Package repository implements all database access for the registration
// subsystem. It uses pgx directly (no ORM) so that every locking decision is
// visible in the query text.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riverfold/event-registration/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyRegistered is returned when the user already has an active
// registration for the event.
var ErrAlreadyRegistered = errors.New("already registered for this event")

// ErrNotRegistered is returned when cancellation finds no active
// registration for the (event, user) pair.
var ErrNotRegistered = errors.New("no active registration for this event")

// EventRepository reads the event catalog. The catalog is owned by an
// external collaborator; this subsystem only ever updates confirmed_count.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, title, status, registration_required, registration_deadline, max_participants, confirmed_count, created_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Status, &e.RegistrationRequired,
		&e.RegistrationDeadline, &e.MaxParticipants, &e.ConfirmedCount, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &e, nil
}

// GetByID returns a single event or ErrNotFound. The read is not locked;
// display reads of spots remaining may lag concurrent admissions.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	return scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

// RegistrationRepository owns the registrations table and the capacity
// ledger (events.confirmed_count). All writes go through transactions that
// hold an exclusive lock on the event row, so admission decisions for one
// event are fully serialized while different events never contend.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `id, event_id, user_id, status, participant_name, participant_email, participant_phone, grade, special_requests, registered_at, checked_in, checked_in_at, created_at, updated_at`

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var reg model.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status,
		&reg.ParticipantName, &reg.ParticipantEmail, &reg.ParticipantPhone,
		&reg.Grade, &reg.SpecialRequests, &reg.RegisteredAt,
		&reg.CheckedIn, &reg.CheckedInAt, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan registration: %w", err)
	}
	return &reg, nil
}

// GetByEventUser returns the registration row for (eventID, userID), active
// or cancelled, or ErrNotFound. The reactivation policy updates cancelled
// rows in place, so at most one row exists per pair.
func (r *RegistrationRepository) GetByEventUser(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	return scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND user_id = $2`,
		eventID, userID))
}

// ListByEvent returns all registrations for an event in registration order.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1
		 ORDER BY registered_at ASC, id ASC`,
		eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// lockEvent acquires the exclusive row-level lock on the event that every
// admission and cancellation serializes on. SELECT ... FOR UPDATE blocks any
// concurrent transaction on the same event until we commit or roll back,
// which is what makes read-decide-write on the seat count safe.
func lockEvent(ctx context.Context, tx pgx.Tx, eventID string) error {
	var id string
	err := tx.QueryRow(ctx,
		`SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock event row: %w", err)
	}
	return nil
}

// reserveSeat atomically claims one confirmed seat, succeeding only while
// confirmed_count is below max_participants. A NULL max_participants means
// unlimited capacity and always reserves.
func reserveSeat(ctx context.Context, tx pgx.Tx, eventID string) (bool, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE events
		 SET confirmed_count = confirmed_count + 1
		 WHERE id = $1
		   AND (max_participants IS NULL OR confirmed_count < max_participants)`,
		eventID)
	if err != nil {
		return false, fmt.Errorf("reserve seat: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// releaseSeat returns one confirmed seat to the pool, never going below zero.
func releaseSeat(ctx context.Context, tx pgx.Tx, eventID string) error {
	if _, err := tx.Exec(ctx,
		`UPDATE events
		 SET confirmed_count = GREATEST(confirmed_count - 1, 0)
		 WHERE id = $1`,
		eventID); err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}

// Admit decides Confirmed vs Waitlisted for one registration request and
// records the outcome, all inside a single transaction holding the event row
// lock. Two requests racing for the last seat serialize on the lock, so one
// sees the seat and the other sees a full event.
func (r *RegistrationRepository) Admit(ctx context.Context, eventID, userID string, info model.ParticipantInfo, now time.Time) (*model.Registration, error) {
	var reg *model.Registration
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		reg, err = r.admit(ctx, eventID, userID, info, now)
		return err
	})
	return reg, err
}

func (r *RegistrationRepository) admit(ctx context.Context, eventID, userID string, info model.ParticipantInfo, now time.Time) (reg *model.Registration, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = lockEvent(ctx, tx, eventID); err != nil {
		return nil, err
	}

	existing, err := scanRegistration(tx.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND user_id = $2`,
		eventID, userID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status.Active() {
		return nil, ErrAlreadyRegistered
	}

	reserved, err := reserveSeat(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	status := model.StatusWaitlisted
	if reserved {
		status = model.StatusConfirmed
	}

	if existing != nil {
		// Reactivation: the cancelled row is reused, never duplicated.
		// Resetting registered_at puts the requester at the back of the
		// waitlist.
		if _, err = existing.Status.Transition(status); err != nil {
			return nil, err
		}
		reg = existing
		reg.Status = status
		reg.ParticipantName = info.Name
		reg.ParticipantEmail = info.Email
		reg.ParticipantPhone = info.Phone
		reg.Grade = info.Grade
		reg.SpecialRequests = info.SpecialRequests
		reg.RegisteredAt = now
		_, err = tx.Exec(ctx,
			`UPDATE registrations
			 SET status = $2, participant_name = $3, participant_email = $4,
			     participant_phone = $5, grade = $6, special_requests = $7,
			     registered_at = $8, updated_at = $8
			 WHERE id = $1`,
			reg.ID, reg.Status, reg.ParticipantName, reg.ParticipantEmail,
			reg.ParticipantPhone, reg.Grade, reg.SpecialRequests, now)
		if err != nil {
			return nil, fmt.Errorf("reactivate registration: %w", err)
		}
	} else {
		reg = &model.Registration{
			ID:               uuid.New().String(),
			EventID:          eventID,
			UserID:           userID,
			Status:           status,
			ParticipantName:  info.Name,
			ParticipantEmail: info.Email,
			ParticipantPhone: info.Phone,
			Grade:            info.Grade,
			SpecialRequests:  info.SpecialRequests,
			RegisteredAt:     now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO registrations
			 (id, event_id, user_id, status, participant_name, participant_email,
			  participant_phone, grade, special_requests, registered_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10, $10)`,
			reg.ID, reg.EventID, reg.UserID, reg.Status, reg.ParticipantName,
			reg.ParticipantEmail, reg.ParticipantPhone, reg.Grade,
			reg.SpecialRequests, now)
		if err != nil {
			return nil, fmt.Errorf("insert registration: %w", err)
		}
	}

	if err = insertOutbox(ctx, tx, admissionNotification(reg, now)); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return reg, nil
}

// Cancel marks the caller's active registration cancelled and, when that
// registration held a confirmed seat, promotes the oldest waitlisted
// registration in the same transaction. Concurrent cancellations for one
// event serialize on the event row lock, so each promotion reads the
// current front of the waitlist rather than a stale snapshot.
func (r *RegistrationRepository) Cancel(ctx context.Context, eventID, userID string, now time.Time) (cancelled, promoted *model.Registration, err error) {
	err = r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		cancelled, promoted, err = r.cancel(ctx, eventID, userID, now)
		return err
	})
	return cancelled, promoted, err
}

func (r *RegistrationRepository) cancel(ctx context.Context, eventID, userID string, now time.Time) (cancelled, promoted *model.Registration, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = lockEvent(ctx, tx, eventID); err != nil {
		return nil, nil, err
	}

	cancelled, err = scanRegistration(tx.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND user_id = $2 AND status <> 'cancelled'`,
		eventID, userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotRegistered
		}
		return nil, nil, err
	}

	wasConfirmed := cancelled.Status == model.StatusConfirmed
	if cancelled.Status, err = cancelled.Status.Transition(model.StatusCancelled); err != nil {
		return nil, nil, err
	}
	if _, err = tx.Exec(ctx,
		`UPDATE registrations SET status = $2, updated_at = $3 WHERE id = $1`,
		cancelled.ID, cancelled.Status, now); err != nil {
		return nil, nil, fmt.Errorf("cancel registration: %w", err)
	}

	// A waitlisted registration held no seat, so nothing frees up.
	if wasConfirmed {
		if err = releaseSeat(ctx, tx, eventID); err != nil {
			return nil, nil, err
		}
		if promoted, err = promoteFront(ctx, tx, eventID, now); err != nil {
			return nil, nil, err
		}
	}

	if err = insertOutbox(ctx, tx, cancellationNotification(cancelled, now)); err != nil {
		return nil, nil, err
	}
	if promoted != nil {
		if err = insertOutbox(ctx, tx, promotionNotification(promoted, now)); err != nil {
			return nil, nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit transaction: %w", err)
	}
	return cancelled, promoted, nil
}

// promoteFront confirms the waitlisted registration with the smallest
// registered_at, or returns nil when the waitlist is empty. The caller has
// just released a seat under the event row lock, so the reservation cannot
// fail.
func promoteFront(ctx context.Context, tx pgx.Tx, eventID string, now time.Time) (*model.Registration, error) {
	front, err := scanRegistration(tx.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND status = 'waitlisted'
		 ORDER BY registered_at ASC, id ASC
		 LIMIT 1`,
		eventID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	reserved, err := reserveSeat(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, fmt.Errorf("promote registration %s: seat vanished under event lock", front.ID)
	}

	if front.Status, err = front.Status.Transition(model.StatusConfirmed); err != nil {
		return nil, err
	}
	if _, err = tx.Exec(ctx,
		`UPDATE registrations SET status = $2, updated_at = $3 WHERE id = $1`,
		front.ID, front.Status, now); err != nil {
		return nil, fmt.Errorf("promote registration: %w", err)
	}
	return front, nil
}

// withRetry reruns fn on transient serialization or deadlock failures.
// Bounded with short backoff; anything still failing escalates to the
// caller as an internal error.
func (r *RegistrationRepository) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(25<<attempt) * time.Millisecond):
			}
		}
		if err = fn(ctx); !isTransient(err) {
			return err
		}
	}
	return err
}

// isTransient reports whether err is a Postgres serialization failure or
// deadlock, the two conflict classes worth retrying.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
