// Package service implements the registration business logic: admission
// preconditions, the deadline gate, and orchestration between HTTP handlers
// and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riverfold/event-registration/internal/model"
	"github.com/riverfold/event-registration/internal/repository"
)

// ErrEventNotEligible is returned when the event is unknown, unpublished, or
// does not require registration.
var ErrEventNotEligible = errors.New("event is not open for registration")

// ErrDeadlinePassed is returned when the registration deadline is in the past.
// It currently gates cancellation as well as registration.
var ErrDeadlinePassed = errors.New("registration deadline has passed")

// EventStore is the read-only event catalog.
type EventStore interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// RegistrationStore persists registrations. Admit and Cancel are atomic:
// the admission decision, the seat ledger update, any promotion, and the
// outbox write commit or roll back together.
type RegistrationStore interface {
	GetByEventUser(ctx context.Context, eventID, userID string) (*model.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	Admit(ctx context.Context, eventID, userID string, info model.ParticipantInfo, now time.Time) (*model.Registration, error)
	Cancel(ctx context.Context, eventID, userID string, now time.Time) (cancelled, promoted *model.Registration, err error)
}

// RegistrationService orchestrates registration operations.
type RegistrationService struct {
	events        EventStore
	registrations RegistrationStore
	clock         func() time.Time
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(events EventStore, registrations RegistrationStore) *RegistrationService {
	return &RegistrationService{
		events:        events,
		registrations: registrations,
		clock:         time.Now,
	}
}

// Status assembles the registration view for one event and caller: the
// event summary, the caller's active registration if any, and whether the
// caller may currently register or cancel.
func (s *RegistrationService) Status(ctx context.Context, eventID string, caller model.Principal) (*model.StatusResponse, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status != model.EventStatusPublished {
		return nil, repository.ErrNotFound
	}
	if !ev.RegistrationRequired {
		return nil, ErrEventNotEligible
	}

	var active *model.Registration
	reg, err := s.registrations.GetByEventUser(ctx, eventID, caller.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	if reg != nil && reg.Status.Active() {
		active = reg
	}

	now := s.clock()
	open := ev.RegistrationOpen(now)
	return &model.StatusResponse{
		Event: model.EventSummary{
			ID:                   ev.ID,
			Title:                ev.Title,
			RegistrationRequired: ev.RegistrationRequired,
			RegistrationDeadline: ev.RegistrationDeadline,
			MaxParticipants:      ev.MaxParticipants,
			RegistrationCount:    ev.ConfirmedCount,
			SpotsAvailable:       ev.SpotsAvailable(),
			IsRegistrationOpen:   open,
		},
		Registration:          active,
		CanRegister:           open && active == nil,
		CanCancelRegistration: open && active != nil,
	}, nil
}

// Register admits the caller to the event, either Confirmed or Waitlisted.
// Preconditions are checked in order: event eligibility, deadline, then the
// duplicate check and seat decision inside the store transaction.
func (s *RegistrationService) Register(ctx context.Context, eventID string, caller model.Principal, info model.ParticipantInfo) (*model.Registration, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotEligible
		}
		return nil, fmt.Errorf("load event: %w", err)
	}
	if !ev.AcceptsRegistrations() {
		return nil, ErrEventNotEligible
	}
	if !ev.RegistrationOpen(s.clock()) {
		return nil, ErrDeadlinePassed
	}

	// Participant fields are free form; the principal only fills gaps.
	if info.Name == "" {
		info.Name = caller.DisplayName
	}
	if info.Email == "" {
		info.Email = caller.Email
	}

	reg, err := s.registrations.Admit(ctx, eventID, caller.ID, info, s.clock())
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyRegistered) || errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("admit registration: %w", err)
	}
	return reg, nil
}

// Cancel marks the caller's active registration cancelled. When the
// cancelled registration was Confirmed, the store promotes the front of the
// waitlist in the same transaction.
func (s *RegistrationService) Cancel(ctx context.Context, eventID string, caller model.Principal) (*model.Registration, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status != model.EventStatusPublished {
		return nil, repository.ErrNotFound
	}
	if !ev.RegistrationOpen(s.clock()) {
		return nil, ErrDeadlinePassed
	}

	cancelled, _, err := s.registrations.Cancel(ctx, eventID, caller.ID, s.clock())
	if err != nil {
		if errors.Is(err, repository.ErrNotRegistered) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel registration: %w", err)
	}
	return cancelled, nil
}

// ListRegistrations returns all registrations for an event in registration
// order, for the host application's admin surface.
func (s *RegistrationService) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.registrations.ListByEvent(ctx, eventID)
}
