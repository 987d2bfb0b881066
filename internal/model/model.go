// Package model defines the core domain types for the registration subsystem.
package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a registration.
type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusWaitlisted Status = "waitlisted"
	StatusCancelled  Status = "cancelled"
)

// transitions is the validated state machine. A registration enters at
// confirmed or waitlisted, leaves a seat only through cancelled, and a
// cancelled row re-enters through reactivation.
var transitions = map[Status][]Status{
	StatusConfirmed:  {StatusCancelled},
	StatusWaitlisted: {StatusConfirmed, StatusCancelled},
	StatusCancelled:  {StatusConfirmed, StatusWaitlisted},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Active reports whether the registration holds or waits for a seat.
func (s Status) Active() bool {
	return s == StatusConfirmed || s == StatusWaitlisted
}

// Transition returns the target status, or an error when the move is not in
// the transition table. Status is only ever mutated through this.
func (s Status) Transition(to Status) (Status, error) {
	for _, next := range transitions[s] {
		if next == to {
			return to, nil
		}
	}
	return s, fmt.Errorf("illegal status transition %s -> %s", s, to)
}

// Principal is the authenticated caller supplied by the identity provider.
// This subsystem never authenticates on its own.
type Principal struct {
	ID          string
	DisplayName string
	Email       string
}

// EventStatusPublished is the only catalog status that accepts registrations.
const EventStatusPublished = "published"

// Event is the read-only view of an event from the external catalog.
type Event struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Status               string     `json:"status"`
	RegistrationRequired bool       `json:"registrationRequired"`
	RegistrationDeadline *time.Time `json:"registrationDeadline"`
	MaxParticipants      *int       `json:"maxParticipants"`
	ConfirmedCount       int        `json:"-"`
	CreatedAt            time.Time  `json:"-"`
}

// AcceptsRegistrations reports whether the event is eligible for the
// registration endpoints at all, independent of deadline and capacity.
func (e *Event) AcceptsRegistrations() bool {
	return e.Status == EventStatusPublished && e.RegistrationRequired
}

// RegistrationOpen is the deadline gate: true when no deadline is set or the
// deadline is still in the future.
func (e *Event) RegistrationOpen(now time.Time) bool {
	return e.RegistrationDeadline == nil || e.RegistrationDeadline.After(now)
}

// SpotsAvailable returns the remaining confirmed seats, or nil when the
// event has unlimited capacity.
func (e *Event) SpotsAvailable() *int {
	if e.MaxParticipants == nil {
		return nil
	}
	n := *e.MaxParticipants - e.ConfirmedCount
	if n < 0 {
		n = 0
	}
	return &n
}

// Registration is one user's registration for one event. Rows are never
// deleted; cancellation is a status transition.
type Registration struct {
	ID               string     `json:"id"`
	EventID          string     `json:"eventId"`
	UserID           string     `json:"userId"`
	Status           Status     `json:"status"`
	ParticipantName  string     `json:"participantName"`
	ParticipantEmail string     `json:"participantEmail"`
	ParticipantPhone string     `json:"participantPhone"`
	Grade            string     `json:"grade"`
	SpecialRequests  string     `json:"specialRequests"`
	RegisteredAt     time.Time  `json:"registeredAt"`
	CheckedIn        bool       `json:"checkedIn"`
	CheckedInAt      *time.Time `json:"checkedInAt"`
	CreatedAt        time.Time  `json:"-"`
	UpdatedAt        time.Time  `json:"-"`
}

// ParticipantInfo is the free-form participant detail captured at
// registration time. None of it influences admission.
type ParticipantInfo struct {
	Name            string `json:"participantName"`
	Email           string `json:"participantEmail"`
	Phone           string `json:"participantPhone"`
	Grade           string `json:"grade"`
	SpecialRequests string `json:"specialRequests"`
}

// RegisterResponse is the payload returned on a successful registration.
type RegisterResponse struct {
	ID              string    `json:"id"`
	Status          Status    `json:"status"`
	RegisteredAt    time.Time `json:"registeredAt"`
	ParticipantName string    `json:"participantName"`
	Grade           string    `json:"grade"`
}

// EventSummary is the event block of the registration status response.
type EventSummary struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	RegistrationRequired bool       `json:"registrationRequired"`
	RegistrationDeadline *time.Time `json:"registrationDeadline"`
	MaxParticipants      *int       `json:"maxParticipants"`
	RegistrationCount    int        `json:"registrationCount"`
	SpotsAvailable       *int       `json:"spotsAvailable"`
	IsRegistrationOpen   bool       `json:"isRegistrationOpen"`
}

// StatusResponse is the full payload of GET /events/{id}/registration.
type StatusResponse struct {
	Event                 EventSummary  `json:"event"`
	Registration          *Registration `json:"registration"`
	CanRegister           bool          `json:"canRegister"`
	CanCancelRegistration bool          `json:"canCancelRegistration"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Notification kinds emitted by the registration subsystem.
const (
	NotificationRegistrationConfirmed  = "registration_confirmed"
	NotificationRegistrationWaitlisted = "registration_waitlisted"
	NotificationWaitlistPromoted       = "waitlist_promoted"
	NotificationRegistrationCancelled  = "registration_cancelled"
)

// Notification is one outbox record destined for the external notification
// collaborator. Delivery is best effort; SentAt stays nil until it happens.
type Notification struct {
	ID             string     `json:"id"`
	EventID        string     `json:"eventId"`
	Type           string     `json:"type"`
	RecipientType  string     `json:"recipientType"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	RecipientCount int        `json:"recipientCount"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	SentAt         *time.Time `json:"-"`
}
