package model

import (
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusConfirmed, StatusCancelled, true},
		{StatusWaitlisted, StatusConfirmed, true},
		{StatusWaitlisted, StatusCancelled, true},
		{StatusCancelled, StatusConfirmed, true},
		{StatusCancelled, StatusWaitlisted, true},
		{StatusConfirmed, StatusWaitlisted, false},
		{StatusConfirmed, StatusConfirmed, false},
		{StatusWaitlisted, StatusWaitlisted, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, tc := range cases {
		got, err := tc.from.Transition(tc.to)
		if tc.ok {
			if err != nil {
				t.Errorf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
			}
			if got != tc.to {
				t.Errorf("%s -> %s: got %s", tc.from, tc.to, got)
			}
		} else {
			if err == nil {
				t.Errorf("%s -> %s: expected error", tc.from, tc.to)
			}
			if got != tc.from {
				t.Errorf("%s -> %s: status changed on failed transition", tc.from, tc.to)
			}
		}
	}
}

func TestStatusActive(t *testing.T) {
	if !StatusConfirmed.Active() || !StatusWaitlisted.Active() {
		t.Error("confirmed and waitlisted should be active")
	}
	if StatusCancelled.Active() {
		t.Error("cancelled should not be active")
	}
}

func TestRegistrationOpen(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	cases := []struct {
		name     string
		deadline *time.Time
		want     bool
	}{
		{"no deadline", nil, true},
		{"future deadline", &future, true},
		{"past deadline", &past, false},
		{"deadline exactly now", &now, false},
	}
	for _, tc := range cases {
		e := &Event{RegistrationDeadline: tc.deadline}
		if got := e.RegistrationOpen(now); got != tc.want {
			t.Errorf("%s: RegistrationOpen = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAcceptsRegistrations(t *testing.T) {
	cases := []struct {
		name     string
		status   string
		required bool
		want     bool
	}{
		{"published and required", EventStatusPublished, true, true},
		{"published not required", EventStatusPublished, false, false},
		{"draft", "draft", true, false},
		{"archived", "archived", true, false},
	}
	for _, tc := range cases {
		e := &Event{Status: tc.status, RegistrationRequired: tc.required}
		if got := e.AcceptsRegistrations(); got != tc.want {
			t.Errorf("%s: AcceptsRegistrations = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSpotsAvailable(t *testing.T) {
	cap2 := 2
	e := &Event{MaxParticipants: &cap2, ConfirmedCount: 0}
	if got := e.SpotsAvailable(); got == nil || *got != 2 {
		t.Errorf("expected 2 spots, got %v", got)
	}

	e.ConfirmedCount = 2
	if got := e.SpotsAvailable(); got == nil || *got != 0 {
		t.Errorf("expected 0 spots, got %v", got)
	}

	// Overfull ledgers clamp at zero rather than going negative.
	e.ConfirmedCount = 3
	if got := e.SpotsAvailable(); got == nil || *got != 0 {
		t.Errorf("expected 0 spots for overfull event, got %v", got)
	}

	unlimited := &Event{MaxParticipants: nil, ConfirmedCount: 500}
	if got := unlimited.SpotsAvailable(); got != nil {
		t.Errorf("expected nil spots for unlimited event, got %v", got)
	}
}
