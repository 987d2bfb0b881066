// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/riverfold/event-registration/internal/model"
	"github.com/riverfold/event-registration/internal/repository"
	"github.com/riverfold/event-registration/internal/service"
)

// RegistrationHandler holds the HTTP handlers for the registration API.
type RegistrationHandler struct {
	svc *service.RegistrationService
}

// NewRegistrationHandler constructs a RegistrationHandler.
func NewRegistrationHandler(svc *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// Status handles GET /events/{id}/registration
// Returns the event summary plus the caller's registration state.
func (h *RegistrationHandler) Status(w http.ResponseWriter, r *http.Request) {
	caller, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id := chi.URLParam(r, "id")

	status, err := h.svc.Status(r.Context(), id, caller)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, service.ErrEventNotEligible):
			writeError(w, http.StatusBadRequest, "registration is not required for this event")
		default:
			writeError(w, http.StatusInternalServerError, "failed to load registration status")
		}
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Register handles POST /events/{id}/registration
// Admits the caller as Confirmed or Waitlisted.
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	caller, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id := chi.URLParam(r, "id")

	var info model.ParticipantInfo
	if err := decodeJSON(r, &info); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reg, err := h.svc.Register(r.Context(), id, caller, info)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEventNotEligible), errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "event is not open for registration")
		case errors.Is(err, service.ErrDeadlinePassed):
			writeError(w, http.StatusBadRequest, "registration deadline has passed")
		case errors.Is(err, repository.ErrAlreadyRegistered):
			writeError(w, http.StatusBadRequest, "you are already registered for this event")
		default:
			writeError(w, http.StatusInternalServerError, "failed to register")
		}
		return
	}

	writeJSON(w, http.StatusOK, model.RegisterResponse{
		ID:              reg.ID,
		Status:          reg.Status,
		RegisteredAt:    reg.RegisteredAt,
		ParticipantName: reg.ParticipantName,
		Grade:           reg.Grade,
	})
}

// Cancel handles DELETE /events/{id}/registration
// Cancels the caller's active registration; a freed seat promotes the front
// of the waitlist.
func (h *RegistrationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id := chi.URLParam(r, "id")

	_, err := h.svc.Cancel(r.Context(), id, caller)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, service.ErrDeadlinePassed):
			writeError(w, http.StatusBadRequest, "registration deadline has passed")
		case errors.Is(err, repository.ErrNotRegistered):
			writeError(w, http.StatusBadRequest, "you are not registered for this event")
		default:
			writeError(w, http.StatusInternalServerError, "failed to cancel registration")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "registration cancelled"})
}

// ListRegistrations handles GET /events/{id}/registrations
// Returns all registrations for an event in registration order.
func (h *RegistrationHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	if _, ok := PrincipalFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id := chi.URLParam(r, "id")

	regs, err := h.svc.ListRegistrations(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list registrations")
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
