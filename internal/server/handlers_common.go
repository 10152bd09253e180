package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"patrol/dispatch/internal/dispatch"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type APIError struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

const (
	errInvalidPayload    = "invalid payload"
	errInvalidDispatchID = "invalid dispatch id"
	errInvalidStationID  = "invalid station id"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, details interface{}) {
	s.writeJSON(w, status, APIError{Error: message, Details: details})
}

func (s *Server) decodeAndValidate(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := s.validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := chi.URLParam(r, key)
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, errors.New("missing id")
	}
	return uuid.Parse(raw)
}

func (s *Server) parseUUIDBody(raw string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(raw))
}

// callerID resolves the authenticated principal's id from the verified
// token subject. Every officer-facing operation uses this, never a
// client-supplied id.
func (s *Server) callerID(r *http.Request) (uuid.UUID, error) {
	claims, ok := GetUserFromContext(r.Context())
	if !ok {
		return uuid.Nil, errors.New("no authenticated principal")
	}
	return uuid.Parse(claims.Subject)
}

// writeEngineError maps the engine's failure taxonomy onto HTTP statuses,
// always with a specific named reason.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var conflict *dispatch.ConflictError
	switch {
	case errors.As(err, &conflict):
		s.writeError(w, http.StatusConflict, conflict.Error(), map[string]string{
			"current_status": string(conflict.Current),
		})
	case errors.Is(err, dispatch.ErrDispatchNotFound),
		errors.Is(err, dispatch.ErrReportNotFound),
		errors.Is(err, dispatch.ErrOfficerNotFound),
		errors.Is(err, dispatch.ErrStationNotFound):
		s.writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, dispatch.ErrNotPatrolOfficer),
		errors.Is(err, dispatch.ErrNotAssignedOfficer):
		s.writeError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, dispatch.ErrUnassignedReport),
		errors.Is(err, dispatch.ErrOffDuty),
		errors.Is(err, dispatch.ErrWrongStation):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, dispatch.ErrDuplicateActiveDispatch):
		s.writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		s.writeError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
