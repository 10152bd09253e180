package server

import (
	"net/http"

	"patrol/dispatch/internal/dispatch"
)

type UpdateLocationRequest struct {
	Latitude  float64  `json:"latitude" validate:"latitude"`
	Longitude float64  `json:"longitude" validate:"longitude"`
	Heading   *float64 `json:"heading" validate:"omitempty,gte=0,lt=360"`
	Speed     *float64 `json:"speed" validate:"omitempty,gte=0"`
	Accuracy  *float64 `json:"accuracy" validate:"omitempty,gte=0"`
}

// handleUpdateOfficerLocation godoc
// @Title Update officer location
// @Description Upserts the caller's last-known position used by the nearest-officer match.
// @Resource Officers
// @Accept json
// @Produce json
// @Param request body UpdateLocationRequest true "Location payload"
// @Success 204
// @Failure 400 {object} APIError
// @Failure 403 {object} APIError
// @Failure 404 {object} APIError
// @Route /v1/officers/me/location [put]
func (s *Server) handleUpdateOfficerLocation(w http.ResponseWriter, r *http.Request) {
	officerID, err := s.callerID(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "invalid principal", err.Error())
		return
	}

	var req UpdateLocationRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
		return
	}

	loc := dispatch.OfficerLocation{
		OfficerID: officerID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Heading:   req.Heading,
		Speed:     req.Speed,
		Accuracy:  req.Accuracy,
	}

	if err := s.engine.UpdateOfficerLocation(r.Context(), loc); err != nil {
		s.writeEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
