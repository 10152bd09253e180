package server

import (
	"net/http"

	"github.com/google/uuid"
)

type CreateDispatchRequest struct {
	ReportID string `json:"report_id" validate:"required,uuid4"`
	Notes    string `json:"notes" validate:"omitempty,max=2000"`
}

type DeclineRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type VerifyRequest struct {
	IsValid bool   `json:"is_valid"`
	Notes   string `json:"notes" validate:"omitempty,max=2000"`
}

// handleCreateDispatch godoc
// @Title Create dispatch
// @Description Routes a report to the patrol workflow, pre-assigning the nearest on-duty officer when one is found and broadcasting to all on-duty officers at the station.
// @Resource Dispatches
// @Accept json
// @Produce json
// @Param request body CreateDispatchRequest true "Dispatch payload"
// @Success 201 {object} CreateDispatchResponse
// @Failure 400 {object} APIError
// @Failure 404 {object} APIError
// @Failure 409 {object} APIError
// @Failure 422 {object} APIError
// @Route /v1/dispatches [post]
func (s *Server) handleCreateDispatch(w http.ResponseWriter, r *http.Request) {
	dispatcherID, err := s.callerID(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "invalid principal", err.Error())
		return
	}

	var req CreateDispatchRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
		return
	}

	reportID, err := s.parseUUIDBody(req.ReportID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid report id", err.Error())
		return
	}

	result, err := s.engine.CreateDispatch(r.Context(), reportID, dispatcherID, req.Notes)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	resp := CreateDispatchResponse{
		Dispatch:         mapDispatch(result.Dispatch),
		OfficersNotified: result.OfficersNotified,
	}
	if result.AssignedOfficer != nil {
		resp.AssignedOfficer = &AssignedOfficerResponse{
			ID:   result.AssignedOfficer.ID.String(),
			Name: result.AssignedOfficer.Name,
		}
	}

	s.writeJSON(w, http.StatusCreated, resp)
}

// handleGetDispatch godoc
// @Title Get dispatch
// @Description Returns the full dispatch record including timestamps and SLA fields.
// @Resource Dispatches
// @Produce json
// @Param dispatchID path string true "Dispatch ID"
// @Success 200 {object} DispatchResponse
// @Failure 400 {object} APIError
// @Failure 404 {object} APIError
// @Route /v1/dispatches/{dispatchID} [get]
func (s *Server) handleGetDispatch(w http.ResponseWriter, r *http.Request) {
	dispatchID, err := s.parseUUIDParam(r, "dispatchID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidDispatchID, err.Error())
		return
	}

	d, err := s.engine.GetDispatch(r.Context(), dispatchID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, mapDispatch(d))
}

// handleListPendingForStation godoc
// @Title List pending dispatches
// @Description The polling feed for officer clients: station-wide unclaimed dispatches plus the caller's own in-flight ones.
// @Resource Dispatches
// @Produce json
// @Param stationID path string true "Station ID"
// @Success 200 {object} PendingDispatchesResponse
// @Failure 400 {object} APIError
// @Failure 404 {object} APIError
// @Route /v1/stations/{stationID}/dispatches/pending [get]
func (s *Server) handleListPendingForStation(w http.ResponseWriter, r *http.Request) {
	stationID, err := s.parseUUIDParam(r, "stationID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidStationID, err.Error())
		return
	}

	officerID, err := s.callerID(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "invalid principal", err.Error())
		return
	}

	dispatches, err := s.engine.ListPendingForStation(r.Context(), stationID, officerID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	resp := PendingDispatchesResponse{Dispatches: make([]DispatchResponse, 0, len(dispatches))}
	for _, d := range dispatches {
		resp.Dispatches = append(resp.Dispatches, mapDispatch(d))
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleAccept godoc
// @Title Accept dispatch
// @Description Claims a pending dispatch. Exactly one of any number of concurrent claimers wins; the rest receive a 409 naming the current status.
// @Resource Dispatches
// @Produce json
// @Param dispatchID path string true "Dispatch ID"
// @Success 200 {object} AcceptResponse
// @Failure 400 {object} APIError
// @Failure 403 {object} APIError
// @Failure 404 {object} APIError
// @Failure 409 {object} APIError
// @Failure 422 {object} APIError
// @Route /v1/dispatches/{dispatchID}/accept [post]
func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	dispatchID, officerID, ok := s.dispatchAndCaller(w, r)
	if !ok {
		return
	}

	result, err := s.engine.Accept(r.Context(), dispatchID, officerID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	observeAcceptance(result.AcceptanceTime, result.ThresholdMet)

	s.writeJSON(w, http.StatusOK, AcceptResponse{
		Dispatch:           mapDispatch(result.Dispatch),
		AcceptanceTime:     result.AcceptanceTime,
		ThreeMinuteRuleMet: result.ThresholdMet,
	})
}

// handleDecline godoc
// @Title Decline dispatch
// @Description Terminal side exit taken by a patrol officer; the report becomes dispatchable again.
// @Resource Dispatches
// @Accept json
// @Produce json
// @Param dispatchID path string true "Dispatch ID"
// @Param request body DeclineRequest false "Decline payload"
// @Success 200 {object} DispatchResponse
// @Failure 400 {object} APIError
// @Failure 403 {object} APIError
// @Failure 404 {object} APIError
// @Failure 409 {object} APIError
// @Route /v1/dispatches/{dispatchID}/decline [post]
func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	dispatchID, officerID, ok := s.dispatchAndCaller(w, r)
	if !ok {
		return
	}

	var req DeclineRequest
	if r.ContentLength > 0 {
		if err := s.decodeAndValidate(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
			return
		}
	}

	d, err := s.engine.Decline(r.Context(), dispatchID, officerID, req.Reason)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, mapDispatch(d))
}

// handleMarkEnRoute godoc
// @Title Mark en route
// @Description Records that the claiming officer is travelling to the scene.
// @Resource Dispatches
// @Produce json
// @Param dispatchID path string true "Dispatch ID"
// @Success 200 {object} DispatchResponse
// @Failure 400 {object} APIError
// @Failure 403 {object} APIError
// @Failure 404 {object} APIError
// @Failure 409 {object} APIError
// @Route /v1/dispatches/{dispatchID}/en-route [post]
func (s *Server) handleMarkEnRoute(w http.ResponseWriter, r *http.Request) {
	dispatchID, officerID, ok := s.dispatchAndCaller(w, r)
	if !ok {
		return
	}

	d, err := s.engine.MarkEnRoute(r.Context(), dispatchID, officerID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, mapDispatch(d))
}

// handleMarkArrived godoc
// @Title Mark arrived
// @Description Records arrival on scene and the response-time metric.
// @Resource Dispatches
// @Produce json
// @Param dispatchID path string true "Dispatch ID"
// @Success 200 {object} ArrivedResponse
// @Failure 400 {object} APIError
// @Failure 403 {object} APIError
// @Failure 404 {object} APIError
// @Failure 409 {object} APIError
// @Route /v1/dispatches/{dispatchID}/arrived [post]
func (s *Server) handleMarkArrived(w http.ResponseWriter, r *http.Request) {
	dispatchID, officerID, ok := s.dispatchAndCaller(w, r)
	if !ok {
		return
	}

	result, err := s.engine.MarkArrived(r.Context(), dispatchID, officerID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	observeResponse(result.ResponseTime)

	s.writeJSON(w, http.StatusOK, ArrivedResponse{
		Dispatch:     mapDispatch(result.Dispatch),
		ResponseTime: result.ResponseTime,
	})
}

// handleVerifyReport godoc
// @Title Verify report
// @Description Finalises a dispatch with the officer's on-scene judgement of the report; oversight staff are notified of the outcome.
// @Resource Dispatches
// @Accept json
// @Produce json
// @Param dispatchID path string true "Dispatch ID"
// @Param request body VerifyRequest true "Verification payload"
// @Success 200 {object} VerifyResponse
// @Failure 400 {object} APIError
// @Failure 403 {object} APIError
// @Failure 404 {object} APIError
// @Failure 409 {object} APIError
// @Route /v1/dispatches/{dispatchID}/verify [post]
func (s *Server) handleVerifyReport(w http.ResponseWriter, r *http.Request) {
	dispatchID, officerID, ok := s.dispatchAndCaller(w, r)
	if !ok {
		return
	}

	var req VerifyRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
		return
	}

	result, err := s.engine.VerifyReport(r.Context(), dispatchID, officerID, req.IsValid, req.Notes)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	observeCompletion(result.CompletionTime, req.IsValid)

	s.writeJSON(w, http.StatusOK, VerifyResponse{
		Dispatch:       mapDispatch(result.Dispatch),
		CompletionTime: result.CompletionTime,
	})
}

// handleCancel godoc
// @Title Cancel dispatch
// @Description Dispatcher-side terminal exit; the report becomes dispatchable again.
// @Resource Dispatches
// @Accept json
// @Produce json
// @Param dispatchID path string true "Dispatch ID"
// @Param request body CancelRequest false "Cancel payload"
// @Success 200 {object} DispatchResponse
// @Failure 400 {object} APIError
// @Failure 404 {object} APIError
// @Failure 409 {object} APIError
// @Route /v1/dispatches/{dispatchID}/cancel [post]
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	dispatchID, dispatcherID, ok := s.dispatchAndCaller(w, r)
	if !ok {
		return
	}

	var req CancelRequest
	if r.ContentLength > 0 {
		if err := s.decodeAndValidate(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
			return
		}
	}

	d, err := s.engine.Cancel(r.Context(), dispatchID, dispatcherID, req.Reason)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, mapDispatch(d))
}

// dispatchAndCaller pulls the dispatch id from the path and the caller's
// verified officer id from the token, writing the error response itself on
// failure.
func (s *Server) dispatchAndCaller(w http.ResponseWriter, r *http.Request) (dispatchID, callerID uuid.UUID, ok bool) {
	id, err := s.parseUUIDParam(r, "dispatchID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidDispatchID, err.Error())
		return
	}

	caller, err := s.callerID(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "invalid principal", err.Error())
		return
	}

	return id, caller, true
}
