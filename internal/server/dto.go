package server

import (
	"time"

	"patrol/dispatch/internal/dispatch"
)

type DispatchResponse struct {
	ID              string     `json:"id"`
	ReportID        string     `json:"report_id"`
	StationID       string     `json:"station_id"`
	OfficerID       *string    `json:"patrol_officer_id,omitempty"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	DispatchedAt    time.Time  `json:"dispatched_at"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	DeclinedAt      *time.Time `json:"declined_at,omitempty"`
	EnRouteAt       *time.Time `json:"en_route_at,omitempty"`
	ArrivedAt       *time.Time `json:"arrived_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	AcceptanceTime  *int64     `json:"acceptance_time,omitempty"`
	ThreeMinuteRule *bool      `json:"three_minute_rule_met,omitempty"`
	ResponseTime    *int64     `json:"response_time,omitempty"`
	CompletionTime  *int64     `json:"completion_time,omitempty"`
	IsValid         *bool      `json:"is_valid,omitempty"`
	ValidationNotes string     `json:"validation_notes,omitempty"`
	ValidatedAt     *time.Time `json:"validated_at,omitempty"`
	DeclineReason   string     `json:"decline_reason,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
}

func mapDispatch(d dispatch.Dispatch) DispatchResponse {
	resp := DispatchResponse{
		ID:              d.ID.String(),
		ReportID:        d.ReportID.String(),
		StationID:       d.StationID.String(),
		Status:          string(d.Status),
		Notes:           d.Notes,
		DispatchedAt:    d.DispatchedAt,
		AcceptedAt:      d.AcceptedAt,
		DeclinedAt:      d.DeclinedAt,
		EnRouteAt:       d.EnRouteAt,
		ArrivedAt:       d.ArrivedAt,
		CompletedAt:     d.CompletedAt,
		CancelledAt:     d.CancelledAt,
		AcceptanceTime:  d.AcceptanceTime,
		ThreeMinuteRule: d.ThreeMinuteRuleMet,
		ResponseTime:    d.ResponseTime,
		CompletionTime:  d.CompletionTime,
		IsValid:         d.IsValid,
		ValidationNotes: d.ValidationNotes,
		ValidatedAt:     d.ValidatedAt,
		DeclineReason:   d.DeclineReason,
		CancelReason:    d.CancelReason,
	}
	if d.OfficerID != nil {
		id := d.OfficerID.String()
		resp.OfficerID = &id
	}
	return resp
}

type AssignedOfficerResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreateDispatchResponse struct {
	Dispatch         DispatchResponse         `json:"dispatch"`
	OfficersNotified int                      `json:"officers_notified"`
	AssignedOfficer  *AssignedOfficerResponse `json:"assigned_officer,omitempty"`
}

type AcceptResponse struct {
	Dispatch           DispatchResponse `json:"dispatch"`
	AcceptanceTime     int64            `json:"acceptance_time"`
	ThreeMinuteRuleMet bool             `json:"three_minute_rule_met"`
}

type ArrivedResponse struct {
	Dispatch     DispatchResponse `json:"dispatch"`
	ResponseTime int64            `json:"response_time"`
}

type VerifyResponse struct {
	Dispatch       DispatchResponse `json:"dispatch"`
	CompletionTime int64            `json:"completion_time"`
}

type PendingDispatchesResponse struct {
	Dispatches []DispatchResponse `json:"dispatches"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Env    string `json:"env"`
	Uptime string `json:"uptime"`
}
