package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a dispatch through its lifecycle. A dispatch starts in
// StatusPending (broadcast, unclaimed) or StatusAssigned (soft pre-assignment
// to the nearest officer) and ends in one of the terminal states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusAccepted  Status = "accepted"
	StatusEnRoute   Status = "en_route"
	StatusArrived   Status = "arrived"
	StatusCompleted Status = "completed"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDeclined, StatusCancelled:
		return true
	}
	return false
}

// Dispatch is a single routing of one report to the patrol workflow.
// Timestamps are set exactly once, by the transition that reaches the
// corresponding state. Timing fields are in whole seconds and are computed
// inside the same conditional write that stamps the timestamp they derive
// from.
type Dispatch struct {
	ID        uuid.UUID
	ReportID  uuid.UUID
	StationID uuid.UUID
	// OfficerID is nil until the dispatch is claimed (or soft pre-assigned).
	// Once claimed it is set exactly once, under the conditional-claim guard.
	OfficerID *uuid.UUID
	Status    Status
	Notes     string

	DispatchedAt time.Time
	AcceptedAt   *time.Time
	DeclinedAt   *time.Time
	EnRouteAt    *time.Time
	ArrivedAt    *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time

	// AcceptanceTime is accepted_at - dispatched_at in seconds.
	AcceptanceTime *int64
	// ThreeMinuteRuleMet is true iff AcceptanceTime <= the SLA threshold.
	ThreeMinuteRuleMet *bool
	// ResponseTime is arrived_at - dispatched_at in seconds.
	ResponseTime *int64
	// CompletionTime is completed_at - arrived_at in seconds, with the
	// completion instant as the arrival baseline when the officer never
	// marked arrival.
	CompletionTime *int64

	IsValid         *bool
	ValidationNotes string
	ValidatedAt     *time.Time

	DeclineReason string
	CancelReason  string
}

// ReportStatus is the lifecycle of the underlying crime report, mutated here
// only as a side effect of dispatch transitions.
type ReportStatus string

const (
	ReportStatusPending       ReportStatus = "pending"
	ReportStatusDispatched    ReportStatus = "dispatched"
	ReportStatusInvestigating ReportStatus = "investigating"
	ReportStatusVerified      ReportStatus = "verified"
	ReportStatusInvalid       ReportStatus = "invalid"
)

// Report is the external entity a dispatch routes. Only the fields the
// engine needs are modelled; report intake and text live elsewhere.
type Report struct {
	ID        uuid.UUID
	StationID *uuid.UUID
	Latitude  float64
	Longitude float64
	Status    ReportStatus
}

// Officer roles. Only patrol officers participate in dispatch operations;
// oversight staff receive verification outcomes.
const (
	RolePatrolOfficer = "patrol_officer"
	RoleOversight     = "oversight"
)

type Officer struct {
	ID        uuid.UUID
	Name      string
	Role      string
	OnDuty    bool
	StationID *uuid.UUID
	// PushToken is the registered notification destination, empty when the
	// officer has none.
	PushToken string
}

type Station struct {
	ID   uuid.UUID
	Name string
}

// OfficerLocation is the single current-position row per officer, upserted
// on every position report. Last write wins; positions older than the
// staleness window are excluded from matching.
type OfficerLocation struct {
	OfficerID uuid.UUID
	Latitude  float64
	Longitude float64
	Heading   *float64
	Speed     *float64
	Accuracy  *float64
	UpdatedAt time.Time
}

// LocatedOfficer pairs an on-duty officer with a fresh last-known position,
// the candidate set fed to the nearest-officer match.
type LocatedOfficer struct {
	Officer   Officer
	Latitude  float64
	Longitude float64
	LocatedAt time.Time
}
