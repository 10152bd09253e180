package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence boundary of the engine. Every state-changing
// dispatch method below performs its status check and its write as one
// atomic conditional operation; the returned bool reports whether a row
// actually transitioned. A false with a nil error means the dispatch was
// not in a state (or not held by an officer) that permits the transition;
// the engine then inspects the current row to produce a specific failure.
type Store interface {
	// Reports (collaborating Report Store).
	GetReport(ctx context.Context, id uuid.UUID) (Report, error)
	SetReportStatus(ctx context.Context, id uuid.UUID, status ReportStatus) error

	// Officer directory.
	GetOfficer(ctx context.Context, id uuid.UUID) (Officer, error)
	GetStation(ctx context.Context, id uuid.UUID) (Station, error)
	ListOnDutyOfficers(ctx context.Context, stationID uuid.UUID) ([]Officer, error)
	ListOversightPushTokens(ctx context.Context) ([]string, error)

	// Officer locations (last write wins).
	UpsertOfficerLocation(ctx context.Context, loc OfficerLocation) error
	ListLocatedOfficers(ctx context.Context, stationID uuid.UUID, freshSince time.Time) ([]LocatedOfficer, error)

	// Dispatches.
	CreateDispatch(ctx context.Context, d Dispatch) (Dispatch, error)
	GetDispatch(ctx context.Context, id uuid.UUID) (Dispatch, error)
	GetActiveDispatchForReport(ctx context.Context, reportID uuid.UUID) (Dispatch, error)
	ListPendingForStation(ctx context.Context, stationID, officerID uuid.UUID) ([]Dispatch, error)

	// ClaimDispatch is the acceptance arbiter's write: set the officer and
	// accepted fields only if status is still pending or assigned, in a
	// single conditional statement. slaSeconds is the three-minute rule
	// threshold used to stamp ThreeMinuteRuleMet.
	ClaimDispatch(ctx context.Context, id, officerID uuid.UUID, at time.Time, slaSeconds int64) (Dispatch, bool, error)
	MarkEnRoute(ctx context.Context, id, officerID uuid.UUID, at time.Time) (Dispatch, bool, error)
	MarkArrived(ctx context.Context, id, officerID uuid.UUID, at time.Time) (Dispatch, bool, error)
	CompleteDispatch(ctx context.Context, id, officerID uuid.UUID, at time.Time, isValid bool, notes string) (Dispatch, bool, error)
	DeclineDispatch(ctx context.Context, id, officerID uuid.UUID, at time.Time, reason string) (Dispatch, bool, error)
	CancelDispatch(ctx context.Context, id uuid.UUID, at time.Time, reason string) (Dispatch, bool, error)
}
