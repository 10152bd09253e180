package dispatch

import (
	"errors"
	"fmt"
)

var (
	ErrDispatchNotFound = errors.New("dispatch not found")
	ErrReportNotFound   = errors.New("report not found")
	ErrOfficerNotFound  = errors.New("officer not found")
	ErrStationNotFound  = errors.New("station not found")

	// ErrUnassignedReport rejects dispatching a report that has no
	// jurisdiction yet.
	ErrUnassignedReport = errors.New("report has no assigned station")
	// ErrDuplicateActiveDispatch enforces at most one non-terminal dispatch
	// per report.
	ErrDuplicateActiveDispatch = errors.New("report already has an active dispatch")

	ErrNotPatrolOfficer   = errors.New("caller is not a patrol officer")
	ErrOffDuty            = errors.New("officer is not on duty")
	ErrWrongStation       = errors.New("officer is assigned to a different station")
	ErrNotAssignedOfficer = errors.New("dispatch is held by another officer")
)

// ConflictError reports a transition rejected because the dispatch is no
// longer in a state that allows it. Current carries the status that was
// observed, so a losing officer sees "already handled" with the real state
// instead of a stale view.
type ConflictError struct {
	Current Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("dispatch already %s", e.Current)
}
