package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"patrol/dispatch/internal/geo"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier is the external notification gateway. Delivery is fire and
// forget: the engine logs failures and never lets them affect dispatch
// state.
type Notifier interface {
	Notify(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

// Options tunes the engine. Zero values fall back to the documented
// defaults.
type Options struct {
	// LocationStaleness excludes officer positions older than this from
	// nearest-officer matching. Default 5 minutes.
	LocationStaleness time.Duration
	// AcceptanceSLA is the three-minute rule threshold. Default 3 minutes.
	AcceptanceSLA time.Duration
	// NotifyTimeout bounds each outbound gateway call. Default 5 seconds.
	NotifyTimeout time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine implements dispatch creation, acceptance arbitration, lifecycle
// advancement and verification closure on top of a Store with atomic
// conditional transitions.
type Engine struct {
	store         Store
	notifier      Notifier
	log           zerolog.Logger
	staleness     time.Duration
	acceptanceSLA time.Duration
	notifyTimeout time.Duration
	now           func() time.Time
}

func NewEngine(store Store, notifier Notifier, log zerolog.Logger, opts Options) *Engine {
	if opts.LocationStaleness <= 0 {
		opts.LocationStaleness = 5 * time.Minute
	}
	if opts.AcceptanceSLA <= 0 {
		opts.AcceptanceSLA = 3 * time.Minute
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:         store,
		notifier:      notifier,
		log:           log,
		staleness:     opts.LocationStaleness,
		acceptanceSLA: opts.AcceptanceSLA,
		notifyTimeout: opts.NotifyTimeout,
		now:           opts.Now,
	}
}

// CreateResult is what the dispatcher gets back from CreateDispatch.
type CreateResult struct {
	Dispatch         Dispatch
	OfficersNotified int
	// AssignedOfficer is set when the geo locator pre-assigned the nearest
	// on-duty officer. The pre-assignment is soft: any on-duty officer at
	// the station may still be first to accept.
	AssignedOfficer *Officer
}

// AcceptResult carries the SLA outcome of a successful claim.
type AcceptResult struct {
	Dispatch       Dispatch
	AcceptanceTime int64
	ThresholdMet   bool
}

// ArrivedResult carries the response-time metric stamped on arrival.
type ArrivedResult struct {
	Dispatch     Dispatch
	ResponseTime int64
}

// VerifyResult carries the completion-time metric stamped on closure.
type VerifyResult struct {
	Dispatch       Dispatch
	CompletionTime int64
}

// CreateDispatch routes a report to the patrol workflow. The report must
// exist, have a station and have no active dispatch. When an on-duty
// officer with a fresh position is found the dispatch is created already
// assigned to the nearest one; otherwise it starts pending. Every on-duty
// officer at the station with a push destination is notified regardless of
// pre-assignment.
func (e *Engine) CreateDispatch(ctx context.Context, reportID, dispatcherID uuid.UUID, notes string) (CreateResult, error) {
	report, err := e.store.GetReport(ctx, reportID)
	if err != nil {
		return CreateResult{}, err
	}
	if report.StationID == nil {
		return CreateResult{}, ErrUnassignedReport
	}
	stationID := *report.StationID

	// Pre-check for an active dispatch. The storage layer's partial unique
	// index is the actual guard; this lookup exists to give concurrent
	// dispatchers a clean failure without an insert attempt.
	if _, err := e.store.GetActiveDispatchForReport(ctx, reportID); err == nil {
		return CreateResult{}, ErrDuplicateActiveDispatch
	} else if !errors.Is(err, ErrDispatchNotFound) {
		return CreateResult{}, err
	}

	now := e.now().UTC()

	d := Dispatch{
		ReportID:     reportID,
		StationID:    stationID,
		Status:       StatusPending,
		Notes:        notes,
		DispatchedAt: now,
	}

	nearest := e.findNearestOfficer(ctx, stationID, report.Latitude, report.Longitude, now)
	if nearest != nil {
		officerID := nearest.ID
		d.OfficerID = &officerID
		d.Status = StatusAssigned
	}

	created, err := e.store.CreateDispatch(ctx, d)
	if err != nil {
		return CreateResult{}, err
	}

	if err := e.store.SetReportStatus(ctx, reportID, ReportStatusDispatched); err != nil {
		e.log.Error().Err(err).Str("report_id", reportID.String()).Msg("failed to mark report dispatched")
	}

	notified := e.broadcastDispatch(ctx, created, stationID)

	e.log.Info().
		Str("dispatch_id", created.ID.String()).
		Str("report_id", reportID.String()).
		Str("dispatcher_id", dispatcherID.String()).
		Str("status", string(created.Status)).
		Int("officers_notified", notified).
		Msg("dispatch created")

	return CreateResult{Dispatch: created, OfficersNotified: notified, AssignedOfficer: nearest}, nil
}

// findNearestOfficer runs the geo locator over on-duty officers at the
// station whose last position is within the staleness window. Lookup
// failures degrade to an unassigned (broadcast-only) dispatch.
func (e *Engine) findNearestOfficer(ctx context.Context, stationID uuid.UUID, lat, lon float64, now time.Time) *Officer {
	located, err := e.store.ListLocatedOfficers(ctx, stationID, now.Add(-e.staleness))
	if err != nil {
		e.log.Warn().Err(err).Str("station_id", stationID.String()).Msg("nearest-officer lookup failed, dispatching unassigned")
		return nil
	}
	if len(located) == 0 {
		return nil
	}

	points := make([]geo.Point, len(located))
	for i, l := range located {
		points[i] = geo.Point{Lat: l.Latitude, Lon: l.Longitude}
	}
	idx, ok := geo.NearestIndex(geo.Point{Lat: lat, Lon: lon}, points)
	if !ok {
		return nil
	}
	officer := located[idx].Officer
	return &officer
}

// broadcastDispatch fans the new dispatch out to every on-duty officer at
// the station with a registered push destination. Returns the number of
// destinations targeted; delivery itself is asynchronous and best effort.
func (e *Engine) broadcastDispatch(ctx context.Context, d Dispatch, stationID uuid.UUID) int {
	officers, err := e.store.ListOnDutyOfficers(ctx, stationID)
	if err != nil {
		e.log.Warn().Err(err).Str("dispatch_id", d.ID.String()).Msg("failed to enumerate officers for fan-out")
		return 0
	}

	tokens := make([]string, 0, len(officers))
	for _, o := range officers {
		if o.PushToken != "" {
			tokens = append(tokens, o.PushToken)
		}
	}
	if len(tokens) == 0 {
		return 0
	}

	data := map[string]string{
		"dispatch_id": d.ID.String(),
		"report_id":   d.ReportID.String(),
		"station_id":  stationID.String(),
	}
	e.notifyAsync(tokens, "New dispatch", "A report in your station needs a response", data)
	return len(tokens)
}

// notifyAsync delivers a gateway call off the request path with a bounded
// timeout. A failed delivery never rolls back the state transition that
// triggered it.
func (e *Engine) notifyAsync(tokens []string, title, body string, data map[string]string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.notifyTimeout)
		defer cancel()
		if err := e.notifier.Notify(ctx, tokens, title, body, data); err != nil {
			e.log.Warn().Err(err).Int("destinations", len(tokens)).Msg("notification delivery failed")
		}
	}()
}

// Accept resolves the race between officers claiming the same dispatch.
// Exactly one concurrent caller wins; the rest observe a ConflictError
// naming the current status.
func (e *Engine) Accept(ctx context.Context, dispatchID, officerID uuid.UUID) (AcceptResult, error) {
	officer, err := e.requirePatrolOfficer(ctx, officerID)
	if err != nil {
		return AcceptResult{}, err
	}
	if !officer.OnDuty {
		return AcceptResult{}, ErrOffDuty
	}

	current, err := e.store.GetDispatch(ctx, dispatchID)
	if err != nil {
		return AcceptResult{}, err
	}
	if officer.StationID == nil || *officer.StationID != current.StationID {
		return AcceptResult{}, ErrWrongStation
	}

	now := e.now().UTC()
	claimed, ok, err := e.store.ClaimDispatch(ctx, dispatchID, officerID, now, int64(e.acceptanceSLA/time.Second))
	if err != nil {
		return AcceptResult{}, err
	}
	if !ok {
		current, err := e.store.GetDispatch(ctx, dispatchID)
		if err != nil {
			return AcceptResult{}, err
		}
		if current.Status == StatusAccepted && current.OfficerID != nil && *current.OfficerID == officerID {
			// Repeat call from the winner: stored result, unchanged.
			return AcceptResult{
				Dispatch:       current,
				AcceptanceTime: *current.AcceptanceTime,
				ThresholdMet:   *current.ThreeMinuteRuleMet,
			}, nil
		}
		return AcceptResult{}, &ConflictError{Current: current.Status}
	}

	if err := e.store.SetReportStatus(ctx, claimed.ReportID, ReportStatusInvestigating); err != nil {
		e.log.Error().Err(err).Str("report_id", claimed.ReportID.String()).Msg("failed to mark report investigating")
	}

	e.log.Info().
		Str("dispatch_id", dispatchID.String()).
		Str("officer_id", officerID.String()).
		Int64("acceptance_time", *claimed.AcceptanceTime).
		Bool("three_minute_rule_met", *claimed.ThreeMinuteRuleMet).
		Msg("dispatch accepted")

	return AcceptResult{
		Dispatch:       claimed,
		AcceptanceTime: *claimed.AcceptanceTime,
		ThresholdMet:   *claimed.ThreeMinuteRuleMet,
	}, nil
}

// MarkEnRoute advances an accepted dispatch; only the claiming officer may
// do so. A repeat call after reaching en_route returns the stored row.
func (e *Engine) MarkEnRoute(ctx context.Context, dispatchID, officerID uuid.UUID) (Dispatch, error) {
	updated, ok, err := e.store.MarkEnRoute(ctx, dispatchID, officerID, e.now().UTC())
	if err != nil {
		return Dispatch{}, err
	}
	if ok {
		return updated, nil
	}
	return e.advanceFailure(ctx, dispatchID, officerID, StatusEnRoute)
}

// MarkArrived stamps arrival and the response-time metric. Arrival is
// allowed directly from accepted: clients that never report en-route must
// not be blocked from recording the on-scene fact.
func (e *Engine) MarkArrived(ctx context.Context, dispatchID, officerID uuid.UUID) (ArrivedResult, error) {
	updated, ok, err := e.store.MarkArrived(ctx, dispatchID, officerID, e.now().UTC())
	if err != nil {
		return ArrivedResult{}, err
	}
	if !ok {
		updated, err = e.advanceFailure(ctx, dispatchID, officerID, StatusArrived)
		if err != nil {
			return ArrivedResult{}, err
		}
	}
	return ArrivedResult{Dispatch: updated, ResponseTime: *updated.ResponseTime}, nil
}

// advanceFailure disambiguates a rejected lifecycle transition: missing
// dispatch, wrong officer, an idempotent repeat, or a state conflict.
func (e *Engine) advanceFailure(ctx context.Context, dispatchID, officerID uuid.UUID, target Status) (Dispatch, error) {
	current, err := e.store.GetDispatch(ctx, dispatchID)
	if err != nil {
		return Dispatch{}, err
	}
	if current.OfficerID == nil || *current.OfficerID != officerID {
		return Dispatch{}, ErrNotAssignedOfficer
	}
	if current.Status == target {
		// Already there; the stored timestamps and metrics are returned
		// unchanged rather than recomputed.
		return current, nil
	}
	return Dispatch{}, &ConflictError{Current: current.Status}
}

// VerifyReport finalises a dispatch with the officer's on-scene judgement.
// The owning report is marked verified or invalid and oversight staff are
// notified of the outcome.
func (e *Engine) VerifyReport(ctx context.Context, dispatchID, officerID uuid.UUID, isValid bool, notes string) (VerifyResult, error) {
	if _, err := e.requirePatrolOfficer(ctx, officerID); err != nil {
		return VerifyResult{}, err
	}

	now := e.now().UTC()
	updated, ok, err := e.store.CompleteDispatch(ctx, dispatchID, officerID, now, isValid, notes)
	if err != nil {
		return VerifyResult{}, err
	}
	if !ok {
		current, err := e.store.GetDispatch(ctx, dispatchID)
		if err != nil {
			return VerifyResult{}, err
		}
		if current.OfficerID != nil && *current.OfficerID != officerID {
			return VerifyResult{}, ErrNotAssignedOfficer
		}
		if current.Status == StatusCompleted {
			return VerifyResult{Dispatch: current, CompletionTime: *current.CompletionTime}, nil
		}
		return VerifyResult{}, &ConflictError{Current: current.Status}
	}

	reportStatus := ReportStatusVerified
	if !isValid {
		reportStatus = ReportStatusInvalid
	}
	if err := e.store.SetReportStatus(ctx, updated.ReportID, reportStatus); err != nil {
		e.log.Error().Err(err).Str("report_id", updated.ReportID.String()).Msg("failed to record verification on report")
	}

	e.notifyOversight(ctx, updated, isValid)

	e.log.Info().
		Str("dispatch_id", dispatchID.String()).
		Str("officer_id", officerID.String()).
		Bool("is_valid", isValid).
		Int64("completion_time", *updated.CompletionTime).
		Msg("dispatch completed")

	return VerifyResult{Dispatch: updated, CompletionTime: *updated.CompletionTime}, nil
}

func (e *Engine) notifyOversight(ctx context.Context, d Dispatch, isValid bool) {
	tokens, err := e.store.ListOversightPushTokens(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("failed to enumerate oversight staff for outcome notification")
		return
	}
	if len(tokens) == 0 {
		return
	}
	outcome := "verified"
	if !isValid {
		outcome = "invalid"
	}
	e.notifyAsync(tokens, "Report "+outcome,
		fmt.Sprintf("Dispatch closed, report judged %s on scene", outcome),
		map[string]string{
			"dispatch_id": d.ID.String(),
			"report_id":   d.ReportID.String(),
			"outcome":     outcome,
		})
}

// Decline is a terminal side exit taken by a patrol officer, reachable from
// any non-terminal state. The report returns to pending so it can be
// dispatched again.
func (e *Engine) Decline(ctx context.Context, dispatchID, officerID uuid.UUID, reason string) (Dispatch, error) {
	if _, err := e.requirePatrolOfficer(ctx, officerID); err != nil {
		return Dispatch{}, err
	}

	updated, ok, err := e.store.DeclineDispatch(ctx, dispatchID, officerID, e.now().UTC(), reason)
	if err != nil {
		return Dispatch{}, err
	}
	if !ok {
		current, err := e.store.GetDispatch(ctx, dispatchID)
		if err != nil {
			return Dispatch{}, err
		}
		if current.OfficerID != nil && *current.OfficerID != officerID {
			return Dispatch{}, ErrNotAssignedOfficer
		}
		if current.Status == StatusDeclined {
			return current, nil
		}
		return Dispatch{}, &ConflictError{Current: current.Status}
	}

	if err := e.store.SetReportStatus(ctx, updated.ReportID, ReportStatusPending); err != nil {
		e.log.Error().Err(err).Str("report_id", updated.ReportID.String()).Msg("failed to reset report after decline")
	}
	return updated, nil
}

// Cancel is the dispatcher-side terminal exit, reachable from any
// non-terminal state.
func (e *Engine) Cancel(ctx context.Context, dispatchID, dispatcherID uuid.UUID, reason string) (Dispatch, error) {
	updated, ok, err := e.store.CancelDispatch(ctx, dispatchID, e.now().UTC(), reason)
	if err != nil {
		return Dispatch{}, err
	}
	if !ok {
		current, err := e.store.GetDispatch(ctx, dispatchID)
		if err != nil {
			return Dispatch{}, err
		}
		if current.Status == StatusCancelled {
			return current, nil
		}
		return Dispatch{}, &ConflictError{Current: current.Status}
	}

	if err := e.store.SetReportStatus(ctx, updated.ReportID, ReportStatusPending); err != nil {
		e.log.Error().Err(err).Str("report_id", updated.ReportID.String()).Msg("failed to reset report after cancel")
	}

	e.log.Info().
		Str("dispatch_id", dispatchID.String()).
		Str("dispatcher_id", dispatcherID.String()).
		Msg("dispatch cancelled")
	return updated, nil
}

// UpdateOfficerLocation upserts the officer's single current-position row.
func (e *Engine) UpdateOfficerLocation(ctx context.Context, loc OfficerLocation) error {
	if _, err := e.requirePatrolOfficer(ctx, loc.OfficerID); err != nil {
		return err
	}
	loc.UpdatedAt = e.now().UTC()
	return e.store.UpsertOfficerLocation(ctx, loc)
}

// ListPendingForStation is the polling feed for officer clients: station-wide
// unclaimed dispatches plus the caller's own in-flight ones.
func (e *Engine) ListPendingForStation(ctx context.Context, stationID, officerID uuid.UUID) ([]Dispatch, error) {
	if _, err := e.store.GetStation(ctx, stationID); err != nil {
		return nil, err
	}
	return e.store.ListPendingForStation(ctx, stationID, officerID)
}

// GetDispatch returns the full dispatch record, timestamps and SLA fields
// included.
func (e *Engine) GetDispatch(ctx context.Context, id uuid.UUID) (Dispatch, error) {
	return e.store.GetDispatch(ctx, id)
}

func (e *Engine) requirePatrolOfficer(ctx context.Context, id uuid.UUID) (Officer, error) {
	officer, err := e.store.GetOfficer(ctx, id)
	if err != nil {
		return Officer{}, err
	}
	if officer.Role != RolePatrolOfficer {
		return Officer{}, ErrNotPatrolOfficer
	}
	return officer, nil
}
