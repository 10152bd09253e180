package postgres

import (
	"context"
	"fmt"
	"time"

	"patrol/dispatch/internal/dispatch"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const dispatchColumns = `id, report_id, station_id, patrol_officer_id, status, notes,
	dispatched_at, accepted_at, declined_at, en_route_at, arrived_at, completed_at, cancelled_at,
	acceptance_time, three_minute_rule_met, response_time, completion_time,
	is_valid, validation_notes, validated_at, decline_reason, cancel_reason`

func scanDispatch(row pgx.Row) (dispatch.Dispatch, error) {
	var (
		d               dispatch.Dispatch
		id, reportID    pgtype.UUID
		stationID       pgtype.UUID
		officerID       pgtype.UUID
		status          string
		notes           *string
		dispatchedAt    pgtype.Timestamptz
		acceptedAt      pgtype.Timestamptz
		declinedAt      pgtype.Timestamptz
		enRouteAt       pgtype.Timestamptz
		arrivedAt       pgtype.Timestamptz
		completedAt     pgtype.Timestamptz
		cancelledAt     pgtype.Timestamptz
		validatedAt     pgtype.Timestamptz
		validationNotes *string
		declineReason   *string
		cancelReason    *string
	)

	err := row.Scan(
		&id, &reportID, &stationID, &officerID, &status, &notes,
		&dispatchedAt, &acceptedAt, &declinedAt, &enRouteAt, &arrivedAt, &completedAt, &cancelledAt,
		&d.AcceptanceTime, &d.ThreeMinuteRuleMet, &d.ResponseTime, &d.CompletionTime,
		&d.IsValid, &validationNotes, &validatedAt, &declineReason, &cancelReason,
	)
	if err != nil {
		return dispatch.Dispatch{}, err
	}

	d.ID = fromPGUUID(id)
	d.ReportID = fromPGUUID(reportID)
	d.StationID = fromPGUUID(stationID)
	d.OfficerID = fromPGUUIDPtr(officerID)
	d.Status = dispatch.Status(status)
	d.Notes = optionalString(notes)
	d.DispatchedAt = dispatchedAt.Time
	d.AcceptedAt = fromPGTimePtr(acceptedAt)
	d.DeclinedAt = fromPGTimePtr(declinedAt)
	d.EnRouteAt = fromPGTimePtr(enRouteAt)
	d.ArrivedAt = fromPGTimePtr(arrivedAt)
	d.CompletedAt = fromPGTimePtr(completedAt)
	d.CancelledAt = fromPGTimePtr(cancelledAt)
	d.ValidatedAt = fromPGTimePtr(validatedAt)
	d.ValidationNotes = optionalString(validationNotes)
	d.DeclineReason = optionalString(declineReason)
	d.CancelReason = optionalString(cancelReason)
	return d, nil
}

// CreateDispatch inserts a new dispatch row. The partial unique index on
// report_id over non-terminal statuses converts a concurrent duplicate into
// ErrDuplicateActiveDispatch, closing the check-then-act window.
func (s *Store) CreateDispatch(ctx context.Context, d dispatch.Dispatch) (dispatch.Dispatch, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO dispatches (report_id, station_id, patrol_officer_id, status, notes, dispatched_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING `+dispatchColumns,
		pgUUID(d.ReportID), pgUUID(d.StationID), pgUUIDPtr(d.OfficerID),
		string(d.Status), d.Notes, pgTime(d.DispatchedAt),
	)
	created, err := scanDispatch(row)
	if err != nil {
		if isUniqueViolation(err) {
			return dispatch.Dispatch{}, dispatch.ErrDuplicateActiveDispatch
		}
		return dispatch.Dispatch{}, fmt.Errorf("insert dispatch: %w", err)
	}
	return created, nil
}

func (s *Store) GetDispatch(ctx context.Context, id uuid.UUID) (dispatch.Dispatch, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE id = $1`, pgUUID(id))
	d, err := scanDispatch(row)
	if err != nil {
		if isNoRows(err) {
			return dispatch.Dispatch{}, dispatch.ErrDispatchNotFound
		}
		return dispatch.Dispatch{}, fmt.Errorf("get dispatch: %w", err)
	}
	return d, nil
}

func (s *Store) GetActiveDispatchForReport(ctx context.Context, reportID uuid.UUID) (dispatch.Dispatch, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+dispatchColumns+` FROM dispatches
		WHERE report_id = $1 AND status NOT IN ('completed', 'declined', 'cancelled')
		LIMIT 1`, pgUUID(reportID))
	d, err := scanDispatch(row)
	if err != nil {
		if isNoRows(err) {
			return dispatch.Dispatch{}, dispatch.ErrDispatchNotFound
		}
		return dispatch.Dispatch{}, fmt.Errorf("get active dispatch: %w", err)
	}
	return d, nil
}

// ListPendingForStation returns what an officer's polling client should
// see: every unclaimed dispatch at the station (pending, and assigned ones
// under the broadcast model) plus the caller's own in-flight dispatches.
func (s *Store) ListPendingForStation(ctx context.Context, stationID, officerID uuid.UUID) ([]dispatch.Dispatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+dispatchColumns+` FROM dispatches
		WHERE station_id = $1 AND (
			status IN ('pending', 'assigned')
			OR (patrol_officer_id = $2 AND status IN ('accepted', 'en_route', 'arrived'))
		)
		ORDER BY dispatched_at DESC`,
		pgUUID(stationID), pgUUID(officerID))
	if err != nil {
		return nil, fmt.Errorf("list pending dispatches: %w", err)
	}
	defer rows.Close()

	var out []dispatch.Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending dispatch: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ClaimDispatch performs the acceptance arbitration: the status check and
// the claim are one conditional UPDATE, so under concurrent claims exactly
// one caller observes a changed row. acceptance_time and the three-minute
// flag are stamped in the same statement from dispatched_at, never
// recomputed later.
func (s *Store) ClaimDispatch(ctx context.Context, id, officerID uuid.UUID, at time.Time, slaSeconds int64) (dispatch.Dispatch, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dispatches SET
			status = 'accepted',
			patrol_officer_id = $2,
			accepted_at = $3,
			acceptance_time = GREATEST(0, EXTRACT(EPOCH FROM ($3::timestamptz - dispatched_at)))::bigint,
			three_minute_rule_met = GREATEST(0, EXTRACT(EPOCH FROM ($3::timestamptz - dispatched_at))) <= $4
		WHERE id = $1 AND status IN ('pending', 'assigned')
		RETURNING `+dispatchColumns,
		pgUUID(id), pgUUID(officerID), pgTime(at), slaSeconds)
	d, err := scanDispatch(row)
	if err != nil {
		if isNoRows(err) {
			return dispatch.Dispatch{}, false, nil
		}
		return dispatch.Dispatch{}, false, fmt.Errorf("claim dispatch: %w", err)
	}
	return d, true, nil
}

func (s *Store) MarkEnRoute(ctx context.Context, id, officerID uuid.UUID, at time.Time) (dispatch.Dispatch, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dispatches SET status = 'en_route', en_route_at = $3
		WHERE id = $1 AND patrol_officer_id = $2 AND status = 'accepted'
		RETURNING `+dispatchColumns,
		pgUUID(id), pgUUID(officerID), pgTime(at))
	d, err := scanDispatch(row)
	if err != nil {
		if isNoRows(err) {
			return dispatch.Dispatch{}, false, nil
		}
		return dispatch.Dispatch{}, false, fmt.Errorf("mark en route: %w", err)
	}
	return d, true, nil
}

// MarkArrived accepts the transition from accepted as well as en_route:
// clients that skip the en-route report still get their arrival recorded.
func (s *Store) MarkArrived(ctx context.Context, id, officerID uuid.UUID, at time.Time) (dispatch.Dispatch, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dispatches SET
			status = 'arrived',
			arrived_at = $3,
			response_time = GREATEST(0, EXTRACT(EPOCH FROM ($3::timestamptz - dispatched_at)))::bigint
		WHERE id = $1 AND patrol_officer_id = $2 AND status IN ('accepted', 'en_route')
		RETURNING `+dispatchColumns,
		pgUUID(id), pgUUID(officerID), pgTime(at))
	d, err := scanDispatch(row)
	if err != nil {
		if isNoRows(err) {
			return dispatch.Dispatch{}, false, nil
		}
		return dispatch.Dispatch{}, false, fmt.Errorf("mark arrived: %w", err)
	}
	return d, true, nil
}

// CompleteDispatch finalises a dispatch with the verification outcome. An
// unclaimed dispatch may be completed directly, in which case the verifying
// officer becomes its officer; completion_time falls back to the completion
// instant as the arrival baseline when arrival was never marked.
func (s *Store) CompleteDispatch(ctx context.Context, id, officerID uuid.UUID, at time.Time, isValid bool, notes string) (dispatch.Dispatch, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dispatches SET
			status = 'completed',
			completed_at = $3,
			completion_time = GREATEST(0, EXTRACT(EPOCH FROM ($3::timestamptz - COALESCE(arrived_at, $3::timestamptz))))::bigint,
			is_valid = $4,
			validation_notes = NULLIF($5, ''),
			validated_at = $3,
			patrol_officer_id = COALESCE(patrol_officer_id, $2)
		WHERE id = $1
			AND (patrol_officer_id = $2 OR patrol_officer_id IS NULL)
			AND status NOT IN ('completed', 'declined', 'cancelled')
		RETURNING `+dispatchColumns,
		pgUUID(id), pgUUID(officerID), pgTime(at), isValid, notes)
	d, err := scanDispatch(row)
	if err != nil {
		if isNoRows(err) {
			return dispatch.Dispatch{}, false, nil
		}
		return dispatch.Dispatch{}, false, fmt.Errorf("complete dispatch: %w", err)
	}
	return d, true, nil
}

func (s *Store) DeclineDispatch(ctx context.Context, id, officerID uuid.UUID, at time.Time, reason string) (dispatch.Dispatch, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dispatches SET status = 'declined', declined_at = $3, decline_reason = NULLIF($4, '')
		WHERE id = $1
			AND (patrol_officer_id = $2 OR patrol_officer_id IS NULL)
			AND status NOT IN ('completed', 'declined', 'cancelled')
		RETURNING `+dispatchColumns,
		pgUUID(id), pgUUID(officerID), pgTime(at), reason)
	d, err := scanDispatch(row)
	if err != nil {
		if isNoRows(err) {
			return dispatch.Dispatch{}, false, nil
		}
		return dispatch.Dispatch{}, false, fmt.Errorf("decline dispatch: %w", err)
	}
	return d, true, nil
}

func (s *Store) CancelDispatch(ctx context.Context, id uuid.UUID, at time.Time, reason string) (dispatch.Dispatch, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dispatches SET status = 'cancelled', cancelled_at = $2, cancel_reason = NULLIF($3, '')
		WHERE id = $1 AND status NOT IN ('completed', 'declined', 'cancelled')
		RETURNING `+dispatchColumns,
		pgUUID(id), pgTime(at), reason)
	d, err := scanDispatch(row)
	if err != nil {
		if isNoRows(err) {
			return dispatch.Dispatch{}, false, nil
		}
		return dispatch.Dispatch{}, false, fmt.Errorf("cancel dispatch: %w", err)
	}
	return d, true, nil
}
