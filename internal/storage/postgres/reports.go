package postgres

import (
	"context"
	"fmt"

	"patrol/dispatch/internal/dispatch"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func (s *Store) GetReport(ctx context.Context, id uuid.UUID) (dispatch.Report, error) {
	var (
		r         dispatch.Report
		reportID  pgtype.UUID
		stationID pgtype.UUID
		status    string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, assigned_station_id, latitude, longitude, status
		FROM reports WHERE id = $1`, pgUUID(id)).
		Scan(&reportID, &stationID, &r.Latitude, &r.Longitude, &status)
	if err != nil {
		if isNoRows(err) {
			return dispatch.Report{}, dispatch.ErrReportNotFound
		}
		return dispatch.Report{}, fmt.Errorf("get report: %w", err)
	}
	r.ID = fromPGUUID(reportID)
	r.StationID = fromPGUUIDPtr(stationID)
	r.Status = dispatch.ReportStatus(status)
	return r, nil
}

func (s *Store) SetReportStatus(ctx context.Context, id uuid.UUID, status dispatch.ReportStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE reports SET status = $2, updated_at = now() WHERE id = $1`,
		pgUUID(id), string(status))
	if err != nil {
		return fmt.Errorf("set report status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrReportNotFound
	}
	return nil
}
