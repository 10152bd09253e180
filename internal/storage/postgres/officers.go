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

func scanOfficer(row pgx.Row) (dispatch.Officer, error) {
	var (
		o         dispatch.Officer
		id        pgtype.UUID
		stationID pgtype.UUID
		pushToken *string
	)
	if err := row.Scan(&id, &o.Name, &o.Role, &o.OnDuty, &stationID, &pushToken); err != nil {
		return dispatch.Officer{}, err
	}
	o.ID = fromPGUUID(id)
	o.StationID = fromPGUUIDPtr(stationID)
	o.PushToken = optionalString(pushToken)
	return o, nil
}

func (s *Store) GetOfficer(ctx context.Context, id uuid.UUID) (dispatch.Officer, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, role, on_duty, assigned_station_id, push_token
		FROM officers WHERE id = $1`, pgUUID(id))
	o, err := scanOfficer(row)
	if err != nil {
		if isNoRows(err) {
			return dispatch.Officer{}, dispatch.ErrOfficerNotFound
		}
		return dispatch.Officer{}, fmt.Errorf("get officer: %w", err)
	}
	return o, nil
}

func (s *Store) GetStation(ctx context.Context, id uuid.UUID) (dispatch.Station, error) {
	var (
		st    dispatch.Station
		pgsID pgtype.UUID
	)
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM stations WHERE id = $1`, pgUUID(id)).
		Scan(&pgsID, &st.Name)
	if err != nil {
		if isNoRows(err) {
			return dispatch.Station{}, dispatch.ErrStationNotFound
		}
		return dispatch.Station{}, fmt.Errorf("get station: %w", err)
	}
	st.ID = fromPGUUID(pgsID)
	return st, nil
}

func (s *Store) ListOnDutyOfficers(ctx context.Context, stationID uuid.UUID) ([]dispatch.Officer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, role, on_duty, assigned_station_id, push_token
		FROM officers
		WHERE assigned_station_id = $1 AND on_duty AND role = $2
		ORDER BY name`, pgUUID(stationID), dispatch.RolePatrolOfficer)
	if err != nil {
		return nil, fmt.Errorf("list on-duty officers: %w", err)
	}
	defer rows.Close()

	var out []dispatch.Officer
	for rows.Next() {
		o, err := scanOfficer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan officer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ListOversightPushTokens(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT push_token FROM officers
		WHERE role = $1 AND push_token IS NOT NULL AND push_token <> ''
		ORDER BY name`, dispatch.RoleOversight)
	if err != nil {
		return nil, fmt.Errorf("list oversight tokens: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan oversight token: %w", err)
		}
		out = append(out, token)
	}
	return out, rows.Err()
}

// UpsertOfficerLocation keeps exactly one current-position row per officer;
// last write wins.
func (s *Store) UpsertOfficerLocation(ctx context.Context, loc dispatch.OfficerLocation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO officer_locations (officer_id, latitude, longitude, heading, speed, accuracy, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (officer_id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			heading = EXCLUDED.heading,
			speed = EXCLUDED.speed,
			accuracy = EXCLUDED.accuracy,
			updated_at = EXCLUDED.updated_at`,
		pgUUID(loc.OfficerID), loc.Latitude, loc.Longitude,
		loc.Heading, loc.Speed, loc.Accuracy, pgTime(loc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert officer location: %w", err)
	}
	return nil
}

// ListLocatedOfficers is the geo locator's candidate query: on-duty patrol
// officers at the station whose last position is at or after freshSince.
func (s *Store) ListLocatedOfficers(ctx context.Context, stationID uuid.UUID, freshSince time.Time) ([]dispatch.LocatedOfficer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.id, o.name, o.role, o.on_duty, o.assigned_station_id, o.push_token,
			l.latitude, l.longitude, l.updated_at
		FROM officers o
		JOIN officer_locations l ON l.officer_id = o.id
		WHERE o.assigned_station_id = $1 AND o.on_duty AND o.role = $2
			AND l.updated_at >= $3
		ORDER BY o.id`,
		pgUUID(stationID), dispatch.RolePatrolOfficer, pgTime(freshSince))
	if err != nil {
		return nil, fmt.Errorf("list located officers: %w", err)
	}
	defer rows.Close()

	var out []dispatch.LocatedOfficer
	for rows.Next() {
		var (
			l         dispatch.LocatedOfficer
			id        pgtype.UUID
			stID      pgtype.UUID
			pushToken *string
			locatedAt pgtype.Timestamptz
		)
		err := rows.Scan(&id, &l.Officer.Name, &l.Officer.Role, &l.Officer.OnDuty, &stID, &pushToken,
			&l.Latitude, &l.Longitude, &locatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan located officer: %w", err)
		}
		l.Officer.ID = fromPGUUID(id)
		l.Officer.StationID = fromPGUUIDPtr(stID)
		l.Officer.PushToken = optionalString(pushToken)
		l.LocatedAt = locatedAt.Time
		out = append(out, l)
	}
	return out, rows.Err()
}
