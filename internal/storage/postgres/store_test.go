//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"patrol/dispatch/internal/dispatch"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testPool *pgxpool.Pool
	tc       *tcpostgres.PostgresContainer
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	tc, err = tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("patroldispatch"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90*time.Second)),
	)
	if err != nil {
		fmt.Println("cannot start container:", err)
		os.Exit(1)
	}

	dsn, err := tc.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Println("connection string:", err)
		_ = tc.Terminate(ctx)
		os.Exit(1)
	}

	if err := applyMigrations(ctx, dsn); err != nil {
		fmt.Println("applyMigrations:", err)
		_ = tc.Terminate(ctx)
		os.Exit(1)
	}

	testPool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		fmt.Println("pgxpool.New:", err)
		_ = tc.Terminate(ctx)
		os.Exit(1)
	}

	if err := testPool.Ping(ctx); err != nil {
		fmt.Println("pool.Ping:", err)
		testPool.Close()
		_ = tc.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	testPool.Close()
	_ = tc.Terminate(ctx)
	os.Exit(code)
}

// applyMigrations runs the real migration files, so the tests exercise the
// same schema production gets, partial unique index included.
func applyMigrations(ctx context.Context, dsn string) error {
	dbConn, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	source := &migrate.FileMigrationSource{Dir: "../../../migrations"}
	_, err = migrate.ExecContext(ctx, dbConn, "postgres", source, migrate.Up)
	return err
}

func truncateAll(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`TRUNCATE TABLE officer_locations, dispatches, reports, officers, stations CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func seedStation(t *testing.T) uuid.UUID {
	t.Helper()
	var raw string
	err := testPool.QueryRow(context.Background(),
		`INSERT INTO stations (name) VALUES ('Central') RETURNING id::text`).Scan(&raw)
	if err != nil {
		t.Fatalf("seed station: %v", err)
	}
	return uuid.MustParse(raw)
}

func seedOfficer(t *testing.T, stationID uuid.UUID, role string, onDuty bool, token string) uuid.UUID {
	t.Helper()
	var raw string
	err := testPool.QueryRow(context.Background(), `
		INSERT INTO officers (name, role, on_duty, assigned_station_id, push_token)
		VALUES ('Test Officer', $1, $2, $3, NULLIF($4, ''))
		RETURNING id::text`,
		role, onDuty, pgUUID(stationID), token).Scan(&raw)
	if err != nil {
		t.Fatalf("seed officer: %v", err)
	}
	return uuid.MustParse(raw)
}

func seedReport(t *testing.T, stationID uuid.UUID) uuid.UUID {
	t.Helper()
	var raw string
	err := testPool.QueryRow(context.Background(), `
		INSERT INTO reports (assigned_station_id, latitude, longitude)
		VALUES ($1, 45.0, 7.0)
		RETURNING id::text`, pgUUID(stationID)).Scan(&raw)
	if err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return uuid.MustParse(raw)
}

func seedDispatch(t *testing.T, store *Store, stationID uuid.UUID, at time.Time) dispatch.Dispatch {
	t.Helper()
	reportID := seedReport(t, stationID)
	created, err := store.CreateDispatch(context.Background(), dispatch.Dispatch{
		ReportID:     reportID,
		StationID:    stationID,
		Status:       dispatch.StatusPending,
		DispatchedAt: at,
	})
	if err != nil {
		t.Fatalf("seed dispatch: %v", err)
	}
	return created
}

func TestCreateDispatch_OneActivePerReport(t *testing.T) {
	truncateAll(t)

	store := New(testPool)
	stationID := seedStation(t)
	reportID := seedReport(t, stationID)
	officerID := seedOfficer(t, stationID, dispatch.RolePatrolOfficer, true, "")
	now := time.Now().UTC()

	first, err := store.CreateDispatch(context.Background(), dispatch.Dispatch{
		ReportID: reportID, StationID: stationID,
		Status: dispatch.StatusPending, DispatchedAt: now,
	})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err = store.CreateDispatch(context.Background(), dispatch.Dispatch{
		ReportID: reportID, StationID: stationID,
		Status: dispatch.StatusPending, DispatchedAt: now,
	})
	if !errors.Is(err, dispatch.ErrDuplicateActiveDispatch) {
		t.Fatalf("second create err = %v, want ErrDuplicateActiveDispatch", err)
	}

	// Closing the first dispatch frees the report for re-dispatch.
	if _, ok, err := store.DeclineDispatch(context.Background(), first.ID, officerID, now, "busy"); err != nil || !ok {
		t.Fatalf("decline: ok=%v err=%v", ok, err)
	}
	if _, err := store.CreateDispatch(context.Background(), dispatch.Dispatch{
		ReportID: reportID, StationID: stationID,
		Status: dispatch.StatusPending, DispatchedAt: now,
	}); err != nil {
		t.Fatalf("create after decline: %v", err)
	}
}

func TestClaimDispatch_ConcurrentClaimsSingleWinner(t *testing.T) {
	truncateAll(t)

	store := New(testPool)
	stationID := seedStation(t)
	created := seedDispatch(t, store, stationID, time.Now().UTC())

	const claimers = 12
	officers := make([]uuid.UUID, claimers)
	for i := range officers {
		officers[i] = seedOfficer(t, stationID, dispatch.RolePatrolOfficer, true, "")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []uuid.UUID
	)
	start := make(chan struct{})
	for _, officerID := range officers {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			<-start
			_, ok, err := store.ClaimDispatch(context.Background(), created.ID, id, time.Now().UTC(), 180)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
			}
		}(officerID)
	}
	close(start)
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("winners = %d, want exactly 1", len(winners))
	}

	final, err := store.GetDispatch(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get dispatch: %v", err)
	}
	if final.Status != dispatch.StatusAccepted {
		t.Fatalf("status = %s, want accepted", final.Status)
	}
	if final.OfficerID == nil || *final.OfficerID != winners[0] {
		t.Fatalf("officer = %v, want the winning claimer %s", final.OfficerID, winners[0])
	}
	if final.AcceptanceTime == nil || final.ThreeMinuteRuleMet == nil {
		t.Fatal("claim must stamp the SLA fields")
	}
}

func TestClaimDispatch_SLAStamping(t *testing.T) {
	truncateAll(t)

	store := New(testPool)
	stationID := seedStation(t)
	officerID := seedOfficer(t, stationID, dispatch.RolePatrolOfficer, true, "")

	dispatchedAt := time.Now().UTC().Add(-200 * time.Second)
	created := seedDispatch(t, store, stationID, dispatchedAt)

	claimAt := dispatchedAt.Add(200 * time.Second)
	claimed, ok, err := store.ClaimDispatch(context.Background(), created.ID, officerID, claimAt, 180)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if claimed.AcceptanceTime == nil || *claimed.AcceptanceTime != 200 {
		t.Fatalf("acceptance time = %v, want 200", claimed.AcceptanceTime)
	}
	if claimed.ThreeMinuteRuleMet == nil || *claimed.ThreeMinuteRuleMet {
		t.Fatal("200s acceptance must miss the 180s threshold")
	}

	// A second claim finds no claimable row.
	other := seedOfficer(t, stationID, dispatch.RolePatrolOfficer, true, "")
	if _, ok, err := store.ClaimDispatch(context.Background(), created.ID, other, claimAt, 180); err != nil || ok {
		t.Fatalf("repeat claim: ok=%v err=%v, want a rejected transition", ok, err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	truncateAll(t)

	store := New(testPool)
	stationID := seedStation(t)
	officerID := seedOfficer(t, stationID, dispatch.RolePatrolOfficer, true, "")
	stranger := seedOfficer(t, stationID, dispatch.RolePatrolOfficer, true, "")

	dispatchedAt := time.Now().UTC().Add(-10 * time.Minute)
	created := seedDispatch(t, store, stationID, dispatchedAt)

	if _, ok, _ := store.MarkEnRoute(context.Background(), created.ID, officerID, dispatchedAt); ok {
		t.Fatal("en-route before claim must be rejected")
	}

	if _, ok, err := store.ClaimDispatch(context.Background(), created.ID, officerID, dispatchedAt.Add(time.Minute), 180); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	if _, ok, _ := store.MarkEnRoute(context.Background(), created.ID, stranger, dispatchedAt.Add(2*time.Minute)); ok {
		t.Fatal("another officer must not advance a claimed dispatch")
	}

	if _, ok, err := store.MarkEnRoute(context.Background(), created.ID, officerID, dispatchedAt.Add(2*time.Minute)); err != nil || !ok {
		t.Fatalf("en-route: ok=%v err=%v", ok, err)
	}

	arrived, ok, err := store.MarkArrived(context.Background(), created.ID, officerID, dispatchedAt.Add(5*time.Minute))
	if err != nil || !ok {
		t.Fatalf("arrived: ok=%v err=%v", ok, err)
	}
	if arrived.ResponseTime == nil || *arrived.ResponseTime != 300 {
		t.Fatalf("response time = %v, want 300", arrived.ResponseTime)
	}

	completed, ok, err := store.CompleteDispatch(context.Background(), created.ID, officerID, dispatchedAt.Add(15*time.Minute), true, "confirmed")
	if err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}
	if completed.CompletionTime == nil || *completed.CompletionTime != 600 {
		t.Fatalf("completion time = %v, want 600 (from arrival)", completed.CompletionTime)
	}
	if completed.IsValid == nil || !*completed.IsValid || completed.ValidationNotes != "confirmed" {
		t.Fatalf("verification fields = %+v", completed)
	}

	// Terminal rows reject every further transition.
	if _, ok, _ := store.CancelDispatch(context.Background(), created.ID, time.Now().UTC(), ""); ok {
		t.Fatal("cancel after completion must be rejected")
	}
}

func TestCompleteDispatch_UnclaimedAdoptsOfficer(t *testing.T) {
	truncateAll(t)

	store := New(testPool)
	stationID := seedStation(t)
	officerID := seedOfficer(t, stationID, dispatch.RolePatrolOfficer, true, "")
	now := time.Now().UTC()
	created := seedDispatch(t, store, stationID, now)

	completed, ok, err := store.CompleteDispatch(context.Background(), created.ID, officerID, now.Add(time.Minute), false, "")
	if err != nil || !ok {
		t.Fatalf("complete unclaimed: ok=%v err=%v", ok, err)
	}
	if completed.OfficerID == nil || *completed.OfficerID != officerID {
		t.Fatal("completing an unclaimed dispatch must record the verifying officer")
	}
	if completed.CompletionTime == nil || *completed.CompletionTime != 0 {
		t.Fatalf("completion time = %v, want 0 without an arrival baseline", completed.CompletionTime)
	}
}

func TestListPendingForStation_Visibility(t *testing.T) {
	truncateAll(t)

	store := New(testPool)
	stationID := seedStation(t)
	claimer := seedOfficer(t, stationID, dispatch.RolePatrolOfficer, true, "")
	observer := seedOfficer(t, stationID, dispatch.RolePatrolOfficer, true, "")
	now := time.Now().UTC()

	open := seedDispatch(t, store, stationID, now.Add(-2*time.Minute))
	claimed := seedDispatch(t, store, stationID, now.Add(-time.Minute))
	if _, ok, err := store.ClaimDispatch(context.Background(), claimed.ID, claimer, now, 180); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	mine, err := store.ListPendingForStation(context.Background(), stationID, claimer)
	if err != nil {
		t.Fatalf("list for claimer: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("claimer sees %d dispatches, want 2 (open + own claim)", len(mine))
	}
	// Newest first.
	if mine[0].ID != claimed.ID || mine[1].ID != open.ID {
		t.Fatalf("feed order = [%s, %s], want newest first", mine[0].ID, mine[1].ID)
	}

	others, err := store.ListPendingForStation(context.Background(), stationID, observer)
	if err != nil {
		t.Fatalf("list for observer: %v", err)
	}
	if len(others) != 1 || others[0].ID != open.ID {
		t.Fatalf("observer sees %d dispatches, want only the open one", len(others))
	}
}

func TestOfficerLocations_UpsertAndStaleness(t *testing.T) {
	truncateAll(t)

	store := New(testPool)
	stationID := seedStation(t)
	fresh := seedOfficer(t, stationID, dispatch.RolePatrolOfficer, true, "")
	stale := seedOfficer(t, stationID, dispatch.RolePatrolOfficer, true, "")
	offDuty := seedOfficer(t, stationID, dispatch.RolePatrolOfficer, false, "")
	now := time.Now().UTC()

	for _, loc := range []dispatch.OfficerLocation{
		{OfficerID: fresh, Latitude: 45.001, Longitude: 7.0, UpdatedAt: now},
		{OfficerID: stale, Latitude: 45.002, Longitude: 7.0, UpdatedAt: now.Add(-10 * time.Minute)},
		{OfficerID: offDuty, Latitude: 45.003, Longitude: 7.0, UpdatedAt: now},
	} {
		if err := store.UpsertOfficerLocation(context.Background(), loc); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	// Re-upserting moves the row instead of adding one.
	if err := store.UpsertOfficerLocation(context.Background(), dispatch.OfficerLocation{
		OfficerID: fresh, Latitude: 45.010, Longitude: 7.1, UpdatedAt: now.Add(time.Second),
	}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	located, err := store.ListLocatedOfficers(context.Background(), stationID, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("list located: %v", err)
	}
	if len(located) != 1 {
		t.Fatalf("located = %d, want 1 (stale and off-duty excluded)", len(located))
	}
	if located[0].Officer.ID != fresh || located[0].Latitude != 45.010 {
		t.Fatalf("located = %+v, want the re-upserted fresh position", located[0])
	}
}

func TestReports_StatusRoundTrip(t *testing.T) {
	truncateAll(t)

	store := New(testPool)
	stationID := seedStation(t)
	reportID := seedReport(t, stationID)

	report, err := store.GetReport(context.Background(), reportID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if report.Status != dispatch.ReportStatusPending {
		t.Fatalf("status = %s, want pending", report.Status)
	}
	if report.StationID == nil || *report.StationID != stationID {
		t.Fatalf("station = %v, want %s", report.StationID, stationID)
	}

	if err := store.SetReportStatus(context.Background(), reportID, dispatch.ReportStatusDispatched); err != nil {
		t.Fatalf("set status: %v", err)
	}
	report, _ = store.GetReport(context.Background(), reportID)
	if report.Status != dispatch.ReportStatusDispatched {
		t.Fatalf("status = %s, want dispatched", report.Status)
	}

	if err := store.SetReportStatus(context.Background(), uuid.New(), dispatch.ReportStatusPending); !errors.Is(err, dispatch.ErrReportNotFound) {
		t.Fatalf("unknown report err = %v, want ErrReportNotFound", err)
	}

	if _, err := store.GetReport(context.Background(), uuid.New()); !errors.Is(err, dispatch.ErrReportNotFound) {
		t.Fatalf("unknown report err = %v, want ErrReportNotFound", err)
	}
}
