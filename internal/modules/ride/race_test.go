// README: DB-backed concurrency tests for ride transitions (run with -race).
package ride

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"glide/internal/types"
)

func TestStoreConcurrentAcceptSameRide(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := newTestService(store)

	r, err := svc.Create(ctx, CreateCommand{
		RiderID:        "rider_multi_accept",
		Pickup:         Endpoint{Point: types.Point{Lat: 25.033, Lng: 121.565}},
		Dropoff:        Endpoint{Point: types.Point{Lat: 25.0478, Lng: 121.5318}},
		TransportClass: ClassTaxi,
		PaymentMethod:  "card",
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		driverID := types.ID(fmt.Sprintf("d%d", i))
		wg.Add(1)
		go func(did types.ID) {
			defer wg.Done()
			errs <- svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: did})
		}(driverID)
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if err != ErrRideUnavailable && err != ErrActiveRide {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if got.Status != StatusAccepted {
		t.Fatalf("unexpected final status: %s", got.Status)
	}
	if got.DriverID == nil || *got.DriverID == "" {
		t.Fatalf("expected driver_id to be set")
	}
}

func TestStoreConcurrentAcceptVsCancel(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := newTestService(store)

	r, err := svc.Create(ctx, CreateCommand{
		RiderID:        "rider_accept_cancel",
		Pickup:         Endpoint{Point: types.Point{Lat: 25.033, Lng: 121.565}},
		Dropoff:        Endpoint{Point: types.Point{Lat: 25.0478, Lng: 121.5318}},
		TransportClass: ClassTaxi,
		PaymentMethod:  "card",
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- svc.Cancel(ctx, CancelCommand{RideID: r.ID, RiderID: "rider_accept_cancel"})
	}()

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && err != ErrRideUnavailable && err != ErrInvalidState {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if got.Status != StatusAccepted && got.Status != StatusCancelled {
		t.Fatalf("unexpected final status: %s", got.Status)
	}
}

func TestStoreReassignmentRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := newTestService(store)

	r, err := svc.Create(ctx, CreateCommand{
		RiderID:        "rider_reassign",
		Pickup:         Endpoint{Point: types.Point{Lat: 25.033, Lng: 121.565}},
		Dropoff:        Endpoint{Point: types.Point{Lat: 25.0478, Lng: 121.5318}},
		TransportClass: ClassTaxi,
		PaymentMethod:  "card",
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	if err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := svc.Decline(ctx, DeclineCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("decline: %v", err)
	}

	// Redundant deliveries must collapse to one reopen.
	for i := 0; i < 3; i++ {
		if err := svc.Reopen(ctx, r.ID, "d1", StatusCancelledByDriver); err != nil {
			t.Fatalf("reopen pass %d: %v", i, err)
		}
	}
	if err := svc.Rebind(ctx, RebindCommand{RideID: r.ID, RiderID: "rider_reassign", DriverID: "d2"}); err != nil {
		t.Fatalf("rebind: %v", err)
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
	if got.ReassignmentCount != 1 {
		t.Fatalf("reassignment_count = %d, want 1", got.ReassignmentCount)
	}
	if len(got.PreviousDrivers) != 1 || got.PreviousDrivers[0] != "d1" {
		t.Fatalf("previous_drivers = %v", got.PreviousDrivers)
	}
	if got.CancelledAt != nil || got.CancelledBy != "" {
		t.Fatal("stale cancel fields survived rebind")
	}
	// timestamptz stores microseconds; compare with tolerance.
	if d := got.CreatedAt.Sub(r.CreatedAt); d > time.Millisecond || d < -time.Millisecond {
		t.Fatal("created_at changed across rebind")
	}
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("GLIDE_TEST_DSN")
	if dsn == "" {
		t.Skip("GLIDE_TEST_DSN not set; skipping DB-backed race tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	if _, err := db.Exec(ctx, "TRUNCATE TABLE ride_state_events, rides"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	return NewStore(db)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	path := filepath.Join(root, "migrations", "0001_init.sql")
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
