package ride

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"glide/internal/types"
)

// ---------------------------------------------------------------------------
// In-memory Storage used by state-machine tests. UpdateStatus reproduces the
// conditional-write semantics of the SQL store: apply only if (status,
// status_version) still match, atomically under one lock.
// ---------------------------------------------------------------------------

type memStorage struct {
	mu     sync.Mutex
	rides  map[types.ID]*Ride
	events []Event
}

func newMemStorage() *memStorage {
	return &memStorage{rides: map[types.ID]*Ride{}}
}

func (m *memStorage) Create(_ context.Context, r *Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *memStorage) Get(_ context.Context, id types.ID) (*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	cp.PreviousDrivers = append([]types.ID(nil), r.PreviousDrivers...)
	return &cp, nil
}

func (m *memStorage) ListByStatus(_ context.Context, status Status) ([]*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Ride
	for _, r := range m.rides {
		if r.Status == status {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStorage) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, upd StatusUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok || r.Status != from || r.StatusVersion != version {
		return false, nil
	}
	now := time.Now()
	r.Status = to
	r.StatusVersion++
	r.UpdatedAt = now
	if upd.DriverID != nil {
		d := *upd.DriverID
		r.DriverID = &d
	}
	if upd.CancelledBy != "" {
		r.CancelledBy = upd.CancelledBy
	}
	if upd.StartLocation != nil {
		p := *upd.StartLocation
		r.StartLocation = &p
	}
	if upd.EndLocation != nil {
		p := *upd.EndLocation
		r.EndLocation = &p
	}
	if upd.FinalFare != nil {
		f := *upd.FinalFare
		r.FinalFare = &f
	}
	if upd.FinalDistance != nil {
		v := *upd.FinalDistance
		r.FinalDistance = &v
	}
	switch to {
	case StatusAccepted:
		r.AcceptedAt = &now
	case StatusInProgress:
		r.StartTime = &now
	case StatusCompleted:
		r.EndTime = &now
	case StatusCancelled, StatusCancelledByDriver:
		r.CancelledAt = &now
	case StatusDeclined:
		r.DeclinedAt = &now
	}
	return true, nil
}

func (m *memStorage) MarkNeedsReassignment(_ context.Context, id types.ID, departing types.ID, from Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok || r.Status != from {
		return false, nil
	}
	now := time.Now()
	r.Status = StatusNeedsReassignment
	r.StatusVersion++
	excluded := false
	for _, d := range r.PreviousDrivers {
		if d == departing {
			excluded = true
			break
		}
	}
	if !excluded {
		r.PreviousDrivers = append(r.PreviousDrivers, departing)
	}
	r.ReassignedAt = &now
	r.UpdatedAt = now
	return true, nil
}

func (m *memStorage) Rebind(_ context.Context, id types.ID, newDriver types.ID, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok || r.Status != StatusNeedsReassignment || r.StatusVersion != version {
		return false, nil
	}
	for _, d := range r.PreviousDrivers {
		if d == newDriver {
			return false, nil
		}
	}
	now := time.Now()
	r.Status = StatusPending
	r.StatusVersion++
	d := newDriver
	r.DriverID = &d
	r.ReassignmentCount++
	r.ReassignedAt = &now
	r.CancelledAt = nil
	r.CancelledBy = ""
	r.DeclinedAt = nil
	r.AcceptedAt = nil
	r.UpdatedAt = now
	return true, nil
}

func (m *memStorage) HasActiveByDriver(_ context.Context, driverID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rides {
		if r.DriverID != nil && *r.DriverID == driverID &&
			(r.Status == StatusAccepted || r.Status == StatusInProgress) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStorage) ExpirePendingBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rides {
		if r.Status == StatusPending && r.CreatedAt.Before(cutoff) {
			r.Status = StatusCancelled
			r.StatusVersion++
			r.CancelledBy = ActorSystem
			n++
		}
	}
	return n, nil
}

func (m *memStorage) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *memStorage) ListEventsByRide(_ context.Context, rideID types.ID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.RideID == rideID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type flatFare struct{}

func (flatFare) Estimate(_ context.Context, distanceKm float64, _ string) (types.Money, error) {
	return types.Money{Amount: 250 + int64(distanceKm*100), Currency: "USD"}, nil
}

func newTestService(store Storage) *Service {
	return NewService(store, flatFare{}, nil, NewHub(), nil)
}

func createPending(t *testing.T, svc *Service, bound *types.ID) *Ride {
	t.Helper()
	r, err := svc.Create(context.Background(), CreateCommand{
		RiderID:        "rider_1",
		Pickup:         Endpoint{Point: types.Point{Lat: 25.033, Lng: 121.565}, Address: "origin"},
		Dropoff:        Endpoint{Point: types.Point{Lat: 25.047, Lng: 121.531}, Address: "destination"},
		TransportClass: ClassTaxi,
		PaymentMethod:  "card",
		DriverID:       bound,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return r
}

// ---------------------------------------------------------------------------
// Creation and validation
// ---------------------------------------------------------------------------

func TestCreate_RejectsBeforeAnyWrite(t *testing.T) {
	store := newMemStorage()
	svc := newTestService(store)
	ctx := context.Background()

	cases := []CreateCommand{
		{}, // everything missing
		{RiderID: "r", Pickup: Endpoint{Point: types.Point{Lat: 200}}, Dropoff: Endpoint{Point: types.Point{Lat: 1, Lng: 1}}, TransportClass: ClassTaxi, PaymentMethod: "card"},
		{RiderID: "r", Pickup: Endpoint{Point: types.Point{Lat: 1, Lng: 1}}, Dropoff: Endpoint{Point: types.Point{Lat: 2, Lng: 2}}, TransportClass: "jetpack", PaymentMethod: "card"},
		{RiderID: "r", Pickup: Endpoint{Point: types.Point{Lat: 1, Lng: 1}}, Dropoff: Endpoint{Point: types.Point{Lat: 2, Lng: 2}}, TransportClass: ClassTaxi}, // no payment selected
	}
	for i, cmd := range cases {
		if _, err := svc.Create(ctx, cmd); err != ErrBadRequest {
			t.Errorf("case %d: expected ErrBadRequest, got %v", i, err)
		}
	}
	if len(store.rides) != 0 {
		t.Errorf("validation failures must not write to the store")
	}
}

func TestCreate_QuotesAndStartsPending(t *testing.T) {
	svc := newTestService(newMemStorage())
	r := createPending(t, svc, nil)

	if r.Status != StatusPending {
		t.Errorf("status = %s, want pending", r.Status)
	}
	if r.Price.Amount <= 0 {
		t.Errorf("expected a quoted price, got %d", r.Price.Amount)
	}
	if r.DistanceKm <= 0 || r.EstimatedMinutes <= 0 {
		t.Errorf("expected route estimate, got %f km / %d min", r.DistanceKm, r.EstimatedMinutes)
	}
}

// ---------------------------------------------------------------------------
// Accept
// ---------------------------------------------------------------------------

func TestAccept_SetsDriverAndTimestamp(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	r := createPending(t, svc, nil)

	if err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	got, _ := svc.Get(ctx, r.ID)
	if got.Status != StatusAccepted {
		t.Errorf("status = %s, want accepted", got.Status)
	}
	if got.DriverID == nil || *got.DriverID != "d1" {
		t.Errorf("driver not bound: %v", got.DriverID)
	}
	if got.AcceptedAt == nil {
		t.Error("acceptedAt not stamped")
	}
}

// TestAccept_ConcurrentExactlyOne: many drivers race to accept the same
// pending ride in the same instant; exactly one succeeds and the rest are
// told the ride is no longer available. The winner is whoever's conditional
// write landed.
func TestAccept_ConcurrentExactlyOne(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	r := createPending(t, svc, nil)

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
		if err != ErrRideUnavailable {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful accept, got %d", success)
	}

	got, _ := svc.Get(ctx, r.ID)
	if got.Status != StatusAccepted {
		t.Fatalf("final status = %s, want accepted", got.Status)
	}
	if got.DriverID == nil || *got.DriverID == "" {
		t.Fatal("winner's driver id not recorded")
	}
}

func TestAccept_BoundPendingVisibleOnlyToBoundDriver(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	chosen := types.ID("d_chosen")
	r := createPending(t, svc, &chosen)

	if err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d_other"}); err != ErrRideUnavailable {
		t.Errorf("expected ErrRideUnavailable for non-bound driver, got %v", err)
	}
	if err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: chosen}); err != nil {
		t.Errorf("bound driver accept: %v", err)
	}
}

func TestAccept_RejectsExcludedDriver(t *testing.T) {
	store := newMemStorage()
	svc := newTestService(store)
	ctx := context.Background()
	r := createPending(t, svc, nil)

	if err := svc.Decline(ctx, DeclineCommand{RideID: r.ID, DriverID: "d1"}); err != ErrNotAssigned {
		t.Fatalf("decline by unbound driver should be ErrNotAssigned, got %v", err)
	}

	// Bind, decline, reopen — d1 lands on the exclusion list.
	chosen := types.ID("d1")
	r2 := createPending(t, svc, &chosen)
	if err := svc.Decline(ctx, DeclineCommand{RideID: r2.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if err := svc.Reopen(ctx, r2.ID, "d1", StatusDeclined); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := svc.Rebind(ctx, RebindCommand{RideID: r2.ID, RiderID: "rider_1", DriverID: "d2"}); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if err := svc.Accept(ctx, AcceptCommand{RideID: r2.ID, DriverID: "d1"}); err != ErrRideUnavailable && err != ErrDriverExcluded {
		t.Errorf("excluded driver must not accept, got %v", err)
	}
}

func TestAccept_DriverWithActiveRide(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()

	first := createPending(t, svc, nil)
	if err := svc.Accept(ctx, AcceptCommand{RideID: first.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("accept first: %v", err)
	}

	second := createPending(t, svc, nil)
	if err := svc.Accept(ctx, AcceptCommand{RideID: second.ID, DriverID: "d1"}); err != ErrActiveRide {
		t.Errorf("expected ErrActiveRide, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Decline / Start / Complete / Cancel
// ---------------------------------------------------------------------------

func TestDecline_FromAcceptedBecomesCancelledByDriver(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	r := createPending(t, svc, nil)
	if err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := svc.Decline(ctx, DeclineCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("decline: %v", err)
	}
	got, _ := svc.Get(ctx, r.ID)
	if got.Status != StatusCancelledByDriver {
		t.Errorf("status = %s, want cancelled_by_driver", got.Status)
	}
}

func TestDecline_FromPendingBecomesDeclined(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	chosen := types.ID("d1")
	r := createPending(t, svc, &chosen)

	if err := svc.Decline(ctx, DeclineCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("decline: %v", err)
	}
	got, _ := svc.Get(ctx, r.ID)
	if got.Status != StatusDeclined {
		t.Errorf("status = %s, want declined", got.Status)
	}
	if got.DeclinedAt == nil {
		t.Error("declinedAt not stamped")
	}
}

func TestStartAndComplete_StampLocationsAndFinalFare(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	r := createPending(t, svc, nil)
	if err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	startPos := types.Point{Lat: 25.03, Lng: 121.56}
	if err := svc.Start(ctx, StartCommand{RideID: r.ID, DriverID: "d1", Position: startPos}); err != nil {
		t.Fatalf("start: %v", err)
	}
	got, _ := svc.Get(ctx, r.ID)
	if got.Status != StatusInProgress || got.StartLocation == nil || got.StartTime == nil {
		t.Fatalf("start did not stamp state: %+v", got)
	}

	endPos := types.Point{Lat: 25.05, Lng: 121.53}
	if err := svc.Complete(ctx, CompleteCommand{RideID: r.ID, DriverID: "d1", Position: endPos, TraveledKm: 4.2}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ = svc.Get(ctx, r.ID)
	if got.Status != StatusCompleted || got.EndLocation == nil || got.EndTime == nil {
		t.Fatalf("complete did not stamp state: %+v", got)
	}
	if got.FinalFare == nil || got.FinalFare.Amount <= 0 {
		t.Error("final fare not stamped")
	}
	if got.FinalDistance == nil || *got.FinalDistance != 4.2 {
		t.Errorf("final distance = %v, want 4.2", got.FinalDistance)
	}
}

func TestStart_OnlyBoundDriver(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	r := createPending(t, svc, nil)
	if err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := svc.Start(ctx, StartCommand{RideID: r.ID, DriverID: "d2"}); err != ErrNotAssigned {
		t.Errorf("expected ErrNotAssigned, got %v", err)
	}
}

func TestCancel_PendingUnbound(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	r := createPending(t, svc, nil)

	if err := svc.Cancel(ctx, CancelCommand{RideID: r.ID, RiderID: "rider_1"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := svc.Get(ctx, r.ID)
	if got.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if got.CancelledBy != ActorUser {
		t.Errorf("cancelledBy = %q, want %q", got.CancelledBy, ActorUser)
	}
}

func TestCancel_WrongRider(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	r := createPending(t, svc, nil)

	if err := svc.Cancel(ctx, CancelCommand{RideID: r.ID, RiderID: "someone_else"}); err != ErrNotRideOwner {
		t.Errorf("expected ErrNotRideOwner, got %v", err)
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()

	r := createPending(t, svc, nil)
	if err := svc.Cancel(ctx, CancelCommand{RideID: r.ID, RiderID: "rider_1"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"}); err != ErrRideUnavailable {
		t.Errorf("accept on cancelled ride: got %v", err)
	}
	if err := svc.Cancel(ctx, CancelCommand{RideID: r.ID, RiderID: "rider_1"}); err != ErrInvalidState {
		t.Errorf("second cancel: got %v", err)
	}
	if err := svc.Reopen(ctx, r.ID, "d1", StatusDeclined); err != nil {
		// Reopen is a conditional no-op when the pre-state does not match.
		t.Errorf("reopen on cancelled ride must be a no-op, got %v", err)
	}
	got, _ := svc.Get(ctx, r.ID)
	if got.Status != StatusCancelled {
		t.Errorf("terminal state mutated to %s", got.Status)
	}
}

// ---------------------------------------------------------------------------
// Concurrent accept vs cancel: at most one wins the same version.
// ---------------------------------------------------------------------------

func TestConcurrentAcceptVsCancel(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	r := createPending(t, svc, nil)

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
		errs <- svc.Cancel(ctx, CancelCommand{RideID: r.ID, RiderID: "rider_1"})
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && err != ErrRideUnavailable && err != ErrInvalidState {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, _ := svc.Get(ctx, r.ID)
	if got.Status != StatusAccepted && got.Status != StatusCancelled {
		t.Fatalf("unexpected final status: %s", got.Status)
	}
}

// ---------------------------------------------------------------------------
// Reassignment
// ---------------------------------------------------------------------------

func TestReopen_AppendsExclusionIdempotently(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	r := createPending(t, svc, nil)
	if err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := svc.Decline(ctx, DeclineCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("decline: %v", err)
	}

	// Redundant deliveries of the same event must not duplicate effects.
	for i := 0; i < 3; i++ {
		if err := svc.Reopen(ctx, r.ID, "d1", StatusCancelledByDriver); err != nil {
			t.Fatalf("reopen pass %d: %v", i, err)
		}
	}

	got, _ := svc.Get(ctx, r.ID)
	if got.Status != StatusNeedsReassignment {
		t.Errorf("status = %s, want needs_reassignment", got.Status)
	}
	count := 0
	for _, d := range got.PreviousDrivers {
		if d == "d1" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("d1 appears %d times in previousDrivers, want 1", count)
	}
}

func TestRebind_PreservesHistoryAndClearsStaleFields(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	r := createPending(t, svc, nil)
	createdAt := r.CreatedAt

	if err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := svc.Decline(ctx, DeclineCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if err := svc.Reopen(ctx, r.ID, "d1", StatusCancelledByDriver); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := svc.Rebind(ctx, RebindCommand{RideID: r.ID, RiderID: "rider_1", DriverID: "d2"}); err != nil {
		t.Fatalf("rebind: %v", err)
	}

	got, _ := svc.Get(ctx, r.ID)
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.DriverID == nil || *got.DriverID != "d2" {
		t.Errorf("driver = %v, want d2", got.DriverID)
	}
	if got.ReassignmentCount != 1 {
		t.Errorf("reassignmentCount = %d, want 1", got.ReassignmentCount)
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Error("createdAt must be preserved across re-entry")
	}
	if got.CancelledAt != nil || got.CancelledBy != "" || got.DeclinedAt != nil {
		t.Error("stale terminal-adjacent fields leaked into the new assignment")
	}
	// Exclusion monotonicity: the new driver is never on the exclusion list.
	for _, d := range got.PreviousDrivers {
		if d == *got.DriverID {
			t.Error("current driver present in previousDrivers")
		}
	}
}

func TestRebind_RejectsExcludedDriver(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	r := createPending(t, svc, nil)
	if err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := svc.Decline(ctx, DeclineCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if err := svc.Reopen(ctx, r.ID, "d1", StatusCancelledByDriver); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	if err := svc.Rebind(ctx, RebindCommand{RideID: r.ID, RiderID: "rider_1", DriverID: "d1"}); err != ErrDriverExcluded {
		t.Errorf("expected ErrDriverExcluded, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Audit trail
// ---------------------------------------------------------------------------

func TestEvents_RecordEveryTransition(t *testing.T) {
	svc := newTestService(newMemStorage())
	ctx := context.Background()
	r := createPending(t, svc, nil)
	_ = svc.Accept(ctx, AcceptCommand{RideID: r.ID, DriverID: "d1"})
	_ = svc.Start(ctx, StartCommand{RideID: r.ID, DriverID: "d1", Position: types.Point{Lat: 1, Lng: 1}})
	_ = svc.Complete(ctx, CompleteCommand{RideID: r.ID, DriverID: "d1", Position: types.Point{Lat: 2, Lng: 2}})

	events, err := svc.Events(ctx, r.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	want := []Status{StatusPending, StatusAccepted, StatusInProgress, StatusCompleted}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, e := range events {
		if e.ToStatus != want[i] {
			t.Errorf("event %d: to = %s, want %s", i, e.ToStatus, want[i])
		}
	}
}
