// README: Ride store backed by PostgreSQL; every status change is a
// conditional write on (status, status_version).
package ride

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"glide/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const rideColumns = `
	id, rider_id, driver_id, previous_drivers,
	pickup, dropoff,
	price, currency, distance_km, estimated_minutes, transport_class, payment_method,
	status, status_version, reassignment_count, cancelled_by,
	start_location, end_location, final_fare, final_distance_km,
	created_at, accepted_at, start_time, end_time,
	cancelled_at, declined_at, reassigned_at, updated_at`

func (s *Store) Create(ctx context.Context, r *Ride) error {
	pickup, err := encodeEndpoint(r.Pickup)
	if err != nil {
		return err
	}
	dropoff, err := encodeEndpoint(r.Dropoff)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO rides (
			id, rider_id, driver_id, previous_drivers,
			pickup, dropoff,
			price, currency, distance_km, estimated_minutes, transport_class, payment_method,
			status, status_version, reassignment_count,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17
		)`,
		string(r.ID),
		string(r.RiderID),
		toStringPtr(r.DriverID),
		idsToStrings(r.PreviousDrivers),
		pickup, dropoff,
		r.Price.Amount, r.Price.Currency,
		r.DistanceKm, r.EstimatedMinutes, r.TransportClass, r.PaymentMethod,
		string(r.Status), r.StatusVersion, r.ReassignmentCount,
		r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) ListByStatus(ctx context.Context, status Status) ([]*Ride, error) {
	rows, err := s.db.Query(ctx, `SELECT `+rideColumns+` FROM rides WHERE status = $1`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, r)
	}
	return rides, rows.Err()
}

// StatusUpdate carries the per-transition fields written alongside the
// status flip. Nil fields are left untouched.
type StatusUpdate struct {
	DriverID      *types.ID
	CancelledBy   string
	StartLocation *types.Point
	EndLocation   *types.Point
	FinalFare     *types.Money
	FinalDistance *float64
}

// UpdateStatus performs the conditional transaction underpinning every
// transition: the write applies only if the persisted status and version
// still match what the caller read. Returns false when the ride was raced.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, upd StatusUpdate) (bool, error) {
	startLoc, err := encodePointPtr(upd.StartLocation)
	if err != nil {
		return false, err
	}
	endLoc, err := encodePointPtr(upd.EndLocation)
	if err != nil {
		return false, err
	}
	var finalFare *int64
	if upd.FinalFare != nil {
		finalFare = &upd.FinalFare.Amount
	}
	var cancelledBy *string
	if upd.CancelledBy != "" {
		cancelledBy = &upd.CancelledBy
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1,
		    status_version = status_version + 1,
		    driver_id = COALESCE($2, driver_id),
		    cancelled_by = COALESCE($3, cancelled_by),
		    start_location = COALESCE($4, start_location),
		    end_location = COALESCE($5, end_location),
		    final_fare = COALESCE($6, final_fare),
		    final_distance_km = COALESCE($7, final_distance_km),
		    accepted_at = CASE WHEN $1 = 'accepted' THEN NOW() ELSE accepted_at END,
		    start_time = CASE WHEN $1 = 'in_progress' THEN NOW() ELSE start_time END,
		    end_time = CASE WHEN $1 = 'completed' THEN NOW() ELSE end_time END,
		    cancelled_at = CASE WHEN $1 IN ('cancelled', 'cancelled_by_driver') THEN NOW() ELSE cancelled_at END,
		    declined_at = CASE WHEN $1 = 'declined' THEN NOW() ELSE declined_at END,
		    updated_at = NOW()
		WHERE id = $8 AND status = $9 AND status_version = $10`,
		string(to),
		toStringPtr(upd.DriverID),
		cancelledBy,
		startLoc, endLoc,
		finalFare, upd.FinalDistance,
		string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkNeedsReassignment flips a declined/cancelled_by_driver ride back into
// the reassignment pool and records the departing driver in the exclusion
// list. The append is idempotent and the whole write is conditional on the
// observed pre-state, so redundant feed deliveries are no-ops.
func (s *Store) MarkNeedsReassignment(ctx context.Context, id types.ID, departing types.ID, from Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = 'needs_reassignment',
		    status_version = status_version + 1,
		    previous_drivers = CASE
		        WHEN $2 = ANY(previous_drivers) THEN previous_drivers
		        ELSE array_append(previous_drivers, $2)
		    END,
		    reassigned_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		string(id), string(departing), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Rebind re-enters a ride into pending, bound to a new driver. createdAt is
// preserved, the reassignment counter advances, and terminal-adjacent fields
// left over from the failed assignment are cleared so they cannot leak into
// the new assignment's displayed state. The guard also refuses a driver
// already on the exclusion list.
func (s *Store) Rebind(ctx context.Context, id types.ID, newDriver types.ID, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = 'pending',
		    status_version = status_version + 1,
		    driver_id = $2,
		    reassignment_count = reassignment_count + 1,
		    reassigned_at = NOW(),
		    cancelled_at = NULL,
		    cancelled_by = NULL,
		    declined_at = NULL,
		    accepted_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'needs_reassignment'
		  AND status_version = $3
		  AND NOT ($2 = ANY(previous_drivers))`,
		string(id), string(newDriver), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// HasActiveByDriver reports whether the driver currently owns a ride in an
// active state. Used as the best-effort pre-check before Accept.
func (s *Store) HasActiveByDriver(ctx context.Context, driverID types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM rides
			WHERE driver_id = $1
			  AND status IN ('accepted', 'in_progress')
		)`, string(driverID),
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ActiveDriverIDs returns drivers bound to an accepted/in_progress ride;
// the matcher treats them as unavailable regardless of stale availability.
func (s *Store) ActiveDriverIDs(ctx context.Context) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT driver_id FROM rides
		WHERE driver_id IS NOT NULL
		  AND status IN ('accepted', 'in_progress')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

// ExpirePendingBefore cancels rides stuck in pending since before the cutoff.
// Only invoked when the expiry policy is enabled.
func (s *Store) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = 'cancelled',
		    status_version = status_version + 1,
		    cancelled_by = 'system',
		    cancelled_at = NOW(),
		    updated_at = NOW()
		WHERE status = 'pending' AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_state_events (
			ride_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.RideID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func (s *Store) ListEventsByRide(ctx context.Context, rideID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, from_status, to_status, actor_type, actor_id, created_at
		FROM ride_state_events
		WHERE ride_id = $1
		ORDER BY id`, string(rideID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var actorID sql.NullString
		if err := rows.Scan(&e.ID, &e.RideID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			a := types.ID(actorID.String)
			e.ActorID = &a
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ---------------------------------------------------------------------------
// Row scanning and JSONB endpoint codec
// ---------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*Ride, error) {
	var r Ride
	var driverID, cancelledBy sql.NullString
	var prevDrivers []string
	var pickupDoc, dropoffDoc []byte
	var startLoc, endLoc []byte
	var finalFare sql.NullInt64
	var finalDistance sql.NullFloat64
	var acceptedAt, startTime, endTime, cancelledAt, declinedAt, reassignedAt sql.NullTime

	err := row.Scan(
		&r.ID, &r.RiderID, &driverID, &prevDrivers,
		&pickupDoc, &dropoffDoc,
		&r.Price.Amount, &r.Price.Currency, &r.DistanceKm, &r.EstimatedMinutes, &r.TransportClass, &r.PaymentMethod,
		&r.Status, &r.StatusVersion, &r.ReassignmentCount, &cancelledBy,
		&startLoc, &endLoc, &finalFare, &finalDistance,
		&r.CreatedAt, &acceptedAt, &startTime, &endTime,
		&cancelledAt, &declinedAt, &reassignedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		d := types.ID(driverID.String)
		r.DriverID = &d
	}
	if cancelledBy.Valid {
		r.CancelledBy = cancelledBy.String
	}
	for _, p := range prevDrivers {
		r.PreviousDrivers = append(r.PreviousDrivers, types.ID(p))
	}
	if r.Pickup, err = decodeEndpoint(pickupDoc); err != nil {
		return nil, err
	}
	if r.Dropoff, err = decodeEndpoint(dropoffDoc); err != nil {
		return nil, err
	}
	if p, err := decodePointPtr(startLoc); err == nil {
		r.StartLocation = p
	}
	if p, err := decodePointPtr(endLoc); err == nil {
		r.EndLocation = p
	}
	if finalFare.Valid {
		f := types.Money{Amount: finalFare.Int64, Currency: r.Price.Currency}
		r.FinalFare = &f
	}
	if finalDistance.Valid {
		v := finalDistance.Float64
		r.FinalDistance = &v
	}
	r.AcceptedAt = toTimePtr(acceptedAt)
	r.StartTime = toTimePtr(startTime)
	r.EndTime = toTimePtr(endTime)
	r.CancelledAt = toTimePtr(cancelledAt)
	r.DeclinedAt = toTimePtr(declinedAt)
	r.ReassignedAt = toTimePtr(reassignedAt)
	return &r, nil
}

func encodeEndpoint(e Endpoint) ([]byte, error) {
	return json.Marshal(map[string]any{
		"latitude":  e.Point.Lat,
		"longitude": e.Point.Lng,
		"address":   e.Address,
	})
}

// decodeEndpoint goes through the shape normalizer so legacy nested rows
// scan the same as current flattened ones.
func decodeEndpoint(raw []byte) (Endpoint, error) {
	if len(raw) == 0 {
		return Endpoint{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Endpoint{}, err
	}
	e, _ := endpointFromMap(m)
	return e, nil
}

func encodePointPtr(p *types.Point) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(map[string]any{"latitude": p.Lat, "longitude": p.Lng})
}

func decodePointPtr(raw []byte) (*types.Point, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	lat, latOK := floatField(m, "latitude")
	lng, lngOK := floatField(m, "longitude")
	if !latOK || !lngOK {
		return nil, nil
	}
	return &types.Point{Lat: lat, Lng: lng}, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func idsToStrings(ids []types.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
