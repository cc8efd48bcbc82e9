package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ridepool/ridepool/internal/domain"
	"github.com/ridepool/ridepool/internal/repository"
)

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func activeStatuses() []string {
	out := make([]string, len(domain.ActiveBookingStatuses))
	for i, s := range domain.ActiveBookingStatuses {
		out[i] = string(s)
	}
	return out
}

// activeSeatSum sums seats_booked across the trip's bookings in active
// states. This is the authoritative number a decision is made from; the
// cached available_seats column is never trusted for admission.
func activeSeatSum(ctx context.Context, db DB, tripID int64) (int, error) {
	var sum int
	err := db.QueryRow(ctx,
		`SELECT COALESCE(SUM(seats_booked), 0)
		 FROM bookings
		 WHERE trip_id = $1 AND status = ANY($2)`,
		tripID, activeStatuses(),
	).Scan(&sum)
	if err != nil {
		return 0, translateDBErr(err)
	}

	return sum, nil
}

// Create admits and inserts a booking, then rewrites the trip's derived
// availability, all in one serializable transaction.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - b: booking to insert; ID, statuses and seat count must be set.
//
// Returns:
//   - error: repository.ErrNotFound if the trip does not exist.
//   - error: domain.ErrTripFinished if the trip is completed or cancelled.
//   - error: *domain.CapacityError if fewer seats remain than requested.
//   - error: repository.ErrConflict on a duplicate booking ID.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Create"

	if r.db != nil {
		if err := r.createCore(ctx, r.db, b); err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	if err := r.createCore(ctx, tx, b); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *BookingRepo) createCore(ctx context.Context, db DB, b *domain.Booking) error {
	trip, err := getTripLocked(ctx, db, b.TripID)
	if err != nil {
		return err
	}

	sum, err := activeSeatSum(ctx, db, b.TripID)
	if err != nil {
		return err
	}

	if err := domain.CheckAdmission(trip, sum, b.SeatsBooked); err != nil {
		return err
	}

	if _, err := db.Exec(ctx,
		`INSERT INTO bookings(id, trip_id, passenger_id, driver_id,
		                      seats_booked, status, telegram_chat_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.TripID, b.PassengerID, trip.DriverID, b.SeatsBooked, b.Status,
		b.TelegramChatID,
	); err != nil {
		return err
	}

	b.DriverID = trip.DriverID

	av := domain.Recompute(trip, sum+b.SeatsBooked)
	if !av.Changed {
		return nil
	}

	return writeAvailability(ctx, db, trip.ID, av)
}

// CheckAdmission is the read-only precheck: it evaluates the same rule as
// Create against the live active-seat sum but takes no locks and writes
// nothing.
//
// Returns:
//   - error: repository.ErrNotFound if the trip does not exist.
//   - error: domain.ErrTripFinished if the trip is completed or cancelled.
//   - error: *domain.CapacityError if fewer seats remain than requested.
func (r *BookingRepo) CheckAdmission(ctx context.Context, tripID int64, seats int) error {
	const op = "postgres.BookingRepo.CheckAdmission"

	db := r.handle()

	var trip domain.Trip
	err := db.QueryRow(ctx,
		`SELECT id, total_seats, available_seats, status
		 FROM trips WHERE id = $1`,
		tripID,
	).Scan(&trip.ID, &trip.TotalSeats, &trip.AvailableSeats, &trip.Status)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	sum, err := activeSeatSum(ctx, db, tripID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := domain.CheckAdmission(trip, sum, seats); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Get retrieves a booking by its ID.
//
// Returns:
//   - *domain.Booking: the booking when found.
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Get"

	db := r.handle()

	var b domain.Booking
	err := db.QueryRow(ctx,
		`SELECT id, trip_id, passenger_id, driver_id, seats_booked,
		        status, telegram_chat_id, created_at, updated_at
		 FROM bookings WHERE id = $1`,
		id,
	).Scan(
		&b.ID, &b.TripID, &b.PassengerID, &b.DriverID, &b.SeatsBooked,
		&b.Status, &b.TelegramChatID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &b, nil
}

// Cancel marks a booking cancelled and rewrites the owning trip's derived
// availability in the same transaction. Cancelling an already-cancelled
// booking is a no-op reported through alreadyCancelled.
//
// Returns:
//   - b: the booking as cancelled, for fan-out and passenger messaging.
//   - alreadyCancelled: true when the booking was cancelled before the call.
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *BookingRepo) Cancel(ctx context.Context, id uuid.UUID) (b *domain.Booking, alreadyCancelled bool, err error) {
	const op = "postgres.BookingRepo.Cancel"

	if r.db != nil {
		b, alreadyCancelled, err = r.cancelCore(ctx, r.db, id)
		if err != nil {
			return nil, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return b, alreadyCancelled, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	b, alreadyCancelled, err = r.cancelCore(ctx, tx, id)
	if err != nil {
		return nil, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return b, alreadyCancelled, nil
}

func (r *BookingRepo) cancelCore(ctx context.Context, db DB, id uuid.UUID) (*domain.Booking, bool, error) {
	var b domain.Booking

	err := db.QueryRow(ctx,
		`SELECT id, trip_id, passenger_id, driver_id, seats_booked,
		        status, telegram_chat_id, created_at, updated_at
		 FROM bookings WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(
		&b.ID, &b.TripID, &b.PassengerID, &b.DriverID, &b.SeatsBooked,
		&b.Status, &b.TelegramChatID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, false, err
	}

	if b.Status == domain.BookingCancelled {
		return &b, true, nil
	}

	if _, err := db.Exec(ctx,
		`UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1`,
		id, domain.BookingCancelled,
	); err != nil {
		return nil, false, err
	}

	b.Status = domain.BookingCancelled

	if _, _, err := recomputeCore(ctx, db, b.TripID); err != nil {
		return nil, false, err
	}

	return &b, false, nil
}

// Recompute re-derives a trip's availability and status from its current
// active bookings and persists the pair when it changed.
//
// A missing trip is reported through found=false with a nil error:
// recomputation triggered for a since-deleted trip must not fail the caller.
func (r *BookingRepo) Recompute(ctx context.Context, tripID int64) (av domain.Availability, found bool, err error) {
	const op = "postgres.BookingRepo.Recompute"

	if r.db != nil {
		av, found, err = recomputeCore(ctx, r.db, tripID)
		if err != nil {
			return domain.Availability{}, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return av, found, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return domain.Availability{}, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	av, found, err = recomputeCore(ctx, tx, tripID)
	if err != nil {
		return domain.Availability{}, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Availability{}, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return av, found, nil
}

func recomputeCore(ctx context.Context, db DB, tripID int64) (domain.Availability, bool, error) {
	trip, err := getTripLocked(ctx, db, tripID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Availability{}, false, nil
		}
		return domain.Availability{}, false, err
	}

	sum, err := activeSeatSum(ctx, db, tripID)
	if err != nil {
		return domain.Availability{}, false, err
	}

	av := domain.Recompute(trip, sum)
	if !av.Changed {
		return av, true, nil
	}

	if err := writeAvailability(ctx, db, tripID, av); err != nil {
		return domain.Availability{}, false, err
	}

	return av, true, nil
}

// ListForTrip lists the bookings of a trip, newest first. With onlyActive
// set, bookings whose seats no longer count against capacity are skipped.
func (r *BookingRepo) ListForTrip(ctx context.Context, tripID int64, onlyActive bool) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListForTrip"

	db := r.handle()

	query := `SELECT id, trip_id, passenger_id, driver_id, seats_booked,
	                 status, telegram_chat_id, created_at, updated_at
	          FROM bookings
	          WHERE trip_id = $1
	          ORDER BY created_at DESC`
	args := []any{tripID}

	if onlyActive {
		query = `SELECT id, trip_id, passenger_id, driver_id, seats_booked,
		                status, telegram_chat_id, created_at, updated_at
		         FROM bookings
		         WHERE trip_id = $1 AND status = ANY($2)
		         ORDER BY created_at DESC`
		args = append(args, activeStatuses())
	}

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	return scanBookings(op, rows)
}

// FindPendingOlderThan returns pending bookings created strictly before
// cutoff. A booking created exactly at the cutoff is not stale yet.
func (r *BookingRepo) FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.FindPendingOlderThan"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, trip_id, passenger_id, driver_id, seats_booked,
		        status, telegram_chat_id, created_at, updated_at
		 FROM bookings
		 WHERE status = $1 AND created_at < $2
		 ORDER BY created_at`,
		domain.BookingPending, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	return scanBookings(op, rows)
}

// CompleteTrip transitions every pending or confirmed booking of the trip
// to completed and closes the trip with zero available seats. The final
// state is written directly; no seat arithmetic is needed once the trip is
// closed.
//
// Returns:
//   - int64: the number of bookings transitioned.
//   - error: repository.ErrNotFound if the trip does not exist.
//   - error: domain.ErrTripFinished if the trip is already terminal.
func (r *BookingRepo) CompleteTrip(ctx context.Context, tripID int64) (int64, error) {
	const op = "postgres.BookingRepo.CompleteTrip"

	if r.db != nil {
		n, err := r.completeTripCore(ctx, r.db, tripID)
		if err != nil {
			return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return n, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	n, err := r.completeTripCore(ctx, tx, tripID)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return n, nil
}

func (r *BookingRepo) completeTripCore(ctx context.Context, db DB, tripID int64) (int64, error) {
	trip, err := getTripLocked(ctx, db, tripID)
	if err != nil {
		return 0, err
	}

	if trip.Status.IsTerminal() {
		return 0, domain.ErrTripFinished
	}

	tag, err := db.Exec(ctx,
		`UPDATE bookings
		 SET status = $2, updated_at = now()
		 WHERE trip_id = $1 AND status IN ($3, $4)`,
		tripID, domain.BookingCompleted,
		domain.BookingPending, domain.BookingConfirmed,
	)
	if err != nil {
		return 0, err
	}

	if _, err := db.Exec(ctx,
		`UPDATE trips
		 SET status = $2, available_seats = 0, updated_at = now()
		 WHERE id = $1`,
		tripID, domain.TripCompleted,
	); err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func scanBookings(op string, rows pgx.Rows) ([]domain.Booking, error) {
	var out []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(
			&b.ID, &b.TripID, &b.PassengerID, &b.DriverID, &b.SeatsBooked,
			&b.Status, &b.TelegramChatID, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
