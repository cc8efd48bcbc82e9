package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ridepool/ridepool/internal/domain"
	"github.com/ridepool/ridepool/internal/repository"
)

type TripRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *TripRepo) With(db DB) *TripRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TripRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Get retrieves a trip by its ID.
//
// Returns:
//   - *domain.Trip: the trip when found.
//   - error: repository.ErrNotFound if the trip does not exist.
func (r *TripRepo) Get(ctx context.Context, id int64) (*domain.Trip, error) {
	const op = "postgres.TripRepo.Get"

	db := r.handle()

	var t domain.Trip
	err := db.QueryRow(ctx,
		`SELECT id, driver_id, origin, destination, departure_at,
		        total_seats, available_seats, status, created_at, updated_at
       	 FROM trips WHERE id = $1`,
		id,
	).Scan(
		&t.ID, &t.DriverID, &t.Origin, &t.Destination, &t.Departure,
		&t.TotalSeats, &t.AvailableSeats, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &t, nil
}

// List returns trips departing on the given day, soonest first. A zero day
// lists upcoming trips regardless of date.
func (r *TripRepo) List(ctx context.Context, day time.Time, limit, offset int) ([]domain.Trip, error) {
	const op = "postgres.TripRepo.List"

	db := r.handle()

	query := `SELECT id, driver_id, origin, destination, departure_at,
	                 total_seats, available_seats, status, created_at, updated_at
	          FROM trips
	          WHERE departure_at >= $1`
	args := []any{time.Now()}

	if !day.IsZero() {
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
		query = `SELECT id, driver_id, origin, destination, departure_at,
		                total_seats, available_seats, status, created_at, updated_at
		         FROM trips
		         WHERE departure_at >= $1 AND departure_at < $1 + interval '1 day'`
		args = []any{dayStart}
	}

	query += ` ORDER BY departure_at LIMIT $2 OFFSET $3`
	args = append(args, limit, offset)

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Trip
	for rows.Next() {
		var t domain.Trip
		if err := rows.Scan(
			&t.ID, &t.DriverID, &t.Origin, &t.Destination, &t.Departure,
			&t.TotalSeats, &t.AvailableSeats, &t.Status, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Create inserts a trip with its full capacity available and scheduled
// status.
func (r *TripRepo) Create(ctx context.Context, t domain.Trip) (int64, error) {
	const op = "postgres.TripRepo.Create"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO trips(driver_id, origin, destination, departure_at,
		                   total_seats, available_seats, status)
       	 VALUES ($1, $2, $3, $4, $5, $5, $6)
     	 RETURNING id`,
		t.DriverID, t.Origin, t.Destination, t.Departure,
		t.TotalSeats, domain.TripScheduled,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// Cancel marks the trip cancelled. The availability counter is left as-is;
// cancelled trips are frozen for recomputation.
//
// Returns:
//   - error: repository.ErrNotFound if the trip does not exist.
//   - error: domain.ErrTripFinished if the trip is already terminal.
func (r *TripRepo) Cancel(ctx context.Context, id int64) error {
	const op = "postgres.TripRepo.Cancel"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE trips
		 SET status = $2, updated_at = now()
		 WHERE id = $1 AND status NOT IN ($3, $4)`,
		id, domain.TripCancelled, domain.TripCompleted, domain.TripCancelled,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		var status domain.TripStatus
		err := db.QueryRow(ctx, `SELECT status FROM trips WHERE id = $1`, id).Scan(&status)
		if err != nil {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		return fmt.Errorf("%s:%w", op, domain.ErrTripFinished)
	}

	return nil
}

// getTripLocked loads a trip row under FOR UPDATE so a concurrent booking
// writer for the same trip blocks until this transaction finishes.
func getTripLocked(ctx context.Context, db DB, id int64) (domain.Trip, error) {
	var t domain.Trip
	err := db.QueryRow(ctx,
		`SELECT id, driver_id, origin, destination, departure_at,
		        total_seats, available_seats, status, created_at, updated_at
		 FROM trips WHERE id = $1
		 FOR UPDATE`,
		id,
	).Scan(
		&t.ID, &t.DriverID, &t.Origin, &t.Destination, &t.Departure,
		&t.TotalSeats, &t.AvailableSeats, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.Trip{}, translateDBErr(err)
	}

	return t, nil
}

// writeAvailability persists a freshly derived availability/status pair
// together with the updated timestamp.
func writeAvailability(ctx context.Context, db DB, tripID int64, av domain.Availability) error {
	_, err := db.Exec(ctx,
		`UPDATE trips
		 SET available_seats = $2, status = $3, updated_at = now()
		 WHERE id = $1`,
		tripID, av.AvailableSeats, av.Status,
	)
	return err
}
