package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ridepool/ridepool/internal/domain"
	"github.com/ridepool/ridepool/internal/repository"
	postgresrepo "github.com/ridepool/ridepool/internal/repository/postgres"
	redisrepo "github.com/ridepool/ridepool/internal/repository/redis"
)

// Service covers the driver/moderation surface: creating trips and pulling
// them from sale.
type Service struct {
	store  *postgresrepo.Store
	cache  *redisrepo.Cache
	pubsub *redisrepo.TripsPubSub
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.TripsPubSub,
) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
	}
}

type CreateTripInput struct {
	DriverID    int64
	Origin      string
	Destination string
	Departure   time.Time
	TotalSeats  int
}

// CreateTrip inserts a new trip with its full capacity available.
//
// Returns:
//   - int64: the new trip ID.
//   - error: admin.ErrInvalidSeats or admin.ErrPastDeparture on bad input.
func (s *Service) CreateTrip(ctx context.Context, in CreateTripInput) (int64, error) {
	const op = "service.admin.CreateTrip"

	if in.TotalSeats < 1 {
		return 0, fmt.Errorf("%s:%w", op, ErrInvalidSeats)
	}

	if !in.Departure.After(time.Now()) {
		return 0, fmt.Errorf("%s:%w", op, ErrPastDeparture)
	}

	id, err := s.store.Trips().Create(ctx, domain.Trip{
		DriverID:    in.DriverID,
		Origin:      in.Origin,
		Destination: in.Destination,
		Departure:   in.Departure,
		TotalSeats:  in.TotalSeats,
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

// CancelTrip marks a trip cancelled. Its availability counter is frozen as
// of cancellation; recomputation never touches a cancelled trip again.
//
// Returns:
//   - error: admin.ErrTripNotFound or admin.ErrTripFinished.
func (s *Service) CancelTrip(ctx context.Context, tripID int64) error {
	const op = "service.admin.CancelTrip"

	if err := s.store.Trips().Cancel(ctx, tripID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("%s:%w", op, ErrTripNotFound)
		case errors.Is(err, domain.ErrTripFinished):
			return fmt.Errorf("%s:%w", op, ErrTripFinished)
		default:
			return fmt.Errorf("%s:%w", op, err)
		}
	}

	_ = s.cache.InvalidateTrip(ctx, tripID)
	_ = s.pubsub.PublishTripChanged(ctx, tripID)

	return nil
}
