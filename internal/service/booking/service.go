package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ridepool/ridepool/internal/domain"
	"github.com/ridepool/ridepool/internal/repository"
	postgresrepo "github.com/ridepool/ridepool/internal/repository/postgres"
	redisrepo "github.com/ridepool/ridepool/internal/repository/redis"
	"github.com/ridepool/ridepool/internal/uow"
)

type Config struct {
	// MaxSeatsPerBooking caps a single booking request. Zero means the trip
	// capacity is the only limit.
	MaxSeatsPerBooking int
}

// Notifier delivers passenger-facing booking messages. Implementations are
// fire-and-forget and must never fail the caller.
type Notifier interface {
	BookingCreated(ctx context.Context, b *domain.Booking)
	BookingCancelled(ctx context.Context, b *domain.Booking)
}

// Service owns the booking lifecycle: admission control, cancellation,
// availability recomputation, bulk trip completion and stale-booking expiry.
type Service struct {
	store    *postgresrepo.Store
	cache    *redisrepo.Cache
	pubsub   *redisrepo.TripsPubSub
	limiter  *redisrepo.SlidingWindowLimiter
	notifier Notifier
	uow      *uow.UoW
	logger   *slog.Logger
	cfg      Config
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.TripsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	notifier Notifier,
	logger *slog.Logger,
	cfg Config,
) *Service {
	return &Service{
		store:    store,
		cache:    cache,
		pubsub:   pubsub,
		limiter:  limiter,
		notifier: notifier,
		uow:      uow.NewUoW(store),
		logger:   logger,
		cfg:      cfg,
	}
}

type CreateInput struct {
	TripID      int64
	PassengerID int64
	Seats       int
	// TelegramChatID, when set, receives the passenger's booking messages.
	TelegramChatID *int64
}

// ValidateAdmission checks whether seats seats can still be booked on the
// trip. Read-only; the decision is made from the live active-booking sum,
// not the cached counter, so a concurrent Create may still win the seats
// between this call and a later booking attempt.
//
// Returns:
//   - error: booking.ErrTripNotFound if the trip does not exist.
//   - error: booking.ErrTripFinished if the trip is completed or cancelled.
//   - error: *domain.CapacityError carrying the live available count.
func (s *Service) ValidateAdmission(ctx context.Context, tripID int64, seats int) error {
	const op = "service.booking.ValidateAdmission"

	if seats < 1 {
		return fmt.Errorf("%s:%w", op, ErrInvalidSeats)
	}

	if err := s.store.Bookings().CheckAdmission(ctx, tripID, seats); err != nil {
		return fmt.Errorf("%s:%w", op, s.mapTripErr(err))
	}

	return nil
}

// Create admits and persists a new pending booking, recomputes the trip's
// availability in the same serializable transaction, and after commit
// invalidates the trip cache and publishes a trip-changed event.
//
// Returns:
//   - *domain.Booking: the created booking.
//   - error: booking.ErrTripNotFound, booking.ErrTripFinished,
//     *domain.CapacityError, or booking.ErrRateLimited.
func (s *Service) Create(ctx context.Context, in CreateInput, rlKey string) (*domain.Booking, error) {
	const op = "service.booking.Create"

	if in.Seats < 1 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidSeats)
	}

	if s.cfg.MaxSeatsPerBooking > 0 && in.Seats > s.cfg.MaxSeatsPerBooking {
		return nil, fmt.Errorf("%s: at most %d seats per booking", op, s.cfg.MaxSeatsPerBooking)
	}

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s:%w: retry in %s", op, ErrRateLimited, retry)
		}
	}

	b := &domain.Booking{
		ID:             uuid.New(),
		TripID:         in.TripID,
		PassengerID:    in.PassengerID,
		SeatsBooked:    in.Seats,
		Status:         domain.BookingPending,
		TelegramChatID: in.TelegramChatID,
	}

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		if err := s.store.Bookings().With(tx).Create(ctx, b); err != nil {
			return s.mapTripErr(err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateTrip(ctx, in.TripID)
			_ = s.pubsub.PublishTripChanged(ctx, in.TripID)
			if s.notifier != nil {
				s.notifier.BookingCreated(ctx, b)
			}
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.logger.Info("booking created",
		"booking_id", b.ID,
		"trip_id", b.TripID,
		"seats", b.SeatsBooked,
	)

	return b, nil
}

// Cancel marks a booking cancelled and recomputes the owning trip's
// availability. Re-cancelling an already-cancelled booking is a no-op, not
// an error.
//
// Returns:
//   - error: booking.ErrBookingNotFound if the booking does not exist.
func (s *Service) Cancel(ctx context.Context, bookingID uuid.UUID) error {
	const op = "service.booking.Cancel"

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		b, already, err := s.store.Bookings().With(tx).Cancel(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}

			return err
		}

		if already {
			return nil
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateTrip(ctx, b.TripID)
			_ = s.pubsub.PublishTripChanged(ctx, b.TripID)
			if s.notifier != nil {
				s.notifier.BookingCancelled(ctx, b)
			}
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Recompute re-derives and persists a trip's availability and status from
// its current active bookings. A missing trip is silently a no-op.
func (s *Service) Recompute(ctx context.Context, tripID int64) (domain.Availability, error) {
	const op = "service.booking.Recompute"

	var av domain.Availability

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		got, found, err := s.store.Bookings().With(tx).Recompute(ctx, tripID)
		if err != nil {
			return err
		}

		av = got

		if found && got.Changed {
			after(func(ctx context.Context) {
				_ = s.cache.InvalidateTrip(ctx, tripID)
				_ = s.pubsub.PublishTripChanged(ctx, tripID)
			})
		}

		return nil
	})
	if err != nil {
		return domain.Availability{}, fmt.Errorf("%s:%w", op, err)
	}

	return av, nil
}

// CompleteTrip transitions every pending and confirmed booking of the trip
// to completed and closes the trip with zero available seats.
//
// Returns:
//   - int64: the number of bookings transitioned.
//   - error: booking.ErrTripNotFound or booking.ErrTripFinished.
func (s *Service) CompleteTrip(ctx context.Context, tripID int64) (int64, error) {
	const op = "service.booking.CompleteTrip"

	var transitioned int64

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		n, err := s.store.Bookings().With(tx).CompleteTrip(ctx, tripID)
		if err != nil {
			return s.mapTripErr(err)
		}

		transitioned = n

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateTrip(ctx, tripID)
			_ = s.pubsub.PublishTripChanged(ctx, tripID)
		})

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	s.logger.Info("trip completed",
		"trip_id", tripID,
		"bookings_transitioned", transitioned,
	)

	return transitioned, nil
}

// ExpireStale cancels every pending booking created strictly before cutoff,
// recomputing each affected trip. Bookings are processed independently: one
// failing cancellation is counted and logged but never aborts the batch.
func (s *Service) ExpireStale(ctx context.Context, cutoff time.Time) (domain.ExpiryReport, error) {
	const op = "service.booking.ExpireStale"

	stale, err := s.store.Bookings().FindPendingOlderThan(ctx, cutoff)
	if err != nil {
		return domain.ExpiryReport{}, fmt.Errorf("%s:%w", op, err)
	}

	report := expireBatch(ctx, stale, s.Cancel, s.logger)

	if report.Cancelled > 0 || report.Failed > 0 {
		s.logger.Info("stale bookings expired",
			"cancelled", report.Cancelled,
			"failed", report.Failed,
		)
	}

	return report, nil
}

// expireBatch cancels each stale booking independently: a failing
// cancellation is counted and logged, and the remaining bookings are still
// processed.
func expireBatch(
	ctx context.Context,
	stale []domain.Booking,
	cancel func(ctx context.Context, bookingID uuid.UUID) error,
	logger *slog.Logger,
) domain.ExpiryReport {
	var report domain.ExpiryReport

	for _, b := range stale {
		if err := cancel(ctx, b.ID); err != nil {
			report.Failed++
			logger.Error("failed to cancel stale booking",
				"booking_id", b.ID,
				"trip_id", b.TripID,
				"error", err,
			)
			continue
		}

		report.Cancelled++
	}

	return report
}

func (s *Service) mapTripErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrTripNotFound
	case errors.Is(err, domain.ErrTripFinished):
		return ErrTripFinished
	default:
		return err
	}
}
