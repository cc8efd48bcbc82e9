package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ridepool/ridepool/internal/domain"
	postgresrepo "github.com/ridepool/ridepool/internal/repository/postgres"
	redisrepo "github.com/ridepool/ridepool/internal/repository/redis"
	"github.com/ridepool/ridepool/internal/scheduler"
	"github.com/ridepool/ridepool/internal/service"
	"github.com/ridepool/ridepool/internal/service/admin"
	"github.com/ridepool/ridepool/internal/service/booking"
	"github.com/ridepool/ridepool/internal/service/query"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	expiry *scheduler.Scheduler,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/trips", handleListTrips(svcs))
	r.GET("/trips/:id", handleGetTrip(svcs))
	r.GET("/trips/:id/availability", handleGetAvailability(svcs))
	r.GET("/trips/:id/bookings", handleListTripBookings(svcs))

	r.POST("/trips/:id/bookings", handleCreateBooking(svcs, idem))
	r.POST("/trips/:id/bookings/validate", handleValidateAdmission(svcs))

	r.GET("/bookings/:id", handleGetBooking(svcs))
	r.DELETE("/bookings/:id", handleCancelBooking(svcs))

	// Admin-API
	// TODO: add admin middleware
	adm := r.Group("/admin")
	{
		adm.POST("/trips", handleCreateTrip(svcs))
		adm.POST("/trips/:id/cancel", handleCancelTrip(svcs))
		adm.POST("/trips/:id/complete", handleCompleteTrip(svcs))
		adm.POST("/expiry/run", handleRunExpiry(expiry))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List trips
// @Param    date   query  string  false "departure day (YYYY-MM-DD)"
// @Param    limit  query  int     false "page size"
// @Param    offset query  int     false "offset"
// @Success  200  {array}   domain.Trip
// @Router   /trips [get]
func handleListTrips(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var day time.Time
		if d := c.Query("date"); d != "" {
			parsed, err := time.Parse("2006-01-02", d)
			if err != nil {
				badRequest(c, "invalid date (YYYY-MM-DD)")
				return
			}
			day = parsed
		}
		limit := parseIntDefault(c.Query("limit"), 50)
		offset := parseIntDefault(c.Query("offset"), 0)

		trips, err := svcs.Query.ListTrips(c.Request.Context(), day, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, trips, "public, max-age=15", true)
	}
}

// @Summary  Get trip
// @Param    id  path  int  true  "Trip ID"
// @Success  200  {object}  domain.Trip
// @Failure  404  {object}  ErrorResponse
// @Router   /trips/{id} [get]
func handleGetTrip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		t, err := svcs.Query.GetTrip(c.Request.Context(), tripID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, t, "public, max-age=60", true)
	}
}

// @Summary  Get derived seat availability
// @Param    id  path  int  true  "Trip ID"
// @Success  200  {object}  AvailabilityResponse
// @Router   /trips/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		av, err := svcs.Query.Availability(c.Request.Context(), tripID)
		if err != nil {
			respondErr(c, err)
			return
		}
		resp := AvailabilityResponse{
			AvailableSeats: av.AvailableSeats,
			Status:         string(av.Status),
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, resp, "public, max-age=15", true)
	}
}

// @Summary  List trip bookings
// @Param    id    path   int     true  "Trip ID"
// @Param    only  query  string  false "active"
// @Success  200  {array}  domain.Booking
// @Router   /trips/{id}/bookings [get]
func handleListTripBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		onlyActive := c.Query("only") == "active"

		bookings, err := svcs.Query.ListTripBookings(c.Request.Context(), tripID, onlyActive)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, bookings, "public, max-age=15", true)
	}
}

// @Summary  Create booking (idempotent)
// @Param    id  path  int  true  "Trip ID"
// @Param    req body  CreateBookingRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} CreateBookingResponse
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "trip not found"
// @Failure  409 {object} ErrorResponse "capacity exceeded / trip finished / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /trips/{id}/bookings [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(tripID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		rlKey := "ip:" + c.ClientIP()

		b, err := svcs.Booking.Create(c.Request.Context(), booking.CreateInput{
			TripID:         tripID,
			PassengerID:    req.PassengerID,
			Seats:          req.Seats,
			TelegramChatID: req.TelegramChatID,
		}, rlKey)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			if errors.Is(err, booking.ErrRateLimited) {
				c.Header("Retry-After", "60")
				c.JSON(
					http.StatusTooManyRequests,
					ErrorResponse{Error: err.Error()},
				)
				return
			}
			respondErr(c, err)
			return
		}

		resp := CreateBookingResponse{
			BookingID: b.ID.String(),
			Status:    string(b.Status),
		}

		if idemStorageKey != "" && idem != nil {
			payload, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(payload))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Validate admission (read-only precheck)
// @Param    id  path  int  true  "Trip ID"
// @Param    req body  ValidateAdmissionRequest true "payload"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "capacity exceeded / trip finished"
// @Router   /trips/{id}/bookings/validate [post]
func handleValidateAdmission(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req ValidateAdmissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		if err := svcs.Booking.ValidateAdmission(c.Request.Context(), tripID, req.Seats); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// @Summary  Get booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Query.GetBooking(c.Request.Context(), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Cancel booking (idempotent)
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [delete]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		if err := svcs.Booking.Cancel(c.Request.Context(), bookingID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Create trip
// @Param    req body  CreateTripRequest true "payload"
// @Success  201 {object} CreateTripResponse
// @Router   /admin/trips [post]
func handleCreateTrip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTripRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		departure, err := parseRFC3339(req.DepartureAt)
		if err != nil {
			badRequest(c, "invalid departure_at (RFC3339)")
			return
		}
		id, err := svcs.Admin.CreateTrip(c.Request.Context(), admin.CreateTripInput{
			DriverID:    req.DriverID,
			Origin:      req.Origin,
			Destination: req.Destination,
			Departure:   departure,
			TotalSeats:  req.TotalSeats,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateTripResponse{TripID: id})
	}
}

// @Summary  Cancel trip
// @Param    id  path  int  true  "Trip ID"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse
// @Router   /admin/trips/{id}/cancel [post]
func handleCancelTrip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Admin.CancelTrip(c.Request.Context(), tripID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Complete trip for all passengers
// @Param    id  path  int  true  "Trip ID"
// @Success  200 {object} CompleteTripResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse
// @Router   /admin/trips/{id}/complete [post]
func handleCompleteTrip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		n, err := svcs.Booking.CompleteTrip(c.Request.Context(), tripID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CompleteTripResponse{BookingsCompleted: n})
	}
}

// @Summary  Run the booking expiry job once
// @Success  200 {object} ExpiryRunResponse
// @Router   /admin/expiry/run [post]
func handleRunExpiry(expiry *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := expiry.RunNow(c.Request.Context())
		c.JSON(http.StatusOK, ExpiryRunResponse{
			Cancelled: report.Cancelled,
			Failed:    report.Failed,
		})
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var capErr *domain.CapacityError
	if errors.As(err, &capErr) {
		avail := capErr.Available
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:          "not enough seats available",
			AvailableSeats: &avail,
		})
		return
	}

	switch {
	// booking service
	case errors.Is(err, booking.ErrTripNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "trip no longer available"})
		return
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
		return
	case errors.Is(err, booking.ErrTripFinished):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "trip is completed or cancelled"})
		return
	case errors.Is(err, booking.ErrInvalidSeats):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "seats must be at least 1"})
		return
	// query service
	case errors.Is(err, query.ErrTripNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "trip no longer available"})
		return
	case errors.Is(err, query.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
		return
	// admin service
	case errors.Is(err, admin.ErrTripNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "trip not found"})
		return
	case errors.Is(err, admin.ErrTripFinished):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "trip is completed or cancelled"})
		return
	case errors.Is(err, admin.ErrInvalidSeats), errors.Is(err, admin.ErrPastDeparture):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	// serialization failures and deadlocks are safe to retry as-is
	if postgresrepo.IsRetryable(err) {
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "temporary conflict, please retry"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
