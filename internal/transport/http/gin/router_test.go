package httpgin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ridepool/ridepool/internal/domain"
	"github.com/ridepool/ridepool/internal/service/booking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respondRecorded(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondErr(c, err)

	var body ErrorResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestRespondErr_CapacityExceededCarriesAvailableSeats(t *testing.T) {
	err := fmt.Errorf("service.booking.Create:%w", &domain.CapacityError{Available: 2})

	w, body := respondRecorded(t, err)

	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, body.AvailableSeats)
	assert.Equal(t, 2, *body.AvailableSeats)
}

func TestRespondErr_TripNotFound(t *testing.T) {
	err := fmt.Errorf("service.booking.Create:%w", booking.ErrTripNotFound)

	w, _ := respondRecorded(t, err)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRespondErr_TripFinished(t *testing.T) {
	err := fmt.Errorf("service.booking.CompleteTrip:%w", booking.ErrTripFinished)

	w, _ := respondRecorded(t, err)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRespondErr_SerializationFailureIsRetryable(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		err := fmt.Errorf("postgres.BookingRepo.Create:%w", &pgconn.PgError{Code: code})

		w, _ := respondRecorded(t, err)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code, "code %s", code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"), "code %s", code)
	}
}

func TestRespondErr_UnknownErrorIsInternal(t *testing.T) {
	w, _ := respondRecorded(t, fmt.Errorf("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
