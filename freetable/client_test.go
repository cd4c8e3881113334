package freetable

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/").WithHTTPClient(srv.Client())
}

func TestNew(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, New("").BaseURL())
	assert.Equal(t, "http://localhost:1", New("http://localhost:1/").BaseURL())

	c := New("").WithTimeout(time.Second)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
	assert.Zero(t, http.DefaultClient.Timeout)

	assert.Equal(t, "ok", ResultOK.String())
	assert.Equal(t, "http_error", ResultHTTPError.String())
	assert.Equal(t, "transport_error", ResultTransportError.String())
	assert.Equal(t, "unknown", ResultKind(42).String())
}

func TestListRestaurants(t *testing.T) {
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, EndpointRestaurants, r.URL.Path)
			_, _ = io.WriteString(w, `{"restaurants":[{"id":1,"name":"Cafe X","cuisine":"French","description":"Cozy","priceRange":"$$","address":"1 Main","phone":"555-1","email":"a@b.c"}]}`)
		})
		res := c.ListRestaurants(ctx)
		require.Equal(t, ResultOK, res.Kind)
		require.NotNil(t, res.Value)
		assert.Equal(t, []Restaurant{{
			ID:          1,
			Name:        "Cafe X",
			Description: "Cozy",
			Cuisine:     "French",
			PriceRange:  "$$",
			Address:     "1 Main",
			Phone:       "555-1",
			Email:       "a@b.c",
		}}, res.Value.Restaurants)
	})

	for name, body := range map[string]string{
		"missing":    `{}`,
		"null":       `{"restaurants":null}`,
		"not array":  `{"restaurants":"many"}`,
		"object":     `{"restaurants":{"id":1}}`,
		"array body": `[]`,
		"number":     `42`,
		"string":     `"x"`,
		"bool":       `true`,
		"null body":  `null`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, body)
			})
			res := c.ListRestaurants(ctx)
			require.Equal(t, ResultOK, res.Kind)
			assert.NotNil(t, res.Value.Restaurants)
			assert.Empty(t, res.Value.Restaurants)
		})
	}

	t.Run("bad elements are skipped", func(t *testing.T) {
		c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"restaurants":["oops",7,null,{"id":2,"name":"Deli"}]}`)
		})
		res := c.ListRestaurants(ctx)
		require.Equal(t, ResultOK, res.Kind)
		require.Len(t, res.Value.Restaurants, 1)
		assert.Equal(t, "Deli", res.Value.Restaurants[0].Name)
	})

	t.Run("http error", func(t *testing.T) {
		c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		res := c.ListRestaurants(ctx)
		require.Equal(t, ResultHTTPError, res.Kind)
		assert.Equal(t, 500, res.Status)
		assert.Equal(t, "Internal Server Error", res.StatusText)
		assert.Empty(t, res.Body)
		assert.Nil(t, res.Value)
	})

	t.Run("malformed json", func(t *testing.T) {
		c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"restaurants":`)
		})
		res := c.ListRestaurants(ctx)
		require.Equal(t, ResultTransportError, res.Kind)
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), "invalid restaurants response")
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		res := New(url).ListRestaurants(ctx)
		require.Equal(t, ResultTransportError, res.Kind)
		require.Error(t, res.Err)
		assert.NotEmpty(t, res.Err.Error())
	})

	t.Run("cancelled", func(t *testing.T) {
		c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{}`)
		})
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		res := c.ListRestaurants(cctx)
		require.Equal(t, ResultTransportError, res.Kind)
		assert.ErrorIs(t, res.Err, context.Canceled)
	})
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()

	req := &BookingRequest{
		RestaurantID:  gofakeit.Number(1, 100),
		TableID:       gofakeit.Number(1, 20),
		CustomerName:  gofakeit.Name(),
		CustomerEmail: gofakeit.Email(),
		CustomerPhone: gofakeit.Phone(),
		BookingDate:   gofakeit.Date().Format("2006-01-02"),
		BookingTime:   "19:00",
		PartySize:     gofakeit.Number(1, 8),
	}

	t.Run("ok", func(t *testing.T) {
		var posted map[string]any
		c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, EndpointBookings, r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))

			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"booking":{"id":9,"bookingDate":"2024-01-01","bookingTime":"19:00","partySize":2,"status":"confirmed"}}`)
		})
		res := c.CreateBooking(ctx, req)
		require.Equal(t, ResultOK, res.Kind)
		assert.Equal(t, 201, res.Status)
		require.NotNil(t, res.Value.Booking)
		assert.Equal(t, "9", res.Value.Booking.ID)
		assert.Equal(t, 2, res.Value.Booking.PartySize)
		assert.Equal(t, "confirmed", res.Value.Booking.Status)

		assert.Equal(t, req.CustomerEmail, posted["customerEmail"])
		assert.Equal(t, float64(req.RestaurantID), posted["restaurantId"])
		assert.Equal(t, float64(req.PartySize), posted["partySize"])
		sr, ok := posted["specialRequests"]
		require.True(t, ok, "specialRequests must always be sent")
		assert.Equal(t, "", sr)
	})

	for name, tc := range map[string]struct {
		body string
		id   string
	}{
		"string id": {`{"booking":{"id":"bk_7f3a","partySize":4,"status":"confirmed"}}`, "bk_7f3a"},
		"large id":  {`{"booking":{"id":12345678901234567890,"status":"confirmed"}}`, "12345678901234567890"},
		"no id":     {`{"booking":{"status":"pending"}}`, ""},
	} {
		t.Run(name, func(t *testing.T) {
			c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, tc.body)
			})
			res := c.CreateBooking(ctx, req)
			require.Equal(t, ResultOK, res.Kind)
			require.NotNil(t, res.Value.Booking)
			assert.Equal(t, tc.id, res.Value.Booking.ID)
		})
	}

	t.Run("object id", func(t *testing.T) {
		c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"booking":{"id":{"v":1},"status":"confirmed"}}`)
		})
		res := c.CreateBooking(ctx, req)
		require.Equal(t, ResultTransportError, res.Kind)
		assert.Contains(t, res.Err.Error(), "unsupported id")
	})

	t.Run("missing booking", func(t *testing.T) {
		c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"ok":true}`)
		})
		res := c.CreateBooking(ctx, req)
		require.Equal(t, ResultTransportError, res.Kind)
		assert.EqualError(t, res.Err, "invalid booking response: booking is missing")
	})

	t.Run("http error", func(t *testing.T) {
		c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, "table already booked")
		})
		res := c.CreateBooking(ctx, req)
		require.Equal(t, ResultHTTPError, res.Kind)
		assert.Equal(t, 409, res.Status)
		assert.Equal(t, "Conflict", res.StatusText)
		assert.Equal(t, "table already booked", res.Body)
	})

	t.Run("nil request", func(t *testing.T) {
		res := New("http://localhost:1").CreateBooking(ctx, nil)
		require.Equal(t, ResultTransportError, res.Kind)
		assert.EqualError(t, res.Err, "booking request is required")
	})
}
