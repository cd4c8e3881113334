// Package freetable provides a client for the FreeTable restaurant booking API.
package freetable

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/freetable/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/freetable", "freetable")

// DefaultBaseURL is the origin of the public FreeTable API
const DefaultBaseURL = "https://free-table.gyurmatag.workers.dev"

// API endpoints
const (
	EndpointRestaurants = "/api/restaurants"
	EndpointBookings    = "/api/bookings"
)

// maxErrorBody limits the error body kept from a failed response
const maxErrorBody = 64 * 1024

// ResultKind is the outcome of an API call
type ResultKind int

const (
	// ResultOK means a 2xx response was received and decoded
	ResultOK ResultKind = iota
	// ResultHTTPError means the API responded with a non-2xx status
	ResultHTTPError
	// ResultTransportError means the call failed or the body could not be decoded
	ResultTransportError
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultHTTPError:
		return "http_error"
	case ResultTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Result is the outcome of an API call.
// Value is set for ResultOK, Status, StatusText and Body for ResultHTTPError,
// and Err for ResultTransportError.
type Result[T any] struct {
	Kind       ResultKind
	Value      *T
	Status     int
	StatusText string
	Body       string
	Err        error
}

// Client calls the FreeTable API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the API at baseURL,
// DefaultBaseURL is used when baseURL is empty
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
}

// WithHTTPClient sets the HTTP client used for API calls
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	if client != nil {
		c.httpClient = client
	}
	return c
}

// WithTimeout sets a per-call timeout, 0 means no timeout
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	hc := *c.httpClient
	hc.Timeout = timeout
	c.httpClient = &hc
	return c
}

// BaseURL returns the API origin
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListRestaurants returns the restaurants known to the API.
// A missing or malformed restaurants list is returned as an empty list.
func (c *Client) ListRestaurants(ctx context.Context) *Result[RestaurantsResponse] {
	return call(ctx, c, http.MethodGet, EndpointRestaurants, nil, decodeRestaurants)
}

// CreateBooking submits a booking request
func (c *Client) CreateBooking(ctx context.Context, req *BookingRequest) *Result[BookingResponse] {
	if req == nil {
		return &Result[BookingResponse]{Kind: ResultTransportError, Err: errors.New("booking request is required")}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return &Result[BookingResponse]{Kind: ResultTransportError, Err: errors.Wrap(err, "failed to encode booking request")}
	}
	return call(ctx, c, http.MethodPost, EndpointBookings, body, decodeBooking)
}

func call[T any](ctx context.Context, c *Client, method, endpoint string, body []byte, decode func([]byte) (*T, error)) (res *Result[T]) {
	started := time.Now()
	defer func() {
		metricskey.PerfAPICall.MeasureSince(started, endpoint)
		metricskey.StatsAPICalls.IncrCounter(1, endpoint, res.Kind.String())
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return transportError[T](ctx, endpoint, errors.Wrap(err, "failed to create request"))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError[T](ctx, endpoint, errors.WithStack(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.ContextKV(ctx, xlog.DEBUG,
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"body", string(errBody),
		)
		return &Result[T]{
			Kind:       ResultHTTPError,
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Body:       string(errBody),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError[T](ctx, endpoint, errors.Wrap(err, "failed to read response"))
	}
	v, err := decode(raw)
	if err != nil {
		return transportError[T](ctx, endpoint, err)
	}
	return &Result[T]{
		Kind:   ResultOK,
		Value:  v,
		Status: resp.StatusCode,
	}
}

func transportError[T any](ctx context.Context, endpoint string, err error) *Result[T] {
	logger.ContextKV(ctx, xlog.DEBUG, "endpoint", endpoint, "err", err.Error())
	return &Result[T]{Kind: ResultTransportError, Err: err}
}

// statusText returns the reason phrase sent by the server
func statusText(resp *http.Response) string {
	text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	text = strings.TrimSpace(text)
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func decodeRestaurants(raw []byte) (*RestaurantsResponse, error) {
	if !json.Valid(raw) {
		return nil, errors.New("invalid restaurants response: malformed JSON")
	}

	res := &RestaurantsResponse{
		Restaurants: []Restaurant{},
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		// valid JSON that is not an object carries no list
		return res, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(body["restaurants"], &items); err != nil {
		return res, nil
	}
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var r Restaurant
		// ljson tolerates numbers sent as strings and vice versa
		if err := ljson.Unmarshal(item, &r); err != nil {
			logger.KV(xlog.DEBUG, "reason", "skip_restaurant", "err", err.Error())
			continue
		}
		res.Restaurants = append(res.Restaurants, r)
	}
	return res, nil
}

func decodeBooking(raw []byte) (*BookingResponse, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.Wrap(err, "invalid booking response")
	}
	item, ok := body["booking"]
	if !ok || string(item) == "null" {
		return nil, errors.New("invalid booking response: booking is missing")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		return nil, errors.Wrap(err, "invalid booking response")
	}
	id, err := bookingID(fields["id"])
	if err != nil {
		return nil, err
	}
	delete(fields, "id")
	rest, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.Wrap(err, "invalid booking response")
	}

	var b Booking
	if err := ljson.Unmarshal(rest, &b); err != nil {
		return nil, errors.Wrap(err, "invalid booking response")
	}
	b.ID = id
	return &BookingResponse{Booking: &b}, nil
}

// bookingID returns the id as sent: the text of a JSON string,
// or the literal of a JSON number
func bookingID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errors.Wrap(err, "invalid booking response")
		}
		return s, nil
	case '{', '[', 't', 'f':
		return "", errors.Errorf("invalid booking response: unsupported id: %s", string(raw))
	}
	return string(raw), nil
}
