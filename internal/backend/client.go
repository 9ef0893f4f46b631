package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tenantdesk/internal/config"
	"tenantdesk/internal/models"
)

// APIError carries the backend's error envelope. The detail field is richer
// than message and wins when both are present.
type APIError struct {
	StatusCode int
	Detail     string `json:"detail"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// Client is an HTTP client for the marketplace booking API.
type Client struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client
	retry      RetryPolicy

	// now is used for the anti-cache query parameter; overridable in tests.
	now func() time.Time
}

// NewClient constructs a client from backend config.
func NewClient(cfg config.BackendConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = models.DefaultBackendTimeoutSeconds * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiExtra:   cfg.APIExtra,
		httpClient: &http.Client{Timeout: timeout},
		retry: RetryPolicy{
			MaxRetries:    cfg.Retry.MaxRetries,
			InitialDelay:  time.Duration(cfg.Retry.InitialDelayMS) * time.Millisecond,
			MaxDelay:      time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
			BackoffFactor: cfg.Retry.BackoffFactor,
		},
		now: time.Now,
	}
}

// FetchActive returns rental bookings the backend still considers occupied:
// confirmed or completed and not yet checked out.
func (c *Client) FetchActive(ctx context.Context) ([]models.Booking, error) {
	q := url.Values{}
	q.Set("booking_type", models.BookingTypeRental)
	q.Set("status__in", models.StatusConfirmed+","+models.StatusCompleted)
	q.Set("checked_out_at__isnull", "true")
	return c.fetchBookings(ctx, q)
}

// FetchHistory returns rental bookings already closed by a checkout.
func (c *Client) FetchHistory(ctx context.Context) ([]models.Booking, error) {
	q := url.Values{}
	q.Set("booking_type", models.BookingTypeRental)
	q.Set("checked_out_at__isnull", "false")
	return c.fetchBookings(ctx, q)
}

// CheckOut asks the backend to close the booking. Never retried: the caller
// surfaces the error and the user retries explicitly.
func (c *Client) CheckOut(ctx context.Context, bookingID int64) error {
	endpoint := fmt.Sprintf("%s/bookings/%d/checkout/", c.baseURL, bookingID)
	return c.doPost(ctx, endpoint, nil, nil)
}

// HideFromOwner soft-deletes the booking from this owner's history view.
func (c *Client) HideFromOwner(ctx context.Context, bookingID int64) error {
	endpoint := fmt.Sprintf("%s/bookings/%d/hide_from_owner/", c.baseURL, bookingID)
	return c.doPost(ctx, endpoint, nil, nil)
}

func (c *Client) fetchBookings(ctx context.Context, q url.Values) ([]models.Booking, error) {
	// Sibling transitions mutate these lists, so responses must never be
	// served stale: no-cache headers plus a cache-busting parameter for
	// intermediaries that ignore them.
	q.Set("_t", strconv.FormatInt(c.now().UnixMilli(), 10))
	endpoint := fmt.Sprintf("%s/bookings/?%s", c.baseURL, q.Encode())

	var raw json.RawMessage
	if err := c.doGet(ctx, endpoint, &raw); err != nil {
		return nil, err
	}
	return decodeBookingList(raw)
}

// decodeBookingList accepts either a bare JSON array or the paginated
// {"results": [...]} envelope.
func decodeBookingList(raw json.RawMessage) ([]models.Booking, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrap struct {
			Results []models.Booking `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &wrap); err != nil {
			return nil, fmt.Errorf("decode booking list: %w", err)
		}
		return wrap.Results, nil
	}

	var bookings []models.Booking
	if err := json.Unmarshal(trimmed, &bookings); err != nil {
		return nil, fmt.Errorf("decode booking list: %w", err)
	}
	return bookings, nil
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	attempts := c.retry.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
		c.addHeaders(req)

		lastErr = c.do(req, out)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == attempts {
			return lastErr
		}

		select {
		case <-time.After(c.retry.NextDelay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// retryable: transport errors and 5xx only. Client errors are final.
func retryable(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return true
	}
	return apiErr.StatusCode >= 500
}

func (c *Client) doPost(ctx context.Context, endpoint string, body any, out any) error {
	var reader *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
}
