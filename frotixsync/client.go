package frotixsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	endpointOrders      = "service-orders"
	endpointOrderDetail = "service-order-detail"

	defaultRetryAfter  = 60 * time.Second
	maxRequestAttempts = 4
)

// Catalog is the remote side of the sync as both phases see it.
type Catalog interface {
	FetchOrdersPage(ctx context.Context, page, pageSize int) ([]OrderPayload, error)
	FetchOrderDetail(ctx context.Context, orderID int) (*OrderPayload, error)
}

// TokenProvider supplies the bearer credential for each request. Kept as an
// interface so service accounts, static env tokens and test fakes all fit.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider for a fixed API key.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// Client talks to the Frotix REST API. Every request passes through the
// governor first, so callers never need their own throttling.
type Client struct {
	baseURL  string
	http     *http.Client
	token    TokenProvider
	governor *RateGovernor
	logger   *logrus.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewClient(baseURL string, token TokenProvider, governor *RateGovernor, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 90 * time.Second},
		token:    token,
		governor: governor,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// FetchOrdersPage returns one page of order headers. A null or empty result
// list means the catalog is exhausted.
func (c *Client) FetchOrdersPage(ctx context.Context, page, pageSize int) ([]OrderPayload, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))

	var parsed listResponse
	if err := c.getJSON(ctx, endpointOrders, endpointOrders, query, &parsed); err != nil {
		return nil, err
	}
	return parsed.Results, nil
}

// FetchOrderDetail returns one order with its item lines, or nil when the
// remote has no such order.
func (c *Client) FetchOrderDetail(ctx context.Context, orderID int) (*OrderPayload, error) {
	path := fmt.Sprintf("%s/%d", endpointOrders, orderID)

	var parsed OrderPayload
	if err := c.getJSON(ctx, endpointOrderDetail, path, nil, &parsed); err != nil {
		return nil, err
	}
	if parsed.ID.String() == "" {
		return nil, nil
	}
	return &parsed, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, out interface{}) error {
	var lastErr error

	for attempt := 1; attempt <= maxRequestAttempts; attempt++ {
		if err := c.governor.Await(ctx, endpoint); err != nil {
			return err
		}

		body, err := c.doOnce(ctx, path, query)
		if err == nil {
			c.governor.RecordSuccess(ctx, endpoint)
			if len(body) == 0 || string(body) == "null" {
				return nil
			}
			dec := json.NewDecoder(bytes.NewReader(body))
			dec.UseNumber()
			if decodeErr := dec.Decode(out); decodeErr != nil {
				return fmt.Errorf("frotix: decode %s response: %w", endpoint, decodeErr)
			}
			return nil
		}

		var throttled *ThrottledError
		if isThrottled(err, &throttled) {
			c.logger.WithFields(logrus.Fields{
				"endpoint":    endpoint,
				"retry_after": throttled.RetryAfter.String(),
				"attempt":     attempt,
			}).Warn("remote api throttled request")
			c.governor.RecordThrottled(ctx, endpoint, throttled.RetryAfter)
			lastErr = err
			continue
		}

		if !isRetryable(err) {
			return err
		}

		lastErr = err
		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		c.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"attempt":  attempt,
			"backoff":  backoff.String(),
		}).WithError(err).Warn("transient remote api failure, retrying")
		if sleepErr := c.sleep(ctx, backoff); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("frotix: %s failed after %d attempts: %w", endpoint, maxRequestAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, path string, query url.Values) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/%s", c.baseURL, path)
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	token, err := c.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("frotix: obtain token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transientError{cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, &transientError{cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &ThrottledError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return nil, &transientError{cause: fmt.Errorf("frotix: %s returned status %d", path, resp.StatusCode)}
	default:
		return nil, fmt.Errorf("frotix: %s returned status %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}
}

type transientError struct {
	cause error
}

func (e *transientError) Error() string { return e.cause.Error() }
func (e *transientError) Unwrap() error { return e.cause }

func isRetryable(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

func isThrottled(err error, out **ThrottledError) bool {
	var t *ThrottledError
	if errors.As(err, &t) {
		*out = t
		return true
	}
	return false
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return defaultRetryAfter
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
