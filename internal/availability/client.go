package availability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/signalsfoundry/contact-scheduler/internal/logging"
	"github.com/signalsfoundry/contact-scheduler/model"
)

// DefaultTimeout bounds every simulator call.
const DefaultTimeout = 5 * time.Second

// Client is an Oracle backed by the station simulator HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	log     logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logging.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient builds a client for the simulator at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: DefaultTimeout,
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QueryBusy implements Oracle.
func (c *Client) QueryBusy(ctx context.Context, station string, start, end time.Time) ([]model.Interval, error) {
	windows, err := c.BusyTimes(ctx, station, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]model.Interval, 0, len(windows))
	for _, w := range windows {
		if w.State.Busy() {
			out = append(out, w.Interval())
		}
	}
	return out, nil
}

// BusyTimes returns the raw busy windows at station within [start, end).
func (c *Client) BusyTimes(ctx context.Context, station string, start, end time.Time) ([]BusyWindow, error) {
	q := url.Values{}
	q.Set("start_time", FormatTime(start))
	q.Set("end_time", FormatTime(end))
	endpoint := c.stationURL(station, "query_busy_times") + "/?" + q.Encode()

	var resp BusyTimesResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("query busy times at %q: %w", station, err)
	}

	out := make([]BusyWindow, 0, len(resp.BusyTimes))
	for _, j := range resp.BusyTimes {
		w, err := FromJSON(j)
		if err != nil {
			return nil, fmt.Errorf("%w: query busy times at %q: %v", ErrUnavailable, station, err)
		}
		out = append(out, w)
	}
	return out, nil
}

// Reserve implements Oracle.
func (c *Client) Reserve(ctx context.Context, station string, iv model.Interval, state State, mission string) error {
	body := SchedulePassRequest{
		StartTime: iv.Start.UTC().Format(time.RFC3339),
		EndTime:   iv.End.UTC().Format(time.RFC3339),
		State:     string(state),
		Mission:   mission,
	}
	if err := c.do(ctx, http.MethodPost, c.stationURL(station, "schedule_pass")+"/", body, nil); err != nil {
		return fmt.Errorf("schedule pass at %q: %w", station, err)
	}
	c.log.Debug(ctx, "reserved station interval",
		logging.String("station", station),
		logging.String("state", string(state)),
		logging.Time("start", iv.Start),
		logging.Time("end", iv.End))
	return nil
}

// StateAt returns the station state at instant at.
func (c *Client) StateAt(ctx context.Context, station string, at time.Time) (State, string, error) {
	endpoint := c.stationURL(station, "query_state_at") + "/" + url.PathEscape(at.UTC().Format(time.RFC3339))
	var resp StateResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return "", "", fmt.Errorf("query state at %q: %w", station, err)
	}
	state, err := ParseState(resp.State)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return state, resp.Mission, nil
}

func (c *Client) stationURL(station, op string) string {
	return c.baseURL + "/" + url.PathEscape(station) + "/" + op
}

// do performs one call. Transport failures, timeouts and unexpected
// statuses wrap ErrUnavailable; 409 wraps ErrConflict.
func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn(ctx, "station simulator request failed",
			logging.String("method", method), logging.String("url", endpoint), logging.Err(err))
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, c.baseURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s", ErrConflict, strings.TrimSpace(string(msg)))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrUnavailable, method, endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}
