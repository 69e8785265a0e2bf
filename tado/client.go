// Package tado is a typed client for the Tado X cloud APIs.
//
// Tado X homes are served by three hosts: the hops API for rooms, devices
// and manual control, the v2 API for account, presence and weather data,
// and the Energy Insights API for meter readings and tariffs. All requests
// flow through one path that injects the bearer token, bounds response
// bodies, reports rate-limit headers to an optional [CallRecorder], and
// converts vendor failures into typed errors.
//
// Authentication uses the OAuth2 device-code flow; see [StartDeviceAuth]
// and [FileTokenSource].
package tado

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Production API base URLs. Tado X homes live on the hops API; account
// level data stays on the v2 API; Energy IQ has its own host.
const (
	DefaultHopsURL = "https://hops.tado.com"
	DefaultMyURL   = "https://my.tado.com/api/v2"
	DefaultEIQURL  = "https://energy-insights.tado.com/api"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; a watcher talks to at most three hosts
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second
	defaultRequestTimeout      = 15 * time.Second
)

// CallRecorder observes every API exchange for quota accounting.
//
// RecordCall receives the response headers of each completed request so
// the recorder can read the vendor's rate-limit headers. RecordRateLimit
// is called instead when the vendor answers 429; resetAt is zero when the
// response carried no retry hint.
type CallRecorder interface {
	RecordCall(h http.Header)
	RecordRateLimit(resetAt time.Time)
}

// Client is an authenticated Tado X API client.
//
// A Client is safe for concurrent use once the home ID is set. Timeouts
// are applied per request via context rather than a global client timeout.
type Client struct {
	httpClient *http.Client
	ts         oauth2.TokenSource
	recorder   CallRecorder
	logger     *slog.Logger

	hopsURL string
	myURL   string
	eiqURL  string

	homeID  int64
	timeout time.Duration
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithBaseURLs overrides the three API hosts. Used by tests and the
// bundled mock server. Empty strings keep the production defaults.
func WithBaseURLs(hops, my, eiq string) ClientOption {
	return func(c *Client) {
		if hops != "" {
			c.hopsURL = strings.TrimRight(hops, "/")
		}
		if my != "" {
			c.myURL = strings.TrimRight(my, "/")
		}
		if eiq != "" {
			c.eiqURL = strings.TrimRight(eiq, "/")
		}
	}
}

// WithRecorder sets the quota recorder. A nil recorder counts nothing.
func WithRecorder(r CallRecorder) ClientOption {
	return func(c *Client) { c.recorder = r }
}

// WithClientLogger sets the logger for request diagnostics.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. Intended for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRequestTimeout sets the per-request timeout. Zero keeps the default
// of 15 seconds.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHomeID sets the home all home-scoped calls operate on. When not set,
// the first home returned by [Client.Me] can be chosen with
// [Client.SetHomeID].
func WithHomeID(id int64) ClientOption {
	return func(c *Client) { c.homeID = id }
}

// NewClient creates a client authenticating every request through ts.
func NewClient(ts oauth2.TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			// no default timeout - per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		ts:      ts,
		logger:  slog.Default(),
		hopsURL: DefaultHopsURL,
		myURL:   DefaultMyURL,
		eiqURL:  DefaultEIQURL,
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHomeID selects the home for all home-scoped calls. Call before
// starting concurrent use.
func (c *Client) SetHomeID(id int64) { c.homeID = id }

// HomeID returns the configured home ID, zero when unset.
func (c *Client) HomeID() int64 { return c.homeID }

// Close releases the idle connections held in the client's pool.
// Safe to call multiple times; the client remains usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// do performs one authenticated request and decodes the response into out
// when out is non-nil. Every completed exchange is reported to the
// recorder; a 429 is reported as a rate limit and returned as a
// [RateLimitError] instead.
func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	tok, err := c.ts.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}
	tok.SetAuthHeader(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// cap how much of the body a misbehaving server can make us hold
	limitedReader := io.LimitReader(resp.Body, maxResponseBodySize)
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("api request",
		"method", method,
		"url", url,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header)
		var resetAt time.Time
		if retryAfter > 0 {
			resetAt = time.Now().Add(retryAfter)
		}
		if c.recorder != nil {
			c.recorder.RecordRateLimit(resetAt)
		}
		return &RateLimitError{RetryAfter: retryAfter, ResetAt: resetAt}
	}

	if c.recorder != nil {
		c.recorder.RecordCall(resp.Header)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseRetryAfter reads a Retry-After header as either delay seconds or an
// HTTP date. Returns zero when absent or unparseable.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// errorMessage extracts a human-readable message from a vendor error body.
// Tado errors look like {"errors":[{"code":"...","title":"..."}]}.
func errorMessage(data []byte) string {
	var body struct {
		Errors []struct {
			Code  string `json:"code"`
			Title string `json:"title"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &body); err == nil && len(body.Errors) > 0 {
		e := body.Errors[0]
		if e.Title != "" {
			return e.Title
		}
		return e.Code
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func (c *Client) requireHome() error {
	if c.homeID == 0 {
		return ErrNoHome
	}
	return nil
}

func (c *Client) hopsHome(path string) string {
	return fmt.Sprintf("%s/homes/%d%s", c.hopsURL, c.homeID, path)
}

func (c *Client) myHome(path string) string {
	return fmt.Sprintf("%s/homes/%d%s", c.myURL, c.homeID, path)
}

func (c *Client) eiqHome(path string) string {
	return fmt.Sprintf("%s/homes/%d%s", c.eiqURL, c.homeID, path)
}

// Me returns the authenticated account, including its homes.
func (c *Client) Me(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.do(ctx, http.MethodGet, c.myURL+"/me", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// Rooms returns the live state of every room in the home.
func (c *Client) Rooms(ctx context.Context) ([]Room, error) {
	if err := c.requireHome(); err != nil {
		return nil, err
	}
	var rooms []Room
	if err := c.do(ctx, http.MethodGet, c.hopsHome("/rooms"), nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// RoomsAndDevices returns the home's device inventory grouped by room.
func (c *Client) RoomsAndDevices(ctx context.Context) (*RoomsAndDevices, error) {
	if err := c.requireHome(); err != nil {
		return nil, err
	}
	var rad RoomsAndDevices
	if err := c.do(ctx, http.MethodGet, c.hopsHome("/roomsAndDevices"), nil, &rad); err != nil {
		return nil, err
	}
	return &rad, nil
}

// HomeState returns the home's presence state.
func (c *Client) HomeState(ctx context.Context) (*HomeState, error) {
	if err := c.requireHome(); err != nil {
		return nil, err
	}
	var hs HomeState
	if err := c.do(ctx, http.MethodGet, c.myHome("/state"), nil, &hs); err != nil {
		return nil, err
	}
	return &hs, nil
}

// Weather returns the outside conditions at the home's location.
func (c *Client) Weather(ctx context.Context) (*Weather, error) {
	if err := c.requireHome(); err != nil {
		return nil, err
	}
	var w Weather
	if err := c.do(ctx, http.MethodGet, c.myHome("/weather"), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// MobileDevices returns the phones registered with the home.
func (c *Client) MobileDevices(ctx context.Context) ([]MobileDevice, error) {
	if err := c.requireHome(); err != nil {
		return nil, err
	}
	var devices []MobileDevice
	if err := c.do(ctx, http.MethodGet, c.myHome("/mobileDevices"), nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// AirComfort returns the per-room air quality assessment.
func (c *Client) AirComfort(ctx context.Context) (*AirComfort, error) {
	if err := c.requireHome(); err != nil {
		return nil, err
	}
	var ac AirComfort
	if err := c.do(ctx, http.MethodGet, c.myHome("/airComfort"), nil, &ac); err != nil {
		return nil, err
	}
	return &ac, nil
}

// FlowTemperatureOptimization returns the boiler flow temperature setting.
func (c *Client) FlowTemperatureOptimization(ctx context.Context) (*FlowTemperatureOptimization, error) {
	if err := c.requireHome(); err != nil {
		return nil, err
	}
	var fto FlowTemperatureOptimization
	if err := c.do(ctx, http.MethodGet, c.hopsHome("/settings/flowTemperatureOptimization"), nil, &fto); err != nil {
		return nil, err
	}
	return &fto, nil
}

// SetRoomTemperature sets a manual heating target for one room.
func (c *Client) SetRoomTemperature(ctx context.Context, roomID int64, temperature float64, term Termination) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	if !ValidTemperature(temperature) {
		return fmt.Errorf("tado: temperature %.1f outside %.1f-%.1f in %.1f steps",
			temperature, MinTemperature, MaxTemperature, TemperatureStep)
	}
	body := map[string]any{
		"setting": map[string]any{
			"power":       "ON",
			"temperature": map[string]any{"value": temperature},
		},
		"termination": term.wire(),
	}
	url := c.hopsHome(fmt.Sprintf("/rooms/%d/manualControl", roomID))
	return c.do(ctx, http.MethodPost, url, body, nil)
}

// SetRoomOff turns off heating in one room.
func (c *Client) SetRoomOff(ctx context.Context, roomID int64, term Termination) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	body := map[string]any{
		"setting":     map[string]any{"power": "OFF"},
		"termination": term.wire(),
	}
	url := c.hopsHome(fmt.Sprintf("/rooms/%d/manualControl", roomID))
	return c.do(ctx, http.MethodPost, url, body, nil)
}

// ResumeSchedule removes a room's manual control and returns it to the
// smart schedule.
func (c *Client) ResumeSchedule(ctx context.Context, roomID int64) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	url := c.hopsHome(fmt.Sprintf("/rooms/%d/manualControl", roomID))
	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

// BoostRoom starts boost heating in one room.
func (c *Client) BoostRoom(ctx context.Context, roomID int64) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	url := c.hopsHome(fmt.Sprintf("/rooms/%d/boost", roomID))
	return c.do(ctx, http.MethodPost, url, nil, nil)
}

// BoostAll starts boost heating in every room.
func (c *Client) BoostAll(ctx context.Context) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, c.hopsHome("/quickActions/boost"), nil, nil)
}

// AllOff turns off heating in every room.
func (c *Client) AllOff(ctx context.Context) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, c.hopsHome("/quickActions/allOff"), nil, nil)
}

// ResumeAll returns every room to the smart schedule.
func (c *Client) ResumeAll(ctx context.Context) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, c.hopsHome("/quickActions/resumeSchedule"), nil, nil)
}

// SetOpenWindow activates or deactivates open-window mode for a room.
func (c *Client) SetOpenWindow(ctx context.Context, roomID int64, activate bool) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	url := c.hopsHome(fmt.Sprintf("/rooms/%d/openWindow", roomID))
	if activate {
		return c.do(ctx, http.MethodPost, url, nil, nil)
	}
	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

// SetPresence locks the home to HOME or AWAY, or returns control to
// geofencing with [PresenceAuto].
func (c *Client) SetPresence(ctx context.Context, p Presence) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	url := c.myHome("/presenceLock")
	switch p {
	case PresenceHome, PresenceAway:
		return c.do(ctx, http.MethodPut, url, map[string]any{"homePresence": p}, nil)
	case PresenceAuto:
		return c.do(ctx, http.MethodDelete, url, nil, nil)
	default:
		return fmt.Errorf("tado: invalid presence %q", p)
	}
}

// SetChildLock enables or disables a device's child lock.
func (c *Client) SetChildLock(ctx context.Context, serialNo string, enabled bool) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	url := c.hopsHome("/roomsAndDevices/devices/" + serialNo)
	return c.do(ctx, http.MethodPatch, url, map[string]any{"childLockEnabled": enabled}, nil)
}

// SetTemperatureOffset calibrates a device's temperature measurement.
func (c *Client) SetTemperatureOffset(ctx context.Context, serialNo string, offset float64) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	if offset < MinTemperatureOffset || offset > MaxTemperatureOffset {
		return fmt.Errorf("tado: temperature offset %.1f outside %.1f-%.1f",
			offset, MinTemperatureOffset, MaxTemperatureOffset)
	}
	url := c.hopsHome("/roomsAndDevices/devices/" + serialNo)
	return c.do(ctx, http.MethodPatch, url, map[string]any{"temperatureOffset": offset}, nil)
}

// SetMaxFlowTemperature sets the boiler's maximum flow temperature.
func (c *Client) SetMaxFlowTemperature(ctx context.Context, celsius float64) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	url := c.hopsHome("/settings/flowTemperatureOptimization")
	return c.do(ctx, http.MethodPut, url, map[string]any{"maxFlowTemperature": celsius}, nil)
}

// AddMeterReading records an energy meter reading with Energy IQ. An
// empty date means today.
func (c *Client) AddMeterReading(ctx context.Context, date string, reading int) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	body := MeterReading{Date: date, Reading: reading}
	return c.do(ctx, http.MethodPost, c.eiqHome("/meterReadings"), body, nil)
}

// SetTariff records an energy price with Energy IQ.
func (c *Client) SetTariff(ctx context.Context, t Tariff) error {
	if err := c.requireHome(); err != nil {
		return err
	}
	if t.Unit != TariffUnitCubicMeters && t.Unit != TariffUnitKWh {
		return fmt.Errorf("tado: invalid tariff unit %q", t.Unit)
	}
	return c.do(ctx, http.MethodPost, c.eiqHome("/tariffs"), t, nil)
}
