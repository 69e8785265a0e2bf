// Package mocktado is an in-memory fake of the Tado X cloud APIs for
// demos and manual testing.
//
// It covers every route the tado client calls, counts each request
// against a daily quota, stamps the vendor's rate-limit headers on
// every response, and answers 429 once the budget is spent. Room
// temperatures drift between polls so consecutive updates differ.
package mocktado

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jpalmerr/tadowatch/tado"
)

// DefaultLimit is the daily quota when New receives a non-positive limit,
// matching the vendor's free tier.
const DefaultLimit = 100

// Server holds the fake home state and the quota counter.
type Server struct {
	limit  int
	logger *slog.Logger

	// short-window limiter, separate from the daily quota
	burst *rate.Limiter

	mu       sync.Mutex
	used     int
	resetAt  time.Time
	rooms    []tado.Room
	devices  tado.RoomsAndDevices
	home     tado.HomeState
	weather  tado.Weather
	phones   []tado.MobileDevice
	flow     tado.FlowTemperatureOptimization
	readings []tado.MeterReading
	tariffs  []tado.Tariff
}

// New creates a mock server with the given daily quota. A non-positive
// limit falls back to [DefaultLimit]. A nil logger falls back to
// slog.Default().
func New(limit int, logger *slog.Logger) *Server {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}

	target := 21.5
	return &Server{
		limit:   limit,
		logger:  logger,
		burst:   rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
		resetAt: nextMidnight(time.Now()),
		rooms: []tado.Room{
			{
				ID:   1,
				Name: "Living Room",
				SensorDataPoints: tado.SensorDataPoints{
					InsideTemperature: tado.Temperature{Value: 21.3},
					Humidity:          tado.Percentage{Percentage: 47},
				},
				Setting: tado.RoomSetting{
					Power:       "ON",
					Temperature: &tado.Temperature{Value: target},
				},
				HeatingPower: tado.Percentage{Percentage: 15},
			},
			{
				ID:   2,
				Name: "Bedroom",
				SensorDataPoints: tado.SensorDataPoints{
					InsideTemperature: tado.Temperature{Value: 18.4},
					Humidity:          tado.Percentage{Percentage: 52},
				},
				Setting: tado.RoomSetting{Power: "OFF"},
			},
		},
		devices: tado.RoomsAndDevices{
			Rooms: []tado.RoomDevices{
				{
					RoomID:   1,
					RoomName: "Living Room",
					Devices: []tado.Device{{
						SerialNo:        "VA1234567890",
						Type:            tado.DeviceTypeValve,
						FirmwareVersion: "243.1",
						Connection:      tado.Connection{State: tado.ConnectionConnected},
						BatteryState:    tado.BatteryNormal,
					}},
				},
				{
					RoomID:   2,
					RoomName: "Bedroom",
					Devices: []tado.Device{{
						SerialNo:        "VA0987654321",
						Type:            tado.DeviceTypeValve,
						FirmwareVersion: "243.1",
						Connection:      tado.Connection{State: tado.ConnectionConnected},
						BatteryState:    tado.BatteryLow,
					}},
				},
			},
			OtherDevices: []tado.Device{{
				SerialNo:        "IB1122334455",
				Type:            tado.DeviceTypeBridge,
				FirmwareVersion: "108.2",
				Connection:      tado.Connection{State: tado.ConnectionConnected},
			}},
		},
		home: tado.HomeState{Presence: tado.PresenceHome},
		weather: tado.Weather{
			SolarIntensity:     tado.Percentage{Percentage: 64},
			OutsideTemperature: tado.Celsius{Celsius: 12.8},
			WeatherState:       tado.StringValue{Value: "CLOUDY"},
		},
		phones: []tado.MobileDevice{
			{
				ID:       101,
				Name:     "Sam's phone",
				Settings: tado.MobileDeviceSettings{GeoTrackingEnabled: true},
				Location: &tado.MobileDeviceLocation{AtHome: true},
			},
			{
				ID:       102,
				Name:     "Alex's phone",
				Settings: tado.MobileDeviceSettings{GeoTrackingEnabled: true},
				Location: &tado.MobileDeviceLocation{AtHome: false},
			},
		},
		flow: tado.FlowTemperatureOptimization{MaxFlowTemperature: 50},
	}
}

// Handler returns the mock API routes. The hops, my, and eiq base URLs
// all point at the same listener:
//
//	hops: http://host:port
//	my:   http://host:port/api/v2
//	eiq:  http://host:port/eiq
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// account API (my.tado.com shape)
	mux.HandleFunc("GET /api/v2/me", s.quota(s.handleMe))
	mux.HandleFunc("GET /api/v2/homes/{home}/state", s.quota(s.handleHomeState))
	mux.HandleFunc("GET /api/v2/homes/{home}/weather", s.quota(s.handleWeather))
	mux.HandleFunc("GET /api/v2/homes/{home}/mobileDevices", s.quota(s.handleMobileDevices))
	mux.HandleFunc("GET /api/v2/homes/{home}/airComfort", s.quota(s.handleAirComfort))
	mux.HandleFunc("PUT /api/v2/homes/{home}/presenceLock", s.quota(s.handleSetPresence))
	mux.HandleFunc("DELETE /api/v2/homes/{home}/presenceLock", s.quota(s.handleClearPresence))

	// Tado X API (hops.tado.com shape)
	mux.HandleFunc("GET /homes/{home}/rooms", s.quota(s.handleRooms))
	mux.HandleFunc("GET /homes/{home}/roomsAndDevices", s.quota(s.handleRoomsAndDevices))
	mux.HandleFunc("GET /homes/{home}/settings/flowTemperatureOptimization", s.quota(s.handleFlow))
	mux.HandleFunc("PUT /homes/{home}/settings/flowTemperatureOptimization", s.quota(s.handleSetFlow))
	mux.HandleFunc("POST /homes/{home}/rooms/{room}/manualControl", s.quota(s.handleManualControl))
	mux.HandleFunc("DELETE /homes/{home}/rooms/{room}/manualControl", s.quota(s.handleResumeSchedule))
	mux.HandleFunc("POST /homes/{home}/rooms/{room}/boost", s.quota(s.handleBoost))
	mux.HandleFunc("POST /homes/{home}/rooms/{room}/openWindow", s.quota(s.handleOpenWindow))
	mux.HandleFunc("DELETE /homes/{home}/rooms/{room}/openWindow", s.quota(s.handleCloseWindow))
	mux.HandleFunc("POST /homes/{home}/quickActions/{action}", s.quota(s.handleQuickAction))
	mux.HandleFunc("PATCH /homes/{home}/roomsAndDevices/devices/{serial}", s.quota(s.handlePatchDevice))

	// Energy IQ API (energy-insights.tado.com shape)
	mux.HandleFunc("POST /eiq/homes/{home}/meterReadings", s.quota(s.handleMeterReading))
	mux.HandleFunc("POST /eiq/homes/{home}/tariffs", s.quota(s.handleTariff))

	return mux
}

// ListenAndServe runs the mock API on addr. It blocks like
// http.ListenAndServe.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("mock tado api listening", "addr", addr, "daily_limit", s.limit)
	return http.ListenAndServe(addr, s.Handler())
}

// quota wraps a handler with bearer-token and rate-limit checks, and
// stamps the vendor quota headers on every response.
func (s *Server) quota(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		// burst rejections are transient and do not consume quota
		if !s.burst.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rateLimitExceeded", "burst limit hit")
			return
		}

		s.mu.Lock()
		now := time.Now()
		if !now.Before(s.resetAt) {
			s.used = 0
			s.resetAt = nextMidnight(now)
		}
		s.used++
		used := s.used
		exhausted := used > s.limit
		remaining := max(s.limit-used, 0)
		resetIn := int(time.Until(s.resetAt).Seconds())
		s.mu.Unlock()

		w.Header().Set("Ratelimit-Policy", fmt.Sprintf(`"day";q=%d;w=86400`, s.limit))
		w.Header().Set("Ratelimit", fmt.Sprintf(`"day";r=%d;t=%d`, remaining, resetIn))

		if exhausted {
			w.Header().Set("Retry-After", strconv.Itoa(resetIn))
			writeError(w, http.StatusTooManyRequests, "quotaExceeded", "daily call quota spent")
			s.logger.Warn("quota exhausted", "used", used, "limit", s.limit)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, tado.Me{
		Name:  "Demo User",
		Email: "demo@example.com",
		Homes: []tado.Home{{ID: 1, Name: "Demo Home"}},
	})
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.drift()
	rooms := make([]tado.Room, len(s.rooms))
	copy(rooms, s.rooms)
	s.mu.Unlock()

	writeJSON(w, rooms)
}

func (s *Server) handleRoomsAndDevices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	devices := s.devices
	s.mu.Unlock()

	writeJSON(w, devices)
}

func (s *Server) handleHomeState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	home := s.home
	s.mu.Unlock()

	writeJSON(w, home)
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	weather := s.weather
	s.mu.Unlock()

	writeJSON(w, weather)
}

func (s *Server) handleMobileDevices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	phones := make([]tado.MobileDevice, len(s.phones))
	copy(phones, s.phones)
	s.mu.Unlock()

	writeJSON(w, phones)
}

func (s *Server) handleAirComfort(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	comfort := make([]tado.RoomComfort, 0, len(s.rooms))
	for _, room := range s.rooms {
		comfort = append(comfort, tado.RoomComfort{
			RoomID:           room.ID,
			TemperatureLevel: temperatureLevel(room.SensorDataPoints.InsideTemperature.Value),
			HumidityLevel:    humidityLevel(room.SensorDataPoints.Humidity.Percentage),
		})
	}
	s.mu.Unlock()

	writeJSON(w, tado.AirComfort{
		Freshness: tado.StringValue{Value: "FAIR"},
		Comfort:   comfort,
	})
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	flow := s.flow
	s.mu.Unlock()

	writeJSON(w, flow)
}

func (s *Server) handleSetFlow(w http.ResponseWriter, r *http.Request) {
	var body tado.FlowTemperatureOptimization
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "badRequest", "malformed body")
		return
	}

	s.mu.Lock()
	s.flow = body
	s.mu.Unlock()

	s.logger.Info("flow temperature set", "max", body.MaxFlowTemperature)
	writeJSON(w, body)
}

func (s *Server) handleManualControl(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Setting     tado.RoomSetting `json:"setting"`
		Termination struct {
			Type              tado.TerminationType `json:"type"`
			DurationInSeconds int                  `json:"durationInSeconds"`
		} `json:"termination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "badRequest", "malformed body")
		return
	}

	s.mu.Lock()
	room := s.roomLocked(r.PathValue("room"))
	if room == nil {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "notFound", "room not found")
		return
	}
	room.Setting = body.Setting
	room.ManualControlTermination = &tado.ManualControlTermination{
		Type:                   body.Termination.Type,
		RemainingTimeInSeconds: body.Termination.DurationInSeconds,
	}
	room.BoostMode = nil
	name := room.Name
	s.mu.Unlock()

	s.logger.Info("manual control applied",
		"room", name,
		"power", body.Setting.Power,
		"termination", string(body.Termination.Type),
	)
	writeJSON(w, map[string]any{})
}

func (s *Server) handleResumeSchedule(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	room := s.roomLocked(r.PathValue("room"))
	if room == nil {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "notFound", "room not found")
		return
	}
	room.ManualControlTermination = nil
	room.BoostMode = nil
	name := room.Name
	s.mu.Unlock()

	s.logger.Info("schedule resumed", "room", name)
	writeJSON(w, map[string]any{})
}

func (s *Server) handleBoost(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	room := s.roomLocked(r.PathValue("room"))
	if room == nil {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "notFound", "room not found")
		return
	}
	boostLocked(room)
	name := room.Name
	s.mu.Unlock()

	s.logger.Info("boost started", "room", name)
	writeJSON(w, map[string]any{})
}

func (s *Server) handleOpenWindow(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	room := s.roomLocked(r.PathValue("room"))
	if room == nil {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "notFound", "room not found")
		return
	}
	room.OpenWindow = &tado.OpenWindow{Activated: true, ExpiryInSeconds: 900}
	s.mu.Unlock()

	writeJSON(w, map[string]any{})
}

func (s *Server) handleCloseWindow(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	room := s.roomLocked(r.PathValue("room"))
	if room == nil {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "notFound", "room not found")
		return
	}
	room.OpenWindow = nil
	s.mu.Unlock()

	writeJSON(w, map[string]any{})
}

func (s *Server) handleQuickAction(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")

	s.mu.Lock()
	switch action {
	case "boost":
		for i := range s.rooms {
			boostLocked(&s.rooms[i])
		}
	case "allOff":
		for i := range s.rooms {
			s.rooms[i].Setting = tado.RoomSetting{Power: "OFF"}
			s.rooms[i].ManualControlTermination = &tado.ManualControlTermination{
				Type: tado.TerminationManual,
			}
			s.rooms[i].BoostMode = nil
			s.rooms[i].HeatingPower = tado.Percentage{}
		}
	case "resumeSchedule":
		for i := range s.rooms {
			s.rooms[i].ManualControlTermination = nil
			s.rooms[i].BoostMode = nil
		}
	default:
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "notFound", "unknown quick action")
		return
	}
	s.mu.Unlock()

	s.logger.Info("quick action applied", "action", action)
	writeJSON(w, map[string]any{})
}

func (s *Server) handlePatchDevice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChildLockEnabled  *bool    `json:"childLockEnabled"`
		TemperatureOffset *float64 `json:"temperatureOffset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "badRequest", "malformed body")
		return
	}

	s.mu.Lock()
	device := s.deviceLocked(r.PathValue("serial"))
	if device == nil {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "notFound", "device not found")
		return
	}
	if body.ChildLockEnabled != nil {
		device.ChildLockEnabled = *body.ChildLockEnabled
	}
	if body.TemperatureOffset != nil {
		device.TemperatureOffset = *body.TemperatureOffset
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{})
}

func (s *Server) handleSetPresence(w http.ResponseWriter, r *http.Request) {
	var body struct {
		HomePresence tado.Presence `json:"homePresence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "badRequest", "malformed body")
		return
	}
	if body.HomePresence != tado.PresenceHome && body.HomePresence != tado.PresenceAway {
		writeError(w, http.StatusUnprocessableEntity, "invalidPresence", "homePresence must be HOME or AWAY")
		return
	}

	s.mu.Lock()
	s.home = tado.HomeState{Presence: body.HomePresence, PresenceLocked: true}
	s.mu.Unlock()

	s.logger.Info("presence locked", "presence", string(body.HomePresence))
	writeJSON(w, map[string]any{})
}

func (s *Server) handleClearPresence(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	// geofencing takes over; the mock just reports everyone home
	s.home = tado.HomeState{Presence: tado.PresenceHome}
	s.mu.Unlock()

	s.logger.Info("presence lock removed")
	writeJSON(w, map[string]any{})
}

func (s *Server) handleMeterReading(w http.ResponseWriter, r *http.Request) {
	var body tado.MeterReading
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "badRequest", "malformed body")
		return
	}

	s.mu.Lock()
	s.readings = append(s.readings, body)
	s.mu.Unlock()

	s.logger.Info("meter reading recorded", "date", body.Date, "reading", body.Reading)
	writeJSON(w, map[string]any{})
}

func (s *Server) handleTariff(w http.ResponseWriter, r *http.Request) {
	var body tado.Tariff
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "badRequest", "malformed body")
		return
	}

	s.mu.Lock()
	s.tariffs = append(s.tariffs, body)
	s.mu.Unlock()

	s.logger.Info("tariff recorded", "cents", body.TariffInCents, "unit", body.Unit)
	writeJSON(w, map[string]any{})
}

// roomLocked finds a room by its path value. Callers hold s.mu.
func (s *Server) roomLocked(id string) *tado.Room {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}
	for i := range s.rooms {
		if s.rooms[i].ID == n {
			return &s.rooms[i]
		}
	}
	return nil
}

// deviceLocked finds a device by serial number. Callers hold s.mu.
func (s *Server) deviceLocked(serial string) *tado.Device {
	for i := range s.devices.Rooms {
		for j := range s.devices.Rooms[i].Devices {
			if s.devices.Rooms[i].Devices[j].SerialNo == serial {
				return &s.devices.Rooms[i].Devices[j]
			}
		}
	}
	for i := range s.devices.OtherDevices {
		if s.devices.OtherDevices[i].SerialNo == serial {
			return &s.devices.OtherDevices[i]
		}
	}
	return nil
}

// drift nudges measured conditions so consecutive polls differ.
// Callers hold s.mu.
func (s *Server) drift() {
	for i := range s.rooms {
		room := &s.rooms[i]
		temp := room.SensorDataPoints.InsideTemperature.Value
		temp += (rand.Float64() - 0.5) * 0.4

		// heating pulls the measurement toward the target
		if room.Setting.Power == "ON" && room.Setting.Temperature != nil {
			if temp < room.Setting.Temperature.Value {
				temp += 0.1
				room.HeatingPower = tado.Percentage{Percentage: 40}
			} else {
				room.HeatingPower = tado.Percentage{}
			}
		}
		room.SensorDataPoints.InsideTemperature.Value = round1(temp)

		humidity := room.SensorDataPoints.Humidity.Percentage
		humidity += (rand.Float64() - 0.5) * 2
		room.SensorDataPoints.Humidity.Percentage = round1(clampF(humidity, 30, 70))
	}

	s.weather.OutsideTemperature.Celsius = round1(s.weather.OutsideTemperature.Celsius + (rand.Float64()-0.5)*0.6)
	s.weather.SolarIntensity.Percentage = round1(clampF(s.weather.SolarIntensity.Percentage+(rand.Float64()-0.5)*6, 0, 100))
}

func boostLocked(room *tado.Room) {
	room.Setting = tado.RoomSetting{
		Power:       "ON",
		Temperature: &tado.Temperature{Value: tado.MaxTemperature},
	}
	room.BoostMode = &tado.ManualControlTermination{
		Type:                   tado.TerminationTimer,
		RemainingTimeInSeconds: 1800,
	}
	room.HeatingPower = tado.Percentage{Percentage: 100}
}

func temperatureLevel(celsius float64) string {
	switch {
	case celsius < 18:
		return "COLD"
	case celsius > 24:
		return "HOT"
	default:
		return "COMFY"
	}
}

func humidityLevel(percent float64) string {
	switch {
	case percent < 40:
		return "DRY"
	case percent > 60:
		return "HUMID"
	default:
		return "COMFY"
	}
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

func clampF(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, title string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]string{{"code": code, "title": title}},
	})
}
