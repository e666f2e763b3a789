// Package stationtest provides an in-process fake of the ESP32 station API.
package stationtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"cloudpico-viewer/internal/types"
)

// Route keys accepted by Hits and Override.
const (
	RoutePing      = "GET /ping"
	RouteWeather   = "GET /weather"
	RouteWeatherAt = "GET /weather/{location}"
	RouteLocations = "GET /locations"
	RouteLocation  = "POST /location"
	RouteHistory   = "GET /history"
	RouteStatus    = "GET /status"
)

// Server is a fake station. Its data fields may be changed between requests
// through the setters; handlers can be replaced per route with Override.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	hits      map[string]int
	overrides map[string]http.HandlerFunc
	weather   types.WeatherSnapshot
	locations []string
	history   []types.WeatherSnapshot
	status    types.DeviceStatus
	selected  string
	lastHours int
}

// New starts a fake station that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		hits:      make(map[string]int),
		overrides: make(map[string]http.HandlerFunc),
		weather: types.WeatherSnapshot{
			Temperature:   21.5,
			Humidity:      44,
			Pressure:      1013.2,
			Location:      "Garden",
			ObservedAt:    1700000000000,
			Condition:     "Clear",
			WindSpeed:     3.1,
			WindDirection: "NE",
			UVIndex:       2,
			Visibility:    10,
		},
		locations: []string{"Garden", "Garage"},
		status: types.DeviceStatus{
			Uptime:             3600000,
			FreeMemory:         120000,
			WiFiSignalStrength: -61,
			FirmwareVersion:    "1.2.0",
			BatteryLevel:       types.Some(88.0),
		},
	}

	mux := http.NewServeMux()
	s.route(mux, RoutePing, func(w http.ResponseWriter, r *http.Request) {
		WriteEnvelope(w, http.StatusOK, true, "pong", "")
	})
	s.route(mux, RouteWeather, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		weather := s.weather
		s.mu.Unlock()
		WriteEnvelope(w, http.StatusOK, true, weather, "")
	})
	s.route(mux, RouteWeatherAt, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		weather := s.weather
		s.mu.Unlock()
		weather.Location = r.PathValue("location")
		WriteEnvelope(w, http.StatusOK, true, weather, "")
	})
	s.route(mux, RouteLocations, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		locations := s.locations
		s.mu.Unlock()
		WriteEnvelope(w, http.StatusOK, true, locations, "")
	})
	s.route(mux, RouteLocation, func(w http.ResponseWriter, r *http.Request) {
		var req types.LocationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteEnvelope(w, http.StatusBadRequest, false, nil, "invalid body")
			return
		}
		s.mu.Lock()
		s.selected = req.Location
		s.mu.Unlock()
		WriteEnvelope(w, http.StatusOK, true, "location set to "+req.Location, "")
	})
	s.route(mux, RouteHistory, func(w http.ResponseWriter, r *http.Request) {
		hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))
		s.mu.Lock()
		s.lastHours = hours
		history := s.history
		s.mu.Unlock()
		if history == nil {
			history = []types.WeatherSnapshot{}
		}
		WriteEnvelope(w, http.StatusOK, true, history, "")
	})
	s.route(mux, RouteStatus, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := s.status
		s.mu.Unlock()
		WriteEnvelope(w, http.StatusOK, true, status, "")
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) route(mux *http.ServeMux, pattern string, def http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[pattern]++
		h := s.overrides[pattern]
		s.mu.Unlock()
		if h != nil {
			h(w, r)
			return
		}
		def(w, r)
	})
}

// Address returns host:port, suitable for station.ValidateAddress.
func (s *Server) Address() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		panic(err)
	}
	return u.Host
}

// Hits returns how many requests hit route.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// Override replaces the handler for route. A nil handler restores the default.
func (s *Server) Override(route string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.overrides, route)
		return
	}
	s.overrides[route] = h
}

// Fail makes route answer with the given status and envelope.
func (s *Server) Fail(route string, status int, message string) {
	s.Override(route, func(w http.ResponseWriter, r *http.Request) {
		WriteEnvelope(w, status, false, nil, message)
	})
}

func (s *Server) SetWeather(w types.WeatherSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weather = w
}

func (s *Server) SetLocations(locations []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations = locations
}

func (s *Server) SetHistory(history []types.WeatherSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = history
}

func (s *Server) SetStatus(status types.DeviceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// SelectedLocation returns the last location posted to /location.
func (s *Server) SelectedLocation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// LastHistoryHours returns the hours parameter of the last /history request.
func (s *Server) LastHistoryHours() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHours
}

// WriteEnvelope writes a station envelope. A nil data is encoded as null.
func WriteEnvelope(w http.ResponseWriter, status int, success bool, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	env := types.Envelope[any]{Success: success, Message: message, Timestamp: 1700000000000}
	if data != nil {
		env.Data = &data
	}
	_ = json.NewEncoder(w).Encode(env)
}
