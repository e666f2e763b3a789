package controller

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"

	"cloudpico-viewer/internal/session"
	"cloudpico-viewer/internal/types"
)

// Session is the part of session.Manager the display API drives.
type Session interface {
	State() session.State
	Subscribe(fn func(session.State)) (unsubscribe func())
	SetTarget(address string) error
	CheckConnectivity()
	RefreshCurrent()
	RefreshLocations()
	SelectLocation(name string)
	LoadHistory(hours int)
	FetchStatus()
	DismissError()
	WeatherFor(ctx context.Context, location string) (types.WeatherSnapshot, error)
}

type StationController interface {
	RegisterRoutes(mux *http.ServeMux)
	Shutdown()
}

type stationControllerImpl struct {
	session  Session
	upgrader websocket.Upgrader
	logger   *slog.Logger

	quit     chan struct{}
	quitOnce sync.Once
}

func NewStationController(sess Session, allowedOrigins []string, logger *slog.Logger) StationController {
	if logger == nil {
		logger = slog.Default()
	}
	return &stationControllerImpl{
		session: sess,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
		quit:   make(chan struct{}),
	}
}

func (c *stationControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/state", c.handleState)
	mux.HandleFunc("PUT /api/v1/target", c.handleSetTarget)
	mux.HandleFunc("POST /api/v1/connectivity", c.handleConnectivity)
	mux.HandleFunc("POST /api/v1/weather/refresh", c.handleRefreshWeather)
	mux.HandleFunc("POST /api/v1/locations/refresh", c.handleRefreshLocations)
	mux.HandleFunc("PUT /api/v1/location", c.handleSelectLocation)
	mux.HandleFunc("POST /api/v1/history", c.handleLoadHistory)
	mux.HandleFunc("POST /api/v1/status/refresh", c.handleRefreshStatus)
	mux.HandleFunc("DELETE /api/v1/error", c.handleDismissError)
	mux.HandleFunc("GET /api/v1/locations/{name}/weather", c.handleLocationWeather)
	mux.HandleFunc("GET /api/v1/stream", c.handleStream)
}

// Shutdown ends every open stream with a close frame. Safe to call twice.
func (c *stationControllerImpl) Shutdown() {
	c.quitOnce.Do(func() { close(c.quit) })
}

// originChecker accepts requests without an Origin header and those whose
// origin is on the list; "*" accepts everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
