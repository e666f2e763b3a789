package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"cloudpico-viewer/internal/station"
	"cloudpico-viewer/internal/types"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultDeviceName   = "ESP32 Weather Station"
	DefaultHistoryHours = station.DefaultHistoryHours

	taskQueueSize = 64
)

var (
	ErrNoTarget = errors.New("no device target set")
	ErrStopped  = errors.New("session manager stopped")
)

// StationClient is what the manager needs from a station connection.
type StationClient interface {
	Ping(ctx context.Context) (string, error)
	CurrentWeather(ctx context.Context) (types.WeatherSnapshot, error)
	WeatherForLocation(ctx context.Context, location string) (types.WeatherSnapshot, error)
	Locations(ctx context.Context) ([]string, error)
	SetLocation(ctx context.Context, location string) (string, error)
	History(ctx context.Context, hours int) ([]types.WeatherSnapshot, error)
	Status(ctx context.Context) (types.DeviceStatus, error)
}

// ClientFactory builds a fresh client for a validated address.
type ClientFactory func(address string) (StationClient, error)

// HTTPClientFactory returns a ClientFactory building station.Client values.
func HTTPClientFactory(timeout time.Duration, logger *slog.Logger) ClientFactory {
	return func(address string) (StationClient, error) {
		c, err := station.NewClient(address, timeout, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

type Options struct {
	NewClient    ClientFactory
	Store        *Store
	PollInterval time.Duration
	DeviceName   string
	Logger       *slog.Logger
	Now          func() time.Time
}

// Manager owns the session with one station. Every state change runs on the
// goroutine executing Run; public methods only enqueue work and return.
//
// Requests run on their own goroutines and post their outcome back to the
// loop. An outcome is applied only if the target has not changed since the
// request was issued. When Run's context ends, in-flight requests are
// cancelled and their outcomes dropped.
type Manager struct {
	store        *Store
	newClient    ClientFactory
	pollInterval time.Duration
	deviceName   string
	logger       *slog.Logger
	now          func() time.Time

	tasks chan func()
	done  chan struct{}

	// Loop-owned.
	ctx       context.Context
	client    StationClient
	gen       uint64
	targetLog *slog.Logger
	stopPoll  context.CancelFunc
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		store:        opts.Store,
		newClient:    opts.NewClient,
		pollInterval: opts.PollInterval,
		deviceName:   opts.DeviceName,
		logger:       opts.Logger,
		now:          opts.Now,
		tasks:        make(chan func(), taskQueueSize),
		done:         make(chan struct{}),
	}
	if m.store == nil {
		m.store = NewStore()
	}
	if m.pollInterval <= 0 {
		m.pollInterval = DefaultPollInterval
	}
	if m.deviceName == "" {
		m.deviceName = DefaultDeviceName
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newClient == nil {
		m.newClient = HTTPClientFactory(station.DefaultTimeout, m.logger)
	}
	m.targetLog = m.logger
	return m
}

// Run executes queued operations until ctx is done. It must be called once.
func (m *Manager) Run(ctx context.Context) error {
	m.ctx = ctx
	defer close(m.done)
	defer m.stopPolling()

	m.logger.Info("session manager started", "poll_interval", m.pollInterval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("session manager stopped")
			return ctx.Err()
		case task := <-m.tasks:
			task()
		}
	}
}

func (m *Manager) State() State {
	return m.store.Snapshot()
}

func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	return m.store.Subscribe(fn)
}

// SetTarget validates address and, if it is acceptable, switches the session
// to it. Invalid input is returned and leaves the state untouched.
func (m *Manager) SetTarget(address string) error {
	address = strings.TrimSpace(address)
	if err := station.ValidateAddress(address); err != nil {
		return err
	}
	client, err := m.newClient(address)
	if err != nil {
		return fmt.Errorf("create station client: %w", err)
	}
	if !m.post(func() { m.setTarget(address, client) }) {
		return ErrStopped
	}
	return nil
}

func (m *Manager) CheckConnectivity() { m.post(m.checkConnectivity) }

func (m *Manager) RefreshCurrent() { m.post(m.refreshCurrent) }

func (m *Manager) RefreshLocations() { m.post(m.refreshLocations) }

func (m *Manager) SelectLocation(name string) {
	m.post(func() { m.selectLocation(name) })
}

// LoadHistory fetches the last hours of readings; hours <= 0 means DefaultHistoryHours.
func (m *Manager) LoadHistory(hours int) {
	m.post(func() { m.loadHistory(hours) })
}

func (m *Manager) FetchStatus() { m.post(m.fetchStatus) }

func (m *Manager) DismissError() {
	m.post(func() {
		m.store.update(func(st *State) { st.ErrorMessage = types.None[string]() })
	})
}

// WeatherFor queries the current target for one location without touching
// the session state.
func (m *Manager) WeatherFor(ctx context.Context, location string) (types.WeatherSnapshot, error) {
	var zero types.WeatherSnapshot
	reply := make(chan StationClient, 1)
	if !m.post(func() { reply <- m.client }) {
		return zero, ErrStopped
	}
	var client StationClient
	select {
	case client = <-reply:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-m.done:
		return zero, ErrStopped
	}
	if client == nil {
		return zero, ErrNoTarget
	}
	return client.WeatherForLocation(ctx, location)
}

func (m *Manager) post(task func()) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.tasks <- task:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) setTarget(address string, client StationClient) {
	m.stopPolling()
	m.gen++
	m.client = client
	m.targetLog = m.logger.With("address", address, "conn_id", uuid.NewString())
	m.targetLog.Info("device target set", "generation", m.gen)

	m.store.update(func(st *State) {
		st.Device = types.Some(types.DeviceTarget{Address: address, Name: m.deviceName})
		st.Loading = true
	})
	m.checkConnectivity()
}

func (m *Manager) checkConnectivity() {
	if !m.hasClient("check connectivity") {
		return
	}
	m.store.update(func(st *State) {
		st.Loading = true
		st.ErrorMessage = types.None[string]()
	})
	launch(m, "ping", StationClient.Ping, func(_ string, err error) {
		if err != nil {
			m.targetLog.Warn("connectivity check failed", "error", err)
			m.store.update(func(st *State) {
				updateDevice(st, func(d *types.DeviceTarget) { d.Connected = false })
				st.Loading = false
				st.ErrorMessage = types.Some("Connection failed: " + err.Error())
			})
			return
		}
		now := m.now()
		m.targetLog.Info("device connected")
		m.store.update(func(st *State) {
			updateDevice(st, func(d *types.DeviceTarget) {
				d.Connected = true
				d.LastSeenAt = now
			})
			st.Loading = false
		})
		m.startPolling()
		m.refreshCurrent()
		m.refreshLocations()
	})
}

func (m *Manager) refreshCurrent() {
	if !m.hasClient("refresh weather") {
		return
	}
	m.store.update(func(st *State) {
		st.Refreshing = true
		st.ErrorMessage = types.None[string]()
	})
	launch(m, "weather", StationClient.CurrentWeather, func(w types.WeatherSnapshot, err error) {
		if err != nil {
			m.targetLog.Warn("weather refresh failed", "error", err)
			m.store.update(func(st *State) {
				st.Refreshing = false
				st.ErrorMessage = types.Some("Failed to refresh weather data: " + err.Error())
			})
			return
		}
		m.store.update(func(st *State) {
			st.CurrentWeather = types.Some(w)
			st.Refreshing = false
		})
	})
}

func (m *Manager) refreshLocations() {
	if !m.hasClient("load locations") {
		return
	}
	launch(m, "locations", StationClient.Locations, func(locations []string, err error) {
		if err != nil {
			m.targetLog.Warn("loading locations failed", "error", err)
			m.store.update(func(st *State) {
				st.ErrorMessage = types.Some("Failed to load locations: " + err.Error())
			})
			return
		}
		m.store.update(func(st *State) { st.Locations = locations })
	})
}

func (m *Manager) selectLocation(name string) {
	if !m.hasClient("select location") {
		return
	}
	m.store.update(func(st *State) {
		st.Loading = true
		st.ErrorMessage = types.None[string]()
	})
	call := func(c StationClient, ctx context.Context) (string, error) {
		return c.SetLocation(ctx, name)
	}
	launch(m, "set location", call, func(_ string, err error) {
		if err != nil {
			m.targetLog.Warn("set location failed", "location", name, "error", err)
			m.store.update(func(st *State) {
				st.Loading = false
				st.ErrorMessage = types.Some("Failed to set location: " + err.Error())
			})
			return
		}
		m.store.update(func(st *State) {
			st.SelectedLocation = name
			st.Loading = false
		})
		m.refreshCurrent()
	})
}

func (m *Manager) loadHistory(hours int) {
	if !m.hasClient("load history") {
		return
	}
	if hours <= 0 {
		hours = DefaultHistoryHours
	}
	call := func(c StationClient, ctx context.Context) ([]types.WeatherSnapshot, error) {
		return c.History(ctx, hours)
	}
	launch(m, "history", call, func(history []types.WeatherSnapshot, err error) {
		if err != nil {
			m.targetLog.Warn("loading history failed", "hours", hours, "error", err)
			m.store.update(func(st *State) {
				st.ErrorMessage = types.Some("Failed to load weather history: " + err.Error())
			})
			return
		}
		m.store.update(func(st *State) { st.History = history })
	})
}

func (m *Manager) fetchStatus() {
	if !m.hasClient("fetch status") {
		return
	}
	launch(m, "status", StationClient.Status, func(status types.DeviceStatus, err error) {
		if err != nil {
			m.targetLog.Warn("fetching status failed", "error", err)
			m.store.update(func(st *State) {
				st.ErrorMessage = types.Some("Failed to get device status: " + err.Error())
			})
			return
		}
		m.store.update(func(st *State) { st.Status = types.Some(status) })
	})
}

func (m *Manager) hasClient(op string) bool {
	if m.client == nil {
		m.logger.Debug("no device target, ignoring", "op", op)
		return false
	}
	return true
}

// launch runs call against the current client off the loop and posts apply
// back onto it. Outcomes for a replaced target are dropped.
func launch[T any](m *Manager, op string, call func(StationClient, context.Context) (T, error), apply func(T, error)) {
	client, gen, ctx, log := m.client, m.gen, m.ctx, m.targetLog
	go func() {
		v, err := call(client, ctx)
		m.post(func() {
			if gen != m.gen {
				log.Debug("dropping result for previous target", "op", op, "generation", gen)
				return
			}
			apply(v, err)
		})
	}()
}

func updateDevice(st *State, fn func(d *types.DeviceTarget)) {
	d, ok := st.Device.Get()
	if !ok {
		return
	}
	fn(&d)
	st.Device = types.Some(d)
}
