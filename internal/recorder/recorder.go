// Package recorder archives and forwards what the session observes. It
// subscribes to the session store and does its I/O on its own goroutine.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cloudpico-viewer/internal/modules/archive/repository"
	"cloudpico-viewer/internal/mqtt"
	"cloudpico-viewer/internal/session"
	"cloudpico-viewer/internal/types"
)

const defaultQueueSize = 64

// Archive stores snapshots; repository.ArchiveRepository satisfies it.
type Archive interface {
	InsertSnapshot(ctx context.Context, address string, recordedAt time.Time, s types.WeatherSnapshot) (bool, error)
}

// Publisher forwards telemetry; *mqtt.Publisher satisfies it.
type Publisher interface {
	PublishTelemetry(ctx context.Context, t mqtt.Telemetry) error
	PublishStationHealth(ctx context.Context, h mqtt.StationHealth) error
}

var _ Archive = repository.ArchiveRepository(nil)

type Options struct {
	// Archive and Publisher are both optional.
	Archive   Archive
	Publisher Publisher
	// StationID overrides the MQTT station segment; default is the snapshot location.
	StationID string
	Logger    *slog.Logger
	Now       func() time.Time
	QueueSize int
}

type event struct {
	address  string
	at       time.Time
	snapshot types.Optional[types.WeatherSnapshot]
	health   types.Optional[mqtt.StationHealth]
}

type Recorder struct {
	archive   Archive
	publisher Publisher
	stationID string
	logger    *slog.Logger
	now       func() time.Time
	events    chan event

	mu            sync.Mutex
	lastAddress   string
	lastSnapshot  types.Optional[types.WeatherSnapshot]
	lastConnected types.Optional[bool]
	lastLocation  string
}

func New(opts Options) *Recorder {
	r := &Recorder{
		archive:   opts.Archive,
		publisher: opts.Publisher,
		stationID: opts.StationID,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "recorder")
	if r.now == nil {
		r.now = time.Now
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	r.events = make(chan event, size)
	return r
}

// Observe is a session.Store subscriber. It never blocks: when the queue is
// full the change is dropped and logged.
func (r *Recorder) Observe(st session.State) {
	dev, ok := st.Device.Get()
	if !ok {
		return
	}

	r.mu.Lock()
	if dev.Address != r.lastAddress {
		r.lastAddress = dev.Address
		r.lastSnapshot = types.None[types.WeatherSnapshot]()
		r.lastConnected = types.None[bool]()
	}

	var pending []event
	if w, ok := st.CurrentWeather.Get(); ok {
		if prev, seen := r.lastSnapshot.Get(); !seen || prev != w {
			r.lastSnapshot = types.Some(w)
			r.lastLocation = w.Location
			pending = append(pending, event{
				address:  dev.Address,
				at:       r.now(),
				snapshot: types.Some(w),
			})
		}
	}
	if prev, seen := r.lastConnected.Get(); !seen || prev != dev.Connected {
		// The initial disconnected state of a fresh target is not news.
		if seen || dev.Connected {
			pending = append(pending, event{
				address: dev.Address,
				at:      r.now(),
				health: types.Some(mqtt.StationHealth{
					StationID: r.stationFor(r.lastLocation, dev.Address),
					LastSeen:  dev.LastSeenAt.UTC(),
					Healthy:   dev.Connected,
				}),
			})
		}
		r.lastConnected = types.Some(dev.Connected)
	}
	r.mu.Unlock()

	for _, ev := range pending {
		select {
		case r.events <- ev:
		default:
			r.logger.Warn("recorder queue full, dropping event", "address", ev.address)
		}
	}
}

// Run processes observed changes until ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.events:
			r.handle(ctx, ev)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, ev event) {
	if w, ok := ev.snapshot.Get(); ok {
		r.record(ctx, ev.address, ev.at, w)
	}
	if h, ok := ev.health.Get(); ok && r.publisher != nil {
		if err := r.publisher.PublishStationHealth(ctx, h); err != nil {
			r.logger.Warn("publish station health failed", "station_id", h.StationID, "error", err)
		}
	}
}

func (r *Recorder) record(ctx context.Context, address string, at time.Time, w types.WeatherSnapshot) {
	if r.archive != nil {
		inserted, err := r.archive.InsertSnapshot(ctx, address, at, w)
		switch {
		case err != nil:
			r.logger.Error("archive snapshot failed", "address", address, "error", err)
		case !inserted:
			r.logger.Debug("snapshot already archived", "address", address, "observed_at", w.ObservedAt)
			return
		}
	}

	if r.publisher == nil {
		return
	}
	t := mqtt.Telemetry{
		StationID:   r.stationFor(w.Location, address),
		Timestamp:   observedOr(w, at),
		Temperature: w.Temperature,
		Humidity:    w.Humidity,
		Pressure:    w.Pressure,
	}
	if err := r.publisher.PublishTelemetry(ctx, t); err != nil {
		r.logger.Warn("publish telemetry failed", "station_id", t.StationID, "error", err)
	}
}

func (r *Recorder) stationFor(location, address string) string {
	switch {
	case r.stationID != "":
		return r.stationID
	case location != "":
		return location
	default:
		return address
	}
}

// observedOr prefers the station clock unless the station has no wall time.
func observedOr(w types.WeatherSnapshot, fallback time.Time) time.Time {
	if w.ObservedAt <= 0 {
		return fallback.UTC()
	}
	return w.ObservedTime()
}
