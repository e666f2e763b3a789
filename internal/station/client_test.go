package station

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudpico-viewer/internal/station/stationtest"
	"cloudpico-viewer/internal/types"
)

func newTestClient(t *testing.T, srv *stationtest.Server) *Client {
	t.Helper()
	c, err := NewClient(srv.Address(), time.Second, nil)
	require.NoError(t, err)
	return c
}

func TestClient_Endpoints(t *testing.T) {
	srv := stationtest.New(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	assert.Equal(t, srv.Address(), c.Address())

	pong, err := c.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pong", pong)

	w, err := c.CurrentWeather(ctx)
	require.NoError(t, err)
	assert.Equal(t, 21.5, w.Temperature)
	assert.Equal(t, "Garden", w.Location)

	at, err := c.WeatherForLocation(ctx, "Front Yard")
	require.NoError(t, err)
	assert.Equal(t, "Front Yard", at.Location)

	locs, err := c.Locations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Garden", "Garage"}, locs)

	msg, err := c.SetLocation(ctx, "Garage")
	require.NoError(t, err)
	assert.Equal(t, "location set to Garage", msg)
	assert.Equal(t, "Garage", srv.SelectedLocation())

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", status.FirmwareVersion)
	assert.Equal(t, time.Hour, status.UptimeDuration())
	battery, ok := status.BatteryLevel.Get()
	assert.True(t, ok)
	assert.Equal(t, 88.0, battery)
}

func TestClient_HistoryHours(t *testing.T) {
	srv := stationtest.New(t)
	srv.SetHistory([]types.WeatherSnapshot{
		{Temperature: 10, ObservedAt: 1},
		{Temperature: 12, ObservedAt: 2},
	})
	c := newTestClient(t, srv)

	got, err := c.History(context.Background(), 6)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ObservedAt)
	assert.Equal(t, 6, srv.LastHistoryHours())

	_, err = c.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryHours, srv.LastHistoryHours())
}

func TestClient_SetLocationWithoutData(t *testing.T) {
	srv := stationtest.New(t)
	srv.Override(stationtest.RouteLocation, func(w http.ResponseWriter, r *http.Request) {
		stationtest.WriteEnvelope(w, http.StatusOK, true, nil, "")
	})
	c := newTestClient(t, srv)

	msg, err := c.SetLocation(context.Background(), "Garden")
	require.NoError(t, err)
	assert.Equal(t, locationSetMessage, msg)
}

func TestClient_PingWithoutData(t *testing.T) {
	srv := stationtest.New(t)
	srv.Override(stationtest.RoutePing, func(w http.ResponseWriter, r *http.Request) {
		stationtest.WriteEnvelope(w, http.StatusOK, true, nil, "pong")
	})
	c := newTestClient(t, srv)

	_, err := c.Ping(context.Background())
	require.NoError(t, err)

	srv.Fail(stationtest.RoutePing, http.StatusOK, "booting")
	_, err = c.Ping(context.Background())
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "booting", se.Message)
}

func TestClient_SetLocationRejected(t *testing.T) {
	srv := stationtest.New(t)
	srv.Fail(stationtest.RouteLocation, http.StatusOK, "unknown location")
	c := newTestClient(t, srv)

	_, err := c.SetLocation(context.Background(), "Nowhere")
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "unknown location", se.Message)
}

func TestClient_Unreachable(t *testing.T) {
	srv := stationtest.New(t)
	addr := srv.Address()
	srv.Close()

	c, err := NewClient(addr, 500*time.Millisecond, nil)
	require.NoError(t, err)

	_, err = c.Ping(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := stationtest.New(t)
	c := newTestClient(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CurrentWeather(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
