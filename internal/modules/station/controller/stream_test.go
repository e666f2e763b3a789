package controller

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudpico-viewer/internal/session"
	"cloudpico-viewer/internal/types"
)

func dialStream(t *testing.T, ctrl StationController) *websocket.Conn {
	t.Helper()
	mux := newMuxFor(ctrl)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newMuxFor(ctrl StationController) *http.ServeMux {
	mux := http.NewServeMux()
	ctrl.RegisterRoutes(mux)
	return mux
}

func readState(t *testing.T, conn *websocket.Conn) session.State {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var st session.State
	require.NoError(t, conn.ReadJSON(&st))
	return st
}

func TestStream_SendsCurrentStateThenChanges(t *testing.T) {
	sess := &fakeSession{state: session.State{Locations: []string{"Garden"}}}
	conn := dialStream(t, NewStationController(sess, []string{"*"}, nil))

	first := readState(t, conn)
	assert.Equal(t, []string{"Garden"}, first.Locations)

	sess.publish(session.State{
		Locations:      []string{"Garden"},
		CurrentWeather: types.Some(types.WeatherSnapshot{Temperature: 21.5}),
	})

	next := readState(t, conn)
	w, ok := next.CurrentWeather.Get()
	require.True(t, ok)
	assert.Equal(t, 21.5, w.Temperature)
}

func TestStream_ShutdownClosesStream(t *testing.T) {
	ctrl := NewStationController(&fakeSession{}, []string{"*"}, nil)
	conn := dialStream(t, ctrl)
	readState(t, conn)

	ctrl.Shutdown()
	ctrl.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "err = %v", err)
}

func TestStream_RejectsUnlistedOrigin(t *testing.T) {
	ctrl := NewStationController(&fakeSession{}, []string{"http://kiosk.local"}, nil)
	srv := httptest.NewServer(newMuxFor(ctrl))
	t.Cleanup(srv.Close)

	header := http.Header{"Origin": {"http://evil.local"}}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
