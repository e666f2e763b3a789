package session

import (
	"context"
	"time"

	"cloudpico-viewer/internal/types"
)

// startPolling replaces any running poll loop with one bound to the current
// target. Each tick probes the station and refreshes the current reading.
func (m *Manager) startPolling() {
	m.stopPolling()

	ctx, cancel := context.WithCancel(m.ctx)
	m.stopPoll = cancel
	gen := m.gen
	interval := m.pollInterval
	m.targetLog.Info("polling started", "interval", interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case m.tasks <- func() { m.pollTick(gen) }:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

func (m *Manager) stopPolling() {
	if m.stopPoll == nil {
		return
	}
	m.stopPoll()
	m.stopPoll = nil
	m.targetLog.Info("polling stopped")
}

func (m *Manager) pollTick(gen uint64) {
	if gen != m.gen {
		return
	}
	dev, ok := m.store.Snapshot().Device.Get()
	if !ok || !dev.Connected {
		m.stopPolling()
		return
	}
	launch(m, "poll ping", StationClient.Ping, func(_ string, err error) {
		if err != nil {
			m.targetLog.Warn("device unreachable", "error", err)
			m.stopPolling()
			m.store.update(func(st *State) {
				updateDevice(st, func(d *types.DeviceTarget) { d.Connected = false })
				st.ErrorMessage = types.Some("Connection lost: " + err.Error())
			})
			return
		}
		now := m.now()
		m.store.update(func(st *State) {
			updateDevice(st, func(d *types.DeviceTarget) { d.LastSeenAt = now })
		})
		m.refreshCurrent()
	})
}
