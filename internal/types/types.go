package types

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

const (
	DefaultCondition     = "Unknown"
	DefaultWindDirection = "N"
)

// WeatherSnapshot is one reading as reported by the station.
type WeatherSnapshot struct {
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	Pressure      float64 `json:"pressure"`
	Location      string  `json:"location"`
	ObservedAt    int64   `json:"timestamp"` // epoch millis
	Condition     string  `json:"weather_condition"`
	WindSpeed     float64 `json:"wind_speed"`
	WindDirection string  `json:"wind_direction"`
	UVIndex       float64 `json:"uv_index"`
	Visibility    float64 `json:"visibility"`
}

// UnmarshalJSON fills the station's defaults for fields the firmware omits.
// A reading without a station timestamp is stamped with its receive time.
func (w *WeatherSnapshot) UnmarshalJSON(data []byte) error {
	type plain WeatherSnapshot
	out := plain{
		Condition:     DefaultCondition,
		WindDirection: DefaultWindDirection,
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	if out.ObservedAt <= 0 {
		out.ObservedAt = receivedAt()
	}
	*w = WeatherSnapshot(out)
	return nil
}

var lastReceived atomic.Int64

// receivedAt returns the current epoch millis, strictly increasing across
// calls so that two unstamped readings never share an observation time.
func receivedAt() int64 {
	for {
		now := time.Now().UnixMilli()
		last := lastReceived.Load()
		if now <= last {
			now = last + 1
		}
		if lastReceived.CompareAndSwap(last, now) {
			return now
		}
	}
}

func (w WeatherSnapshot) ObservedTime() time.Time {
	return time.UnixMilli(w.ObservedAt).UTC()
}

// DeviceTarget is the station currently designated for polling.
type DeviceTarget struct {
	Address    string    `json:"address"`
	Name       string    `json:"name"`
	Connected  bool      `json:"connected"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// DeviceStatus is the payload of GET /status.
type DeviceStatus struct {
	Uptime             int64             `json:"uptime"` // millis
	FreeMemory         int64             `json:"freeMemory"`
	WiFiSignalStrength int               `json:"wifiSignalStrength"`
	FirmwareVersion    string            `json:"firmwareVersion"`
	BatteryLevel       Optional[float64] `json:"batteryLevel"`
}

func (s DeviceStatus) UptimeDuration() time.Duration {
	return time.Duration(s.Uptime) * time.Millisecond
}

// Envelope is the wrapper every station response uses.
type Envelope[T any] struct {
	Success   bool   `json:"success"`
	Data      *T     `json:"data"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// LocationRequest is the body of POST /location.
type LocationRequest struct {
	Location string `json:"location"`
}
