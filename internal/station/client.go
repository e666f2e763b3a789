package station

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cloudpico-viewer/internal/types"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultHistoryHours = 24

	locationSetMessage = "Location set successfully"
)

// Client talks to one station. A client is bound to a single base URL for
// its whole life; switching stations means building a new Client.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *slog.Logger
}

// NewClient returns a client for the station at address (see ValidateAddress).
// If timeout is zero DefaultTimeout is used; if logger is nil slog.Default() is used.
func NewClient(address string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(BaseURL(address))
	if err != nil {
		return nil, fmt.Errorf("parse base url for %q: %w", address, err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("station", u.Host),
	}, nil
}

func (c *Client) Address() string {
	return c.baseURL.Host
}

// Ping checks that the station answers. Only the status and the success flag
// matter; a reply without data is still a successful ping.
func (c *Client) Ping(ctx context.Context) (string, error) {
	reply, err := getJSON[string](ctx, c, "ping", nil)
	if errors.Is(err, ErrEmptyPayload) {
		return "", nil
	}
	return reply, err
}

func (c *Client) CurrentWeather(ctx context.Context) (types.WeatherSnapshot, error) {
	return getJSON[types.WeatherSnapshot](ctx, c, "weather", nil)
}

func (c *Client) WeatherForLocation(ctx context.Context, location string) (types.WeatherSnapshot, error) {
	return getJSON[types.WeatherSnapshot](ctx, c, "weather/"+url.PathEscape(location), nil)
}

func (c *Client) Locations(ctx context.Context) ([]string, error) {
	return getJSON[[]string](ctx, c, "locations", nil)
}

// SetLocation asks the station to switch its active location. A success
// response without data is accepted with a generic confirmation.
func (c *Client) SetLocation(ctx context.Context, location string) (string, error) {
	body, err := json.Marshal(types.LocationRequest{Location: location})
	if err != nil {
		return "", fmt.Errorf("marshal location request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "location", nil, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	confirmation, err := Decode[string](c.do(req))
	if errors.Is(err, ErrEmptyPayload) {
		return locationSetMessage, nil
	}
	return confirmation, err
}

func (c *Client) History(ctx context.Context, hours int) ([]types.WeatherSnapshot, error) {
	if hours <= 0 {
		hours = DefaultHistoryHours
	}
	q := url.Values{}
	q.Set("hours", strconv.Itoa(hours))
	return getJSON[[]types.WeatherSnapshot](ctx, c, "history", q)
}

func (c *Client) Status(ctx context.Context) (types.DeviceStatus, error) {
	return getJSON[types.DeviceStatus](ctx, c, "status", nil)
}

func getJSON[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](c.do(req))
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body *bytes.Reader) (*http.Request, error) {
	u := c.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
	}
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("station request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"error", err,
		)
		return nil, err
	}
	c.logger.Debug("station request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}
