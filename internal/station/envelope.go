package station

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxBodyBytes = 1 << 20

// rawEnvelope keeps the payload undecoded so that absence can be detected
// before the payload type is applied.
type rawEnvelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Timestamp int64           `json:"timestamp"`
}

// Decode classifies a station response. The checks run in a fixed order:
// transport failure, non-2xx status, success=false, missing payload. The
// response body is always closed.
func Decode[T any](resp *http.Response, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		var env rawEnvelope
		if readErr == nil && json.Unmarshal(body, &env) == nil && env.Message != "" {
			msg = env.Message
		}
		return zero, &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}
	if readErr != nil {
		return zero, &TransportError{Err: fmt.Errorf("read body: %w", readErr)}
	}

	var env rawEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return zero, &TransportError{Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if !env.Success {
		return zero, &ServerError{Message: env.Message}
	}
	if len(env.Data) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return zero, ErrEmptyPayload
	}

	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return zero, &TransportError{Err: fmt.Errorf("decode payload: %w", err)}
	}
	return out, nil
}
