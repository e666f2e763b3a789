package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"cloudpico-viewer/internal/session"
)

const maxHistoryHours = 7 * 24

// parseHours reads ?hours=, defaulting to session.DefaultHistoryHours.
func parseHours(r *http.Request) (int, error) {
	s := strings.TrimSpace(r.URL.Query().Get("hours"))
	if s == "" {
		return session.DefaultHistoryHours, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'hours' (expected integer)")
	}
	if n < 1 || n > maxHistoryHours {
		return 0, errors.New("'hours' must be between 1 and 168")
	}
	return n, nil
}
