package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloudpico-viewer/internal/modules/archive/repository"
	"cloudpico-viewer/internal/station"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

func parseArchiveQuery(r *http.Request) (repository.Query, error) {
	q := r.URL.Query()
	out := repository.Query{Limit: defaultLimit}

	if s := strings.TrimSpace(q.Get("address")); s != "" {
		if err := station.ValidateAddress(s); err != nil {
			return repository.Query{}, err
		}
		out.DeviceAddress = s
	}

	var err error
	if s := q.Get("from"); s != "" {
		if out.From, err = time.Parse(time.RFC3339, s); err != nil {
			return repository.Query{}, errors.New("invalid 'from' (expected RFC3339)")
		}
	}
	if s := q.Get("to"); s != "" {
		if out.To, err = time.Parse(time.RFC3339, s); err != nil {
			return repository.Query{}, errors.New("invalid 'to' (expected RFC3339)")
		}
	}
	if !out.From.IsZero() && !out.To.IsZero() && out.From.After(out.To) {
		return repository.Query{}, errors.New("'from' must be <= 'to'")
	}

	if s := q.Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return repository.Query{}, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return repository.Query{}, errors.New("'limit' must be > 0")
		}
		if n > maxLimit {
			return repository.Query{}, errors.New("'limit' must be <= 1000")
		}
		out.Limit = n
	}
	return out, nil
}
