package controller

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"cloudpico-viewer/internal/session"
	"cloudpico-viewer/internal/station"
	"cloudpico-viewer/internal/utils"
)

type targetRequest struct {
	Address string `json:"address"`
}

type locationRequest struct {
	Location string `json:"location"`
}

func accepted(w http.ResponseWriter) {
	utils.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (c *stationControllerImpl) handleState(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.session.State())
}

func (c *stationControllerImpl) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := c.session.SetTarget(req.Address)
	var verr *station.ValidationError
	switch {
	case err == nil:
		accepted(w)
	case errors.As(err, &verr):
		utils.WriteError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, session.ErrStopped):
		utils.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		c.logger.Error("station: set target failed", "address", req.Address, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to set device target")
	}
}

func (c *stationControllerImpl) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	c.session.CheckConnectivity()
	accepted(w)
}

func (c *stationControllerImpl) handleRefreshWeather(w http.ResponseWriter, r *http.Request) {
	c.session.RefreshCurrent()
	accepted(w)
}

func (c *stationControllerImpl) handleRefreshLocations(w http.ResponseWriter, r *http.Request) {
	c.session.RefreshLocations()
	accepted(w)
}

func (c *stationControllerImpl) handleSelectLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Location)
	if name == "" {
		utils.WriteError(w, http.StatusBadRequest, "'location' is required")
		return
	}
	c.session.SelectLocation(name)
	accepted(w)
}

func (c *stationControllerImpl) handleLoadHistory(w http.ResponseWriter, r *http.Request) {
	hours, err := parseHours(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	c.session.LoadHistory(hours)
	accepted(w)
}

func (c *stationControllerImpl) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	c.session.FetchStatus()
	accepted(w)
}

func (c *stationControllerImpl) handleDismissError(w http.ResponseWriter, r *http.Request) {
	c.session.DismissError()
	w.WriteHeader(http.StatusNoContent)
}

func (c *stationControllerImpl) handleLocationWeather(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		utils.WriteError(w, http.StatusBadRequest, "location name is required")
		return
	}

	snapshot, err := c.session.WeatherFor(r.Context(), name)
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, snapshot)
	case errors.Is(err, session.ErrNoTarget):
		utils.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrStopped):
		utils.WriteError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away.
	default:
		c.logger.Warn("station: location weather failed", "location", name, "error", err)
		utils.WriteError(w, http.StatusBadGateway, err.Error())
	}
}
