package controller

import (
	"log/slog"
	"net/http"

	"cloudpico-viewer/internal/utils"
)

func (c *archiveControllerImpl) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	q, err := parseArchiveQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := c.repository.ListSnapshots(r.Context(), q)
	if err != nil {
		slog.Error("archive: list snapshots failed", "address", q.DeviceAddress, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load archived snapshots")
		return
	}
	utils.WriteJSON(w, http.StatusOK, records)
}

func (c *archiveControllerImpl) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := c.repository.ListDevices(r.Context())
	if err != nil {
		slog.Error("archive: list devices failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load archived devices")
		return
	}
	utils.WriteJSON(w, http.StatusOK, devices)
}
