package controller

import (
	"net/http"

	"cloudpico-viewer/internal/modules/archive/repository"
)

type ArchiveController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type archiveControllerImpl struct {
	repository repository.ArchiveRepository
}

func NewArchiveController(repo repository.ArchiveRepository) ArchiveController {
	return &archiveControllerImpl{repository: repo}
}

func (c *archiveControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/archive", c.handleSnapshots)
	mux.HandleFunc("GET /api/v1/archive/devices", c.handleDevices)
}
