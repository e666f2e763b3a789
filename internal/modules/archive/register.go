package archive

import (
	"database/sql"
	"net/http"

	"cloudpico-viewer/internal/modules/archive/controller"
	"cloudpico-viewer/internal/modules/archive/repository"
)

// RegisterFeature mounts the archive query API and returns the repository so
// the recorder can write to the same store.
func RegisterFeature(mux *http.ServeMux, db *sql.DB) repository.ArchiveRepository {
	archiveRepository := repository.NewRepository(db)
	archiveController := controller.NewArchiveController(archiveRepository)
	archiveController.RegisterRoutes(mux)
	return archiveRepository
}
