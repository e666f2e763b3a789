package station

import (
	"log/slog"
	"net/http"

	"cloudpico-viewer/internal/modules/station/controller"
)

// RegisterFeature mounts the display API for sess. The returned controller's
// Shutdown closes open state streams and belongs in http.Server.RegisterOnShutdown.
func RegisterFeature(mux *http.ServeMux, sess controller.Session, allowedOrigins []string, logger *slog.Logger) controller.StationController {
	stationController := controller.NewStationController(sess, allowedOrigins, logger)
	stationController.RegisterRoutes(mux)
	return stationController
}
