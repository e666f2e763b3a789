package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"cloudpico-viewer/internal/config"
)

func NewServer(cfg config.Config, mux *http.ServeMux, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           Wrap(mux, cfg.AllowedOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
