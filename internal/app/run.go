package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cloudpico-viewer/internal/config"
	"cloudpico-viewer/internal/db"
	"cloudpico-viewer/internal/httpapi"
	"cloudpico-viewer/internal/migrate"
	"cloudpico-viewer/internal/modules/archive"
	stationapi "cloudpico-viewer/internal/modules/station"
	"cloudpico-viewer/internal/mqtt"
	"cloudpico-viewer/internal/recorder"
	"cloudpico-viewer/internal/session"
)

const (
	mqttConnectTimeout = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
)

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"allowedOrigins", cfg.AllowedOrigins,
		"deviceAddress", cfg.DeviceAddress,
		"deviceName", cfg.DeviceName,
		"pollInterval", cfg.PollInterval,
		"deviceTimeout", cfg.DeviceTimeout,
		"dbDriver", cfg.Driver,
		"sqlitePath", cfg.Path,
		"dbMaxOpenConns", cfg.MaxOpenConns,
		"dbMaxIdleConns", cfg.MaxIdleConns,
		"dbConnMaxLifetime", cfg.ConnMaxLifetime,
		"sqlLog", cfg.SQLLog,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttStationID", cfg.MQTTStationID,
	)

	dbConn, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, dbConn, logger); err != nil {
		return err
	}

	var ok int
	if err := dbConn.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		return err
	}
	if ok != 1 {
		return errors.New("database connection failed")
	}
	logger.Info("database connection successful")

	mux := httpapi.NewMux(dbConn)
	archiveRepository := archive.RegisterFeature(mux, dbConn)

	recOpts := recorder.Options{
		Archive:   archiveRepository,
		StationID: cfg.MQTTStationID,
		Logger:    logger,
	}
	var publisher *mqtt.Publisher
	if cfg.MQTTBroker != "" {
		publisher = mqtt.NewPublisher(mqtt.Options{
			Broker:   cfg.MQTTBroker,
			Port:     cfg.MQTTPort,
			ClientID: cfg.MQTTClientID,
			Logger:   logger,
		})
		defer publisher.Disconnect()

		// Keep start-up fast when the broker is down; paho retries in the background.
		connectCtx, connectCancel := context.WithTimeout(ctx, mqttConnectTimeout)
		err = publisher.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing, will retry)", "error", err)
		}
		recOpts.Publisher = publisher
	} else {
		logger.Info("mqtt forwarding disabled")
	}

	manager := session.NewManager(session.Options{
		NewClient:    session.HTTPClientFactory(cfg.DeviceTimeout, logger),
		PollInterval: cfg.PollInterval,
		DeviceName:   cfg.DeviceName,
		Logger:       logger,
	})
	rec := recorder.New(recOpts)
	unsubscribe := manager.Subscribe(rec.Observe)
	defer unsubscribe()

	runCtx, cancelRun := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = manager.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		_ = rec.Run(runCtx)
	}()
	defer func() {
		cancelRun()
		wg.Wait()
	}()

	stationController := stationapi.RegisterFeature(mux, manager, cfg.AllowedOrigins, logger)

	if cfg.DeviceAddress != "" {
		if err := manager.SetTarget(cfg.DeviceAddress); err != nil {
			logger.Warn("default device address rejected", "address", cfg.DeviceAddress, "error", err)
		}
	}

	srv := httpapi.NewServer(cfg, mux, logger)
	srv.RegisterOnShutdown(stationController.Shutdown)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
