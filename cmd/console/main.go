package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fleetconsole/pkg/api"
	"fleetconsole/pkg/availability"
	"fleetconsole/pkg/backend"
	"fleetconsole/pkg/config"
	"fleetconsole/pkg/database"
	"fleetconsole/pkg/dispatch"
	"fleetconsole/pkg/i18n"
	"fleetconsole/pkg/models"
	"fleetconsole/pkg/plugin"
	"fleetconsole/pkg/snapshot"
	"fleetconsole/pkg/telemetry"
	"fleetconsole/pkg/view"

	"github.com/gin-gonic/gin"
)

func main() {
	// ══════════════════════════════════════════════════════════════
	// CONFIGURATION
	// ══════════════════════════════════════════════════════════════
	conf, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load conf", "error", err)
		os.Exit(1)
	}

	// ══════════════════════════════════════════════════════════════
	// STRUCTURED LOGGING
	// ══════════════════════════════════════════════════════════════
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(conf.LogLevel)}))
	slog.SetDefault(logger)
	slog.Info("Config loaded", "backend_url", conf.BackendURL, "availability_interval", conf.AvailabilityInterval(), "history", conf.HistoryEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ══════════════════════════════════════════════════════════════
	// COLLABORATORS
	// ══════════════════════════════════════════════════════════════
	client := backend.NewClient(conf.BackendURL, conf.BackendTimeout())

	directory := plugin.NewDirectory(conf.PluginsDir)
	if _, err := directory.Load(); err != nil {
		slog.Error("Failed to load plugin manifests", "error", err)
		os.Exit(1)
	}
	plugins := plugin.NewSource(directory, client)

	translations, err := i18n.Load(conf.TranslationsFile, conf.Language)
	if err != nil {
		slog.Error("Failed to load translations", "error", err)
		os.Exit(1)
	}

	// ══════════════════════════════════════════════════════════════
	// HISTORY
	// ══════════════════════════════════════════════════════════════
	var recorder dispatch.Recorder = database.NopRecorder{}
	var historyReader api.HistoryReader
	var onAvailability func(models.AvailabilityState)

	if conf.HistoryEnabled {
		db, err := database.Connect(conf)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		cipher, err := database.NewCipher(conf.EncryptionKey)
		if err != nil {
			slog.Error("Failed to initialise encryption", "error", err)
			os.Exit(1)
		}

		history := database.NewHistory(
			database.NewGormRepository[models.ExecutionRecord](db, "executed_at"),
			database.NewGormRepository[models.AvailabilitySample](db, "checked_at"),
			cipher,
		)
		recorder = history
		historyReader = history
		onAvailability = func(state models.AvailabilityState) {
			if err := history.RecordAvailability(context.Background(), state); err != nil {
				slog.Warn("Failed to record availability", "component", "History", "device_id", state.DeviceID, "error", err)
			}
		}
		if retention := conf.HistoryRetention(); retention > 0 {
			go pruneHistory(ctx, history, retention)
		}
	}

	// ══════════════════════════════════════════════════════════════
	// SERVICES
	// ══════════════════════════════════════════════════════════════
	cache := snapshot.NewCache(client, conf.SnapshotTTL(), conf.RefreshWorkerConcurrency, conf.InternalQueueSize)
	cache.Start(ctx)

	classifier := telemetry.NewClassifier(translations)
	classifier.HeadlineLimit = conf.HeadlineMetricLimit

	composer := view.NewComposer(client, plugins, cache, classifier, translations)
	dispatcher := dispatch.NewDispatcher(client, client, cache, recorder, conf.PendingConfirmationTTL())
	sessions := availability.NewSessions(ctx, client, conf.AvailabilityInterval(), conf.SessionIdleTimeout(), availability.Options{OnChange: onAvailability})
	defer sessions.CloseAll()
	go sessions.Run(ctx)

	// ══════════════════════════════════════════════════════════════
	// ROUTER SETUP
	// ══════════════════════════════════════════════════════════════
	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.NewHandler(client, plugins, composer, dispatcher, sessions, historyReader))

	// ══════════════════════════════════════════════════════════════
	// START SERVER
	// ══════════════════════════════════════════════════════════════
	server := &http.Server{
		Addr:              conf.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if conf.TLSEnabled() {
			slog.Info("Starting HTTPS console", "address", conf.ServerAddress)
			err = server.ListenAndServeTLS(conf.TLSCertFile, conf.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP console", "address", conf.ServerAddress)
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func pruneHistory(ctx context.Context, history *database.History, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		if err := history.Prune(ctx, retention); err != nil {
			slog.Error("Failed to prune history", "component", "History", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
