// cmd/gateway/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tankguard-gateway/internal/alerting"
	"tankguard-gateway/internal/api"
	"tankguard-gateway/internal/auth"
	"tankguard-gateway/internal/commands"
	"tankguard-gateway/internal/config"
	"tankguard-gateway/internal/presence"
	"tankguard-gateway/internal/storage"
	"tankguard-gateway/internal/websocket"
)

func main() {
	configPath := flag.String("config", ".", "Path to the configuration file directory")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		logrus.WithError(err).Fatal("config load failed")
	}
	cfg := &config.AppConfig

	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(level)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// --- Initialize Components ---
	store, err := storage.Open(cfg.Storage.Path, time.Duration(cfg.Storage.WriteTimeoutMS)*time.Millisecond)
	if err != nil {
		logrus.WithError(err).Fatal("open store")
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.InitSchema(ctx); err != nil {
		logrus.WithError(err).Fatal("init schema")
	}

	recent := storage.NewRecentReadings()
	hub := websocket.NewHub()
	verifier := auth.NewVerifier(store, time.Duration(cfg.Auth.DriftWindowSeconds)*time.Second)
	observers := auth.NewObserverAuth(cfg)
	queue := commands.NewQueue(
		time.Duration(cfg.Command.RetryTimeoutSeconds)*time.Second,
		time.Duration(cfg.Command.ExpireAfterMinutes)*time.Minute,
		cfg.Command.MaxPending,
	)
	alerter := alerting.NewAlerter(store, hub)
	monitor := presence.NewMonitor(store, hub,
		time.Duration(cfg.Presence.IntervalSeconds)*time.Second,
		time.Duration(cfg.Presence.OfflineAfterSeconds)*time.Second,
	)

	handler := api.NewAPIHandler(cfg, store, recent, verifier, observers, hub, queue, alerter, monitor)

	// --- Background Tasks ---
	go hub.Run()
	go monitor.Run(ctx)

	// --- HTTP Servers ---
	deviceServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.DevicePort),
		Handler: api.SetupDeviceRouter(handler),
	}
	observerServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.ObserverPort),
		Handler: api.SetupObserverRouter(handler, observers),
	}

	go func() {
		logrus.WithField("port", cfg.Server.DevicePort).Info("device server starting")
		if err := deviceServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("device server")
		}
	}()
	go func() {
		logrus.WithField("port", cfg.Server.ObserverPort).Info("observer server starting")
		if err := observerServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("observer server")
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := deviceServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("device server shutdown")
	}
	if err := observerServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("observer server shutdown")
	}
	logrus.Info("servers stopped")
}
