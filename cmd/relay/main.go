// cmd/relay/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"

	"aquacare-relay/internal/alerting"
	"aquacare-relay/internal/anomaly"
	"aquacare-relay/internal/api"
	"aquacare-relay/internal/auth"
	"aquacare-relay/internal/config"
	"aquacare-relay/internal/logger"
	"aquacare-relay/internal/storage"
	"aquacare-relay/internal/websocket"
)

// store is what the relay needs from its durable backend.
type store interface {
	storage.ThresholdAdmin
	storage.SensorStore
}

func main() {
	configPath := flag.String("config", ".", "Path to the configuration file directory")
	hashPassword := flag.String("hash-password", "", "Print the bcrypt hash of a password for auth.users and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)
	log := logger.WithComponent("main")

	ctx := context.Background()

	// --- Initialize Components ---
	var app *firebase.App
	if cfg.Store.Backend == config.StoreFirebase || usesBackend(cfg, "fcm") {
		app, err = storage.OpenFirebase(ctx, cfg.Store.DatabaseURL, cfg.Store.CredentialsJSON)
		if err != nil {
			log.Fatal().Err(err).Msg("firebase initialization failed")
		}
		log.Info().Msg("firebase connected")
	}

	st, err := openStore(ctx, cfg, app)
	if err != nil {
		log.Fatal().Err(err).Msg("store initialization failed")
	}

	backends, closers, err := openDispatchers(ctx, cfg, app)
	if err != nil {
		log.Fatal().Err(err).Msg("dispatcher initialization failed")
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Msg("dispatcher close failed")
			}
		}
	}()

	hub := websocket.NewHub()
	detector := anomaly.NewDetector(st, anomaly.PolicyFunc(cfg.Thresholds.DisabledPolicy))
	alerter := alerting.NewAlerter(cfg.Dispatcher.Topic, cfg.Session.DispatchTimeout, backends...)
	pipeline := websocket.NewPipeline(st, detector, alerter, cfg.Session)

	apiHandler := api.NewAPIHandler(api.HandlerConfig{
		Hub:            hub,
		Pipeline:       pipeline,
		Thresholds:     st,
		Sensors:        st,
		Auth:           auth.NewAuthManager(cfg.Auth),
		PingInterval:   cfg.Session.PingInterval,
		MaxMessageSize: cfg.Session.MaxMessageSize,
	})

	// --- Start WebSocket Hub ---
	go hub.Run()

	// --- Setup Servers ---
	relayServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.RelayPort),
		Handler: api.SetupRelayRouter(apiHandler),
	}
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      api.SetupHTTPRouter(apiHandler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.RelayPort).Msg("websocket relay listening")
		if err := relayServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("relay server failed")
		}
	}()
	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := relayServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("relay server shutdown error")
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("sessions did not close in time")
	}
	alerter.Wait()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("servers gracefully stopped")
}

func usesBackend(cfg *config.Config, name string) bool {
	for _, b := range cfg.Dispatcher.Backends {
		if b == name {
			return true
		}
	}
	return false
}

func openStore(ctx context.Context, cfg *config.Config, app *firebase.App) (store, error) {
	if cfg.Store.Backend == config.StoreFirebase {
		fs, err := storage.NewFirebaseStore(ctx, app, cfg.Store.ThresholdsPath, cfg.Store.SensorsPath)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}

	mem := storage.NewMemoryStore()
	seed, err := cfg.Thresholds.SeedBounds()
	if err != nil {
		return nil, err
	}
	for m, b := range seed {
		if err := mem.SetBounds(ctx, m, b); err != nil {
			return nil, err
		}
	}
	return mem, nil
}

func openDispatchers(ctx context.Context, cfg *config.Config, app *firebase.App) ([]alerting.Backend, []io.Closer, error) {
	var (
		backends []alerting.Backend
		closers  []io.Closer
	)
	for _, name := range cfg.Dispatcher.Backends {
		var d alerting.Dispatcher
		switch name {
		case "log":
			d = alerting.NewLogDispatcher()
		case "fcm":
			fcm, err := alerting.NewFCMDispatcher(ctx, app)
			if err != nil {
				return nil, closers, err
			}
			d = fcm
		case "kafka":
			k, err := alerting.NewKafkaDispatcher(cfg.Kafka)
			if err != nil {
				return nil, closers, err
			}
			closers = append(closers, k)
			d = k
		case "mqtt":
			m, err := alerting.NewMQTTDispatcher(cfg.MQTT)
			if err != nil {
				return nil, closers, err
			}
			closers = append(closers, m)
			d = m
		case "amqp":
			a, err := alerting.NewAMQPDispatcher(cfg.AMQP)
			if err != nil {
				return nil, closers, err
			}
			closers = append(closers, a)
			d = a
		default:
			return nil, closers, fmt.Errorf("unknown dispatcher backend %q", name)
		}
		backends = append(backends, alerting.Backend{Name: name, Dispatcher: d})
	}
	return backends, closers, nil
}
