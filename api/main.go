package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threat-detector/api/internal/handlers"
	"threat-detector/api/internal/storage"
	"threat-detector/internal/metrics"
	"threat-detector/internal/pipeline"
	"threat-detector/internal/utils"

	"github.com/gorilla/mux"
)

func main() {
	var (
		configFile = flag.String("config", utils.DefaultConfigPath, "Configuration file path (YAML)")
		port       = flag.String("port", "", "API server port (overrides application.api_port)")
	)
	flag.Parse()

	config, found, err := utils.LoadConfigOrDefault(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		config.Application.APIPort = *port
	}

	logger, logCloser, err := utils.NewLoggerFromConfig(config.Logging)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	if found {
		logger.Infof("Loaded configuration from %s", *configFile)
	} else {
		logger.Warnf("Config file %s not found, using default configuration", *configFile)
	}

	registry := metrics.NewRegistry()
	m := metrics.NewMetrics(registry)

	// Create in-memory storage
	store := storage.NewStorage(storage.Config{
		MaxAlerts:     config.Storage.MaxAlerts,
		MaxActionLogs: config.Storage.MaxActionLogs,
	}, logger)
	store.SetMetrics(m)

	components, err := pipeline.Build(config, store, m, logger)
	if err != nil {
		logger.Fatalf("Failed to build detection pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go components.Engine.StartSweeper(ctx, config.SweepInterval())

	h := handlers.NewHandlers(store, components.Processor, components.Detector, logger)

	// Setup router
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	router.Handle("/metrics", metrics.Handler(registry)).Methods("GET")

	srv := &http.Server{
		Addr:              ":" + config.Application.APIPort,
		Handler:           corsMiddleware(router),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
	}

	info := components.Detector.ModelInfo()
	logger.Infof("API server starting on port %s (model: %s)", config.Application.APIPort, info.Mode)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Server failed: %v", err)
		os.Exit(1)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigins := []string{
			"http://localhost:5000",
			"http://localhost:3000",
			"http://127.0.0.1:5000",
			"http://127.0.0.1:3000",
		}

		allowOrigin := "*"
		if origin != "" {
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					allowOrigin = origin
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if allowOrigin != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
