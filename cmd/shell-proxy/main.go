package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/eduportal/offline-worker/pkg/config"
	"github.com/eduportal/offline-worker/pkg/logging"
	"github.com/eduportal/offline-worker/pkg/policy"
	"github.com/eduportal/offline-worker/pkg/store"
	"github.com/eduportal/offline-worker/pkg/worker"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") != "",
		Output: os.Stderr,
	})

	cfg, err := loadConfig(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}

	registry, err := openRegistry(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open store registry")
	}
	defer registry.Close()

	wrk, err := worker.New(cfg, registry, nil, logging.NewLogger("worker"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create worker")
	}

	// Install and activate at startup; a precache failure is non-fatal.
	ctx := context.Background()
	if err := wrk.OnInstall(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Install failed")
	}
	if err := wrk.OnActivate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Activation failed")
	}

	sweeper := startMaintenance(cfg, registry, logger)
	if sweeper != nil {
		defer sweeper.Stop()
	}

	r := chi.NewRouter()
	r.Get("/healthz", healthHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/control", controlHandler(wrk))
	r.NotFound(fetchHandler(wrk, logger))

	logger.Info().
		Str("listen", cfg.Listen).
		Str("origin", cfg.Origin).
		Str("backend", cfg.Backend).
		Msg("Starting offline worker gateway")

	if err := http.ListenAndServe(cfg.Listen, r); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// loadConfig reads the YAML config (when CONFIG is set) and applies
// environment overrides on top.
func loadConfig(logger zerolog.Logger) (config.Config, error) {
	cfg := config.DefaultConfig()
	if path := os.Getenv("CONFIG"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		logger.Info().Str("path", path).Msg("Loaded config file")
	}

	cfg.Listen = getEnv("LISTEN", cfg.Listen)
	cfg.Origin = getEnv("ORIGIN", cfg.Origin)
	cfg.Backend = getEnv("BACKEND", cfg.Backend)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.LevelDBPath = getEnv("LEVELDB_PATH", cfg.LevelDBPath)

	return cfg, cfg.Validate()
}

// openRegistry builds the store backend selected by the config.
func openRegistry(cfg config.Config, logger zerolog.Logger) (store.Registry, error) {
	switch cfg.Backend {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, err
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
		return store.NewRedisRegistry(redisClient), nil
	case "leveldb":
		logger.Info().Str("path", cfg.LevelDBPath).Msg("Opening LevelDB store")
		return store.OpenLevelDBRegistry(cfg.LevelDBPath)
	default:
		return store.NewMemoryRegistry(), nil
	}
}

// startMaintenance schedules the periodic trim sweep over the governed
// stores. The sweep is the same count-based trim the strategies run after
// writes; it catches entries left over by concurrent-write races.
func startMaintenance(cfg config.Config, registry store.Registry, logger zerolog.Logger) *cron.Cron {
	if cfg.MaintenanceSchedule == "" {
		return nil
	}

	engine := policy.NewEngine(logging.NewLogger("maintenance"))
	governed := map[string]policy.Policy{
		cfg.Stores.API:    cfg.Policies.API,
		cfg.Stores.Static: cfg.Policies.Static,
	}

	c := cron.New()
	_, err := c.AddFunc(cfg.MaintenanceSchedule, func() {
		ctx := context.Background()
		for name, p := range governed {
			s, err := registry.Open(ctx, name)
			if err != nil {
				logger.Warn().Err(err).Str("store", name).Msg("Maintenance open failed")
				continue
			}
			if _, err := engine.Trim(ctx, s, p); err != nil {
				logger.Warn().Err(err).Str("store", name).Msg("Maintenance trim failed")
			}
		}
	})
	if err != nil {
		logger.Warn().Err(err).Str("schedule", cfg.MaintenanceSchedule).Msg("Invalid maintenance schedule, sweep disabled")
		return nil
	}

	c.Start()
	logger.Info().Str("schedule", cfg.MaintenanceSchedule).Msg("Maintenance sweep scheduled")
	return c
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// controlHandler exposes the worker's control channel over HTTP. The JSON
// response body plays the role of the reply port; message types without a
// reply answer 204.
func controlHandler(wrk *worker.Worker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg worker.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "invalid control message", http.StatusBadRequest)
			return
		}

		reply := wrk.HandleControlMessage(r.Context(), msg)
		if reply == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reply)
	}
}

// fetchHandler routes every remaining request through the worker and copies
// the resolved response out.
func fetchHandler(wrk *worker.Worker, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := wrk.HandleFetch(r.Context(), r)
		if err != nil {
			// Only skipped (non-intercepted) requests can fail raw.
			http.Error(w, "upstream request failed", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for key, values := range resp.Header {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.Debug().Err(err).Msg("Failed to write response body")
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
