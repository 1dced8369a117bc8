package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codesync/internal/api"
	"codesync/internal/config"
	"codesync/internal/exec"
	"codesync/internal/metrics"
	"codesync/internal/persist"
	"codesync/internal/routers"
	"codesync/internal/session"
	"codesync/internal/utils"
)

var (
	listenAndServe = http.ListenAndServe
	exitFunc       = defaultExit
	exit           = os.Exit
)

func defaultExit(err error) {
	log.Printf("codesync-svc: %v", err)
	exit(1)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) }

func run(_ context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	utils.SetJWTSecret(cfg.JWTSecret)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	store := persist.NewRedisStore(rdb)
	hub := session.NewHub(cfg.EmptyRoomGrace, cfg.ChatLogCap, store, logger)
	defer hub.Shutdown()

	runner := exec.NewRunner(cfg.ExecURL, cfg.ExecAPIKey)
	handlers := api.NewHandlers(logger, hub, runner, store)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
		metrics.Middleware("codesync"),
	)

	r.Get("/healthz", healthHandler)
	r.Mount("/", routers.New(handlers))

	addr := ":" + cfg.Port
	logger.Info("codesync-svc listening", zap.String("addr", addr))
	return listenAndServe(addr, r)
}

func main() {
	if err := run(context.Background()); err != nil {
		exitFunc(err)
	}
}
