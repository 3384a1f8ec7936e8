// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"multimodal-agent/internal/config"
	"multimodal-agent/internal/domain/ports/adapter"
	"multimodal-agent/internal/domain/ports/repository"
	aiAdapters "multimodal-agent/internal/infra/adapters/ai"
	"multimodal-agent/internal/infra/critic"
	pg "multimodal-agent/internal/infra/db/postgres"
	"multimodal-agent/internal/infra/logging"
	"multimodal-agent/internal/infra/metrics"
	red "multimodal-agent/internal/infra/redis"
	"multimodal-agent/internal/infra/sandbox"
	"multimodal-agent/internal/infra/storage"
	"multimodal-agent/internal/infra/web"
	"multimodal-agent/internal/infra/worker"
	"multimodal-agent/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed checks)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.PoolSize)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewJobRepo(pool, tm)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	dispatchQueue := red.NewDispatchQueue(redisClient, &cfg.Redis)

	// ---- Artifact store (minio | memory) ----
	var artifacts repository.ArtifactStore
	switch strings.ToLower(cfg.Storage.Provider) {
	case "minio":
		artifacts, err = storage.NewMinioStore(ctx, &cfg.Storage, logger)
		if err != nil {
			log.Fatalf("minio: %v", err)
		}
	case "memory":
		logger.Warn().Msg("memory artifact store: blobs are lost on restart")
		artifacts = storage.NewMemoryStore()
	default:
		log.Fatalf("unknown storage provider %q", cfg.Storage.Provider)
	}

	// ---- AI adapter (openai-compatible | gemini | noop) ----
	var ai adapter.InferenceAdapter
	switch strings.ToLower(cfg.AI.Provider) {
	case "openai":
		ai, err = aiAdapters.NewOpenAICompatAdapter(&cfg.AI)
		if err != nil {
			log.Fatalf("openai adapter: %v", err)
		}
		logger.Info().Str("vision", cfg.AI.Vision.Model).Str("reasoning", cfg.AI.Reasoning.Model).
			Str("code", cfg.AI.Code.Model).Msg("AI adapter: OpenAI-compatible")
	case "gemini":
		ai, err = aiAdapters.NewGeminiAdapter(ctx, &cfg.AI)
		if err != nil {
			log.Fatalf("gemini adapter: %v", err)
		}
		logger.Info().Msg("AI adapter: Gemini")
	case "noop":
		ai = aiAdapters.NewNoopAdapter()
		logger.Warn().Msg("AI adapter: noop (canned responses)")
	default:
		log.Fatalf("no AI provider configured: set ai.provider to openai, gemini or noop in %s", *cfgPath)
	}

	// ---- Pipeline collaborators ----
	codeCritic := critic.New()
	runner := sandbox.NewRunner(cfg.Sandbox, logger)
	syntaxChecker := sandbox.NewPySyntaxChecker(cfg.Sandbox.PythonPath)

	// ---- Use cases ----
	jobUC := usecase.NewJobUseCase(jobRepo, artifacts, dispatchQueue, logger)
	pipelineUC := usecase.NewPipelineUseCase(jobRepo, artifacts, ai, syntaxChecker, codeCritic,
		runner, cfg.Pipeline, cfg.Sandbox.Limits, logger)

	// ---- Workers ----
	workerPool := worker.NewPool(cfg.Worker.Count, logger)
	workerPool.Start(ctx)
	dispatcher := worker.NewDispatcher(dispatchQueue, pipelineUC, workerPool, cfg.Redis.ProcessingTTL, logger)
	go dispatcher.Start(ctx)

	// ---- HTTP API ----
	srv := web.NewServer(jobUC, cfg.Web.APIKey, logger)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Web.Port), Handler: mux}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
	workerPool.Stop()
}
