package main

import (
	"context"
	"flag"
	"log"
	"time"

	"multimodal-agent/internal/config"
	pg "multimodal-agent/internal/infra/db/postgres"
	red "multimodal-agent/internal/infra/redis"
)

// This script is for setting up a clean, predictable state for manual
// end-to-end testing: fresh schema, empty jobs table, empty queue.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	log.Println("[1/3] Applying jobs schema...")
	if _, err := pool.Exec(ctx, pg.Schema); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	log.Println("[2/3] Wiping existing jobs...")
	if _, err := pool.Exec(ctx, `TRUNCATE jobs;`); err != nil {
		log.Fatalf("failed to truncate jobs: %v", err)
	}

	log.Println("[3/3] Draining dispatch queue...")
	if err := red.NewDispatchQueue(redisClient, &cfg.Redis).Reset(ctx); err != nil {
		log.Fatalf("failed to reset queue: %v", err)
	}

	log.Println("--- E2E Environment Ready ---")
}
