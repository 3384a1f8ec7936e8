package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"multimodal-agent/internal/config"
	pg "multimodal-agent/internal/infra/db/postgres"
)

// Applies the jobs schema to the configured database. Safe to run repeatedly.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, pg.Schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	fmt.Println("jobs schema applied.")
}
