package main

import (
	"context"
	"log"

	"taxrag/app/server"
	"taxrag/ingest"
	"taxrag/loader/service"
	"taxrag/model"
	"taxrag/store"
	"taxrag/types"

	"github.com/joho/godotenv"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	ctx := context.Background()
	cfg := types.ConfigFromEnv()

	pool, err := store.NewPostgresStore(ctx, server.ConnStrFromEnv())
	if err != nil {
		log.Fatal("error to connect to Postgres database ", err)
		return
	}

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables ", err)
		return
	}

	embedder := model.NewOllamaEmbedder(cfg.EmbedAttempts)
	pipeline := ingest.NewPipeline(pool, embedder, cfg)

	service.New(pipeline, cfg).Run()

	log.Println("Closing database connection pool...")
	if err := pool.Close(); err != nil {
		log.Printf("error closing pool: %v\n", err)
	}
}

func mustLoadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		log.Fatal("Error loading .env file")
	}
}
