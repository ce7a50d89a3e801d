package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"taxrag/app/agent"
	"taxrag/app/api"
	"taxrag/app/middleware"
	"taxrag/ingest"
	"taxrag/model"
	"taxrag/search"
	"taxrag/store"
	"taxrag/types"

	"github.com/gofiber/fiber/v2"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
	BodyLimit:    64 * 1024 * 1024, // uploaded tax guides can be large PDFs
}

type Server struct {
	listenAddr string
	cfg        types.Config
	logger     *slog.Logger
	app        *fiber.App
	pool       *store.PostgresStore
}

func NewServer(cfg types.Config) *Server {
	return &Server{
		listenAddr: cfg.ServerAddr,
		cfg:        cfg,
		logger:     slog.Default(),
	}
}

func (s *Server) Stop() {
	if s.app != nil {
		_ = s.app.Shutdown()
	}
	if s.pool != nil {
		_ = s.pool.Close()
	}
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()
	pool, err := store.NewPostgresStore(ctx, ConnStrFromEnv())
	if err != nil {
		log.Fatal("error to connect to Postgres database ", err)
		return
	}
	s.pool = pool

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables ", err)
		return
	}

	embedder := model.NewOllamaEmbedder(s.cfg.EmbedAttempts)
	generator := model.NewOllamaGenerator()

	var (
		app           = fiber.New(config)
		pipeline      = ingest.NewPipeline(pool, embedder, s.cfg)
		engine        = search.NewEngine(pool, embedder)
		queryHandler  = api.NewQueryHandler(engine, agent.New(generator))
		ingestHandler = api.NewIngestHandler(pipeline, pool)
		infoHandler   = api.NewInfoHandler(pool)
		checkHandler  = api.NewCheckHandler()
		check         = app.Group("/check")
		apiv1         = app.Group("/api/v1")
	)
	s.app = app

	app.Use(middleware.RequestLogger())

	check.Get("/healthy", checkHandler.HandleHealthy)
	apiv1.Post("/query", queryHandler.HandleQuery)
	apiv1.Post("/documents", ingestHandler.HandleUpload)
	apiv1.Delete("/documents/:id", ingestHandler.HandleDelete)
	apiv1.Get("/databases", infoHandler.HandleDatabases)
	apiv1.Get("/status", infoHandler.HandleStatus)

	if err := app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return
	}
}

func ConnStrFromEnv() string {
	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
}
