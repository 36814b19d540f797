package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"tailor-backend/internal/credits"
	"tailor-backend/internal/documents"
	"tailor-backend/internal/llm"
	"tailor-backend/internal/llm/gemini"
	"tailor-backend/internal/pipeline"
	"tailor-backend/internal/shared/config"
	"tailor-backend/internal/shared/server"
	"tailor-backend/internal/shared/storage/db"
)

// App holds shared dependencies wired from configuration.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB

	DocumentsRepo    documents.DocumentsRepo
	DocumentsService *documents.Service
	CreditsService   *credits.Service
	Gateway          *llm.Gateway
	PipelineService  *pipeline.Service

	DocumentsHandler *documents.Handler
	CreditsHandler   *credits.Handler
	PipelineHandler  *pipeline.Handler
}

// Build prepares shared dependencies and the router. Without a
// database URL in dev-like environments it falls back to in-memory
// stores so the server still runs locally.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	sqlDB, err := buildDB(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	client, err := gemini.NewClient(cfg.LLMModel)
	if err != nil {
		return nil, err
	}
	gateway := llm.NewGateway(client)

	app := &App{
		Config:  cfg,
		DB:      sqlDB,
		Gateway: gateway,
	}

	if sqlDB != nil {
		app.DocumentsRepo = &documents.PGRepo{DB: sqlDB}
		app.CreditsService = credits.NewPostgresService(credits.NewPGStore(sqlDB))
	} else {
		app.DocumentsRepo = documents.NewMemoryRepo()
		app.CreditsService = credits.NewService()
	}

	app.DocumentsService = &documents.Service{Repo: app.DocumentsRepo}
	app.PipelineService = pipeline.NewService(gateway, app.CreditsService, app.DocumentsRepo, pipeline.Options{
		PrimaryKey:    cfg.GeminiAPIKey,
		FallbackKey:   cfg.GeminiFallback,
		MaxIterations: cfg.MaxIterations,
	})

	app.DocumentsHandler = documents.NewHandler(app.DocumentsService)
	app.CreditsHandler = credits.NewHandler(app.CreditsService)
	app.PipelineHandler = pipeline.NewHandler(app.PipelineService)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		PipelineHandler: app.PipelineHandler,
		DocumentHandler: app.DocumentsHandler,
		CreditsHandler:  app.CreditsHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory stores")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory stores: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
