// Package bootstrap assembles the application: configuration, storage,
// repositories, services, handlers, and the HTTP router.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"contract-backend/internal/analyses"
	"contract-backend/internal/contracts"
	"contract-backend/internal/export"
	"contract-backend/internal/extract/ocr"
	"contract-backend/internal/llm"
	"contract-backend/internal/llm/gemini"
	"contract-backend/internal/shared/config"
	"contract-backend/internal/shared/server"
	"contract-backend/internal/shared/storage/db"
	"contract-backend/internal/shared/storage/object"
	localstore "contract-backend/internal/shared/storage/object/local"
	miniostore "contract-backend/internal/shared/storage/object/minio"
	s3store "contract-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore

	ContractsRepo contracts.Repo
	AnalysesRepo  analyses.Repo

	ContractsService *contracts.Service
	AnalysesService  *analyses.Service

	ContractHandler *contracts.Handler
	AnalysisHandler *analyses.Handler
	ExportHandler   *export.Handler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}
	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		ContractHandler: app.ContractHandler,
		AnalysisHandler: app.AnalysisHandler,
		ExportHandler:   app.ExportHandler,
	})
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "minio":
		return miniostore.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildServices(app *App) {
	cfg := app.Config

	var contractRepo contracts.Repo
	var analysisRepo analyses.Repo
	if app.DB != nil {
		contractRepo = &contracts.PGRepo{DB: app.DB}
		analysisRepo = &analyses.PGRepo{DB: app.DB}
	} else {
		contractRepo = contracts.NewMemoryRepo()
		analysisRepo = analyses.NewMemoryRepo()
	}

	llmClient := buildLLM(cfg)

	contractSvc := &contracts.Service{
		Repo:           contractRepo,
		Store:          app.Store,
		StoreProvider:  cfg.ObjectStoreType,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	analysisSvc := &analyses.Service{
		Repo:      analysisRepo,
		Contracts: contractRepo,
		Store:     app.Store,
		Images: ocr.New(ocr.Config{
			Binary:      cfg.OCRBinary,
			Languages:   cfg.OCRLanguages,
			TessdataDir: cfg.OCRTessdataDir,
		}),
		LLM:             llmClient,
		Provider:        "gemini",
		Model:           cfg.GeminiModel,
		AnalysisVersion: cfg.AnalysisVersion,
	}

	app.ContractsRepo = contractRepo
	app.AnalysesRepo = analysisRepo
	app.ContractsService = contractSvc
	app.AnalysesService = analysisSvc
	app.ContractHandler = contracts.NewHandler(contractSvc)
	app.AnalysisHandler = analyses.NewHandler(analysisSvc)
	app.ExportHandler = export.NewHandler(contractSvc, analysisSvc)
}

// buildLLM picks the Gemini client when a key is configured and the mock
// otherwise, so dev setups work without credentials.
func buildLLM(cfg config.Config) llm.Client {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		log.Printf("bootstrap: GEMINI_API_KEY empty; using mock analysis client")
		return llm.MockClient{}
	}
	client, err := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Printf("bootstrap: gemini client unavailable (%v); using mock analysis client", err)
		return llm.MockClient{}
	}
	return client
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
