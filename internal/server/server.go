package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knosphere/backend/internal/queue"
	mid "github.com/knosphere/backend/internal/server/middleware"
	"github.com/knosphere/backend/internal/setup"
	"github.com/knosphere/backend/internal/storage"
	"github.com/knosphere/backend/internal/util"
	"github.com/knosphere/backend/pkg/agent"
	"github.com/knosphere/backend/pkg/graphrag"
	"github.com/knosphere/backend/pkg/logger"
	"github.com/knosphere/backend/pkg/search"
	pgstore "github.com/knosphere/backend/pkg/store/pgx"
	"github.com/knosphere/backend/pkg/tools"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/golang-migrate/migrate/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func runMigrations(databaseURL string) {
	migrationsDir := util.GetEnvString("MIGRATIONS_DIR", "migrations")
	m, err := migrate.New("file://"+migrationsDir, databaseURL)
	if err != nil {
		logger.Fatal("Failed to open migrations", "err", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Failed to run migrations", "err", err)
	}
}

func Init() {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := util.GetEnv("DATABASE_URL")
	runMigrations(databaseURL)

	st, err := pgstore.NewStore(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer st.Close()

	var key *keyfunc.Keyfunc
	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		key = &k
	}

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	var archive *storage.Archive
	if bucket := util.GetEnv("AWS_BUCKET"); bucket != "" {
		s3Client, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		archive = storage.NewArchive(s3Client, bucket)
	}

	aiClient := setup.NewAIClient()

	searcher, err := search.NewSearcher(search.Params{
		Store:    st,
		AI:       aiClient,
		Reranker: setup.NewReranker(),
	})
	if err != nil {
		logger.Fatal("Failed to create searcher", "err", err)
	}

	orchestrator, err := agent.NewOrchestrator(agent.Params{
		AI:        aiClient,
		Retriever: searcher,
		Tools:     tools.DefaultRegistry().Tools(),
	})
	if err != nil {
		logger.Fatal("Failed to create orchestrator", "err", err)
	}

	graphEngine, err := graphrag.NewEngine(graphrag.Params{
		Retriever: searcher,
		AI:        aiClient,
		Store:     st,
	})
	if err != nil {
		logger.Fatal("Failed to create graph engine", "err", err)
	}

	app := &mid.App{
		Store:        st,
		Queue:        ch,
		Key:          key,
		Archive:      archive,
		AI:           aiClient,
		Orchestrator: orchestrator,
		GraphEngine:  graphEngine,
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
		MasterUserID: util.GetEnv("MASTER_USER_ID"),
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("16M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
