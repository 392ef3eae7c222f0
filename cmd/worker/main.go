package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/knosphere/backend/internal/queue"
	"github.com/knosphere/backend/internal/setup"
	"github.com/knosphere/backend/internal/storage"
	"github.com/knosphere/backend/internal/util"
	"github.com/knosphere/backend/pkg/graph"
	"github.com/knosphere/backend/pkg/logger"
	"github.com/knosphere/backend/pkg/logger/console"
	pgstore "github.com/knosphere/backend/pkg/store/pgx"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.New(console.Params{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	st, err := pgstore.NewStore(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer st.Close()

	var archive *storage.Archive
	if bucket := util.GetEnv("AWS_BUCKET"); bucket != "" {
		s3Client, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		archive = storage.NewArchive(s3Client, bucket)
	}

	aiClient := setup.NewAIClient()

	extractor, err := graph.NewExtractor(graph.Params{
		AI:             aiClient,
		Store:          st,
		ParallelChunks: int(util.GetEnvNumeric("EXTRACT_PARALLEL_CHUNKS", 4)),
	})
	if err != nil {
		logger.Fatal("Failed to create extractor", "err", err)
	}

	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	worker, err := queue.NewWorker(queue.WorkerParams{
		Store:     st,
		AI:        aiClient,
		Extractor: extractor,
		Archive:   archive,
	})
	if err != nil {
		logger.Fatal("Failed to create worker", "err", err)
	}

	if err := worker.Consume(ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Worker stopped", "err", err)
	}
	logger.Info("Worker shut down")
}
