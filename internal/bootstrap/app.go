package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"paperchat/internal/ai"
	"paperchat/internal/app"
	"paperchat/internal/cache"
	"paperchat/internal/config"
	"paperchat/internal/ingest"
	"paperchat/internal/lock"
	"paperchat/internal/model"
	"paperchat/internal/pkg/pdfextract"
	"paperchat/internal/platform/database"
	rabbitmqClient "paperchat/internal/platform/rabbitmq"
	redisClient "paperchat/internal/platform/redis"
	"paperchat/internal/progress"
	"paperchat/internal/rag"
	"paperchat/internal/repository"
	"paperchat/internal/splitter"
	"paperchat/internal/storage"
	"paperchat/internal/store/memory"
	"paperchat/internal/worker"
)

// DocumentStore is what both the services and the orchestrator need from
// document persistence.
type DocumentStore interface {
	app.DocumentRepository
	ingest.DocumentStore
}

type Options struct {
	// ConsumeQueue starts the RabbitMQ ingest worker in this process.
	ConsumeQueue bool
}

type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Documents    DocumentStore
	Chunks       ingest.ChunkStore
	Storage      *storage.Local
	Progress     *progress.Bus
	Extractor    *pdfextract.Extractor
	Splitter     *splitter.Splitter
	AI           *ai.Client
	Orchestrator *ingest.Orchestrator
	Dispatcher   ingest.Dispatcher

	DocumentService *app.DocumentService
	ChatService     *app.ChatService
	PipelineService *app.PipelineService

	localDispatcher *ingest.LocalDispatcher
	ingestWorker    *worker.IngestWorker

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := a.init(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config

	if err := a.initStores(ctx); err != nil {
		return err
	}

	var locker lock.Locker = lock.NewLocalLocker()
	var chunkCache app.ChunkCache
	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = client
		locker = lock.NewRedisLocker(client, "")
		chunkCache = cache.NewChunkCache(client, cfg.Redis.ChunkCacheTTL())
	}

	objects, err := storage.NewLocal(cfg.Storage.Dir, cfg.Storage.PublicBaseURL)
	if err != nil {
		return err
	}
	a.Storage = objects

	a.AI = ai.NewClient(ai.Config{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		ChatModel:         cfg.LLM.ChatModel,
		EmbeddingModel:    cfg.LLM.EmbeddingModel,
		Dimensions:        cfg.LLM.EmbeddingDimensions,
		Timeout:           cfg.LLM.Timeout(),
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})
	a.Extractor = pdfextract.NewExtractor(
		pdfextract.WithLocalOpener(objects),
		pdfextract.WithMaxBytes(cfg.Ingest.MaxPDFBytes),
	)
	a.Splitter = splitter.New(
		splitter.WithChunkSize(cfg.Ingest.ChunkSize),
		splitter.WithOverlap(cfg.Ingest.ChunkOverlap),
	)
	a.Progress = progress.NewBus(a.Logger)

	a.Orchestrator = ingest.NewOrchestrator(
		a.Extractor,
		a.Splitter,
		a.AI,
		a.Chunks,
		a.Documents,
		locker,
		a.Progress,
		ingest.Config{
			Workers:     cfg.Ingest.Workers,
			MaxAttempts: cfg.Ingest.MaxAttempts,
			RetryBase:   cfg.Ingest.RetryBase(),
			LockTTL:     cfg.Ingest.LockTTL(),
		},
		a.Logger,
	)

	if err := a.initDispatch(ctx, opts); err != nil {
		return err
	}

	retriever := rag.NewRetriever(cfg.Retrieval.TopK, cfg.Retrieval.FallbackCount)
	generator := rag.NewGenerator(a.AI,
		rag.WithMaxTokens(cfg.LLM.MaxTokens),
		rag.WithTemperature(cfg.LLM.Temperature),
	)

	a.DocumentService = app.NewDocumentService(app.DocumentServiceDeps{
		Docs:       a.Documents,
		Chunks:     a.Chunks,
		Cache:      chunkCache,
		Objects:    objects,
		Dispatcher: a.Dispatcher,
		Locker:     locker,
		Progress:   a.Progress,
	}, app.DocumentLimits{
		MaxDocumentsPerUser: cfg.Ingest.MaxDocumentsPerUser,
		MaxFileBytes:        cfg.Ingest.MaxPDFBytes,
	}, a.Logger)
	a.ChatService = app.NewChatService(a.Documents, a.Chunks, chunkCache, a.AI, retriever, generator, a.Logger)
	a.PipelineService = app.NewPipelineService(a.Extractor, a.Splitter, a.AI, retriever, generator)
	return nil
}

func (a *App) initStores(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Store.Driver {
	case config.StoreMemory:
		a.Documents = memory.NewDocumentStore()
		a.Chunks = memory.NewChunkStore()
		a.Logger.Warn("using in-memory store, data is lost on restart")
		return nil

	case config.StoreMySQL:
		db, err := database.Open(ctx, "mysql", cfg.MySQLDSN())
		if err != nil {
			return err
		}
		a.DB = db
		if err := db.WithContext(ctx).AutoMigrate(&model.Document{}, &model.Chunk{}); err != nil {
			return fmt.Errorf("auto migrate tables failed: %w", err)
		}
		a.Documents = repository.NewDocumentRepository(db)
		a.Chunks = repository.NewChunkRepository(db)
		return nil

	case config.StorePostgres:
		db, err := database.Open(ctx, "postgres", cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		a.DB = db
		if err := db.WithContext(ctx).AutoMigrate(&model.Document{}); err != nil {
			return fmt.Errorf("auto migrate tables failed: %w", err)
		}
		chunks := repository.NewVectorChunkRepository(db)
		if err := chunks.Migrate(ctx); err != nil {
			return err
		}
		a.Documents = repository.NewDocumentRepository(db)
		a.Chunks = chunks
		return nil
	}
	return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// initDispatch routes ingestion through RabbitMQ when enabled, otherwise
// through goroutines of this process.
func (a *App) initDispatch(ctx context.Context, opts Options) error {
	cfg := a.Config
	if !cfg.RabbitMQ.Enabled {
		a.localDispatcher = ingest.NewLocalDispatcher(a.Orchestrator, cfg.Ingest.RunTimeout(), a.Logger)
		a.Dispatcher = a.localDispatcher
		return nil
	}

	conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	a.MQConn = conn
	a.Dispatcher = rabbitmqClient.NewIngestPublisher(conn, cfg.RabbitMQ.IngestQueue)

	if opts.ConsumeQueue {
		a.ingestWorker = worker.NewIngestWorker(conn, a.Orchestrator, cfg.RabbitMQ.IngestQueue, cfg.Ingest.RunTimeout(), a.Logger)
		if err := a.ingestWorker.Start(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("start ingest worker failed: %w", err)
		}
	}
	return nil
}

// Close stops ingestion first so in-flight runs can record their state,
// then releases connections.
func (a *App) Close() error {
	var errs []error
	if a.ingestWorker != nil {
		a.ingestWorker.Close()
	}
	if a.localDispatcher != nil {
		a.localDispatcher.Close()
	}
	if a.Progress != nil {
		if err := a.Progress.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
