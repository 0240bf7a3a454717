package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	config "github.com/DRSN-tech/image-search/internal/cfg"
	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/infrastructure/encoder"
	"github.com/DRSN-tech/image-search/internal/infrastructure/fetcher"
	"github.com/DRSN-tech/image-search/internal/infrastructure/kafka"
	minioInfra "github.com/DRSN-tech/image-search/internal/infrastructure/minio"
	ml_service "github.com/DRSN-tech/image-search/internal/infrastructure/ml-service"
	"github.com/DRSN-tech/image-search/internal/infrastructure/phash"
	"github.com/DRSN-tech/image-search/internal/repository/filesystem"
	"github.com/DRSN-tech/image-search/internal/repository/memory"
	s3Repo "github.com/DRSN-tech/image-search/internal/repository/minio"
	"github.com/DRSN-tech/image-search/internal/repository/pgdb"
	pgdbConv "github.com/DRSN-tech/image-search/internal/repository/pgdb/converter"
	qdrantRepo "github.com/DRSN-tech/image-search/internal/repository/qdrant"
	"github.com/DRSN-tech/image-search/internal/repository/redis"
	redisConv "github.com/DRSN-tech/image-search/internal/repository/redis/converter"
	"github.com/DRSN-tech/image-search/internal/repository/vectorindex"
	"github.com/DRSN-tech/image-search/internal/usecase"
	"github.com/DRSN-tech/image-search/pkg/clients"
	"github.com/DRSN-tech/image-search/pkg/closer"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/DRSN-tech/image-search/pkg/postgres"
	"github.com/google/uuid"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

// Container собирает компоненты сервиса по конфигурации.
// Необязательная инфраструктура (Redis, MinIO, Qdrant, Kafka) заменяется
// локальными реализациями, если она не настроена.
type Container struct {
	Cfg         *config.Config
	Origin      string
	Index       *vectorindex.Index
	Encoder     *encoder.Encoder
	Snapshots   *minioInfra.SnapshotInfra // nil, если снапшоты выключены
	Search      *usecase.SearchUseCase
	Indexer     *usecase.IndexUseCase
	Consistency *usecase.ConsistencyUseCase
	Dedup       *usecase.DedupUseCase

	closer         *closer.Closer
	shutdownCancel context.CancelFunc
	logger         logger.Logger
}

// catalogStore — хранилище каталога вместе с журналом индексации.
type catalogStore struct {
	source       usecase.ProductSource
	tx           usecase.TxManager
	runs         usecase.IndexRunRepository
	fingerprints usecase.FingerprintRepository
}

func NewContainer(ctx context.Context, cfg *config.Config, logger logger.Logger) (*Container, error) {
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	c := &Container{
		Cfg:            cfg,
		Origin:         origin(),
		closer:         closer.NewCloser(5 * time.Second),
		shutdownCancel: shutdownCancel,
		logger:         logger,
	}

	if err := c.build(ctx, shutdownCtx); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if closeErr := c.Close(closeCtx); closeErr != nil {
			logger.Warnf("cleanup after failed start: %v", closeErr)
		}
		return nil, err
	}

	return c, nil
}

func (c *Container) build(ctx context.Context, shutdownCtx context.Context) error {
	cfg := c.Cfg

	store, err := c.initCatalogStore(ctx)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	redisClient := c.initRedis(ctx)

	var cache usecase.ProductCache
	var lock usecase.JobLock = filesystem.NewLockRepo(cfg.Index.LockPath(), c.logger)
	if redisClient != nil {
		cache = redis.NewCacheRepo(redisClient, redisConv.ProductConverter{}, cfg.Redis, c.logger)
		lock = redis.NewLockRepo(redisClient, cfg.Redis.LockTTL, c.logger)
	}

	minioClient, err := clients.NewMinIOClient(cfg.Minio)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	media, err := c.initMediaStore(ctx, minioClient)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	var snapshots usecase.SnapshotStore
	if minioClient != nil && cfg.Minio.SnapshotBucket != "" {
		ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := clients.EnsureBucket(ensureCtx, minioClient, cfg.Minio.SnapshotBucket)
		cancel()
		if err != nil {
			c.logger.Warnf("index snapshots disabled: %v", err)
		} else {
			c.Snapshots = minioInfra.NewSnapshotInfra(s3Repo.NewMediaRepo(minioClient, cfg.Minio.SnapshotBucket), cfg.Minio.UploadLimit, c.logger, shutdownCtx)
			snapshots = c.Snapshots
			c.closer.Add("minio snapshot cleanup", c.Snapshots.WaitForCleanup)
		}
	}

	mirror := c.initMirror(ctx)
	publisher := c.initPublisher()

	// Энкодер
	device, err := domain.ParseDevice(cfg.Encoder.Device)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	load, err := c.encoderLoader()
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	c.Encoder = encoder.NewEncoder(load, device, cfg.Encoder.BatchSize, c.logger)
	c.closer.Add("encoder", func(context.Context) error { return c.Encoder.Close() })

	// Индекс
	c.Index = vectorindex.NewIndex(cfg.Index.IndexPath(), cfg.Index.IDsPath(), c.logger)
	if err := c.Index.Load(ctx); err != nil {
		if !errors.Is(err, e.ErrIndexInvariant) {
			return e.Wrap(whereami.WhereAmI(), err)
		}
		c.logger.Errorf(err, "image index refused to load, run check-image-index --fix")
	}

	queryFetcher := fetcher.NewFetcher(fetcher.Config{
		Timeout:     cfg.Fetch.QueryTimeout,
		UserAgent:   cfg.Fetch.UserAgent,
		Referer:     cfg.Fetch.Referer,
		MediaURL:    cfg.Catalog.MediaURL,
		Concurrency: cfg.Ingest.Concurrency,
	}, media, c.logger)
	ingestFetcher := fetcher.NewFetcher(fetcher.Config{
		Timeout:     cfg.Fetch.IngestTimeout,
		UserAgent:   cfg.Fetch.UserAgent,
		Referer:     cfg.Fetch.Referer,
		MediaURL:    cfg.Catalog.MediaURL,
		Concurrency: cfg.Ingest.Concurrency,
	}, media, c.logger)
	hasher := phash.NewHasher(queryFetcher, c.logger)

	catalog := usecase.NewCatalogAdapter(store.source, cache, c.logger)

	c.Search = usecase.NewSearchUC(catalog, c.Index, c.Encoder, queryFetcher, usecase.SearchOptions{
		TopK:           cfg.Search.TopK,
		Threshold:      cfg.Search.Threshold,
		MaxUploadBytes: cfg.Search.MaxUploadBytes,
		TmpDir:         cfg.Search.TmpDir,
	}, c.logger)

	c.Indexer = usecase.NewIndexUC(usecase.IndexDeps{
		Catalog:       catalog,
		Index:         c.Index,
		Encoder:       c.Encoder,
		Fetcher:       ingestFetcher,
		Fingerprinter: hasher,
		Lock:          lock,
		Mirror:        mirror,
		Publisher:     publisher,
		Snapshots:     snapshots,
		TxManager:     store.tx,
		Runs:          store.runs,
		Fingerprints:  store.fingerprints,
		Skip:          usecase.DomainBlacklist(cfg.Ingest.SkipDomains),
	}, usecase.IngestOptions{
		Concurrency:  cfg.Ingest.Concurrency,
		FetchRetries: cfg.Ingest.FetchRetries,
		Origin:       c.Origin,
		IndexPath:    cfg.Index.IndexPath(),
		IDsPath:      cfg.Index.IDsPath(),
	}, c.logger)

	c.Consistency = usecase.NewConsistencyUC(catalog, c.Index, c.Indexer, lock, store.fingerprints,
		cfg.Ingest.DedupThreshold, cfg.Ingest.CheckListLimit, c.logger)

	c.Dedup = usecase.NewDedupUC(hasher, c.logger)

	return nil
}

// initCatalogStore подключает каталог: PostgreSQL или JSON-файл.
func (c *Container) initCatalogStore(ctx context.Context) (*catalogStore, error) {
	cfg := c.Cfg

	switch cfg.Catalog.Backend {
	case config.CatalogBackendJSON:
		return &catalogStore{
			source:       memory.NewCatalogRepo(cfg.Catalog.JSONPath, cfg.Catalog.MediaURL, c.logger),
			tx:           memory.TxManager{},
			runs:         memory.NewIndexRunRepo(),
			fingerprints: memory.NewFingerprintRepo(),
		}, nil

	case config.CatalogBackendPostgres:
		db, err := postgres.Connect(ctx, cfg.Db)
		if err != nil {
			c.logger.Errorf(err, "failed to connect to database")
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		c.closer.AddSimple("postgres", db.Close)

		if err := db.RunMigrations(c.logger); err != nil {
			c.logger.Errorf(err, "failed to run migrations")
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		return &catalogStore{
			source:       pgdb.NewProductRepo(db.Pool, pgdbConv.ProductConverter{}, cfg.Catalog.MediaURL, cfg.Catalog.PageSize, c.logger),
			tx:           pgdb.NewTxManager(db.Pool),
			runs:         pgdb.NewIndexRunRepo(db.Pool, pgdbConv.IndexRunConverter{}),
			fingerprints: pgdb.NewFingerprintRepo(db.Pool, pgdbConv.FingerprintConverter{}),
		}, nil

	default:
		return nil, e.Wrap(cfg.Catalog.Backend, e.ErrUnknownBackend)
	}
}

// initRedis возвращает nil, если Redis не настроен или недоступен.
func (c *Container) initRedis(ctx context.Context) *clients.RedisClient {
	redisClient := clients.NewRedisClient(c.Cfg.Redis)
	if redisClient == nil {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx); err != nil {
		c.logger.Warnf("redis unavailable, product cache disabled and file lock used: %v", err)
		_ = redisClient.Close()
		return nil
	}
	c.closer.Add("redis", func(context.Context) error { return redisClient.Close() })

	return redisClient
}

func (c *Container) initMediaStore(ctx context.Context, minioClient *minio.Client) (usecase.MediaStore, error) {
	cfg := c.Cfg

	switch cfg.Media.Backend {
	case config.MediaBackendFS:
		return filesystem.NewMediaRepo(cfg.Media.Root), nil

	case config.MediaBackendMinio:
		if minioClient == nil {
			return nil, e.Wrap("MEDIA_BACKEND=minio requires MINIO_ENDPOINT", e.ErrIncorrectEnvVariable)
		}

		ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := clients.EnsureBucket(ensureCtx, minioClient, cfg.Minio.BucketName); err != nil {
			c.logger.Errorf(err, "failed to initialize MinIO bucket")
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		return s3Repo.NewMediaRepo(minioClient, cfg.Minio.BucketName), nil

	default:
		return nil, e.Wrap(cfg.Media.Backend, e.ErrUnknownBackend)
	}
}

func (c *Container) initMirror(ctx context.Context) usecase.VectorMirror {
	qdrantClient, err := clients.NewQdrantClient(c.Cfg.Qdrant)
	if err != nil {
		c.logger.Warnf("qdrant mirror disabled: %v", err)
		return qdrantRepo.NopMirror{}
	}
	if qdrantClient == nil {
		return qdrantRepo.NopMirror{}
	}
	c.closer.Add("qdrant", func(context.Context) error { return qdrantClient.Close() })

	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := clients.EnsureCollection(ensureCtx, qdrantClient); err != nil {
		c.logger.Warnf("qdrant mirror disabled: %v", err)
		return qdrantRepo.NopMirror{}
	}

	return qdrantRepo.NewEmbeddingRepo(qdrantClient.Client, c.Cfg.Qdrant)
}

func (c *Container) initPublisher() usecase.EventPublisher {
	if len(c.Cfg.Kafka.Brokers) == 0 {
		return kafka.NopPublisher{}
	}

	producer := kafka.NewProducer(c.logger, c.Cfg.Kafka)
	if err := producer.EnsureTopic(10 * time.Second); err != nil {
		c.logger.Warnf("failed to ensure kafka topic %s: %v", c.Cfg.Kafka.Topic, err)
	}
	c.closer.Add("kafka producer", func(context.Context) error { return producer.Close() })

	return producer
}

func (c *Container) encoderLoader() (encoder.Loader, error) {
	cfg := c.Cfg

	switch cfg.Encoder.Backend {
	case config.EncoderBackendONNX:
		return encoder.NewONNXLoader(encoder.ONNXConfig{
			ModelPath:    cfg.Encoder.ModelPath,
			LibraryPath:  cfg.Encoder.LibraryPath,
			InputName:    cfg.Encoder.InputName,
			OutputName:   cfg.Encoder.OutputName,
			ImageSide:    cfg.Encoder.ImageSide,
			IntraThreads: cfg.Encoder.IntraThreads,
		}), nil
	case config.EncoderBackendGRPC:
		return ml_service.NewLoader(cfg.Ml.Addr, cfg.Ml.MaxConcurrent, cfg.Ml.MaxRetries, cfg.Ml.Timeout, c.logger), nil
	default:
		return nil, e.Wrap(cfg.Encoder.Backend, e.ErrUnknownBackend)
	}
}

// NewReloadListener подписывает процесс на события индекса. nil, если Kafka не настроена.
func (c *Container) NewReloadListener() *kafka.ReloadListener {
	if len(c.Cfg.Kafka.Brokers) == 0 {
		return nil
	}

	var snapshots kafka.SnapshotFetcher
	if c.Snapshots != nil {
		snapshots = c.Snapshots
	}

	return kafka.NewReloadListener(c.Cfg.Kafka, c.Index, snapshots,
		c.Cfg.Index.IndexPath(), c.Cfg.Index.IDsPath(), c.Origin, c.logger)
}

// Close освобождает ресурсы в обратном порядке создания.
func (c *Container) Close(ctx context.Context) error {
	err := c.closer.Close(ctx)
	c.shutdownCancel()

	return err
}

func origin() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
