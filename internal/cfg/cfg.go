package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/jimlawless/whereami"
	"github.com/joho/godotenv"
)

const (
	CatalogBackendPostgres = "postgres"
	CatalogBackendJSON     = "json"

	MediaBackendFS    = "fs"
	MediaBackendMinio = "minio"

	EncoderBackendONNX = "onnx"
	EncoderBackendGRPC = "grpc"
)

type Config struct {
	Http    *HTTPConfig
	Db      *PGDBCfg
	Redis   *RedisCfg
	Minio   *MinIOCfg
	Qdrant  *QdrantCfg
	Kafka   *KafkaCfg
	Catalog *CatalogCfg
	Media   *MediaCfg
	Encoder *EncoderCfg
	Ml      *MLServiceCfg
	Index   *IndexCfg
	Search  *SearchCfg
	Fetch   *FetchCfg
	Ingest  *IngestCfg
}

type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	SwaggerURL   string
}

type PGDBCfg struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// RedisCfg — кэш карточек товаров и распределённая блокировка задач индексации.
// Пустой Addr отключает Redis.
type RedisCfg struct {
	Addr        string
	Password    string
	User        string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
	ProductTTL  time.Duration
	LockTTL     time.Duration
}

// MinIOCfg используется для медиа-хранилища (MEDIA_BACKEND=minio) и для снапшотов индекса.
type MinIOCfg struct {
	MinioEndpoint     string // Адрес конечной точки Minio
	BucketName        string // Бакет с изображениями товаров
	SnapshotBucket    string // Бакет для снапшотов индекса; без него снапшоты выключены
	MinioRootUser     string
	MinioRootPassword string
	MinioUseSSL       bool
	UploadLimit       int // Лимит одновременных загрузок в S3
}

type QdrantCfg struct {
	Port                 int
	Host                 string // Пустой хост отключает зеркалирование в Qdrant
	ApiKey               string
	QdrantCollectionName string
	UseTLS               bool
	VectorSize           uint64
}

type KafkaCfg struct {
	Topic             string
	Brokers           []string // Пустой список отключает события жизненного цикла индекса
	GroupPrefix       string
	NetworkMode       string
	Partitions        int
	ReplicationFactor int
}

type CatalogCfg struct {
	Backend  string
	JSONPath string
	MediaURL string // Префикс URL сохранённых файлов, например /media/
	PageSize int
}

type MediaCfg struct {
	Backend string
	Root    string
}

type EncoderCfg struct {
	Backend      string
	Device       string // auto|cpu|cuda|mps
	BatchSize    int
	ModelPath    string
	LibraryPath  string
	InputName    string
	OutputName   string
	ImageSide    int
	IntraThreads int
}

type MLServiceCfg struct {
	Addr          string
	MaxConcurrent int
	MaxRetries    int
	Timeout       time.Duration
}

type IndexCfg struct {
	DataDir   string
	IndexFile string
	IDsFile   string
	LockFile  string
}

type SearchCfg struct {
	TopK           int
	Threshold      float32
	MaxUploadBytes int64
	TmpDir         string
}

type FetchCfg struct {
	QueryTimeout  time.Duration
	IngestTimeout time.Duration
	UserAgent     string
	Referer       string
}

type IngestCfg struct {
	Concurrency    int
	FetchRetries   int
	SkipDomains    []string
	DedupThreshold int
	CheckListLimit int
}

// IndexPath возвращает полный путь к файлу индекса.
func (c *IndexCfg) IndexPath() string {
	return filepath.Join(c.DataDir, c.IndexFile)
}

// IDsPath возвращает полный путь к файлу идентификаторов.
func (c *IndexCfg) IDsPath() string {
	return filepath.Join(c.DataDir, c.IDsFile)
}

// LockPath возвращает путь к файлу блокировки задач индексации.
func (c *IndexCfg) LockPath() string {
	return filepath.Join(c.DataDir, c.LockFile)
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
// Перед чтением переменных окружения подгружается необязательный .env.
func Load(log logger.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to read .env: %v", err)
	}

	catalog, err := loadCatalogCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	var db *PGDBCfg
	if catalog.Backend == CatalogBackendPostgres {
		db, err = loadPGDBCfg(log)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
	}

	http, err := loadHTTPConfig(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minio, err := loadMinIOCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	qdrant, err := loadQdrantCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	media, err := loadMediaCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	encoder, err := loadEncoderCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ml, err := loadMLServiceCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	search, err := loadSearchCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	fetch, err := loadFetchCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ingest, err := loadIngestCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		Http:    http,
		Db:      db,
		Redis:   redis,
		Minio:   minio,
		Qdrant:  qdrant,
		Kafka:   loadKafkaCfg(),
		Catalog: catalog,
		Media:   media,
		Encoder: encoder,
		Ml:      ml,
		Index:   loadIndexCfg(),
		Search:  search,
		Fetch:   fetch,
		Ingest:  ingest,
	}, nil
}

func loadHTTPConfig(log logger.Logger) (*HTTPConfig, error) {
	const (
		defaultPort         = "8080"
		defaultReadTimeout  = 15 * time.Second
		defaultWriteTimeout = 30 * time.Second
		defaultIdleTimeout  = 60 * time.Second
		defaultSwaggerURL   = "http://localhost:8080/swagger/doc.json"
	)

	readTimeout, err := parseDurationEnv("HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_WRITE_TIMEOUT")
		return nil, err
	}

	idleTimeout, err := parseDurationEnv("KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		log.Errorf(err, "invalid KEEP_ALIVE")
		return nil, err
	}

	return &HTTPConfig{
		Port:         getEnvOrDefault("HTTP_PORT", defaultPort),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
		SwaggerURL:   getEnvOrDefault("SWAGGER_URL", defaultSwaggerURL),
	}, nil
}

func loadPGDBCfg(log logger.Logger) (*PGDBCfg, error) {
	const (
		defaultHost           = "localhost"
		defaultPort           = "5432"
		defaultSSLMode        = "disable"
		defaultMigrationsPath = "file://db/migrations"
	)

	user := getEnv("POSTGRES_USER")
	if user == "" {
		err := fmt.Errorf("POSTGRES_USER is required")
		log.Errorf(err, "missing POSTGRES_USER")
		return nil, err
	}

	password := getEnv("POSTGRES_PASSWORD")
	if password == "" {
		err := fmt.Errorf("POSTGRES_PASSWORD is required")
		log.Errorf(err, "missing POSTGRES_PASSWORD")
		return nil, err
	}

	dbName := getEnv("POSTGRES_DB")
	if dbName == "" {
		err := fmt.Errorf("POSTGRES_DB is required")
		log.Errorf(err, "missing POSTGRES_DB")
		return nil, err
	}

	return &PGDBCfg{
		Host:           getEnvOrDefault("POSTGRES_HOST", defaultHost),
		Port:           getEnvOrDefault("POSTGRES_PORT", defaultPort),
		User:           user,
		Password:       password,
		DBName:         dbName,
		SSLMode:        getEnvOrDefault("SSL_MODE", defaultSSLMode),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath),
	}, nil
}

func loadRedisCfg(log logger.Logger) (*RedisCfg, error) {
	const (
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultReadTimeout  = 3 * time.Second
		defaultWriteTimeout = 3 * time.Second
		defaultProductTTL   = 3 * time.Minute
		defaultLockTTL      = 2 * time.Hour
	)

	db, err := parseIntEnv("REDIS_DB_ID", defaultDB)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB_ID")
		return nil, err
	}

	maxRetries, err := parseIntEnv("MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid MAX_RETRIES")
		return nil, err
	}

	dialTimeout, err := parseDurationEnv("DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid DIAL_TIMEOUT")
		return nil, err
	}

	readTimeout, err := parseDurationEnv("READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid WRITE_TIMEOUT")
		return nil, err
	}

	productTTL, err := parseDurationEnv("PRODUCT_TTL", defaultProductTTL)
	if err != nil {
		log.Errorf(err, "invalid PRODUCT_TTL")
		return nil, err
	}

	lockTTL, err := parseDurationEnv("INDEX_LOCK_TTL", defaultLockTTL)
	if err != nil {
		log.Errorf(err, "invalid INDEX_LOCK_TTL")
		return nil, err
	}

	timeout := readTimeout
	if writeTimeout > timeout {
		timeout = writeTimeout
	}

	return &RedisCfg{
		Addr:        getEnv("REDIS_ADDR"),
		Password:    getEnv("REDIS_PASSWORD"),
		User:        getEnv("REDIS_USER"),
		DB:          db,
		MaxRetries:  maxRetries,
		DialTimeout: dialTimeout,
		Timeout:     timeout,
		ProductTTL:  productTTL,
		LockTTL:     lockTTL,
	}, nil
}

func loadMinIOCfg(log logger.Logger) (*MinIOCfg, error) {
	const (
		defaultUseSSL      = false
		defaultUploadLimit = 4
	)

	useSSL, err := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", strconv.FormatBool(defaultUseSSL)))
	if err != nil {
		log.Errorf(err, "invalid MINIO_USE_SSL")
		return nil, err
	}

	uploadLimit, err := parseIntEnv("MINIO_UPLOAD_LIMIT", defaultUploadLimit)
	if err != nil {
		log.Errorf(err, "invalid MINIO_UPLOAD_LIMIT")
		return nil, err
	}

	return &MinIOCfg{
		MinioEndpoint:     getEnv("MINIO_ENDPOINT"),
		BucketName:        getEnv("BUCKET_NAME"),
		SnapshotBucket:    getEnv("SNAPSHOT_BUCKET"),
		MinioRootUser:     getEnv("MINIO_ROOT_USER"),
		MinioRootPassword: getEnv("MINIO_ROOT_PASSWORD"),
		MinioUseSSL:       useSSL,
		UploadLimit:       uploadLimit,
	}, nil
}

func loadQdrantCfg(logger logger.Logger) (*QdrantCfg, error) {
	const (
		defaultQdrantGRPCPort = "6334"
		defaultUseTLS         = false
		defaultCollection     = "product_images"
		vectorSize            = 512
	)

	port, err := strconv.Atoi(getEnvOrDefault("QDRANT_GRPC_PORT", defaultQdrantGRPCPort))
	if err != nil {
		logger.Errorf(err, "invalid QDRANT_GRPC_PORT")
		return nil, err
	}

	useTLS, err := strconv.ParseBool(getEnvOrDefault("QDRANT_USE_TLS", strconv.FormatBool(defaultUseTLS)))
	if err != nil {
		logger.Errorf(err, "invalid QDRANT_USE_TLS")
		return nil, err
	}

	return &QdrantCfg{
		Host:                 getEnv("QDRANT_HOST"),
		Port:                 port,
		ApiKey:               getEnv("QDRANT__SERVICE__API_KEY"),
		QdrantCollectionName: getEnvOrDefault("COLLECTION_NAME", defaultCollection),
		UseTLS:               useTLS,
		VectorSize:           vectorSize,
	}, nil
}

func loadKafkaCfg() *KafkaCfg {
	const (
		defaultTopic       = "image-index-events"
		defaultGroupPrefix = "image-search-replica"
		defaultNetworkMode = "tcp"
	)

	var brokers []string
	if brokerStr := getEnv("KAFKA_BROKERS"); brokerStr != "" {
		brokers = splitAndTrim(brokerStr)
	}

	partitions, err := parseIntEnv("KAFKA_PARTITIONS", 1)
	if err != nil || partitions < 1 {
		partitions = 1
	}

	replication, err := parseIntEnv("KAFKA_REPLICATION_FACTOR", 1)
	if err != nil || replication < 1 {
		replication = 1
	}

	return &KafkaCfg{
		Brokers:           brokers,
		Topic:             getEnvOrDefault("KAFKA_TOPIC", defaultTopic),
		GroupPrefix:       getEnvOrDefault("KAFKA_GROUP_PREFIX", defaultGroupPrefix),
		NetworkMode:       getEnvOrDefault("KAFKA_NETWORK_MODE", defaultNetworkMode),
		Partitions:        partitions,
		ReplicationFactor: replication,
	}
}

func loadCatalogCfg() (*CatalogCfg, error) {
	const (
		defaultMediaURL = "/media/"
		defaultPageSize = 500
	)

	backend := getEnvOrDefault("CATALOG_BACKEND", CatalogBackendPostgres)
	if backend != CatalogBackendPostgres && backend != CatalogBackendJSON {
		return nil, e.Wrap("CATALOG_BACKEND", e.ErrUnknownBackend)
	}

	pageSize, err := parseIntEnv("CATALOG_PAGE_SIZE", defaultPageSize)
	if err != nil || pageSize <= 0 {
		return nil, e.Wrap("CATALOG_PAGE_SIZE", e.ErrIncorrectEnvVariable)
	}

	return &CatalogCfg{
		Backend:  backend,
		JSONPath: getEnvOrDefault("CATALOG_JSON_PATH", "catalog.json"),
		MediaURL: getEnvOrDefault("MEDIA_URL", defaultMediaURL),
		PageSize: pageSize,
	}, nil
}

func loadMediaCfg() (*MediaCfg, error) {
	const defaultRoot = "media"

	backend := getEnvOrDefault("MEDIA_BACKEND", MediaBackendFS)
	if backend != MediaBackendFS && backend != MediaBackendMinio {
		return nil, e.Wrap("MEDIA_BACKEND", e.ErrUnknownBackend)
	}

	return &MediaCfg{
		Backend: backend,
		Root:    getEnvOrDefault("MEDIA_ROOT", defaultRoot),
	}, nil
}

func loadEncoderCfg() (*EncoderCfg, error) {
	const (
		defaultDevice     = "auto"
		defaultBatchSize  = 16
		defaultModelPath  = "models/clip-vit-b32-vision.onnx"
		defaultInputName  = "pixel_values"
		defaultOutputName = "image_embeds"
		defaultImageSide  = 224
	)

	backend := getEnvOrDefault("ENCODER_BACKEND", EncoderBackendONNX)
	if backend != EncoderBackendONNX && backend != EncoderBackendGRPC {
		return nil, e.Wrap("ENCODER_BACKEND", e.ErrUnknownBackend)
	}

	batchSize, err := parseIntEnv("ENCODER_BATCH_SIZE", defaultBatchSize)
	if err != nil {
		return nil, e.Wrap("ENCODER_BATCH_SIZE", err)
	}

	imageSide, err := parseIntEnv("ENCODER_IMAGE_SIDE", defaultImageSide)
	if err != nil {
		return nil, e.Wrap("ENCODER_IMAGE_SIDE", err)
	}

	threads, err := parseIntEnv("ENCODER_THREADS", 0)
	if err != nil {
		return nil, e.Wrap("ENCODER_THREADS", err)
	}

	return &EncoderCfg{
		Backend:      backend,
		Device:       getEnvOrDefault("ENCODER_DEVICE", defaultDevice),
		BatchSize:    batchSize,
		ModelPath:    getEnvOrDefault("ONNX_MODEL_PATH", defaultModelPath),
		LibraryPath:  getEnv("ONNXRUNTIME_LIB"),
		InputName:    getEnvOrDefault("ONNX_INPUT_NAME", defaultInputName),
		OutputName:   getEnvOrDefault("ONNX_OUTPUT_NAME", defaultOutputName),
		ImageSide:    imageSide,
		IntraThreads: threads,
	}, nil
}

func loadMLServiceCfg() (*MLServiceCfg, error) {
	const (
		defaultHost          = "ml-service"
		defaultPort          = "50051"
		defaultMaxConcurrent = 8
		defaultMaxRetries    = 3
		defaultTimeout       = 30 * time.Second
	)

	maxConcurrent, err := parseIntEnv("ML_MAX_CONCURRENT", defaultMaxConcurrent)
	if err != nil {
		return nil, e.Wrap("ML_MAX_CONCURRENT", err)
	}

	maxRetries, err := parseIntEnv("ML_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		return nil, e.Wrap("ML_MAX_RETRIES", err)
	}

	timeout, err := parseDurationEnv("ML_TIMEOUT", defaultTimeout)
	if err != nil {
		return nil, e.Wrap("ML_TIMEOUT", err)
	}

	host := getEnvOrDefault("ML_HOST", defaultHost)
	port := getEnvOrDefault("ML_PORT", defaultPort)

	return &MLServiceCfg{
		Addr:          host + ":" + port,
		MaxConcurrent: maxConcurrent,
		MaxRetries:    maxRetries,
		Timeout:       timeout,
	}, nil
}

func loadIndexCfg() *IndexCfg {
	return &IndexCfg{
		DataDir:   getEnvOrDefault("INDEX_DATA_DIR", "data/image_index"),
		IndexFile: getEnvOrDefault("INDEX_FILE", "product_vectors.index"),
		IDsFile:   getEnvOrDefault("INDEX_IDS_FILE", "product_ids.npy"),
		LockFile:  getEnvOrDefault("INDEX_LOCK_FILE", ".index.lock"),
	}
}

func loadSearchCfg() (*SearchCfg, error) {
	const (
		defaultTopK           = 10
		defaultThreshold      = 0.2
		defaultMaxUploadBytes = 15 << 20
	)

	topK, err := parseIntEnv("SEARCH_TOP_K", defaultTopK)
	if err != nil || topK < 1 {
		return nil, e.Wrap("SEARCH_TOP_K", e.ErrIncorrectEnvVariable)
	}

	threshold, err := strconv.ParseFloat(getEnvOrDefault("SEARCH_THRESHOLD", "0.2"), 32)
	if err != nil || threshold < 0 || threshold > 1 {
		return nil, e.Wrap("SEARCH_THRESHOLD", e.ErrIncorrectEnvVariable)
	}

	maxUpload, err := parseIntEnv("SEARCH_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil || maxUpload <= 0 {
		return nil, e.Wrap("SEARCH_MAX_UPLOAD_BYTES", e.ErrIncorrectEnvVariable)
	}

	return &SearchCfg{
		TopK:           topK,
		Threshold:      float32(threshold),
		MaxUploadBytes: int64(maxUpload),
		TmpDir:         getEnvOrDefault("SEARCH_TMP_DIR", os.TempDir()),
	}, nil
}

func loadFetchCfg() (*FetchCfg, error) {
	const (
		defaultQueryTimeout  = 10 * time.Second
		defaultIngestTimeout = 30 * time.Second
		defaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
		defaultReferer       = "https://www.google.com/"
	)

	queryTimeout, err := parseDurationEnv("FETCH_QUERY_TIMEOUT", defaultQueryTimeout)
	if err != nil {
		return nil, e.Wrap("FETCH_QUERY_TIMEOUT", err)
	}

	ingestTimeout, err := parseDurationEnv("FETCH_INGEST_TIMEOUT", defaultIngestTimeout)
	if err != nil {
		return nil, e.Wrap("FETCH_INGEST_TIMEOUT", err)
	}

	return &FetchCfg{
		QueryTimeout:  queryTimeout,
		IngestTimeout: ingestTimeout,
		UserAgent:     getEnvOrDefault("FETCH_USER_AGENT", defaultUserAgent),
		Referer:       getEnvOrDefault("FETCH_REFERER", defaultReferer),
	}, nil
}

func loadIngestCfg() (*IngestCfg, error) {
	const (
		defaultConcurrency    = 8
		defaultFetchRetries   = 2
		defaultDedupThreshold = 5
		defaultCheckListLimit = 20
	)

	concurrency, err := parseIntEnv("INGEST_CONCURRENCY", defaultConcurrency)
	if err != nil || concurrency < 1 {
		return nil, e.Wrap("INGEST_CONCURRENCY", e.ErrIncorrectEnvVariable)
	}

	retries, err := parseIntEnv("INGEST_FETCH_RETRIES", defaultFetchRetries)
	if err != nil || retries < 0 {
		return nil, e.Wrap("INGEST_FETCH_RETRIES", e.ErrIncorrectEnvVariable)
	}

	dedup, err := parseIntEnv("DEDUP_THRESHOLD", defaultDedupThreshold)
	if err != nil || dedup < 0 {
		return nil, e.Wrap("DEDUP_THRESHOLD", e.ErrIncorrectEnvVariable)
	}

	listLimit, err := parseIntEnv("CHECK_LIST_LIMIT", defaultCheckListLimit)
	if err != nil || listLimit < 0 {
		return nil, e.Wrap("CHECK_LIST_LIMIT", e.ErrIncorrectEnvVariable)
	}

	var skip []string
	if v := getEnv("INGEST_SKIP_DOMAINS"); v != "" {
		skip = splitAndTrim(v)
	}

	return &IngestCfg{
		Concurrency:    concurrency,
		FetchRetries:   retries,
		SkipDomains:    skip,
		DedupThreshold: dedup,
		CheckListLimit: listLimit,
	}, nil
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return intValue, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
