package cfg_test

import (
	"path/filepath"
	"time"

	"github.com/DRSN-tech/image-search/internal/cfg"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Load", func() {
	BeforeEach(func() {
		GinkgoT().Setenv("CATALOG_BACKEND", cfg.CatalogBackendJSON)
	})

	It("fills defaults for a json catalog", func() {
		c, err := cfg.Load(logger.NewNopLogger())
		Expect(err).NotTo(HaveOccurred())

		Expect(c.Db).To(BeNil())
		Expect(c.Catalog.MediaURL).To(Equal("/media/"))
		Expect(c.Media.Backend).To(Equal(cfg.MediaBackendFS))
		Expect(c.Encoder.Backend).To(Equal(cfg.EncoderBackendONNX))
		Expect(c.Encoder.Device).To(Equal("auto"))
		Expect(c.Encoder.BatchSize).To(Equal(16))
		Expect(c.Search.TopK).To(Equal(10))
		Expect(c.Search.Threshold).To(BeNumerically("~", 0.2, 1e-6))
		Expect(c.Ingest.DedupThreshold).To(Equal(5))
		Expect(c.Redis.LockTTL).To(Equal(2 * time.Hour))
		Expect(c.Kafka.Brokers).To(BeEmpty())
		Expect(c.Index.IndexPath()).To(Equal(filepath.Join("data/image_index", "product_vectors.index")))
		Expect(c.Index.IDsPath()).To(Equal(filepath.Join("data/image_index", "product_ids.npy")))
	})

	It("reads overrides and lists", func() {
		GinkgoT().Setenv("SEARCH_TOP_K", "25")
		GinkgoT().Setenv("SEARCH_THRESHOLD", "0.35")
		GinkgoT().Setenv("INGEST_SKIP_DOMAINS", " cdn.bad.example , ,tracker.example")
		GinkgoT().Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
		GinkgoT().Setenv("INDEX_DATA_DIR", "/var/lib/index")
		GinkgoT().Setenv("ML_HOST", "encoder")

		c, err := cfg.Load(logger.NewNopLogger())
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Search.TopK).To(Equal(25))
		Expect(c.Search.Threshold).To(BeNumerically("~", 0.35, 1e-6))
		Expect(c.Ingest.SkipDomains).To(Equal([]string{"cdn.bad.example", "tracker.example"}))
		Expect(c.Kafka.Brokers).To(Equal([]string{"k1:9092", "k2:9092"}))
		Expect(c.Index.LockPath()).To(Equal("/var/lib/index/.index.lock"))
		Expect(c.Ml.Addr).To(Equal("encoder:50051"))
	})

	It("requires database credentials for the postgres catalog", func() {
		GinkgoT().Setenv("CATALOG_BACKEND", cfg.CatalogBackendPostgres)
		GinkgoT().Setenv("POSTGRES_USER", "")

		_, err := cfg.Load(logger.NewNopLogger())
		Expect(err).To(MatchError(ContainSubstring("POSTGRES_USER")))
	})

	DescribeTable("rejects invalid values",
		func(key, value string, want error) {
			GinkgoT().Setenv(key, value)

			_, err := cfg.Load(logger.NewNopLogger())
			Expect(err).To(MatchError(want))
		},
		Entry("unknown catalog", "CATALOG_BACKEND", "mongo", e.ErrUnknownBackend),
		Entry("unknown media", "MEDIA_BACKEND", "ftp", e.ErrUnknownBackend),
		Entry("unknown encoder", "ENCODER_BACKEND", "torch", e.ErrUnknownBackend),
		Entry("threshold out of range", "SEARCH_THRESHOLD", "1.5", e.ErrIncorrectEnvVariable),
		Entry("zero top k", "SEARCH_TOP_K", "0", e.ErrIncorrectEnvVariable),
		Entry("negative retries", "INGEST_FETCH_RETRIES", "-1", e.ErrIncorrectEnvVariable),
		Entry("non-numeric concurrency", "INGEST_CONCURRENCY", "many", e.ErrIncorrectEnvVariable),
	)
})
