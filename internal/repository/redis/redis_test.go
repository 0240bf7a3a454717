package redis_test

import (
	"context"
	"time"

	"github.com/DRSN-tech/image-search/internal/cfg"
	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/repository/redis"
	"github.com/DRSN-tech/image-search/internal/repository/redis/converter"
	"github.com/DRSN-tech/image-search/pkg/clients"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Redis repositories", func() {
	var (
		ctx    context.Context
		mr     *miniredis.Miniredis
		client *clients.RedisClient
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(mr.Close)

		client = clients.NewRedisClient(&cfg.RedisCfg{Addr: mr.Addr(), DialTimeout: time.Second, Timeout: time.Second})
		Expect(client).NotTo(BeNil())
		DeferCleanup(client.Close)
		Expect(client.Ping(ctx)).To(Succeed())
	})

	It("does not create a client without an address", func() {
		Expect(clients.NewRedisClient(&cfg.RedisCfg{})).To(BeNil())
	})

	Describe("CacheRepo", func() {
		var cache *redis.CacheRepo

		BeforeEach(func() {
			cache = redis.NewCacheRepo(client, converter.ProductConverter{},
				&cfg.RedisCfg{ProductTTL: time.Minute}, logger.NewNopLogger())
		})

		It("round-trips product cards", func() {
			products := []domain.ProductRecord{
				{ID: 1, Name: "Lamp", Price: "12.50", IsActive: true, ImageRef: "/media/1.png",
					Category: &domain.Category{ID: 3, Name: "Light", Slug: "light"}},
				{ID: 2, Name: "Chair", Price: "99.00", IsActive: true},
			}
			Expect(cache.SetProducts(ctx, products)).To(Succeed())

			got, err := cache.GetProducts(ctx, []int64{1, 2, 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[1]).To(Equal(products[0]))
			Expect(got[2].Category).To(BeNil())
			Expect(got).NotTo(HaveKey(int64(3)))
		})

		It("applies the configured ttl", func() {
			Expect(cache.SetProducts(ctx, []domain.ProductRecord{{ID: 1, IsActive: true}})).To(Succeed())
			Expect(mr.TTL("image-search:product:1")).To(Equal(time.Minute))

			mr.FastForward(2 * time.Minute)
			got, err := cache.GetProducts(ctx, []int64{1})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})

		It("treats corrupted and mismatched entries as misses", func() {
			Expect(mr.Set("image-search:product:5", "{not json")).To(Succeed())
			Expect(mr.Set("image-search:product:6", `{"id":7,"name":"wrong"}`)).To(Succeed())

			got, err := cache.GetProducts(ctx, []int64{5, 6})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
			Expect(mr.Exists("image-search:product:6")).To(BeFalse())
		})

		It("deletes entries", func() {
			Expect(cache.SetProducts(ctx, []domain.ProductRecord{{ID: 1}, {ID: 2}})).To(Succeed())
			Expect(cache.DeleteProducts(ctx, []int64{1})).To(Succeed())

			Expect(mr.Exists("image-search:product:1")).To(BeFalse())
			Expect(mr.Exists("image-search:product:2")).To(BeTrue())
		})

		It("reports an unavailable server", func() {
			mr.Close()

			_, err := cache.GetProducts(ctx, []int64{1})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("LockRepo", func() {
		var lock *redis.LockRepo

		BeforeEach(func() {
			lock = redis.NewLockRepo(client, 30*time.Second, logger.NewNopLogger())
		})

		It("admits a single holder", func() {
			unlock, err := lock.Acquire(ctx, "image-index")
			Expect(err).NotTo(HaveOccurred())

			_, err = lock.Acquire(ctx, "image-index")
			Expect(err).To(MatchError(e.ErrJobLocked))

			Expect(unlock(ctx)).To(Succeed())

			unlock, err = lock.Acquire(ctx, "image-index")
			Expect(err).NotTo(HaveOccurred())
			Expect(unlock(ctx)).To(Succeed())
		})

		It("expires an abandoned lock", func() {
			_, err := lock.Acquire(ctx, "image-index")
			Expect(err).NotTo(HaveOccurred())

			mr.FastForward(31 * time.Second)

			_, err = lock.Acquire(ctx, "image-index")
			Expect(err).NotTo(HaveOccurred())
		})

		It("does not release a lock taken over by another holder", func() {
			stale, err := lock.Acquire(ctx, "image-index")
			Expect(err).NotTo(HaveOccurred())

			mr.FastForward(31 * time.Second)
			_, err = lock.Acquire(ctx, "image-index")
			Expect(err).NotTo(HaveOccurred())

			Expect(stale(ctx)).To(Succeed())
			Expect(mr.Exists("image-search:lock:image-index")).To(BeTrue())
		})
	})
})
