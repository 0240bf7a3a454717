package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/DRSN-tech/image-search/internal/cfg"
	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/repository/redis/converter"
	"github.com/DRSN-tech/image-search/pkg/clients"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/jimlawless/whereami"
)

const productKeyPrefix = "image-search:product:"

// CacheRepo кэширует карточки товаров, которые отдаёт поиск.
// Испорченные и чужие записи считаются промахом и удаляются.
type CacheRepo struct {
	client *clients.RedisClient
	conv   converter.ProductConverter
	ttl    time.Duration
	logger logger.Logger
}

func NewCacheRepo(client *clients.RedisClient, conv converter.ProductConverter,
	cfg *cfg.RedisCfg, logger logger.Logger) *CacheRepo {
	return &CacheRepo{
		client: client,
		conv:   conv,
		ttl:    cfg.ProductTTL,
		logger: logger,
	}
}

func (r *CacheRepo) GetProducts(ctx context.Context, ids []int64) (map[int64]domain.ProductRecord, error) {
	result := make(map[int64]domain.ProductRecord, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := productKeys(ids)
	values, err := r.client.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	var stale []string
	for i, val := range values {
		raw, ok := val.(string)
		if !ok {
			continue
		}

		entity, err := r.decode(raw, ids[i])
		if err != nil {
			r.logger.Warnf("dropping cached product %d: %v", ids[i], err)
			stale = append(stale, keys[i])
			continue
		}
		result[ids[i]] = *entity
	}

	if len(stale) > 0 {
		if err := r.client.Client.Del(ctx, stale...).Err(); err != nil {
			r.logger.Warnf("%v", e.Wrap(whereami.WhereAmI(), err))
		}
	}

	return result, nil
}

// SetProducts пишет карточки одним pipeline. Ошибки записи только логируются.
func (r *CacheRepo) SetProducts(ctx context.Context, products []domain.ProductRecord) error {
	if len(products) == 0 {
		return nil
	}

	pipe := r.client.Client.Pipeline()
	for _, model := range r.conv.ToArrRedisModel(products) {
		data, err := json.Marshal(model)
		if err != nil {
			r.logger.Warnf("product %d is not cacheable: %v", model.ID, err)
			continue
		}
		pipe.Set(ctx, productKey(model.ID), data, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warnf("%v", e.Wrap(whereami.WhereAmI(), err))
	}

	return nil
}

func (r *CacheRepo) DeleteProducts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	if err := r.client.Client.Del(ctx, productKeys(ids)...).Err(); err != nil {
		r.logger.Warnf("%v", e.Wrap(whereami.WhereAmI(), err))
	}

	return nil
}

func (r *CacheRepo) decode(raw string, id int64) (*domain.ProductRecord, error) {
	var model converter.ProductRedisModel
	if err := json.Unmarshal([]byte(raw), &model); err != nil {
		return nil, err
	}
	if model.ID != id {
		return nil, e.Wrap("cached id "+strconv.FormatInt(model.ID, 10), e.ErrCacheMismatch)
	}

	return r.conv.ToEntity(&model), nil
}

func productKeys(ids []int64) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}

	return keys
}

func productKey(id int64) string {
	return productKeyPrefix + strconv.FormatInt(id, 10)
}
