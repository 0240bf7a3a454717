package redis

import (
	"context"
	"time"

	"github.com/DRSN-tech/image-search/internal/usecase"
	"github.com/DRSN-tech/image-search/pkg/clients"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/google/uuid"
	"github.com/jimlawless/whereami"
	r "github.com/redis/go-redis/v9"
)

// releaseScript удаляет ключ, только если он всё ещё принадлежит владельцу.
var releaseScript = r.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockRepo блокирует задачи индексации через SET NX PX.
type LockRepo struct {
	client *clients.RedisClient
	ttl    time.Duration
	logger logger.Logger
}

func NewLockRepo(client *clients.RedisClient, ttl time.Duration, logger logger.Logger) *LockRepo {
	return &LockRepo{client: client, ttl: ttl, logger: logger}
}

// Acquire захватывает блокировку key. Занятая блокировка даёт e.ErrJobLocked.
func (l *LockRepo) Acquire(ctx context.Context, key string) (usecase.Unlock, error) {
	token := uuid.NewString()
	lockKey := "image-search:lock:" + key

	ok, err := l.client.Client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	if !ok {
		return nil, e.Wrap(key, e.ErrJobLocked)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client.Client, []string{lockKey}, token).Err(); err != nil {
			l.logger.Warnf("failed to release lock %s: %v", key, err)
			return e.Wrap(whereami.WhereAmI(), err)
		}
		return nil
	}, nil
}
