package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "booking:lock:"

// удаляем ключ, только если он всё ещё наш
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis блокировки между несколькими экземплярами сервиса (SET NX PX + токен)
type Redis struct {
	client  *redis.Client
	ttl     time.Duration
	retry   time.Duration
	maxWait time.Duration
	logger  *zap.Logger
}

// NewRedis подключается к Redis по URL (redis://host:port/db)
func NewRedis(redisURL string, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Проверяем соединение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client, ttl, logger), nil
}

// NewRedisWithClient использует готового клиента
func NewRedisWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		client:  client,
		ttl:     ttl,
		retry:   25 * time.Millisecond,
		maxWait: 10 * time.Second,
		logger:  logger,
	}
}

// Acquire берёт все ключи по порядку, ожидая не дольше maxWait
func (r *Redis) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, r.maxWait)
	defer cancel()

	acquired := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := r.acquireOne(waitCtx, redisKeyPrefix+key, token); err != nil {
			r.release(acquired, token)
			return nil, err
		}
		acquired = append(acquired, redisKeyPrefix+key)
	}

	var once sync.Once
	return func() { once.Do(func() { r.release(acquired, token) }) }, nil
}

func (r *Redis) acquireOne(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s: %v", ErrTimeout, key, ctx.Err())
			}
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrTimeout, key, ctx.Err())
		}
	}
}

func (r *Redis) release(keys []string, token string) {
	// Отпускаем даже если контекст запроса уже отменён
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := len(keys) - 1; i >= 0; i-- {
		if err := unlockScript.Run(ctx, r.client, []string{keys[i]}, token).Err(); err != nil {
			r.logger.Warn("Failed to release lock",
				zap.String("key", keys[i]),
				zap.Error(err),
			)
		}
	}
}

// Close закрывает клиента
func (r *Redis) Close() error {
	return r.client.Close()
}
