package lock

import (
	"context"
	"time"

	"log/slog"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease cannot release a successor's lock.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

const acquirePollInterval = 50 * time.Millisecond

// RedisLocker implements Locker on a shared Redis instance using SET NX PX.
type RedisLocker struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker constructs a RedisLocker and verifies connectivity.
func NewRedisLocker(addr, password string, db int, logger *slog.Logger) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisLocker{
		client: client,
		logger: logger,
		prefix: "zhiyin:lock:",
	}, nil
}

// TryAcquire attempts SET NX PX on the named key. With zero wait a held lock
// fails immediately with ErrNotAcquired; otherwise acquisition is retried
// until wait elapses.
func (l *RedisLocker) TryAcquire(ctx context.Context, name string, wait, lease time.Duration) (*Lease, error) {
	key := l.prefix + name
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, lease).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lease{
				Name:  name,
				Token: token,
				release: func(releaseCtx context.Context) error {
					return l.releaseKey(releaseCtx, key, token)
				},
			}, nil
		}
		if !time.Now().Add(acquirePollInterval).Before(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}
}

func (l *RedisLocker) releaseKey(ctx context.Context, key, token string) error {
	if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		l.logger.Error("lock release failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Close releases the underlying client.
func (l *RedisLocker) Close() {
	_ = l.client.Close()
}
