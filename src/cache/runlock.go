package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const DefaultLockKey = "chai_counter_run_lock"

// only the owner may release, otherwise an expired run could free a newer lock
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RunLock struct {
	client *redis.Client
	key    string
}

// NewRunLock guards key, or DefaultLockKey when key is empty.
func NewRunLock(client *redis.Client, key string) *RunLock {
	if key == "" {
		key = DefaultLockKey
	}
	return &RunLock{
		client: client,
		key:    key,
	}
}

func ConfigureRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rd := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0, // use default DB
	})
	if err := rd.Ping(ctx); err.Err() != nil {
		return nil, errors.Wrapf(err.Err(), "failed to ping redis at %s", addr)
	}
	return rd, nil
}

func (rl *RunLock) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	cmd := rl.client.SetNX(ctx, rl.key, owner, ttl)
	return cmd.Result()
}

func (rl *RunLock) Release(ctx context.Context, owner string) error {
	return releaseScript.Run(ctx, rl.client, []string{rl.key}, owner).Err()
}

func (rl *RunLock) Owner(ctx context.Context) (string, error) {
	owner, err := rl.client.Get(ctx, rl.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return owner, err
}
