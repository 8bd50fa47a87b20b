// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ha

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/sdk/helper/uuid"
)

const (
	configKeyRedisAddress  = "address"
	configKeyRedisPassword = "password"
	configKeyRedisDB       = "db"

	defaultRedisAddress = "127.0.0.1:6379"
)

// Both scripts only act when the key still holds this lock's token, so a
// lock which expired and was taken by another agent is never touched.
const (
	redisRenewScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end`

	redisReleaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`
)

type redisBackend struct {
	client  *redis.Client
	agentID string
	ttl     time.Duration
	logger  log.Logger
}

func newRedisBackend(logger log.Logger, agentID string, ttl time.Duration, config map[string]string) (*redisBackend, error) {
	opts := &redis.Options{Addr: defaultRedisAddress}

	if addr, ok := config[configKeyRedisAddress]; ok && addr != "" {
		opts.Addr = addr
	}
	opts.Password = config[configKeyRedisPassword]

	if db, ok := config[configKeyRedisDB]; ok && db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %q: %v", configKeyRedisDB, err)
		}
		opts.DB = n
	}

	return &redisBackend{
		client:  redis.NewClient(opts),
		agentID: agentID,
		ttl:     ttl,
		logger:  logger.Named(BackendRedis),
	}, nil
}

func (b *redisBackend) Lock(key string) Lock {
	return &redisLock{
		client: b.client,
		key:    key,
		token:  b.agentID + "/" + uuid.Generate(),
		ttl:    b.ttl,
	}
}

func (b *redisBackend) Close() error { return b.client.Close() }

// redisLock is a lease lock stored as a single key set with NX and a PX
// expiry. The value is a token unique to the lock instance.
type redisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func (l *redisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %q: %w", l.key, err)
	}
	return ok, nil
}

func (l *redisLock) Renew(ctx context.Context) error {
	n, err := l.client.Eval(ctx, redisRenewScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to renew lock %q: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *redisLock) Release(ctx context.Context) error {
	_, err := l.client.Eval(ctx, redisReleaseScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %q: %w", l.key, err)
	}
	return nil
}
