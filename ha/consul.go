// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ha

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
	log "github.com/hashicorp/go-hclog"
)

const (
	configKeyConsulAddress    = "address"
	configKeyConsulScheme     = "scheme"
	configKeyConsulToken      = "token"
	configKeyConsulDatacenter = "datacenter"
	configKeyConsulNamespace  = "namespace"

	// consulLockWaitTime bounds the blocking query made by a single
	// acquisition attempt.
	consulLockWaitTime = time.Second

	// consulMinSessionTTL is the smallest session TTL Consul accepts.
	consulMinSessionTTL = 10 * time.Second
)

type consulBackend struct {
	client  *api.Client
	agentID string
	ttl     time.Duration
	logger  log.Logger
}

func newConsulBackend(logger log.Logger, agentID string, ttl time.Duration, config map[string]string) (*consulBackend, error) {
	client, err := api.NewClient(consulConfigFromMap(config))
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate Consul client: %v", err)
	}

	if ttl < consulMinSessionTTL {
		ttl = consulMinSessionTTL
	}

	return &consulBackend{
		client:  client,
		agentID: agentID,
		ttl:     ttl,
		logger:  logger.Named(BackendConsul),
	}, nil
}

// consulConfigFromMap starts from the Consul defaults, which honour the
// standard CONSUL_* environment variables, and overlays the passed config.
func consulConfigFromMap(config map[string]string) *api.Config {
	cfg := api.DefaultConfig()

	if addr, ok := config[configKeyConsulAddress]; ok && addr != "" {
		cfg.Address = addr
	}
	if scheme, ok := config[configKeyConsulScheme]; ok && scheme != "" {
		cfg.Scheme = scheme
	}
	if token, ok := config[configKeyConsulToken]; ok && token != "" {
		cfg.Token = token
	}
	if dc, ok := config[configKeyConsulDatacenter]; ok && dc != "" {
		cfg.Datacenter = dc
	}
	if ns, ok := config[configKeyConsulNamespace]; ok && ns != "" {
		cfg.Namespace = ns
	}
	return cfg
}

func (b *consulBackend) Lock(key string) Lock {
	return &consulLock{
		client: b.client,
		opts: &api.LockOptions{
			Key:          key,
			SessionName:  fmt.Sprintf("queue-autoscaler-%s", b.agentID),
			SessionTTL:   b.ttl.String(),
			LockTryOnce:  true,
			LockWaitTime: consulLockWaitTime,
		},
	}
}

// Close is a no-op, the Consul client holds no resources which need
// releasing.
func (b *consulBackend) Close() error { return nil }

// consulLock wraps a Consul session lock. The session is renewed in the
// background by the Consul client, Renew only reports whether the lock is
// still held.
type consulLock struct {
	client *api.Client
	opts   *api.LockOptions

	mu     sync.Mutex
	lock   *api.Lock
	lostCh <-chan struct{}
}

func (c *consulLock) Acquire(ctx context.Context) (bool, error) {
	l, err := c.client.LockOpts(c.opts)
	if err != nil {
		return false, fmt.Errorf("failed to create lock %q: %w", c.opts.Key, err)
	}

	stopCh := make(chan struct{})
	stop := context.AfterFunc(ctx, func() { close(stopCh) })
	defer stop()

	lostCh, err := l.Lock(stopCh)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %q: %w", c.opts.Key, err)
	}

	// A nil channel without error means another session holds the lock.
	if lostCh == nil {
		return false, nil
	}

	c.mu.Lock()
	c.lock, c.lostCh = l, lostCh
	c.mu.Unlock()
	return true, nil
}

func (c *consulLock) Renew(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lostCh == nil {
		return ErrLockLost
	}

	select {
	case <-c.lostCh:
		return ErrLockLost
	default:
		return nil
	}
}

func (c *consulLock) Release(_ context.Context) error {
	c.mu.Lock()
	l := c.lock
	c.lock, c.lostCh = nil, nil
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	if err := l.Unlock(); err != nil && !errors.Is(err, api.ErrLockNotHeld) {
		return fmt.Errorf("failed to release lock %q: %w", c.opts.Key, err)
	}
	return nil
}
