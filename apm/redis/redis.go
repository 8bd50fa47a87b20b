// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/apm"
)

const (
	// DriverName is the name used to reference this driver within agent
	// configuration.
	DriverName = "redis"

	configKeyAddress   = "address"
	configKeyPassword  = "password"
	configKeyDB        = "db"
	configKeyKeyPrefix = "key_prefix"
)

var _ apm.Driver = (*Source)(nil)

// Source reads queue depth as the length of a Redis list. Workers are
// expected to consume with BRPOP/BLPOP or similar.
type Source struct {
	client    *redis.Client
	keyPrefix string
	logger    hclog.Logger
}

// New returns a Source configured from the passed driver config.
func New(logger hclog.Logger, config map[string]string) (*Source, error) {
	opts, err := parseOptions(config)
	if err != nil {
		return nil, err
	}

	return &Source{
		client:    redis.NewClient(opts),
		keyPrefix: config[configKeyKeyPrefix],
		logger:    logger.Named(DriverName).With("address", opts.Addr, "db", opts.DB),
	}, nil
}

func parseOptions(config map[string]string) (*redis.Options, error) {
	addr, ok := config[configKeyAddress]
	if !ok || addr == "" {
		return nil, fmt.Errorf("%q config value cannot be empty", configKeyAddress)
	}

	opts := redis.Options{
		Addr:     addr,
		Password: config[configKeyPassword],
	}

	if db := config[configKeyDB]; db != "" {
		n, err := strconv.Atoi(db)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %q value %q", configKeyDB, db)
		}
		opts.DB = n
	}
	return &opts, nil
}

// Connect verifies the server is reachable.
func (s *Source) Connect(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %v", err)
	}
	s.logger.Debug("connected to redis")
	return nil
}

// Sample returns the length of the list backing the queue. Redis removes
// empty lists, so a missing key is reported as an empty queue. A key holding
// another data type is treated as unavailable.
func (s *Source) Sample(ctx context.Context, queue string) (int, error) {
	n, err := s.client.LLen(ctx, s.keyPrefix+queue).Result()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %v", apm.ErrMetricUnavailable, err)
	}
	return int(n), nil
}

func (s *Source) Close() error { return s.client.Close() }
