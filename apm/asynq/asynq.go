// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package asynq

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/apm"
	"github.com/hibiken/asynq"
)

const (
	// DriverName is the name used to reference this driver within agent
	// configuration.
	DriverName = "asynq"

	configKeyAddress  = "address"
	configKeyPassword = "password"
	configKeyDB       = "db"
)

var _ apm.Driver = (*Source)(nil)

// inspector is the subset of *asynq.Inspector used by the Source.
type inspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// Source reads the number of pending tasks in an asynq queue.
type Source struct {
	inspector inspector
	logger    hclog.Logger
}

// New returns a Source configured from the passed driver config.
func New(logger hclog.Logger, config map[string]string) (*Source, error) {
	addr, ok := config[configKeyAddress]
	if !ok || addr == "" {
		return nil, fmt.Errorf("%q config value cannot be empty", configKeyAddress)
	}

	opt := asynq.RedisClientOpt{
		Addr:     addr,
		Password: config[configKeyPassword],
	}

	if db := config[configKeyDB]; db != "" {
		n, err := strconv.Atoi(db)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %q value %q", configKeyDB, db)
		}
		opt.DB = n
	}

	return &Source{
		inspector: asynq.NewInspector(opt),
		logger:    logger.Named(DriverName).With("address", addr),
	}, nil
}

// Connect verifies the backing Redis is reachable by listing queues.
func (s *Source) Connect(_ context.Context) error {
	queues, err := s.inspector.Queues()
	if err != nil {
		return fmt.Errorf("failed to connect to asynq redis: %v", err)
	}
	s.logger.Debug("connected to asynq redis", "queues", len(queues))
	return nil
}

// Sample returns the number of tasks in the pending state. Scheduled and
// retrying tasks are not counted as backlog until they become pending.
func (s *Source) Sample(_ context.Context, queue string) (int, error) {
	info, err := s.inspector.GetQueueInfo(queue)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return 0, fmt.Errorf("%w: queue %q not found", apm.ErrMetricUnavailable, queue)
		}
		return 0, fmt.Errorf("%w: %v", apm.ErrMetricUnavailable, err)
	}
	return info.Pending, nil
}

func (s *Source) Close() error { return s.inspector.Close() }
