// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/agent/config"
	"github.com/hashicorp/queue-autoscaler/apm"
	"github.com/hashicorp/queue-autoscaler/apm/amqp"
	"github.com/hashicorp/queue-autoscaler/apm/asynq"
	"github.com/hashicorp/queue-autoscaler/apm/prometheus"
	"github.com/hashicorp/queue-autoscaler/apm/redis"
	"github.com/hashicorp/queue-autoscaler/target"
	"github.com/hashicorp/queue-autoscaler/target/awsasg"
	"github.com/hashicorp/queue-autoscaler/target/kubernetes"
	"github.com/hashicorp/queue-autoscaler/target/nomad"
)

// apmFactory builds the metric source described by an apm block.
type apmFactory func(ctx context.Context, logger hclog.Logger, p *config.Plugin) (apm.Driver, error)

// targetFactory builds the fleet controller described by a target block.
type targetFactory func(ctx context.Context, logger hclog.Logger, p *config.Plugin) (target.Driver, error)

// newAPMDriver is the default apmFactory and knows every built in metric
// source driver.
func newAPMDriver(_ context.Context, logger hclog.Logger, p *config.Plugin) (apm.Driver, error) {
	logger = logger.With("apm", p.Name)

	switch p.Driver {
	case amqp.DriverName:
		return amqp.New(logger, p.Config)
	case asynq.DriverName:
		return asynq.New(logger, p.Config)
	case prometheus.DriverName:
		return prometheus.New(logger, p.Config)
	case redis.DriverName:
		return redis.New(logger, p.Config)
	default:
		return nil, fmt.Errorf("apm %q: unknown driver %q", p.Name, p.Driver)
	}
}

// newTargetDriver is the default targetFactory and knows every built in
// fleet controller driver.
func newTargetDriver(ctx context.Context, logger hclog.Logger, p *config.Plugin) (target.Driver, error) {
	logger = logger.With("target", p.Name)

	switch p.Driver {
	case awsasg.DriverName:
		return awsasg.New(ctx, logger, p.Config)
	case kubernetes.DriverName:
		return kubernetes.New(logger, p.Config)
	case nomad.DriverName:
		return nomad.New(logger, p.Config)
	default:
		return nil, fmt.Errorf("target %q: unknown driver %q", p.Name, p.Driver)
	}
}

// connectBackOff returns the policy used while making the initial connection
// to a backend. It is a variable so tests can shorten it.
var connectBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	return b
}

// connector is satisfied by both apm.Driver and target.Driver.
type connector interface {
	Connect(ctx context.Context) error
}

// connect calls Connect until it succeeds, the backoff policy gives up or
// the context is cancelled.
func connect(ctx context.Context, logger hclog.Logger, c connector) error {
	op := func() error { return c.Connect(ctx) }
	notify := func(err error, d time.Duration) {
		logger.Warn("failed to connect to backend, retrying", "error", err, "retry_in", d)
	}
	return backoff.RetryNotify(op, backoff.WithContext(connectBackOff(), ctx), notify)
}
