// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package loop

import (
	"fmt"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	errHelper "github.com/hashicorp/queue-autoscaler/sdk/helper/error"
	"github.com/hashicorp/queue-autoscaler/strategy"
	"github.com/hashicorp/queue-autoscaler/target"
)

const (
	DefaultSampleInterval         = 5 * time.Second
	DefaultCooldown               = 120 * time.Second
	DefaultInterCycleDelay        = 30 * time.Second
	DefaultMetricTimeout          = 5 * time.Second
	DefaultMetricRetryLimit       = 3
	DefaultMetricRetryInterval    = time.Second
	DefaultReconnectMaxInterval   = time.Minute
	DefaultActuationRetryInterval = target.DefaultRetryInterval
)

// Config is the fully resolved configuration of a single control loop.
type Config struct {

	// Queue is the name of the queue sampled from the metric source.
	Queue string

	// Group is the name of the scaling group grown by the fleet controller.
	Group string

	// SampleInterval is the delay between two samples within a cycle.
	SampleInterval time.Duration

	// WindowSize is the number of consecutive busy samples required before
	// scaling up.
	WindowSize int

	// Cooldown is the quiet period after a scale up during which no sampling
	// takes place.
	Cooldown time.Duration

	// InterCycleDelay is the pause after a cycle which did not scale.
	InterCycleDelay time.Duration

	// ScaleIncrement is the number of workers added on each scale up.
	ScaleIncrement int

	// MaxActuationAttempts bounds the read-modify-write attempts of a single
	// scale up.
	MaxActuationAttempts int

	// ActuationRetryInterval is the initial backoff between actuation
	// attempts.
	ActuationRetryInterval time.Duration

	// MetricTimeout bounds a single sample call.
	MetricTimeout time.Duration

	// MetricRetryLimit is the number of retries of an unavailable metric
	// within one sampling slot, spaced by MetricRetryInterval.
	MetricRetryLimit    int
	MetricRetryInterval time.Duration

	// ReconnectMaxInterval caps the exponential backoff used while
	// re-establishing a lost broker connection. The backoff starts at
	// MetricRetryInterval.
	ReconnectMaxInterval time.Duration
}

// DefaultConfig returns a Config with every tunable set to its default.
func DefaultConfig() Config {
	return Config{
		SampleInterval:         DefaultSampleInterval,
		WindowSize:             strategy.DefaultWindowSize,
		Cooldown:               DefaultCooldown,
		InterCycleDelay:        DefaultInterCycleDelay,
		ScaleIncrement:         target.DefaultScaleIncrement,
		MaxActuationAttempts:   target.DefaultMaxActuationAttempts,
		ActuationRetryInterval: DefaultActuationRetryInterval,
		MetricTimeout:          DefaultMetricTimeout,
		MetricRetryLimit:       DefaultMetricRetryLimit,
		MetricRetryInterval:    DefaultMetricRetryInterval,
		ReconnectMaxInterval:   DefaultReconnectMaxInterval,
	}
}

// Validate checks the Config for values the control loop cannot run with.
func (c Config) Validate() error {
	var mErr *multierror.Error

	if c.Queue == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("queue cannot be empty"))
	}
	if c.Group == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("group cannot be empty"))
	}
	if c.WindowSize < 1 {
		mErr = multierror.Append(mErr, fmt.Errorf("window_size must be positive, got %d", c.WindowSize))
	}
	if c.ScaleIncrement < 1 {
		mErr = multierror.Append(mErr, fmt.Errorf("scale_increment must be positive, got %d", c.ScaleIncrement))
	}
	if c.MaxActuationAttempts < 1 {
		mErr = multierror.Append(mErr, fmt.Errorf("max_actuation_attempts must be positive, got %d", c.MaxActuationAttempts))
	}
	if c.MetricRetryLimit < 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("metric_retry_limit cannot be negative, got %d", c.MetricRetryLimit))
	}

	durations := []struct {
		name string
		val  time.Duration
	}{
		{"sample_interval", c.SampleInterval},
		{"cooldown", c.Cooldown},
		{"inter_cycle_delay", c.InterCycleDelay},
		{"metric_timeout", c.MetricTimeout},
		{"metric_retry_interval", c.MetricRetryInterval},
		{"reconnect_max_interval", c.ReconnectMaxInterval},
		{"actuation_retry_interval", c.ActuationRetryInterval},
	}
	for _, d := range durations {
		if d.val < 0 {
			mErr = multierror.Append(mErr, fmt.Errorf("%s cannot be negative, got %s", d.name, d.val))
		}
	}

	return errHelper.FormattedMultiError(mErr)
}
