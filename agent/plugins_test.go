// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/agent/config"
	"github.com/hashicorp/queue-autoscaler/apm/prometheus"
	"github.com/hashicorp/queue-autoscaler/apm/redis"
	"github.com/hashicorp/queue-autoscaler/target/nomad"
	"github.com/stretchr/testify/assert"
)

func TestAgent_newAPMDriver(t *testing.T) {
	testCases := []struct {
		name          string
		plugin        *config.Plugin
		expectedError string
	}{
		{
			name: "redis",
			plugin: &config.Plugin{
				Name:   "jobs",
				Driver: redis.DriverName,
				Config: map[string]string{"address": "127.0.0.1:6379"},
			},
		},
		{
			name: "prometheus",
			plugin: &config.Plugin{
				Name:   "prom",
				Driver: prometheus.DriverName,
				Config: map[string]string{
					"address": "http://127.0.0.1:9090",
					"query":   `rabbitmq_queue_messages_ready{queue="{{queue}}"}`,
				},
			},
		},
		{
			name: "driver config error",
			plugin: &config.Plugin{
				Name:   "jobs",
				Driver: redis.DriverName,
			},
			expectedError: `"address" config value cannot be empty`,
		},
		{
			name: "unknown driver",
			plugin: &config.Plugin{
				Name:   "jobs",
				Driver: "sqs",
			},
			expectedError: `apm "jobs": unknown driver "sqs"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := newAPMDriver(context.Background(), hclog.NewNullLogger(), tc.plugin)
			if tc.expectedError != "" {
				assert.ErrorContains(t, err, tc.expectedError)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, d)
			assert.NoError(t, d.Close())
		})
	}
}

func TestAgent_newTargetDriver(t *testing.T) {
	d, err := newTargetDriver(context.Background(), hclog.NewNullLogger(), &config.Plugin{
		Name:   "nomad",
		Driver: nomad.DriverName,
		Config: map[string]string{"nomad_address": "http://127.0.0.1:4646"},
	})
	assert.NoError(t, err)
	assert.NotNil(t, d)

	_, err = newTargetDriver(context.Background(), hclog.NewNullLogger(), &config.Plugin{
		Name:   "fleet",
		Driver: "gce-mig",
	})
	assert.EqualError(t, err, `target "fleet": unknown driver "gce-mig"`)
}

type flakyConnector struct {
	lock     sync.Mutex
	failures int
	calls    int
}

func (f *flakyConnector) Connect(context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestAgent_connect(t *testing.T) {
	old := connectBackOff
	connectBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
	}
	t.Cleanup(func() { connectBackOff = old })

	testCases := []struct {
		name          string
		failures      int
		expectedCalls int
		expectError   bool
	}{
		{
			name:          "first attempt",
			failures:      0,
			expectedCalls: 1,
		},
		{
			name:          "retried",
			failures:      2,
			expectedCalls: 3,
		},
		{
			name:          "exhausted",
			failures:      10,
			expectedCalls: 4,
			expectError:   true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := &flakyConnector{failures: tc.failures}
			err := connect(context.Background(), hclog.NewNullLogger(), c)
			if tc.expectError {
				assert.EqualError(t, err, "connection refused")
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.expectedCalls, c.calls)
		})
	}
}
