// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/agent/config"
	"github.com/hashicorp/queue-autoscaler/apm"
	"github.com/hashicorp/queue-autoscaler/ha"
	"github.com/hashicorp/queue-autoscaler/loop"
	"github.com/hashicorp/queue-autoscaler/sdk"
	"github.com/hashicorp/queue-autoscaler/sdk/helper/ptr"
	"github.com/hashicorp/queue-autoscaler/target"
	"github.com/shoenig/test/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noRetryConnect makes connect try a backend exactly once for the duration
// of the test.
func noRetryConnect(t *testing.T) {
	old := connectBackOff
	connectBackOff = func() backoff.BackOff { return &backoff.StopBackOff{} }
	t.Cleanup(func() { connectBackOff = old })
}

func testAgentConfig() *config.Agent {
	cfg := config.Default()
	cfg.HTTP.BindPort = 0
	cfg.APMs = []*config.Plugin{{Name: "rabbit", Driver: "mock"}}
	cfg.Targets = []*config.Plugin{{Name: "fleet", Driver: "mock"}}
	cfg.Loops = []*config.Loop{
		{
			Name:            "render",
			Queue:           "render-jobs",
			Group:           "render-workers",
			APM:             "rabbit",
			Target:          "fleet",
			SampleInterval:  time.Millisecond,
			WindowSize:      ptr.Of(2),
			Cooldown:        time.Hour,
			InterCycleDelay: time.Hour,
		},
	}
	return cfg
}

func testAgent(cfg *config.Agent, src *apm.MockMetricSource, fc *target.MockFleetController) *Agent {
	a := NewAgent(cfg, hclog.NewNullLogger())
	a.newAPM = func(context.Context, hclog.Logger, *config.Plugin) (apm.Driver, error) { return src, nil }
	a.newTarget = func(context.Context, hclog.Logger, *config.Plugin) (target.Driver, error) { return fc, nil }
	return a
}

func runAgent(t *testing.T, a *Agent) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, errCh
}

func TestAgent_Run(t *testing.T) {
	noRetryConnect(t)

	src := apm.NewMockMetricSourceDepths(5)
	fc := target.NewMockFleetController(sdk.Group{Name: "render-workers", Desired: 1, Min: 1, Max: 10})
	a := testAgent(testAgentConfig(), src, fc)

	cancel, errCh := runAgent(t, a)

	require.Eventually(t, func() bool { return len(fc.Writes()) == 1 }, 5*time.Second, 5*time.Millisecond)
	// Desired 1 plus the default increment of 2.
	must.Eq(t, []int{3}, fc.Writes())

	require.Eventually(t, func() bool {
		s, _ := a.GetLoop(nil, nil, "render")
		return s != nil && s.(loop.Status).Mode == loop.ModeCooldown.String()
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		must.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}

	must.True(t, src.Closed())
	must.True(t, fc.Closed())
}

func TestAgent_Run_connectFailure(t *testing.T) {
	noRetryConnect(t)

	testCases := []struct {
		name       string
		apmErr     error
		targetErr  error
		expectedIn string
	}{
		{
			name:       "apm",
			apmErr:     errors.New("connection refused"),
			expectedIn: `apm "rabbit"`,
		},
		{
			name:       "target",
			targetErr:  errors.New("no credentials"),
			expectedIn: `target "fleet"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := apm.NewMockMetricSourceDepths(0)
			src.SetConnectErr(tc.apmErr)
			fc := target.NewMockFleetController()
			fc.SetConnectErr(tc.targetErr)

			err := testAgent(testAgentConfig(), src, fc).Run(context.Background())
			must.ErrorIs(t, err, ErrBackendConnect)
			must.StrContains(t, err.Error(), tc.expectedIn)
			must.True(t, src.Closed())
			must.True(t, fc.Closed())
		})
	}
}

func TestAgent_Run_unknownDriver(t *testing.T) {
	cfg := testAgentConfig()
	cfg.APMs[0].Driver = "kafka"

	err := NewAgent(cfg, hclog.NewNullLogger()).Run(context.Background())
	must.Error(t, err)
	must.False(t, errors.Is(err, ErrBackendConnect))
	must.StrContains(t, err.Error(), `unknown driver "kafka"`)
}

func TestAgent_Run_highAvailability(t *testing.T) {
	noRetryConnect(t)

	srv := miniredis.RunT(t)

	cfg := testAgentConfig()
	cfg.HighAvailability.Enabled = ptr.Of(true)
	cfg.HighAvailability.Backend = ha.BackendRedis
	cfg.HighAvailability.Config = map[string]string{"address": srv.Addr()}

	src := apm.NewMockMetricSourceDepths(5)
	fc := target.NewMockFleetController(sdk.Group{Name: "render-workers", Desired: 1, Min: 1, Max: 10})
	a := testAgent(cfg, src, fc)

	cancel, errCh := runAgent(t, a)

	require.Eventually(t, func() bool { return len(fc.Writes()) == 1 }, 5*time.Second, 5*time.Millisecond)
	must.True(t, srv.Exists("queue-autoscaler/lock/render-workers"))

	cancel()
	select {
	case err := <-errCh:
		must.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}

	// The lock is released once the loop stops.
	must.False(t, srv.Exists("queue-autoscaler/lock/render-workers"))
}

func TestAgent_Run_cancelledDuringStartup(t *testing.T) {
	src := apm.NewMockMetricSourceDepths(0)
	src.SetConnectErr(errors.New("connection refused"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := testAgent(testAgentConfig(), src, target.NewMockFleetController()).Run(ctx)
	must.NoError(t, err)
}

func TestAgent_GetLoop(t *testing.T) {
	cfg := loop.DefaultConfig()
	cfg.Queue = "render-jobs"
	cfg.Group = "render-workers"

	a := NewAgent(config.Default(), hclog.NewNullLogger())
	a.loops = []*loop.ControlLoop{
		loop.New(hclog.NewNullLogger(), "render", cfg, apm.NewMockMetricSource(), nil),
	}

	out, err := a.GetLoop(nil, nil, "render")
	assert.NoError(t, err)
	assert.Equal(t, "render-workers", out.(loop.Status).Group)

	out, err = a.GetLoop(nil, nil, "missing")
	assert.NoError(t, err)
	assert.Nil(t, out)

	list, err := a.ListLoops(nil, nil)
	assert.NoError(t, err)
	assert.Len(t, list, 1)
}
