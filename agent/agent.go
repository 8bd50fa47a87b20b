// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/agent/config"
	agentHTTP "github.com/hashicorp/queue-autoscaler/agent/http"
	"github.com/hashicorp/queue-autoscaler/ha"
	"github.com/hashicorp/queue-autoscaler/loop"
	errHelper "github.com/hashicorp/queue-autoscaler/sdk/helper/error"
	"github.com/hashicorp/queue-autoscaler/target"
)

// ErrBackendConnect is returned by Run when the initial connection to a
// metric source or fleet controller could not be made.
var ErrBackendConnect = errors.New("failed to connect to backend")

var _ agentHTTP.AgentHTTP = (*Agent)(nil)

type Agent struct {
	logger    hclog.Logger
	config    *config.Agent
	inMemSink *metrics.InmemSink

	// loops is populated before the HTTP server starts and is not modified
	// afterwards.
	loops []*loop.ControlLoop

	// closers holds every driver built by the agent so they can be closed on
	// shutdown.
	closers []io.Closer

	newAPM    apmFactory
	newTarget targetFactory
}

func NewAgent(c *config.Agent, logger hclog.Logger) *Agent {
	return &Agent{
		logger:    logger,
		config:    c,
		newAPM:    newAPMDriver,
		newTarget: newTargetDriver,
	}
}

// Run builds and connects every configured loop, then runs them until the
// context is cancelled. Errors are only returned for problems found during
// startup.
func (a *Agent) Run(ctx context.Context) error {
	defer a.stop()

	// Setup the telemetry sinks.
	inMem, err := setupTelemetry(a.config.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %v", err)
	}
	a.inMemSink = inMem

	if err := a.setupLoops(ctx); err != nil {
		if ctx.Err() != nil {
			a.logger.Info("context closed during startup")
			return nil
		}
		return err
	}

	runners, closeHA, err := a.setupRunners()
	if err != nil {
		return fmt.Errorf("failed to setup high availability: %v", err)
	}
	defer closeHA()

	httpServer, err := agentHTTP.NewHTTPServer(
		a.config.EnableDebug, a.config.Telemetry.PrometheusMetrics, a.config.HTTP, a.logger, a)
	if err != nil {
		return fmt.Errorf("failed to setup HTTP server: %v", err)
	}
	go httpServer.Start()
	defer httpServer.Stop()

	var wg sync.WaitGroup
	for _, run := range runners {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	a.logger.Info("started control loops", "count", len(runners))

	<-ctx.Done()
	a.logger.Info("context closed, waiting for control loops to stop")
	wg.Wait()

	return nil
}

// setupLoops builds one metric source and one fleet controller per loop and
// connects them. A driver failing to build is a configuration problem, while
// a driver failing to connect results in ErrBackendConnect.
func (a *Agent) setupLoops(ctx context.Context) error {
	apms := pluginsByName(a.config.APMs)
	targets := pluginsByName(a.config.Targets)

	for _, lc := range a.config.Loops {
		logger := a.logger.With("loop", lc.Name)

		apmCfg, ok := apms[lc.APM]
		if !ok {
			return fmt.Errorf("loop %q: apm %q not configured", lc.Name, lc.APM)
		}
		targetCfg, ok := targets[lc.Target]
		if !ok {
			return fmt.Errorf("loop %q: target %q not configured", lc.Name, lc.Target)
		}

		src, err := a.newAPM(ctx, logger, apmCfg)
		if err != nil {
			return fmt.Errorf("loop %q: %v", lc.Name, err)
		}
		a.closers = append(a.closers, src)

		fc, err := a.newTarget(ctx, logger, targetCfg)
		if err != nil {
			return fmt.Errorf("loop %q: %v", lc.Name, err)
		}
		a.closers = append(a.closers, fc)

		if err := connect(ctx, logger.With("apm", apmCfg.Name), src); err != nil {
			return fmt.Errorf("%w: loop %q apm %q: %w", ErrBackendConnect, lc.Name, apmCfg.Name, err)
		}
		if err := connect(ctx, logger.With("target", targetCfg.Name), fc); err != nil {
			return fmt.Errorf("%w: loop %q target %q: %w", ErrBackendConnect, lc.Name, targetCfg.Name, err)
		}

		cfg := lc.LoopConfig()
		actuator := target.NewActuator(logger, fc, target.ActuatorConfig{
			Increment:     cfg.ScaleIncrement,
			MaxAttempts:   cfg.MaxActuationAttempts,
			RetryInterval: cfg.ActuationRetryInterval,
		})

		a.loops = append(a.loops, loop.New(a.logger, lc.Name, cfg, src, actuator))
		logger.Info("connected loop backends", "apm", apmCfg.Name, "target", targetCfg.Name)
	}

	return nil
}

// setupRunners returns a function per loop which runs it. When high
// availability is enabled the loop only runs while this agent holds the lock
// of its scaling group. The returned close function must always be called.
func (a *Agent) setupRunners() ([]func(context.Context), func(), error) {
	runners := make([]func(context.Context), 0, len(a.loops))

	haCfg := a.config.HighAvailability
	if !haCfg.IsEnabled() {
		for _, l := range a.loops {
			runners = append(runners, l.Run)
		}
		return runners, func() {}, nil
	}

	id := ha.AgentID()
	haLogger := a.logger.Named("ha")

	backend, err := ha.NewBackend(haLogger, haCfg.Backend, id, haCfg.LeaseTTL, haCfg.Config)
	if err != nil {
		return nil, nil, err
	}

	haLogger.Info("high availability enabled", "backend", haCfg.Backend, "agent_id", id)

	for _, l := range a.loops {
		key := ha.LockKey(haCfg.LockPath, l.Group())
		logger := haLogger.With("loop", l.Name(), "key", key)
		ctrl := ha.NewController(logger, id, backend.Lock(key), haCfg.RenewalPeriod, haCfg.WaitPeriod)

		runners = append(runners, func(ctx context.Context) {
			if err := ctrl.Start(ctx, l.Run); err != nil {
				logger.Error("high availability controller stopped", "error", err)
			}
		})
	}

	closeFn := func() {
		if err := backend.Close(); err != nil {
			haLogger.Warn("failed to close high availability backend", "error", err)
		}
	}
	return runners, closeFn, nil
}

// stop closes every driver built by the agent.
func (a *Agent) stop() {
	errs := make([]error, 0, len(a.closers))
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil

	if err := errHelper.Combine(errs...); err != nil {
		a.logger.Warn("failed to close drivers", "error", err)
	}
}

// Loops returns the status of every loop run by the agent.
func (a *Agent) Loops() []loop.Status {
	out := make([]loop.Status, 0, len(a.loops))
	for _, l := range a.loops {
		out = append(out, l.Status())
	}
	return out
}

func (a *Agent) DisplayMetrics(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	return a.inMemSink.DisplayMetrics(resp, req)
}

func (a *Agent) ListLoops(_ http.ResponseWriter, _ *http.Request) (interface{}, error) {
	return a.Loops(), nil
}

func (a *Agent) GetLoop(_ http.ResponseWriter, _ *http.Request, name string) (interface{}, error) {
	for _, l := range a.loops {
		if l.Name() == name {
			return l.Status(), nil
		}
	}
	return nil, nil
}

func pluginsByName(plugins []*config.Plugin) map[string]*config.Plugin {
	out := make(map[string]*config.Plugin, len(plugins))
	for _, p := range plugins {
		out[p.Name] = p
	}
	return out
}
