// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package loop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/apm"
	"github.com/hashicorp/queue-autoscaler/helper/retry"
	"github.com/hashicorp/queue-autoscaler/sdk"
	"github.com/hashicorp/queue-autoscaler/sdk/helper/metrics"
	"github.com/hashicorp/queue-autoscaler/strategy"
	"github.com/hashicorp/queue-autoscaler/target"
)

// Mode is the current occupation of a control loop. It works as a state
// machine with the following rules:
//
//	          ┌─────────────────────────────────────┐
//	          │                                     │
//	┌─────────▼┐ scale up / saturated ┌──────────┐  │
//	│ Sampling ├─────────────────────►│ Cooldown ├──┤
//	└──┬────┬──┘                      └──────────┘  │
//	   │    │ broker lost          ┌──────────────┐ │
//	   │    └─────────────────────►│ Reconnecting ├─┤
//	   │ hold / failed             └──────────────┘ │
//	   │                           ┌─────────┐      │
//	   └──────────────────────────►│ Waiting ├──────┘
//	                               └─────────┘
//
// A lost broker connection on a source which cannot reconnect is handled as
// a hold.
type Mode int

const (
	ModeSampling Mode = iota
	ModeWaiting
	ModeCooldown
	ModeReconnecting
)

func (m Mode) String() string {
	switch m {
	case ModeSampling:
		return "sampling"
	case ModeWaiting:
		return "waiting"
	case ModeCooldown:
		return "cooldown"
	case ModeReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// nowFunc is the function used to get the current time. It can be overridden
// within tests.
var nowFunc = time.Now

// Scaler performs a scale up of a named group. *target.Actuator satisfies
// this interface.
type Scaler interface {
	ScaleUp(ctx context.Context, group string) (target.Result, error)
}

// CooldownState tracks the last scale up of a single loop.
type CooldownState struct {
	LastScaleUp time.Time
	Duration    time.Duration
}

// Until returns the time at which the cooldown ends. It is the zero time if
// the loop has never scaled.
func (c CooldownState) Until() time.Time {
	if c.LastScaleUp.IsZero() {
		return time.Time{}
	}
	return c.LastScaleUp.Add(c.Duration)
}

// Remaining returns how long the cooldown still lasts at now.
func (c CooldownState) Remaining(now time.Time) time.Duration {
	until := c.Until()
	if until.IsZero() || !now.Before(until) {
		return 0
	}
	return until.Sub(now)
}

// Status is a point in time snapshot of a control loop.
type Status struct {
	Name          string    `json:"name"`
	Queue         string    `json:"queue"`
	Group         string    `json:"group"`
	Mode          string    `json:"mode"`
	WindowLength  int       `json:"window_length"`
	WindowSize    int       `json:"window_size"`
	LastDepth     int       `json:"last_depth"`
	LastSample    time.Time `json:"last_sample"`
	LastDecision  string    `json:"last_decision"`
	Desired       int       `json:"desired"`
	Saturated     bool      `json:"saturated"`
	LastScaleUp   time.Time `json:"last_scale_up"`
	CooldownUntil time.Time `json:"cooldown_until"`
	LastError     string    `json:"last_error,omitempty"`
}

// cycleResult tells Run what to do once a sampling cycle finishes.
type cycleResult int

const (
	cycleHold cycleResult = iota
	cycleScaled
	cycleDisconnected
	cycleCancelled
)

// ControlLoop samples a single queue and grows a single scaling group. It
// performs sampling, decision and actuation strictly sequentially and owns
// its window and cooldown state exclusively.
type ControlLoop struct {
	name   string
	cfg    Config
	source apm.MetricSource
	scaler Scaler
	engine *strategy.Engine
	logger hclog.Logger
	labels []metrics.Label

	cooldown CooldownState

	statusLock sync.RWMutex
	status     Status
}

// New returns a ControlLoop. The passed config must already be validated.
func New(logger hclog.Logger, name string, cfg Config, src apm.MetricSource, scaler Scaler) *ControlLoop {
	return &ControlLoop{
		name:     name,
		cfg:      cfg,
		source:   src,
		scaler:   scaler,
		engine:   strategy.NewEngine(cfg.WindowSize),
		logger:   logger.Named("loop").With("loop", name, "queue", cfg.Queue, "group", cfg.Group),
		labels:   []metrics.Label{{Name: "queue", Value: cfg.Queue}, {Name: "group", Value: cfg.Group}},
		cooldown: CooldownState{Duration: cfg.Cooldown},
		status: Status{
			Name:       name,
			Queue:      cfg.Queue,
			Group:      cfg.Group,
			Mode:       ModeSampling.String(),
			WindowSize: cfg.WindowSize,
		},
	}
}

// Name returns the configured name of the loop.
func (l *ControlLoop) Name() string { return l.name }

// Group returns the scaling group managed by the loop.
func (l *ControlLoop) Group() string { return l.cfg.Group }

// Status returns a snapshot of the loop state.
func (l *ControlLoop) Status() Status {
	l.statusLock.RLock()
	defer l.statusLock.RUnlock()
	return l.status
}

func (l *ControlLoop) updateStatus(f func(s *Status)) {
	l.statusLock.Lock()
	defer l.statusLock.Unlock()
	f(&l.status)
}

func (l *ControlLoop) setMode(m Mode) {
	l.updateStatus(func(s *Status) { s.Mode = m.String() })
}

// Run executes the loop until ctx is cancelled. Every wait is interrupted
// promptly on cancellation.
func (l *ControlLoop) Run(ctx context.Context) {
	l.logger.Info("starting control loop",
		"window_size", l.cfg.WindowSize, "sample_interval", l.cfg.SampleInterval,
		"cooldown", l.cfg.Cooldown, "inter_cycle_delay", l.cfg.InterCycleDelay)
	defer l.logger.Info("stopped control loop")

	for {
		var err error

		switch l.runCycle(ctx) {
		case cycleCancelled:
			return

		case cycleScaled:
			l.setMode(ModeCooldown)
			remaining := l.cooldown.Remaining(nowFunc())
			l.logger.Debug("entering cooldown", "remaining", remaining)
			err = retry.Sleep(ctx, remaining)

		case cycleDisconnected:
			l.discardWindow()
			if rc, ok := l.source.(apm.Reconnector); ok {
				err = l.reconnect(ctx, rc)
				break
			}
			l.setMode(ModeWaiting)
			err = retry.Sleep(ctx, l.cfg.InterCycleDelay)

		default:
			l.discardWindow()
			l.setMode(ModeWaiting)
			err = retry.Sleep(ctx, l.cfg.InterCycleDelay)
		}

		if err != nil {
			return
		}
	}
}

// discardWindow drops the samples of a cycle which ended without a decision,
// so every cycle starts from an empty window.
func (l *ControlLoop) discardWindow() {
	l.engine.Reset()
	metrics.SetGaugeWithLabels([]string{"loop", "window_length"}, 0, l.labels)
	l.updateStatus(func(s *Status) { s.WindowLength = 0 })
}

// runCycle collects up to WindowSize samples, feeding each one to the engine
// as soon as it is taken.
func (l *ControlLoop) runCycle(ctx context.Context) cycleResult {
	l.setMode(ModeSampling)

	var skipped int

	for slot := 0; slot < l.cfg.WindowSize; slot++ {
		if slot > 0 {
			if err := retry.Sleep(ctx, l.cfg.SampleInterval); err != nil {
				return cycleCancelled
			}
		}

		depth, err := l.sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return cycleCancelled
			}
			if errors.Is(err, apm.ErrBrokerDisconnected) {
				l.logger.Warn("lost connection to broker", "error", err)
				return cycleDisconnected
			}

			// The window is left untouched for a skipped slot.
			skipped++
			metrics.IncrCounterWithLabels([]string{"loop", "metric_unavailable"}, 1, l.labels)
			l.logger.Warn("skipping sample, metric unavailable", "slot", slot+1, "error", err)
			l.updateStatus(func(s *Status) { s.LastError = err.Error() })
			continue
		}

		sample := sdk.Sample{Timestamp: nowFunc(), Depth: depth}
		decision := l.engine.Observe(sample)

		windowLen := l.engine.Len()
		if decision == sdk.DecisionScaleUp {
			windowLen = l.engine.Size()
		}

		l.logger.Info("sampled queue",
			"depth", depth, "window", windowLen, "window_size", l.engine.Size(), "decision", decision)

		metrics.SetGaugeWithLabels([]string{"loop", "queue_depth"}, float32(depth), l.labels)
		metrics.SetGaugeWithLabels([]string{"loop", "window_length"}, float32(l.engine.Len()), l.labels)
		metrics.IncrCounterWithLabels([]string{"loop", "decision"}, 1,
			append([]metrics.Label{{Name: "decision", Value: decision.String()}}, l.labels...))

		l.updateStatus(func(s *Status) {
			s.LastDepth = depth
			s.LastSample = sample.Timestamp
			s.LastDecision = decision.String()
			s.WindowLength = l.engine.Len()
			s.LastError = ""
		})

		if decision == sdk.DecisionScaleUp {
			return l.scaleUp(ctx)
		}

		// An idle queue ends the cycle early.
		if sample.Idle() {
			return cycleHold
		}
	}

	if skipped == l.cfg.WindowSize {
		l.logger.Warn("no samples could be taken during cycle")
	}
	return cycleHold
}

// sample reads the queue depth, retrying an unavailable metric within the
// current slot. A lost broker connection is returned immediately.
func (l *ControlLoop) sample(ctx context.Context) (int, error) {
	var depth int

	op := func() error {
		d, err := apm.SampleWithTimeout(ctx, l.source, l.cfg.Queue, l.cfg.MetricTimeout)
		if err != nil {
			if errors.Is(err, apm.ErrBrokerDisconnected) {
				return backoff.Permanent(err)
			}
			return err
		}
		depth = d
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(
		retry.NewExponentialBackOff(l.cfg.MetricRetryInterval, l.cfg.MetricRetryInterval),
		uint64(l.cfg.MetricRetryLimit)), ctx)

	if err := backoff.Retry(op, b); err != nil {
		return 0, err
	}
	return depth, nil
}

// scaleUp invokes the scaler and records the cooldown start. A saturated group
// also enters cooldown so the backend is not queried every cycle.
func (l *ControlLoop) scaleUp(ctx context.Context) cycleResult {
	res, err := l.scaler.ScaleUp(ctx, l.cfg.Group)
	if err != nil {
		if ctx.Err() != nil {
			return cycleCancelled
		}
		l.logger.Error("failed to scale up", "error", err)
		l.updateStatus(func(s *Status) { s.LastError = err.Error() })
		return cycleHold
	}

	now := nowFunc()
	l.cooldown.LastScaleUp = now

	if res.Saturated {
		l.logger.Info("scaling group saturated, no capacity change", "desired", res.Desired)
	} else {
		l.logger.Info("scaled up", "from", res.Previous, "desired", res.Desired)
	}

	l.updateStatus(func(s *Status) {
		s.Desired = res.Desired
		s.Saturated = res.Saturated
		s.LastScaleUp = now
		s.CooldownUntil = l.cooldown.Until()
		s.LastError = ""
	})
	return cycleScaled
}

// reconnect re-establishes the broker connection with exponential backoff.
// It only returns once reconnected or when ctx is cancelled.
func (l *ControlLoop) reconnect(ctx context.Context, rc apm.Reconnector) error {
	l.setMode(ModeReconnecting)

	var attempt int

	op := func() error {
		attempt++
		metrics.IncrCounterWithLabels([]string{"loop", "reconnect"}, 1, l.labels)
		return rc.Reconnect(ctx)
	}

	notify := func(err error, delay time.Duration) {
		l.logger.Warn("failed to reconnect to broker", "attempt", attempt, "retry_in", delay, "error", err)
		l.updateStatus(func(s *Status) { s.LastError = err.Error() })
	}

	b := backoff.WithContext(
		retry.NewExponentialBackOff(l.cfg.MetricRetryInterval, l.cfg.ReconnectMaxInterval), ctx)

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return err
	}

	l.logger.Info("reconnected to broker", "attempt", attempt)
	return nil
}
