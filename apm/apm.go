// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package apm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMetricUnavailable is returned when the queue depth cannot be read,
	// because the broker is unreachable, the queue does not exist, or the read
	// did not finish within the caller's timeout. It is never reported as a
	// depth of zero.
	ErrMetricUnavailable = errors.New("metric unavailable")

	// ErrBrokerDisconnected is returned when the connection owned by a
	// MetricSource has been lost and must be re-established via Reconnect
	// before further samples can be taken.
	ErrBrokerDisconnected = errors.New("broker disconnected")
)

// MetricSource queries the current backlog depth of a named queue. Sample has
// no side effects and always returns a non-negative depth on success.
type MetricSource interface {
	Sample(ctx context.Context, queue string) (int, error)
}

// Driver is a MetricSource which owns a connection to a broker and is
// managed by the agent for its lifetime.
type Driver interface {
	MetricSource

	// Connect establishes the initial connection to the backend. An error
	// here is treated as a startup failure by the agent.
	Connect(ctx context.Context) error

	// Close releases any resources held by the driver.
	Close() error
}

// Reconnector is implemented by drivers which can re-establish a lost broker
// connection after returning ErrBrokerDisconnected.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// SampleWithTimeout calls src.Sample with a deadline of timeout. A call which
// does not return in time results in ErrMetricUnavailable. A successful result
// with a negative depth is also treated as unavailable. A zero timeout
// disables the deadline.
func SampleWithTimeout(ctx context.Context, src MetricSource, queue string, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return checkDepth(src.Sample(ctx, queue))
	}

	sampleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		depth int
		err   error
	}

	// Buffered; the goroutine must never block if we stop waiting.
	resCh := make(chan result, 1)
	go func() {
		d, err := src.Sample(sampleCtx, queue)
		resCh <- result{depth: d, err: err}
	}()

	select {
	case res := <-resCh:
		if res.err != nil && errors.Is(sampleCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, fmt.Errorf("%w: sampling queue %q timed out after %s", ErrMetricUnavailable, queue, timeout)
		}
		return checkDepth(res.depth, res.err)
	case <-sampleCtx.Done():
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: sampling queue %q timed out after %s", ErrMetricUnavailable, queue, timeout)
	}
}

func checkDepth(depth int, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	if depth < 0 {
		return 0, fmt.Errorf("%w: negative depth %d", ErrMetricUnavailable, depth)
	}
	return depth, nil
}
