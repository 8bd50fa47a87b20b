// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package apm

import (
	"context"
	"sync"
)

// MockResult is a single scripted response of a MockMetricSource.
type MockResult struct {
	Depth int
	Err   error
}

// MockMetricSource is a MetricSource that replays scripted results in order.
// Once the script is exhausted the last result is repeated; an empty script
// always returns a depth of zero.
type MockMetricSource struct {
	lock          sync.Mutex
	results       []MockResult
	calls         int
	reconnects    int
	reconnectErrs []error
	connectErr    error
	closed        bool
}

// NewMockMetricSource returns a mock which replays the passed results.
func NewMockMetricSource(results ...MockResult) *MockMetricSource {
	return &MockMetricSource{results: results}
}

// NewMockMetricSourceDepths is a convenience wrapper for scripting successful
// samples only.
func NewMockMetricSourceDepths(depths ...int) *MockMetricSource {
	results := make([]MockResult, len(depths))
	for i, d := range depths {
		results[i] = MockResult{Depth: d}
	}
	return NewMockMetricSource(results...)
}

func (m *MockMetricSource) Sample(ctx context.Context, _ string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.calls++
	if len(m.results) == 0 {
		return 0, nil
	}

	idx := m.calls - 1
	if idx >= len(m.results) {
		idx = len(m.results) - 1
	}
	r := m.results[idx]
	return r.Depth, r.Err
}

// SetConnectErr sets the error returned by Connect.
func (m *MockMetricSource) SetConnectErr(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.connectErr = err
}

// SetReconnectErrs scripts the errors returned by successive Reconnect calls.
// Once exhausted, Reconnect succeeds.
func (m *MockMetricSource) SetReconnectErrs(errs ...error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.reconnectErrs = errs
}

func (m *MockMetricSource) Connect(context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.connectErr
}

func (m *MockMetricSource) Reconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.reconnects++
	if m.reconnects <= len(m.reconnectErrs) {
		return m.reconnectErrs[m.reconnects-1]
	}
	return nil
}

func (m *MockMetricSource) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.closed = true
	return nil
}

// Calls returns the number of Sample calls made.
func (m *MockMetricSource) Calls() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.calls
}

// Reconnects returns the number of Reconnect calls made.
func (m *MockMetricSource) Reconnects() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.reconnects
}

// Closed reports whether Close has been called.
func (m *MockMetricSource) Closed() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.closed
}
