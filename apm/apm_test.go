// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package apm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shoenig/test/must"
)

type sourceFunc func(ctx context.Context, queue string) (int, error)

func (f sourceFunc) Sample(ctx context.Context, queue string) (int, error) { return f(ctx, queue) }

func TestSampleWithTimeout(t *testing.T) {
	errBoom := errors.New("boom")

	testCases := []struct {
		name          string
		src           MetricSource
		timeout       time.Duration
		expectedDepth int
		expectedErr   error
	}{
		{
			name:          "success",
			src:           NewMockMetricSourceDepths(7),
			timeout:       time.Second,
			expectedDepth: 7,
		},
		{
			name:          "success without timeout",
			src:           NewMockMetricSourceDepths(3),
			expectedDepth: 3,
		},
		{
			name:          "zero depth is not an error",
			src:           NewMockMetricSourceDepths(0),
			timeout:       time.Second,
			expectedDepth: 0,
		},
		{
			name:        "source error passed through",
			src:         NewMockMetricSource(MockResult{Err: errBoom}),
			timeout:     time.Second,
			expectedErr: errBoom,
		},
		{
			name:        "negative depth is unavailable",
			src:         NewMockMetricSourceDepths(-1),
			timeout:     time.Second,
			expectedErr: ErrMetricUnavailable,
		},
		{
			name: "slow source ignoring context is unavailable",
			src: sourceFunc(func(context.Context, string) (int, error) {
				time.Sleep(200 * time.Millisecond)
				return 5, nil
			}),
			timeout:     10 * time.Millisecond,
			expectedErr: ErrMetricUnavailable,
		},
		{
			name: "slow source honouring context is unavailable",
			src: sourceFunc(func(ctx context.Context, _ string) (int, error) {
				<-ctx.Done()
				return 0, ctx.Err()
			}),
			timeout:     10 * time.Millisecond,
			expectedErr: ErrMetricUnavailable,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			depth, err := SampleWithTimeout(context.Background(), tc.src, "jobs", tc.timeout)
			if tc.expectedErr != nil {
				must.ErrorIs(t, err, tc.expectedErr)
				must.Eq(t, 0, depth)
				return
			}
			must.NoError(t, err)
			must.Eq(t, tc.expectedDepth, depth)
		})
	}
}

func TestSampleWithTimeout_parentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := sourceFunc(func(ctx context.Context, _ string) (int, error) {
		cancel()
		<-ctx.Done()
		return 0, ctx.Err()
	})

	_, err := SampleWithTimeout(ctx, src, "jobs", time.Minute)
	must.ErrorIs(t, err, context.Canceled)
	must.False(t, errors.Is(err, ErrMetricUnavailable))
}

func TestMockMetricSource(t *testing.T) {
	m := NewMockMetricSource(MockResult{Depth: 1}, MockResult{Err: ErrBrokerDisconnected})

	d, err := m.Sample(context.Background(), "q")
	must.NoError(t, err)
	must.Eq(t, 1, d)

	// The last result repeats.
	for i := 0; i < 2; i++ {
		_, err = m.Sample(context.Background(), "q")
		must.ErrorIs(t, err, ErrBrokerDisconnected)
	}
	must.Eq(t, 3, m.Calls())

	m.SetReconnectErrs(errors.New("still down"))
	must.Error(t, m.Reconnect(context.Background()))
	must.NoError(t, m.Reconnect(context.Background()))
	must.Eq(t, 2, m.Reconnects())

	must.NoError(t, m.Close())
	must.True(t, m.Closed())
}
