// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewExponentialBackOff returns a backoff which starts at initial and doubles
// after each failed attempt until it reaches max. It has no jitter and never
// gives up on its own; callers bound it with backoff.WithMaxRetries or
// backoff.WithContext. A zero max leaves the delay uncapped.
func NewExponentialBackOff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if max > 0 {
		b.MaxInterval = max
	}
	b.Reset()
	return b
}

// Sleep blocks for the duration d, returning early with the context error if
// ctx is cancelled first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
