// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ha

import (
	"context"
	"errors"
	"math/rand"
	"time"

	log "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/helper/retry"
	"github.com/hashicorp/queue-autoscaler/sdk/helper/metrics"
)

const (
	// defaultRandomDelay is the upper bound of the random delay applied
	// before the first acquisition attempt.
	defaultRandomDelay = 100 * time.Millisecond

	// releaseTimeout bounds the best effort release performed once the
	// controller stops holding a lock.
	releaseTimeout = 5 * time.Second
)

// ErrLockLost is returned by Lock.Renew when the lease is no longer held by
// this agent.
var ErrLockLost = errors.New("lock lost")

// Lock is a lease based lock held on behalf of a single scaling group.
type Lock interface {

	// Acquire makes a single attempt at taking the lock and reports whether
	// it succeeded. It must not block waiting for another holder.
	Acquire(ctx context.Context) (bool, error)

	// Renew extends the lease of a held lock. Any error is treated as the
	// lease being lost.
	Renew(ctx context.Context) error

	// Release gives up a held lock.
	Release(ctx context.Context) error
}

// Controller runs a function only while a lock is held. When the lease is
// lost the function's context is cancelled and, once it returns, the
// controller goes back to trying to acquire the lock every wait period.
type Controller struct {
	ID string

	renewalPeriod time.Duration
	waitPeriod    time.Duration
	randomDelay   time.Duration

	logger       log.Logger
	lock         Lock
	ranGenerator *rand.Rand
}

// NewController returns a Controller for the passed lock.
func NewController(logger log.Logger, id string, l Lock, renewalPeriod, waitPeriod time.Duration) *Controller {
	return &Controller{
		ID:            id,
		renewalPeriod: renewalPeriod,
		waitPeriod:    waitPeriod,
		randomDelay:   defaultRandomDelay,
		logger:        logger.Named("ha").With("id", id),
		lock:          l,
		ranGenerator:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start blocks until ctx is cancelled, running protectedFunc whenever the
// lock is held.
func (hc *Controller) Start(ctx context.Context, protectedFunc func(ctx context.Context)) error {
	// To avoid collisions if all the instances start at the same time, wait
	// a random time before making the first call.
	if err := retry.Sleep(ctx, hc.jitter()); err != nil {
		return nil
	}

	for {
		acquired, err := hc.lock.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			hc.logger.Error("unable to get lock", "error", err)
		}

		if acquired {
			hc.logger.Info("lock acquired")
			metrics.IncrCounterWithLabels([]string{"ha", "acquired"}, 1, []metrics.Label{{Name: "id", Value: hc.ID}})
			hc.runProtected(ctx, protectedFunc)
		}

		if err := retry.Sleep(ctx, hc.waitPeriod); err != nil {
			return nil
		}
	}
}

// runProtected runs protectedFunc until the lease is lost or ctx is
// cancelled. It only returns once protectedFunc has returned, so two
// instances of the function never overlap within this agent.
func (hc *Controller) runProtected(ctx context.Context, protectedFunc func(ctx context.Context)) {
	funcCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		protectedFunc(funcCtx)
	}()

	// Maintain lease is a blocking function, will only return in case the
	// lock is lost, the function exits or the context is cancelled.
	err := hc.maintainLease(ctx, doneCh)
	cancel()
	<-doneCh

	if err != nil {
		hc.logger.Warn("lease lost", "error", err)
		metrics.IncrCounterWithLabels([]string{"ha", "lost"}, 1, []metrics.Label{{Name: "id", Value: hc.ID}})
		return
	}

	relCtx, relCancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer relCancel()

	if err := hc.lock.Release(relCtx); err != nil {
		hc.logger.Warn("failed to release lock", "error", err)
		return
	}
	hc.logger.Info("lock released")
}

func (hc *Controller) maintainLease(ctx context.Context, doneCh <-chan struct{}) error {
	renewTimer := time.NewTimer(hc.renewalPeriod)
	defer renewTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-doneCh:
			return nil

		case <-renewTimer.C:
			if err := hc.lock.Renew(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			renewTimer.Reset(hc.renewalPeriod)
		}
	}
}

func (hc *Controller) jitter() time.Duration {
	if hc.randomDelay <= 0 {
		return 0
	}
	return time.Duration(hc.ranGenerator.Int63n(int64(hc.randomDelay)))
}
