// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package strategy

import (
	"github.com/hashicorp/queue-autoscaler/sdk"
)

// DefaultWindowSize is the number of consecutive busy samples required before
// a scale up is recommended.
const DefaultWindowSize = 6

// Decide evaluates a completed window. It returns ScaleUp only when exactly
// size samples are present and every one of them reports a backlog.
func Decide(samples []sdk.Sample, size int) sdk.Decision {
	if size < 1 || len(samples) != size {
		return sdk.DecisionHold
	}

	allSamplesBusy := true
	for _, s := range samples {
		if s.Idle() {
			allSamplesBusy = false
			break
		}
	}

	if allSamplesBusy {
		return sdk.DecisionScaleUp
	}
	return sdk.DecisionHold
}

// Engine turns a stream of samples into decisions. An idle sample clears the
// window immediately, while a scale up requires a full window of busy samples.
// The window is cleared after every evaluation so the same evidence is never
// used twice.
//
// Engine is not safe for concurrent use; each control loop owns its own.
type Engine struct {
	window *Window
}

// NewEngine returns an Engine with a window of the given size.
func NewEngine(size int) *Engine {
	return &Engine{window: NewWindow(size)}
}

// Observe feeds a single sample to the engine and returns the decision for
// it. Hold is returned while the window is still filling.
func (e *Engine) Observe(s sdk.Sample) sdk.Decision {
	if s.Idle() {
		e.window.Reset()
		return sdk.DecisionHold
	}

	e.window.Append(s)
	if !e.window.Full() {
		return sdk.DecisionHold
	}

	d := Decide(e.window.Samples(), e.window.Cap())
	e.window.Reset()
	return d
}

// Len returns the number of samples currently held.
func (e *Engine) Len() int { return e.window.Len() }

// Size returns the window capacity.
func (e *Engine) Size() int { return e.window.Cap() }

// Reset discards any partially collected evidence.
func (e *Engine) Reset() { e.window.Reset() }
