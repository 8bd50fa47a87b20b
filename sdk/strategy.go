// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sdk

// Decision is the outcome of evaluating a window of queue depth samples. It
// carries no side effects itself; acting on a ScaleUp is the job of the
// control loop.
type Decision int8

// The following constants are used to standardize the possible decisions. The
// autoscaler only ever grows capacity, so there is no scale-down equivalent.
const (
	// DecisionHold indicates no scaling action should be taken.
	DecisionHold Decision = iota

	// DecisionScaleUp indicates the target should increase the number of
	// running workers.
	DecisionScaleUp
)

// String satisfies the Stringer interface and returns as string representation
// of the decision.
func (d Decision) String() string {
	switch d {
	case DecisionScaleUp:
		return "scale_up"
	default:
		return "hold"
	}
}
