// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sdk

import "time"

// Sample is a single observation of a queue's backlog. It is immutable once
// taken.
type Sample struct {

	// Timestamp is the time at which the depth was read from the metric
	// source.
	Timestamp time.Time

	// Depth is the number of pending messages or jobs awaiting a worker. It
	// is never negative.
	Depth int
}

// Idle reports whether the sample proves the queue is not backlogged.
func (s Sample) Idle() bool { return s.Depth == 0 }
