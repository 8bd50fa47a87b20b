// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package metrics

import (
	"sync/atomic"
	"time"

	m "github.com/armon/go-metrics"
)

// defaultLabels are the label set that should be applied to every data point
// emitted. Use an atomic value so that we protect against concurrent access in
// situations where the default labels are being updated after telemetry
// initialization.
var defaultLabels atomic.Value

// Label is a wrapper around m.Label so the autoscaler doesn't have to juggle
// importing both packages when emitting metrics.
type Label = m.Label

// SetDefaultLabels sets defaultLabels with the configured default set of
// labels.
func SetDefaultLabels(labels []Label) { defaultLabels.Store(labels) }

// getDefaultLabels returns the stored default labels, or nil if they have not
// been set yet. Control loops can emit before the agent has finished setting
// up telemetry, for example within tests.
func getDefaultLabels() []Label {
	l, _ := defaultLabels.Load().([]Label)
	return l
}

// withDefaults returns a new slice so callers can reuse their label slices
// across emits.
func withDefaults(labels []Label) []Label {
	d := getDefaultLabels()
	out := make([]Label, 0, len(labels)+len(d))
	out = append(out, labels...)
	return append(out, d...)
}

// SetGaugeWithLabels wraps m.SetGaugeWithLabels and appends the default labels
// to the passed labels on the emitted metric.
func SetGaugeWithLabels(key []string, val float32, labels []Label) {
	m.SetGaugeWithLabels(key, val, withDefaults(labels))
}

// MeasureSinceWithLabels wraps m.MeasureSinceWithLabels and appends the
// default labels to the passed labels on the emitted metric.
func MeasureSinceWithLabels(key []string, start time.Time, labels []Label) {
	m.MeasureSinceWithLabels(key, start, withDefaults(labels))
}

// IncrCounterWithLabels wraps m.IncrCounterWithLabels and appends the default
// labels to the passed labels on the emitted metric.
func IncrCounterWithLabels(key []string, val float32, labels []Label) {
	m.IncrCounterWithLabels(key, val, withDefaults(labels))
}
