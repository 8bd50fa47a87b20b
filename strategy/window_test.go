// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package strategy

import (
	"testing"

	"github.com/hashicorp/queue-autoscaler/sdk"
	"github.com/shoenig/test/must"
)

func depths(samples []sdk.Sample) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		out[i] = s.Depth
	}
	return out
}

func TestWindow(t *testing.T) {
	w := NewWindow(3)
	must.Eq(t, 0, w.Len())
	must.Eq(t, 3, w.Cap())
	must.False(t, w.Full())

	for _, d := range []int{1, 2, 3} {
		w.Append(sdk.Sample{Depth: d})
	}
	must.True(t, w.Full())
	must.Eq(t, []int{1, 2, 3}, depths(w.Samples()))

	// Oldest sample is evicted once full.
	w.Append(sdk.Sample{Depth: 4})
	w.Append(sdk.Sample{Depth: 5})
	must.Eq(t, 3, w.Len())
	must.Eq(t, []int{3, 4, 5}, depths(w.Samples()))

	w.Reset()
	must.Eq(t, 0, w.Len())
	must.SliceEmpty(t, w.Samples())

	w.Append(sdk.Sample{Depth: 7})
	must.Eq(t, []int{7}, depths(w.Samples()))
}

func TestNewWindow_minimumSize(t *testing.T) {
	w := NewWindow(0)
	must.Eq(t, 1, w.Cap())
}
