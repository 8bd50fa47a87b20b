// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package strategy

import (
	"github.com/hashicorp/queue-autoscaler/sdk"
)

// Window is a fixed-capacity, ordered ring of samples. When full, appending a
// new sample evicts the oldest one.
type Window struct {
	buf   []sdk.Sample
	start int
	len   int
}

// NewWindow returns an empty window holding at most size samples. A size below
// one is treated as one.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{buf: make([]sdk.Sample, size)}
}

// Append adds s as the newest sample, evicting the oldest when full.
func (w *Window) Append(s sdk.Sample) {
	if w.len < len(w.buf) {
		w.buf[(w.start+w.len)%len(w.buf)] = s
		w.len++
		return
	}
	w.buf[w.start] = s
	w.start = (w.start + 1) % len(w.buf)
}

// Reset empties the window.
func (w *Window) Reset() {
	w.start = 0
	w.len = 0
}

func (w *Window) Len() int { return w.len }
func (w *Window) Cap() int { return len(w.buf) }
func (w *Window) Full() bool { return w.len == len(w.buf) }

// Samples returns a copy of the held samples, oldest first.
func (w *Window) Samples() []sdk.Sample {
	out := make([]sdk.Sample, w.len)
	for i := 0; i < w.len; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
