// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ptr

// Of returns a pointer to a copy of v.
func Of[T any](v T) *T {
	return &v
}

// ValueOr dereferences p, returning def when p is nil.
func ValueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
