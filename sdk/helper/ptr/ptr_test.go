// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ptr

import (
	"testing"

	"github.com/shoenig/test/must"
)

func Test_Of(t *testing.T) {

	s := "render"
	sPtr := Of(s)

	must.Eq(t, s, *sPtr)

	// The pointer refers to a copy.
	s = "ingest"
	must.Eq(t, "render", *sPtr)
}

func Test_ValueOr(t *testing.T) {
	must.Eq(t, 7, ValueOr(Of(7), 3))
	must.Eq(t, 3, ValueOr[int](nil, 3))
	must.Eq(t, "", ValueOr[string](nil, ""))
}
