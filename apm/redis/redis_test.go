// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/apm"
	"github.com/shoenig/test/must"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	testCases := []struct {
		inputConfig map[string]string
		expectError bool
		name        string
	}{
		{
			inputConfig: map[string]string{},
			expectError: true,
			name:        "no address",
		},
		{
			inputConfig: map[string]string{configKeyAddress: "localhost:6379", configKeyDB: "one"},
			expectError: true,
			name:        "non-numeric db",
		},
		{
			inputConfig: map[string]string{configKeyAddress: "localhost:6379", configKeyDB: "-2"},
			expectError: true,
			name:        "negative db",
		},
		{
			inputConfig: map[string]string{configKeyAddress: "localhost:6379", configKeyDB: "3"},
			expectError: false,
			name:        "valid",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(hclog.NewNullLogger(), tc.inputConfig)
			assert.Equal(t, tc.expectError, err != nil, tc.name)
			if s != nil {
				_ = s.Close()
			}
		})
	}
}

func TestSource_Sample(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := New(hclog.NewNullLogger(), map[string]string{
		configKeyAddress:   mr.Addr(),
		configKeyKeyPrefix: "queue:",
	})
	must.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	must.NoError(t, s.Connect(ctx))

	for _, v := range []string{"a", "b", "c"} {
		_, err := mr.Lpush("queue:render", v)
		must.NoError(t, err)
	}
	must.NoError(t, mr.Set("queue:config", "not-a-list"))

	d, err := s.Sample(ctx, "render")
	must.NoError(t, err)
	must.Eq(t, 3, d)

	d, err = s.Sample(ctx, "missing")
	must.NoError(t, err)
	must.Eq(t, 0, d)

	_, err = s.Sample(ctx, "config")
	must.ErrorIs(t, err, apm.ErrMetricUnavailable)

	mr.Close()
	_, err = s.Sample(ctx, "render")
	must.ErrorIs(t, err, apm.ErrMetricUnavailable)
	must.Error(t, s.Connect(ctx))
}
