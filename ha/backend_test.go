// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ha

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shoenig/test/must"
	"github.com/stretchr/testify/assert"
)

func TestLockKey(t *testing.T) {
	testCases := []struct {
		lockPath string
		group    string
		expected string
	}{
		{lockPath: "queue-autoscaler/lock", group: "workers", expected: "queue-autoscaler/lock/workers"},
		{lockPath: "queue-autoscaler/lock/", group: "workers", expected: "queue-autoscaler/lock/workers"},
		{lockPath: "locks", group: "render/encoders", expected: "locks/render/encoders"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, LockKey(tc.lockPath, tc.group))
		})
	}
}

func TestNewBackend(t *testing.T) {
	_, err := NewBackend(hclog.NewNullLogger(), "zookeeper", "agent", time.Second, nil)
	must.ErrorContains(t, err, `unsupported high availability backend "zookeeper"`)

	b, err := NewBackend(hclog.NewNullLogger(), BackendConsul, "agent", time.Second, map[string]string{
		configKeyConsulAddress: "127.0.0.1:8500",
	})
	must.NoError(t, err)

	// Session TTLs are raised to the Consul minimum.
	cb := b.(*consulBackend)
	must.Eq(t, consulMinSessionTTL, cb.ttl)

	l := cb.Lock("lock/workers").(*consulLock)
	must.Eq(t, "lock/workers", l.opts.Key)
	must.Eq(t, "queue-autoscaler-agent", l.opts.SessionName)
	must.True(t, l.opts.LockTryOnce)

	_, err = NewBackend(hclog.NewNullLogger(), BackendRedis, "agent", time.Second, map[string]string{
		configKeyRedisDB: "zero",
	})
	must.Error(t, err)
}

func Test_consulConfigFromMap(t *testing.T) {
	cfg := consulConfigFromMap(map[string]string{
		configKeyConsulAddress:    "consul.service:8501",
		configKeyConsulScheme:     "https",
		configKeyConsulToken:      "secret",
		configKeyConsulDatacenter: "dc2",
	})
	assert.Equal(t, "consul.service:8501", cfg.Address)
	assert.Equal(t, "https", cfg.Scheme)
	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, "dc2", cfg.Datacenter)
}

func TestConsulLock_notHeld(t *testing.T) {
	l := &consulLock{}
	must.ErrorIs(t, l.Renew(context.Background()), ErrLockLost)
	must.NoError(t, l.Release(context.Background()))
}

func TestAgentID(t *testing.T) {
	t.Setenv("NOMAD_ALLOC_ID", "8a4f1b2c-0000-1111-2222-333344445555")
	must.Eq(t, "8a4f1b2c-0000-1111-2222-333344445555", AgentID())

	t.Setenv("NOMAD_ALLOC_ID", "")
	must.NotEq(t, AgentID(), AgentID())
}
