// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"net/http"
	"testing"
	"time"

	metrics "github.com/armon/go-metrics"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/agent/config"
	"github.com/hashicorp/queue-autoscaler/loop"
)

// MockAgentHTTP is an AgentHTTP serving canned responses.
type MockAgentHTTP struct {
	Loops []loop.Status
}

func (m *MockAgentHTTP) DisplayMetrics(_ http.ResponseWriter, _ *http.Request) (interface{}, error) {
	return metrics.MetricsSummary{
		Timestamp: "2020-11-17 00:17:50 +0000 UTC",
		Counters:  []metrics.SampledValue{},
		Gauges:    []metrics.GaugeValue{},
		Points:    []metrics.PointValue{},
		Samples:   []metrics.SampledValue{},
	}, nil
}

func (m *MockAgentHTTP) ListLoops(_ http.ResponseWriter, _ *http.Request) (interface{}, error) {
	return m.Loops, nil
}

func (m *MockAgentHTTP) GetLoop(_ http.ResponseWriter, _ *http.Request, name string) (interface{}, error) {
	for _, l := range m.Loops {
		if l.Name == name {
			return l, nil
		}
	}
	return nil, nil
}

// TestServer starts a server on a random local port backed by a
// MockAgentHTTP with a single loop.
func TestServer(t *testing.T, enableProm bool) (*Server, func()) {
	cfg := &config.HTTP{
		BindAddress: "127.0.0.1",
		BindPort:    0, // Use next available port.
	}

	agent := &MockAgentHTTP{
		Loops: []loop.Status{
			{
				Name:       "render",
				Queue:      "render-jobs",
				Group:      "render-workers",
				Mode:       loop.ModeCooldown.String(),
				WindowSize: 6,
				Desired:    4,
				LastSample: time.Date(2020, 11, 17, 0, 17, 50, 0, time.UTC),
			},
		},
	}

	s, err := NewHTTPServer(false, enableProm, cfg, hclog.NewNullLogger(), agent)
	if err != nil {
		t.Fatalf("failed to start test server: %v", err)
	}

	return s, func() {
		s.Stop()
	}
}
