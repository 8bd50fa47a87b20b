// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ha

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	log "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/sdk/helper/uuid"
)

const (
	BackendConsul = "consul"
	BackendRedis  = "redis"
)

// Backend hands out locks stored within a single coordination service.
type Backend interface {

	// Lock returns a lock on the given key. The returned lock is not yet
	// acquired.
	Lock(key string) Lock

	// Close releases any client resources held by the backend.
	Close() error
}

// NewBackend builds the named backend. ttl is the lease duration of every
// lock handed out.
func NewBackend(logger log.Logger, name, agentID string, ttl time.Duration, config map[string]string) (Backend, error) {
	switch name {
	case BackendConsul:
		return newConsulBackend(logger, agentID, ttl, config)
	case BackendRedis:
		return newRedisBackend(logger, agentID, ttl, config)
	default:
		return nil, fmt.Errorf("unsupported high availability backend %q", name)
	}
}

// LockKey returns the key used to lock the named scaling group.
func LockKey(lockPath, group string) string {
	return path.Join(strings.TrimSuffix(lockPath, "/"), group)
}

// AgentID returns an identifier for this agent, used to name lock holders.
// When running as a Nomad allocation the allocation ID is used.
func AgentID() string {
	if id := os.Getenv("NOMAD_ALLOC_ID"); id != "" {
		return id
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.Generate()
	}
	return host + "-" + uuid.Generate()[:8]
}
