// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"net/http"
	"strings"
)

// listLoops handles requests for the `/v1/loops` endpoint.
func (s *Server) listLoops(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	if r.Method != http.MethodGet {
		return nil, newCodedError(http.StatusMethodNotAllowed, errInvalidMethod)
	}
	return s.agent.ListLoops(w, r)
}

// getLoop handles requests for the `/v1/loops/<name>` endpoint.
func (s *Server) getLoop(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	if r.Method != http.MethodGet {
		return nil, newCodedError(http.StatusMethodNotAllowed, errInvalidMethod)
	}

	name := strings.TrimPrefix(r.URL.Path, loopRoutePattern)
	if name == "" || strings.Contains(name, "/") {
		return nil, newCodedError(http.StatusNotFound, "")
	}

	obj, err := s.agent.GetLoop(w, r, name)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, newCodedError(http.StatusNotFound, "loop not found")
	}
	return obj, nil
}
