// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package prometheus

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/apm"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

const (
	// DriverName is the name used to reference this driver within agent
	// configuration.
	DriverName = "prometheus"

	// configKeyAddress is the accepted configuration key which holds the
	// address param.
	configKeyAddress = "address"

	// configKeyQuery is the PromQL query template. Every occurrence of
	// queuePlaceholder is replaced by the sampled queue name.
	configKeyQuery = "query"

	// configKeyBasicAuthUser and configKeyBasicAuthPassword are the
	// configuration keys used to set the Prometheus client basic auth.
	configKeyBasicAuthUser     = "basic_auth_user"
	configKeyBasicAuthPassword = "basic_auth_password"

	// configKeyHeadersPrefix is the prefix used to indicate that a
	// configuration value should be set as an HTTP header.
	configKeyHeadersPrefix = "header_"

	queuePlaceholder = "{{queue}}"
)

var _ apm.Driver = (*Source)(nil)

// Source reads queue depth by running an instant PromQL query, for example
// against a broker exporter.
type Source struct {
	api    v1.API
	query  string
	logger hclog.Logger
}

// New returns a Source configured from the passed driver config.
func New(logger hclog.Logger, config map[string]string) (*Source, error) {

	// If the address is not set, or is empty within the config, any client
	// calls will fail. It seems logical to catch this here rather than just
	// let queries fail.
	addr, ok := config[configKeyAddress]
	if !ok || addr == "" {
		return nil, fmt.Errorf("%q config value cannot be empty", configKeyAddress)
	}

	query := config[configKeyQuery]
	if !strings.Contains(query, queuePlaceholder) {
		return nil, fmt.Errorf("%q config value must contain the %s placeholder", configKeyQuery, queuePlaceholder)
	}

	client, err := api.NewClient(api.Config{
		Address:      addr,
		RoundTripper: newRoundTripper(config),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Prometheus client: %v", err)
	}

	return &Source{
		api:    v1.NewAPI(client),
		query:  query,
		logger: logger.Named(DriverName).With("address", addr),
	}, nil
}

// Connect checks the Prometheus server is reachable.
func (s *Source) Connect(ctx context.Context) error {
	if _, err := s.api.Buildinfo(ctx); err != nil {
		return fmt.Errorf("failed to connect to Prometheus: %v", err)
	}
	return nil
}

// Sample runs the configured query for the queue. The query must produce a
// single scalar or single-element vector.
func (s *Source) Sample(ctx context.Context, queue string) (int, error) {
	q := strings.ReplaceAll(s.query, queuePlaceholder, queue)
	s.logger.Trace("querying Prometheus", "query", q)

	result, warnings, err := s.api.Query(ctx, q, time.Now())
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: failed to query: %v", apm.ErrMetricUnavailable, err)
	}

	// If Prometheus returned warnings, report these to the user.
	for _, w := range warnings {
		s.logger.Warn("prometheus query returned warning", "warning", w)
	}

	var val model.SampleValue

	switch t := result.Type(); t {
	case model.ValScalar:
		val = result.(*model.Scalar).Value
	case model.ValVector:
		vec := result.(model.Vector)
		switch len(vec) {
		case 0:
			return 0, fmt.Errorf("%w: query returned no data for queue %q", apm.ErrMetricUnavailable, queue)
		case 1:
			val = vec[0].Value
		default:
			return 0, fmt.Errorf("%w: query returned %d series, only 1 is expected", apm.ErrMetricUnavailable, len(vec))
		}
	default:
		return 0, fmt.Errorf("%w: result type (`%v`) is not supported", apm.ErrMetricUnavailable, t)
	}

	f := float64(val)
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("%w: query result %v is not a valid depth", apm.ErrMetricUnavailable, f)
	}
	return int(math.Round(f)), nil
}

func (s *Source) Close() error { return nil }

// roundTripper adds basic auth and static headers to Prometheus requests.
type roundTripper struct {
	headers           map[string]string
	basicAuthUser     string
	basicAuthPassword string

	rt http.RoundTripper
}

func newRoundTripper(config map[string]string) *roundTripper {
	headers := make(map[string]string)
	for k, v := range config {
		if strings.HasPrefix(k, configKeyHeadersPrefix) {
			headers[strings.TrimPrefix(k, configKeyHeadersPrefix)] = v
		}
	}

	return &roundTripper{
		headers:           headers,
		basicAuthUser:     config[configKeyBasicAuthUser],
		basicAuthPassword: config[configKeyBasicAuthPassword],
		rt:                cleanhttp.DefaultPooledTransport(),
	}
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	for header, value := range rt.headers {
		req.Header.Add(header, value)
	}

	setAuth := (rt.basicAuthUser != "" || rt.basicAuthPassword != "") && req.Header.Get("Authorization") == ""
	if setAuth {
		req.SetBasicAuth(rt.basicAuthUser, rt.basicAuthPassword)
	}

	return rt.rt.RoundTrip(req)
}
