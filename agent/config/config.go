// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/hashicorp/queue-autoscaler/ha"
	"github.com/hashicorp/queue-autoscaler/loop"
	"github.com/hashicorp/queue-autoscaler/sdk/helper/file"
	"github.com/hashicorp/queue-autoscaler/sdk/helper/ptr"
	"github.com/mitchellh/copystructure"
	"github.com/mitchellh/go-homedir"
)

// Agent is the overall configuration of an autoscaler agent and includes all
// required information for it to start successfully.
//
// All time.Duration values should have two parts:
//   - a string field tagged with an hcl:"foo" and json:"-"
//   - a time.Duration field in the same struct which is populated within the
//     parseFile if the HCL param is populated.
//
// The string reference of a duration can include "ns", "us" (or "µs"), "ms",
// "s", "m", "h" suffixes.
type Agent struct {

	// LogLevel is the level of the logs to emit.
	LogLevel string `hcl:"log_level,optional"`

	// LogJson enables log output in JSON format.
	LogJson bool `hcl:"log_json,optional"`

	// EnableDebug is used to enable debugging HTTP endpoints.
	EnableDebug bool `hcl:"enable_debug,optional"`

	// HTTP is the configuration used to setup the HTTP health server.
	HTTP *HTTP `hcl:"http,block"`

	// Telemetry is the configuration used to setup metrics collection.
	Telemetry *Telemetry `hcl:"telemetry,block"`

	// HighAvailability is the configuration used to hold a lock per scaling
	// group when running multiple agents.
	HighAvailability *HighAvailability `hcl:"high_availability,block"`

	APMs    []*Plugin `hcl:"apm,block"`
	Targets []*Plugin `hcl:"target,block"`
	Loops   []*Loop   `hcl:"loop,block"`
}

// HTTP contains all configuration details for the running of the agent HTTP
// health server.
type HTTP struct {

	// BindAddress is the tcp address to bind to.
	BindAddress string `hcl:"bind_address,optional"`

	// BindPort is the port used to run the HTTP server.
	BindPort int `hcl:"bind_port,optional"`
}

// Telemetry holds the user specified configuration for metrics collection.
type Telemetry struct {

	// PrometheusRetentionTime is the retention time for prometheus metrics if
	// greater than 0.
	PrometheusRetentionTime    time.Duration
	PrometheusRetentionTimeHCL string `hcl:"prometheus_retention_time,optional" json:"-"`

	// PrometheusMetrics specifies whether the agent should make Prometheus
	// formatted metrics available.
	PrometheusMetrics bool `hcl:"prometheus_metrics,optional"`

	// DisableHostname specifies if gauge values should be prefixed with the
	// local hostname.
	DisableHostname bool `hcl:"disable_hostname,optional"`

	// EnableHostnameLabel adds the hostname as a label on all metrics.
	EnableHostnameLabel bool `hcl:"enable_hostname_label,optional"`

	// CollectionInterval specifies the time interval at which the agent
	// collects telemetry data.
	CollectionInterval    time.Duration
	CollectionIntervalHCL string `hcl:"collection_interval,optional" json:"-"`

	// StatsiteAddr specifies the address of a statsite server to forward
	// metrics data to.
	StatsiteAddr string `hcl:"statsite_address,optional"`

	// StatsdAddr specifies the address of a statsd server to forward metrics
	// to.
	StatsdAddr string `hcl:"statsd_address,optional"`

	// DogStatsDAddr specifies the address of a DataDog statsd server to
	// forward metrics to.
	DogStatsDAddr string `hcl:"dogstatsd_address,optional"`

	// DogStatsDTags specifies a list of global tags that will be added to all
	// telemetry packets sent to DogStatsD.
	DogStatsDTags []string `hcl:"dogstatsd_tags,optional"`

	// CirconusAPIToken is a valid API Token used to create/manage check. If
	// provided, metric management is enabled.
	CirconusAPIToken string `hcl:"circonus_api_token,optional"`

	// CirconusAPIApp is an app name associated with API token. Defaults to
	// "queue-autoscaler".
	CirconusAPIApp string `hcl:"circonus_api_app,optional"`

	// CirconusAPIURL is the base URL to use for contacting the Circonus API.
	CirconusAPIURL string `hcl:"circonus_api_url,optional"`

	// CirconusSubmissionInterval is the interval at which metrics are
	// submitted to Circonus. Defaults to 10s.
	CirconusSubmissionInterval string `hcl:"circonus_submission_interval,optional"`

	// CirconusCheckSubmissionURL is the check.config.submission_url field from
	// a previously created HTTPTRAP check.
	CirconusCheckSubmissionURL string `hcl:"circonus_submission_url,optional"`

	// CirconusCheckID is the check id (not check bundle id) from a previously
	// created HTTPTRAP check.
	CirconusCheckID string `hcl:"circonus_check_id,optional"`

	// CirconusCheckDisplayName is the name for the check which will be
	// displayed in the Circonus UI.
	CirconusCheckDisplayName string `hcl:"circonus_check_display_name,optional"`

	// CirconusBrokerID is an explicit broker to use when creating a new check.
	CirconusBrokerID string `hcl:"circonus_broker_id,optional"`
}

// HighAvailability configures the per group lease lock which lets several
// agents share a configuration while only one of them grows each group.
type HighAvailability struct {

	// Enabled turns on locking. When disabled every loop runs unconditionally.
	Enabled *bool `hcl:"enabled,optional"`

	// Backend is the coordination service holding the locks, either "consul"
	// or "redis".
	Backend string `hcl:"backend,optional"`

	// LockPath is the prefix of every lock key. The group name is appended.
	LockPath string `hcl:"lock_path,optional"`

	// LeaseTTL is the lease duration of a lock.
	LeaseTTL    time.Duration
	LeaseTTLHCL string `hcl:"lease_ttl,optional" json:"-"`

	// RenewalPeriod is how often a held lock is renewed. It must be shorter
	// than LeaseTTL.
	RenewalPeriod    time.Duration
	RenewalPeriodHCL string `hcl:"renewal_period,optional" json:"-"`

	// WaitPeriod is how long an agent waits between attempts at taking a
	// lock held elsewhere.
	WaitPeriod    time.Duration
	WaitPeriodHCL string `hcl:"wait_period,optional" json:"-"`

	// Config is passed to the backend client.
	Config map[string]string `hcl:"config,optional"`
}

// IsEnabled reports whether high availability locking is turned on.
func (h *HighAvailability) IsEnabled() bool {
	return h != nil && ptr.ValueOr(h.Enabled, false)
}

// Plugin is an individual configured driver and holds all the required params
// to successfully build it.
type Plugin struct {
	Name   string            `hcl:"name,label"`
	Driver string            `hcl:"driver"`
	Config map[string]string `hcl:"config,optional"`
}

// Loop is the configuration of a single control loop, connecting one queue
// on a named apm to one scaling group on a named target. Unset values fall
// back to the loop package defaults.
type Loop struct {
	Name   string `hcl:"name,label"`
	Queue  string `hcl:"queue"`
	Group  string `hcl:"group"`
	APM    string `hcl:"apm"`
	Target string `hcl:"target"`

	SampleInterval    time.Duration
	SampleIntervalHCL string `hcl:"sample_interval,optional" json:"-"`

	WindowSize *int `hcl:"window_size,optional"`

	Cooldown    time.Duration
	CooldownHCL string `hcl:"cooldown,optional" json:"-"`

	InterCycleDelay    time.Duration
	InterCycleDelayHCL string `hcl:"inter_cycle_delay,optional" json:"-"`

	ScaleIncrement       *int `hcl:"scale_increment,optional"`
	MaxActuationAttempts *int `hcl:"max_actuation_attempts,optional"`

	ActuationRetryInterval    time.Duration
	ActuationRetryIntervalHCL string `hcl:"actuation_retry_interval,optional" json:"-"`

	MetricTimeout    time.Duration
	MetricTimeoutHCL string `hcl:"metric_timeout,optional" json:"-"`

	MetricRetryLimit *int `hcl:"metric_retry_limit,optional"`

	MetricRetryInterval    time.Duration
	MetricRetryIntervalHCL string `hcl:"metric_retry_interval,optional" json:"-"`

	ReconnectMaxInterval    time.Duration
	ReconnectMaxIntervalHCL string `hcl:"reconnect_max_interval,optional" json:"-"`
}

const (
	// defaultLogLevel is the default log level used for the autoscaler agent.
	defaultLogLevel = "info"

	// defaultHTTPBindAddress is the default address used for the HTTP health
	// server.
	defaultHTTPBindAddress = "127.0.0.1"

	// defaultHTTPBindPort is the default port used for the HTTP health server.
	defaultHTTPBindPort = 8080

	// defaultTelemetryCollectionInterval is the default telemetry metrics
	// collection interval.
	defaultTelemetryCollectionInterval = 1 * time.Second

	// defaultLockPath is the default prefix used for the per group locks.
	defaultLockPath = "queue-autoscaler/lock"

	defaultHABackend       = ha.BackendConsul
	defaultHALeaseTTL      = 15 * time.Second
	defaultHARenewalPeriod = 5 * time.Second
	defaultHAWaitPeriod    = 10 * time.Second
)

// Default is used to generate a new default agent configuration.
func Default() *Agent {
	return &Agent{
		LogLevel: defaultLogLevel,
		HTTP: &HTTP{
			BindAddress: defaultHTTPBindAddress,
			BindPort:    defaultHTTPBindPort,
		},
		Telemetry: &Telemetry{
			CollectionInterval: defaultTelemetryCollectionInterval,
		},
		HighAvailability: &HighAvailability{
			Enabled:       ptr.Of(false),
			Backend:       defaultHABackend,
			LockPath:      defaultLockPath,
			LeaseTTL:      defaultHALeaseTTL,
			RenewalPeriod: defaultHARenewalPeriod,
			WaitPeriod:    defaultHAWaitPeriod,
		},
	}
}

// Merge is used to merge two agent configurations.
func (a *Agent) Merge(b *Agent) *Agent {
	if a == nil {
		return b
	}

	result := *a

	if b.EnableDebug {
		result.EnableDebug = true
	}
	if b.LogLevel != "" {
		result.LogLevel = b.LogLevel
	}
	if b.LogJson {
		result.LogJson = true
	}

	if b.HighAvailability != nil {
		result.HighAvailability = result.HighAvailability.merge(b.HighAvailability)
	}

	if b.HTTP != nil {
		result.HTTP = result.HTTP.merge(b.HTTP)
	}

	if b.Telemetry != nil {
		result.Telemetry = result.Telemetry.merge(b.Telemetry)
	}

	if len(b.APMs) != 0 {
		result.APMs = pluginConfigSetMerge(result.APMs, b.APMs)
	}
	if len(b.Targets) != 0 {
		result.Targets = pluginConfigSetMerge(result.Targets, b.Targets)
	}
	if len(b.Loops) != 0 {
		result.Loops = loopConfigSetMerge(result.Loops, b.Loops)
	}

	return &result
}

// Validate checks the fully merged configuration, including the references
// between loops and the apm and target blocks.
func (a *Agent) Validate() error {
	var result *multierror.Error

	if hclog.LevelFromString(a.LogLevel) == hclog.NoLevel {
		result = multierror.Append(result, fmt.Errorf("log_level %q is not a valid level", a.LogLevel))
	}
	if a.HTTP != nil && (a.HTTP.BindPort < 0 || a.HTTP.BindPort > 65535) {
		result = multierror.Append(result, fmt.Errorf("http -> bind_port %d is out of range", a.HTTP.BindPort))
	}

	if a.HighAvailability != nil {
		result = multierror.Append(result, a.HighAvailability.validate())
	}

	apms := make(map[string]bool, len(a.APMs))
	for _, p := range a.APMs {
		result = multierror.Append(result, p.validate("apm"))
		apms[p.Name] = true
	}

	targets := make(map[string]bool, len(a.Targets))
	for _, p := range a.Targets {
		result = multierror.Append(result, p.validate("target"))
		targets[p.Name] = true
	}

	if len(a.Loops) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one loop block is required"))
	}

	// Two loops growing the same group would race each other's cooldown.
	groups := make(map[string]string, len(a.Loops))

	for _, l := range a.Loops {
		result = multierror.Append(result, l.validate(apms, targets))

		key := l.Target + "/" + l.Group
		if other, ok := groups[key]; ok {
			result = multierror.Append(result,
				fmt.Errorf("loop[%s] -> group %q on target %q is already scaled by loop %q", l.Name, l.Group, l.Target, other))
			continue
		}
		groups[key] = l.Name
	}

	return result.ErrorOrNil()
}

func (h *HTTP) merge(b *HTTP) *HTTP {
	if h == nil {
		return b
	}

	result := *h

	if b.BindAddress != "" {
		result.BindAddress = b.BindAddress
	}
	if b.BindPort != 0 {
		result.BindPort = b.BindPort
	}

	return &result
}

func (t *Telemetry) merge(b *Telemetry) *Telemetry {
	if t == nil {
		return b
	}

	result := *t

	if b.StatsiteAddr != "" {
		result.StatsiteAddr = b.StatsiteAddr
	}
	if b.StatsdAddr != "" {
		result.StatsdAddr = b.StatsdAddr
	}
	if b.DogStatsDAddr != "" {
		result.DogStatsDAddr = b.DogStatsDAddr
	}
	if b.DogStatsDTags != nil {
		result.DogStatsDTags = b.DogStatsDTags
	}
	if b.PrometheusMetrics {
		result.PrometheusMetrics = b.PrometheusMetrics
	}
	if b.PrometheusRetentionTime != 0 {
		result.PrometheusRetentionTime = b.PrometheusRetentionTime
	}
	if b.DisableHostname {
		result.DisableHostname = true
	}
	if b.EnableHostnameLabel {
		result.EnableHostnameLabel = true
	}
	if b.CollectionInterval != 0 {
		result.CollectionInterval = b.CollectionInterval
	}
	if b.CirconusAPIToken != "" {
		result.CirconusAPIToken = b.CirconusAPIToken
	}
	if b.CirconusAPIApp != "" {
		result.CirconusAPIApp = b.CirconusAPIApp
	}
	if b.CirconusAPIURL != "" {
		result.CirconusAPIURL = b.CirconusAPIURL
	}
	if b.CirconusSubmissionInterval != "" {
		result.CirconusSubmissionInterval = b.CirconusSubmissionInterval
	}
	if b.CirconusCheckSubmissionURL != "" {
		result.CirconusCheckSubmissionURL = b.CirconusCheckSubmissionURL
	}
	if b.CirconusCheckID != "" {
		result.CirconusCheckID = b.CirconusCheckID
	}
	if b.CirconusCheckDisplayName != "" {
		result.CirconusCheckDisplayName = b.CirconusCheckDisplayName
	}
	if b.CirconusBrokerID != "" {
		result.CirconusBrokerID = b.CirconusBrokerID
	}

	return &result
}

func (h *HighAvailability) merge(b *HighAvailability) *HighAvailability {
	if h == nil {
		return b
	}

	result := *h

	if b.Enabled != nil {
		result.Enabled = ptr.Of(*b.Enabled)
	}
	if b.Backend != "" {
		result.Backend = b.Backend
	}
	if b.LockPath != "" {
		result.LockPath = b.LockPath
	}
	if b.LeaseTTL != 0 {
		result.LeaseTTL = b.LeaseTTL
	}
	if b.RenewalPeriod != 0 {
		result.RenewalPeriod = b.RenewalPeriod
	}
	if b.WaitPeriod != 0 {
		result.WaitPeriod = b.WaitPeriod
	}
	if len(b.Config) != 0 {
		result.Config = copyStringMap(b.Config)
	}

	return &result
}

func (h *HighAvailability) validate() *multierror.Error {
	var result *multierror.Error
	prefix := "high_availability ->"

	if !h.IsEnabled() {
		return nil
	}

	switch h.Backend {
	case ha.BackendConsul, ha.BackendRedis:
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported backend %q", h.Backend))
	}

	if h.LockPath == "" {
		result = multierror.Append(result, fmt.Errorf("lock_path cannot be empty"))
	}
	if h.LeaseTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("lease_ttl must be positive"))
	}
	if h.RenewalPeriod <= 0 || h.RenewalPeriod >= h.LeaseTTL {
		result = multierror.Append(result, fmt.Errorf("renewal_period must be positive and shorter than lease_ttl"))
	}
	if h.WaitPeriod <= 0 {
		result = multierror.Append(result, fmt.Errorf("wait_period must be positive"))
	}

	return prefixErrors(result, prefix)
}

func (p *Plugin) merge(o *Plugin) *Plugin {
	if p == nil {
		return o
	}

	m := *p

	if len(o.Driver) != 0 {
		m.Driver = o.Driver
	}
	if len(o.Config) != 0 {
		m.Config = o.Config
	}

	return m.copy()
}

func (p *Plugin) copy() *Plugin {
	if p == nil {
		return nil
	}

	c := *p
	c.Config = copyStringMap(p.Config)
	return &c
}

func (p *Plugin) validate(kind string) *multierror.Error {
	var result *multierror.Error
	prefix := fmt.Sprintf("%s[%s] ->", kind, p.Name)

	if p.Driver == "" {
		result = multierror.Append(result, fmt.Errorf("driver cannot be empty"))
	}
	return prefixErrors(result, prefix)
}

// LoopConfig resolves the block into a loop.Config, applying defaults for
// every unset value.
func (l *Loop) LoopConfig() loop.Config {
	cfg := loop.DefaultConfig()
	cfg.Queue = l.Queue
	cfg.Group = l.Group

	setDuration(&cfg.SampleInterval, l.SampleInterval)
	setDuration(&cfg.Cooldown, l.Cooldown)
	setDuration(&cfg.InterCycleDelay, l.InterCycleDelay)
	setDuration(&cfg.ActuationRetryInterval, l.ActuationRetryInterval)
	setDuration(&cfg.MetricTimeout, l.MetricTimeout)
	setDuration(&cfg.MetricRetryInterval, l.MetricRetryInterval)
	setDuration(&cfg.ReconnectMaxInterval, l.ReconnectMaxInterval)

	cfg.WindowSize = ptr.ValueOr(l.WindowSize, cfg.WindowSize)
	cfg.ScaleIncrement = ptr.ValueOr(l.ScaleIncrement, cfg.ScaleIncrement)
	cfg.MaxActuationAttempts = ptr.ValueOr(l.MaxActuationAttempts, cfg.MaxActuationAttempts)
	cfg.MetricRetryLimit = ptr.ValueOr(l.MetricRetryLimit, cfg.MetricRetryLimit)

	return cfg
}

func (l *Loop) copy() *Loop {
	if l == nil {
		return nil
	}

	c, err := copystructure.Copy(l)
	if err != nil {
		panic(err.Error())
	}
	return c.(*Loop)
}

func (l *Loop) validate(apms, targets map[string]bool) *multierror.Error {
	var result *multierror.Error
	prefix := fmt.Sprintf("loop[%s] ->", l.Name)

	if l.APM == "" {
		result = multierror.Append(result, fmt.Errorf("apm cannot be empty"))
	} else if !apms[l.APM] {
		result = multierror.Append(result, fmt.Errorf("apm %q is not configured", l.APM))
	}

	if l.Target == "" {
		result = multierror.Append(result, fmt.Errorf("target cannot be empty"))
	} else if !targets[l.Target] {
		result = multierror.Append(result, fmt.Errorf("target %q is not configured", l.Target))
	}

	if err := l.LoopConfig().Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	return prefixErrors(result, prefix)
}

// pluginConfigSetMerge merges two sets of plugin configs. For plugins with the
// same name, the configs are merged. The order of first is kept, with new
// plugins from second appended.
func pluginConfigSetMerge(first, second []*Plugin) []*Plugin {
	sindex := make(map[string]*Plugin, len(second))
	for _, p := range second {
		sindex[p.Name] = p
	}

	out := make([]*Plugin, 0, len(first)+len(second))
	seen := make(map[string]bool, len(first))

	// Go through the first set and merge any value that exist in both
	for _, original := range first {
		seen[original.Name] = true
		if other, ok := sindex[original.Name]; ok {
			out = append(out, original.merge(other))
			continue
		}
		out = append(out, original.copy())
	}

	// Go through the second set and add any value that didn't exist in both
	for _, p := range second {
		if !seen[p.Name] {
			out = append(out, p.copy())
		}
	}

	return out
}

// loopConfigSetMerge merges two sets of loop configs. A loop in second
// replaces the loop of the same name in first.
func loopConfigSetMerge(first, second []*Loop) []*Loop {
	sindex := make(map[string]*Loop, len(second))
	for _, l := range second {
		sindex[l.Name] = l
	}

	out := make([]*Loop, 0, len(first)+len(second))
	seen := make(map[string]bool, len(first))

	for _, original := range first {
		seen[original.Name] = true
		if other, ok := sindex[original.Name]; ok {
			out = append(out, other.copy())
			continue
		}
		out = append(out, original.copy())
	}

	for _, l := range second {
		if !seen[l.Name] {
			out = append(out, l.copy())
		}
	}

	return out
}

func parseFile(file string, cfg *Agent) error {
	if err := hclsimple.DecodeFile(file, nil, cfg); err != nil {
		return err
	}

	var durations []durationField

	if cfg.Telemetry != nil {
		durations = append(durations,
			durationField{"telemetry -> collection_interval", cfg.Telemetry.CollectionIntervalHCL, &cfg.Telemetry.CollectionInterval},
			durationField{"telemetry -> prometheus_retention_time", cfg.Telemetry.PrometheusRetentionTimeHCL, &cfg.Telemetry.PrometheusRetentionTime},
		)
	}

	if h := cfg.HighAvailability; h != nil {
		// Default to enabled if the block is defined.
		if h.Enabled == nil {
			h.Enabled = ptr.Of(true)
		}
		durations = append(durations,
			durationField{"high_availability -> lease_ttl", h.LeaseTTLHCL, &h.LeaseTTL},
			durationField{"high_availability -> renewal_period", h.RenewalPeriodHCL, &h.RenewalPeriod},
			durationField{"high_availability -> wait_period", h.WaitPeriodHCL, &h.WaitPeriod},
		)
	}

	for _, l := range cfg.Loops {
		prefix := fmt.Sprintf("loop[%s] -> ", l.Name)
		durations = append(durations,
			durationField{prefix + "sample_interval", l.SampleIntervalHCL, &l.SampleInterval},
			durationField{prefix + "cooldown", l.CooldownHCL, &l.Cooldown},
			durationField{prefix + "inter_cycle_delay", l.InterCycleDelayHCL, &l.InterCycleDelay},
			durationField{prefix + "actuation_retry_interval", l.ActuationRetryIntervalHCL, &l.ActuationRetryInterval},
			durationField{prefix + "metric_timeout", l.MetricTimeoutHCL, &l.MetricTimeout},
			durationField{prefix + "metric_retry_interval", l.MetricRetryIntervalHCL, &l.MetricRetryInterval},
			durationField{prefix + "reconnect_max_interval", l.ReconnectMaxIntervalHCL, &l.ReconnectMaxInterval},
		)
	}

	for _, d := range durations {
		if err := d.parse(); err != nil {
			return err
		}
	}
	return nil
}

// LoadPaths loads and merges every configuration path on top of the
// defaults, then validates the result.
func LoadPaths(paths []string) (*Agent, error) {
	cfg := Default()

	for _, path := range paths {
		current, err := Load(path)
		if err != nil {
			return nil, fmt.Errorf("error loading configuration from %s: %s", path, err)
		}
		cfg = cfg.Merge(current)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration. %v", err)
	}

	return cfg, nil
}

// Load loads the configuration at the given path, regardless if its a file or
// directory. Called for each -config to build up the runtime config value.
func Load(path string) (*Agent, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(expanded)
	if err != nil {
		return nil, err
	}

	if fi.IsDir() {
		return loadDir(expanded)
	}

	cleaned := filepath.Clean(expanded)

	cfg := &Agent{}
	if err := parseFile(cleaned, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %v", cleaned, err)
	}
	return cfg, nil
}

// loadDir loads all the configurations in the given directory in alphabetical
// order.
func loadDir(dir string) (*Agent, error) {

	files, err := file.GetFileListFromDir(dir, ".hcl", ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to load config directory: %v", err)
	}

	// Fast-path if we have no files
	if len(files) == 0 {
		return &Agent{}, nil
	}

	sort.Strings(files)

	var result *Agent
	for _, f := range files {

		cfg := &Agent{}

		if err := parseFile(f, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %v", f, err)
		}

		if result == nil {
			result = cfg
		} else {
			result = result.Merge(cfg)
		}
	}

	return result, nil
}

type durationField struct {
	name string
	raw  string
	dst  *time.Duration
}

func (d durationField) parse() error {
	if d.raw == "" {
		return nil
	}
	v, err := time.ParseDuration(d.raw)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %v", d.name, err)
	}
	*d.dst = v
	return nil
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	i, err := copystructure.Copy(m)
	if err != nil {
		panic(err.Error())
	}
	return i.(map[string]string)
}

// prefixErrors prefixes all errors in result.
func prefixErrors(result *multierror.Error, prefix string) *multierror.Error {
	if result != nil {
		for i, err := range result.Errors {
			result.Errors[i] = multierror.Prefix(err, prefix)
		}
	}
	return result
}
