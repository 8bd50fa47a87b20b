// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/agent"
	"github.com/hashicorp/queue-autoscaler/agent/config"
	flaghelper "github.com/hashicorp/queue-autoscaler/sdk/helper/flag"
	"github.com/hashicorp/queue-autoscaler/version"
)

const (
	// exitCodeConfig is returned when the configuration could not be read or
	// is invalid.
	exitCodeConfig = 1

	// exitCodeBackendConnect is returned when the agent could not make the
	// initial connection to a metric source or fleet controller.
	exitCodeBackendConnect = 2
)

type AgentCommand struct {
	Ctx context.Context

	args []string
}

// Help should return long-form help text that includes the command-line
// usage, a brief few sentences explaining the function of the command,
// and the complete list of flags the command accepts.
func (c *AgentCommand) Help() string {
	helpText := `
Usage: queue-autoscaler agent [options] [args]

  Starts the queue autoscaler agent and runs until an interrupt is received.

  The agent's configuration primarily comes from the config files used, which
  must define at least one apm, target and loop block. A subset of the options
  may also be passed directly as CLI arguments, listed below.

  The agent exits with code 1 when the configuration is invalid and with code
  2 when the initial connection to a metric source or fleet controller fails.

Options:

  -config=<path>
    The path to either a single config file or a directory of config
    files to use for configuring the agent. Can be specified multiple times.

  -log-level=<level>
    Specify the verbosity level of the agent's logs. Valid values include
    DEBUG, INFO, and WARN, in decreasing order of verbosity. The default is
    INFO.

  -log-json
    Output logs in a JSON format. The default is false.

  -enable-debug
    Enable the agent debugging HTTP endpoints. The default is false.

HTTP Options:

  -http-bind-address=<addr>
    The HTTP address that the health server will bind to. The default is
    127.0.0.1.

  -http-bind-port=<port>
    The port that the health server will bind to. The default is 8080.

Telemetry Options:

  -telemetry-disable-hostname
    Specifies whether gauge values should be prefixed with the local hostname.

  -telemetry-enable-hostname-label
    Enable adding hostname to metric labels.

  -telemetry-collection-interval=<dur>
    Specifies the time interval at which the agent collects telemetry data. The
    default is 1s.

  -telemetry-statsite-address=<addr>
    The address of the statsite aggregation server.

  -telemetry-statsd-address=<addr>
    The address of the statsd aggregation.

  -telemetry-dogstatsd-address=<addr>
    The address of the Datadog statsd server.

  -telemetry-dogstatsd-tag=<tag_list>
    A list of global tags that will be added to all telemetry packets sent to
    DogStatsD.

  -telemetry-prometheus-metrics
    Indicates whether the agent should make Prometheus formatted metrics
    available. Defaults to false.

  -telemetry-prometheus-retention-time=<dur>
    The time to retain Prometheus metrics before they are expired and untracked.

  -telemetry-circonus-api-token
    A valid API Token used to create/manage check. If provided, metric management
    is enabled.

  -telemetry-circonus-api-app
    The app name associated with API token. Defaults to queue-autoscaler.

  -telemetry-circonus-api-url
    The base URL to use for contacting the Circonus API. Defaults to
    https://api.circonus.com/v2.

  -telemetry-circonus-submission-interval
    The interval at which metrics are submitted to Circonus. Defaults to 10s.

  -telemetry-circonus-submission-url
    The check.config.submission_url field from a previously created HTTPTRAP
    check.

  -telemetry-circonus-check-id
    The check id from a previously created HTTPTRAP check. The numeric portion
    of the check._cid field.

  -telemetry-circonus-check-display-name
    The name used for the Circonus check that will be displayed in the UI.

  -telemetry-circonus-broker-id
    The Circonus broker to use when creating a new check.
`
	return strings.TrimSpace(helpText)
}

// Synopsis should return a one-line, short synopsis of the command.
// This should be less than 50 characters ideally.
func (c *AgentCommand) Synopsis() string {
	return "Runs a queue autoscaler agent"
}

// Run should run the actual command with the given CLI instance and
// command-line arguments. It should return the exit status when it is
// finished.
func (c *AgentCommand) Run(args []string) int {

	c.args = args

	parsedConfig, configPaths := c.readConfig()
	if parsedConfig == nil {
		fmt.Println("Run 'queue-autoscaler agent --help' for more information.")
		return exitCodeConfig
	}

	// Create the agent logger.
	logger := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:       "agent",
		Level:      hclog.LevelFromString(parsedConfig.LogLevel),
		JSONFormat: parsedConfig.LogJson,
	})

	logger.Info("Starting queue autoscaler agent")
	// Compile agent information for output later
	info := make(map[string]string)
	info["bind addrs"] = parsedConfig.HTTP.BindAddress
	info["log level"] = parsedConfig.LogLevel
	info["version"] = version.GetHumanVersion()
	info["config"] = strings.Join(configPaths, ", ")
	info["loops"] = fmt.Sprintf("%d", len(parsedConfig.Loops))
	info["high availability"] = fmt.Sprintf("%t", parsedConfig.HighAvailability.IsEnabled())

	// Sort the keys for output
	infoKeys := make([]string, 0, len(info))
	for key := range info {
		infoKeys = append(infoKeys, key)
	}
	sort.Strings(infoKeys)

	// Agent configuration output
	padding := 18
	logger.Info("Queue autoscaler agent configuration:")
	logger.Info("")
	for _, k := range infoKeys {
		logger.Info(fmt.Sprintf(
			"%s%s: %s",
			strings.Repeat(" ", padding-len(k)),
			strings.Title(k),
			info[k]))
	}
	logger.Info("")
	// Output the header that the server has started
	logger.Info("Queue autoscaler agent started! Log data will stream in below:")

	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if err := agent.NewAgent(parsedConfig, logger).Run(ctx); err != nil {
		logger.Error("failed to start agent", "error", err)
		if errors.Is(err, agent.ErrBackendConnect) {
			return exitCodeBackendConnect
		}
		return exitCodeConfig
	}
	return 0
}

func (c *AgentCommand) readConfig() (*config.Agent, []string) {
	var configPath []string

	// cmdConfig is used to store any passed CLI flags.
	cmdConfig := &config.Agent{
		HTTP:      &config.HTTP{},
		Telemetry: &config.Telemetry{},
	}

	flags := flag.NewFlagSet("agent", flag.ContinueOnError)
	flags.Usage = func() { fmt.Println(c.Help()) }

	// Specify or agent configuration flags.
	flags.Var((*flaghelper.StringFlag)(&configPath), "config", "")
	flags.StringVar(&cmdConfig.LogLevel, "log-level", "", "")
	flags.BoolVar(&cmdConfig.LogJson, "log-json", false, "")
	flags.BoolVar(&cmdConfig.EnableDebug, "enable-debug", false, "")

	// Specify our HTTP bind flags.
	flags.StringVar(&cmdConfig.HTTP.BindAddress, "http-bind-address", "", "")
	flags.IntVar(&cmdConfig.HTTP.BindPort, "http-bind-port", 0, "")

	// Specify our Telemetry CLI flags.
	flags.BoolVar(&cmdConfig.Telemetry.DisableHostname, "telemetry-disable-hostname", false, "")
	flags.BoolVar(&cmdConfig.Telemetry.EnableHostnameLabel, "telemetry-enable-hostname-label", false, "")
	flags.Var((flaghelper.FuncDurationVar)(func(d time.Duration) error {
		cmdConfig.Telemetry.CollectionInterval = d
		return nil
	}), "telemetry-collection-interval", "")
	flags.StringVar(&cmdConfig.Telemetry.StatsiteAddr, "telemetry-statsite-address", "", "")
	flags.StringVar(&cmdConfig.Telemetry.StatsdAddr, "telemetry-statsd-address", "", "")
	flags.StringVar(&cmdConfig.Telemetry.DogStatsDAddr, "telemetry-dogstatsd-address", "", "")
	flags.Var((*flaghelper.StringFlag)(&cmdConfig.Telemetry.DogStatsDTags), "telemetry-dogstatsd-tags", "")
	flags.BoolVar(&cmdConfig.Telemetry.PrometheusMetrics, "telemetry-prometheus-metrics", false, "")
	flags.Var((flaghelper.FuncDurationVar)(func(d time.Duration) error {
		cmdConfig.Telemetry.PrometheusRetentionTime = d
		return nil
	}), "telemetry-prometheus-retention-time", "")
	flags.StringVar(&cmdConfig.Telemetry.CirconusAPIToken, "telemetry-circonus-api-token", "", "")
	flags.StringVar(&cmdConfig.Telemetry.CirconusAPIApp, "telemetry-circonus-api-app", "", "")
	flags.StringVar(&cmdConfig.Telemetry.CirconusAPIURL, "telemetry-circonus-api-url", "", "")
	flags.StringVar(&cmdConfig.Telemetry.CirconusSubmissionInterval, "telemetry-circonus-submission-interval", "", "")
	flags.StringVar(&cmdConfig.Telemetry.CirconusCheckSubmissionURL, "telemetry-circonus-submission-url", "", "")
	flags.StringVar(&cmdConfig.Telemetry.CirconusCheckID, "telemetry-circonus-check-id", "", "")
	flags.StringVar(&cmdConfig.Telemetry.CirconusCheckDisplayName, "telemetry-circonus-check-display-name", "", "")
	flags.StringVar(&cmdConfig.Telemetry.CirconusBrokerID, "telemetry-circonus-broker-id", "", "")

	if err := flags.Parse(c.args); err != nil {
		return nil, configPath
	}

	if len(configPath) == 0 {
		fmt.Println("At least one -config path must be specified")
		return nil, configPath
	}

	fileConfig, err := config.LoadPaths(configPath)
	if err != nil {
		fmt.Printf("%s\n", err)
		return nil, configPath
	}

	// Flags can override validated file values, so check the result again.
	merged := fileConfig.Merge(cmdConfig)
	if err := merged.Validate(); err != nil {
		fmt.Printf("invalid configuration. %v\n", err)
		return nil, configPath
	}

	return merged, configPath
}
