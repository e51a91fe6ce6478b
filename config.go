// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gavel

import (
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/gavel/tally"
	"github.com/blinklabs-io/gavel/treasury"
	"github.com/prometheus/client_golang/prometheus"
)

// FundsTransferrer is the external custody collaborator used for treasury
// releases and reward payouts
type FundsTransferrer = treasury.FundsTransferrer

type Config struct {
	logger                   *slog.Logger
	promRegistry             prometheus.Registerer
	oracle                   tally.Oracle
	custody                  FundsTransferrer
	dataDir                  string
	allowList                []string
	votingDelay              time.Duration
	votingPeriod             time.Duration
	timelockDelay            time.Duration
	proposalThresholdPercent uint
	quorumPercent            uint
	oracleTimeout            time.Duration
	transferTimeout          time.Duration
	lifecycleInterval        time.Duration
	shutdownTimeout          time.Duration
	tracing                  bool
	tracingStdout            bool
	now                      func() time.Time
}

// ConfigOptionFunc is a type that represents functions that modify the
// Governor config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new gavel config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:                   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		votingDelay:              24 * time.Hour,
		votingPeriod:             72 * time.Hour,
		timelockDelay:            48 * time.Hour,
		proposalThresholdPercent: 1,
		quorumPercent:            4,
		lifecycleInterval:        time.Minute,
		now:                      time.Now,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log
// output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies the prometheus registry for metrics
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithOracle specifies the voting power oracle
func WithOracle(oracle tally.Oracle) ConfigOptionFunc {
	return func(c *Config) {
		c.oracle = oracle
	}
}

// WithCustody specifies the external funds custody collaborator
func WithCustody(custody FundsTransferrer) ConfigOptionFunc {
	return func(c *Config) {
		c.custody = custody
	}
}

// WithDatabasePath specifies the persistent data directory to use. The
// default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithAllowList specifies accounts that may create and cancel proposals
// regardless of voting weight
func WithAllowList(accounts ...string) ConfigOptionFunc {
	return func(c *Config) {
		c.allowList = append(c.allowList, accounts...)
	}
}

// WithVotingDelay specifies the delay between proposal creation and the
// start of voting. Must be between 1 and 7 days
func WithVotingDelay(delay time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.votingDelay = delay
	}
}

// WithVotingPeriod specifies the length of the voting window. Must be
// between 3 and 14 days
func WithVotingPeriod(period time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.votingPeriod = period
	}
}

// WithTimelockDelay specifies the delay between a proposal being queued
// and becoming executable
func WithTimelockDelay(delay time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.timelockDelay = delay
	}
}

// WithProposalThresholdPercent specifies the minimum share of total voting
// weight a non-allow-listed proposer must hold. Must be at most 10
func WithProposalThresholdPercent(percent uint) ConfigOptionFunc {
	return func(c *Config) {
		c.proposalThresholdPercent = percent
	}
}

// WithQuorumPercent specifies the share of total voting weight that must
// participate for a vote to be valid. Must be in (0, 100]
func WithQuorumPercent(percent uint) ConfigOptionFunc {
	return func(c *Config) {
		c.quorumPercent = percent
	}
}

// WithOracleTimeout bounds voting power oracle lookups
func WithOracleTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.oracleTimeout = timeout
	}
}

// WithTransferTimeout bounds custody transfer calls
func WithTransferTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.transferTimeout = timeout
	}
}

// WithLifecycleInterval specifies how often the background ticker checks
// for proposals whose voting window has opened. Zero disables the ticker
func WithLifecycleInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.lifecycleInterval = interval
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

// WithTracing enables OpenTelemetry tracing
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout specifies whether to output traces to stdout instead
// of OTLP-over-HTTP
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithClock overrides the time source. Used by tests to control time
func WithClock(now func() time.Time) ConfigOptionFunc {
	return func(c *Config) {
		c.now = now
	}
}

func (g *Governor) configValidate() error {
	if g.config.oracle == nil {
		return &ValidationError{
			Field:  "oracle",
			Reason: "voting power oracle is required",
		}
	}
	if g.config.custody == nil {
		return &ValidationError{
			Field:  "custody",
			Reason: "funds custody collaborator is required",
		}
	}
	if g.config.votingDelay < 24*time.Hour ||
		g.config.votingDelay > 7*24*time.Hour {
		return &ValidationError{
			Field:  "votingDelay",
			Reason: "must be between 1 and 7 days",
		}
	}
	if g.config.votingPeriod < 3*24*time.Hour ||
		g.config.votingPeriod > 14*24*time.Hour {
		return &ValidationError{
			Field:  "votingPeriod",
			Reason: "must be between 3 and 14 days",
		}
	}
	if g.config.proposalThresholdPercent > 10 {
		return &ValidationError{
			Field:  "proposalThresholdPercent",
			Reason: "must be at most 10",
		}
	}
	if g.config.quorumPercent == 0 || g.config.quorumPercent > 100 {
		return &ValidationError{
			Field:  "quorumPercent",
			Reason: "must be between 1 and 100",
		}
	}
	return nil
}
