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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/gavel"
	"github.com/blinklabs-io/gavel/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	if cfg.WeightsFile == "" {
		return errors.New("no voting weights file configured")
	}
	oracle, err := newFileOracle(cfg.WeightsFile)
	if err != nil {
		return err
	}
	custody := &logCustody{logger: logger}
	// Parse duration strings
	votingDelay, err := time.ParseDuration(cfg.VotingDelay)
	if err != nil {
		return fmt.Errorf("invalid voting delay: %w", err)
	}
	votingPeriod, err := time.ParseDuration(cfg.VotingPeriod)
	if err != nil {
		return fmt.Errorf("invalid voting period: %w", err)
	}
	timelockDelay, err := time.ParseDuration(cfg.TimelockDelay)
	if err != nil {
		return fmt.Errorf("invalid timelock delay: %w", err)
	}
	shutdownTimeout := 30 * time.Second // Default timeout
	if cfg.ShutdownTimeout != "" {
		shutdownTimeout, err = time.ParseDuration(cfg.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown timeout: %w", err)
		}
	}

	g, err := gavel.New(
		gavel.NewConfig(
			gavel.WithLogger(logger),
			gavel.WithDatabasePath(cfg.DatabasePath),
			gavel.WithOracle(oracle),
			gavel.WithCustody(custody),
			gavel.WithAllowList(cfg.AllowList...),
			gavel.WithVotingDelay(votingDelay),
			gavel.WithVotingPeriod(votingPeriod),
			gavel.WithTimelockDelay(timelockDelay),
			gavel.WithProposalThresholdPercent(cfg.ProposalThresholdPercent),
			gavel.WithQuorumPercent(cfg.QuorumPercent),
			gavel.WithShutdownTimeout(shutdownTimeout),
			gavel.WithTracing(cfg.Tracing),
			gavel.WithTracingStdout(cfg.TracingStdout),
			// Enable metrics with default prometheus registry
			gavel.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		),
	)
	if err != nil {
		return err
	}
	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component",
		"node",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "node",
			)
			os.Exit(1)
		}
	}()
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	<-signalCtx.Done()
	logger.Info("signal received, initiating graceful shutdown")

	// Shutdown metrics server
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	if err := g.Stop(); err != nil {
		logger.Error("shutdown errors occurred", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
