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

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "gavel.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	DatabasePath             string   `yaml:"databasePath"             split_words:"true"`
	BindAddr                 string   `yaml:"bindAddr"                 split_words:"true"`
	WeightsFile              string   `yaml:"weightsFile"              split_words:"true"`
	VotingDelay              string   `yaml:"votingDelay"              split_words:"true"`
	VotingPeriod             string   `yaml:"votingPeriod"             split_words:"true"`
	TimelockDelay            string   `yaml:"timelockDelay"            split_words:"true"`
	ShutdownTimeout          string   `yaml:"shutdownTimeout"          split_words:"true"`
	AllowList                []string `yaml:"allowList"                split_words:"true"`
	MetricsPort              uint     `yaml:"metricsPort"              split_words:"true"`
	ProposalThresholdPercent uint     `yaml:"proposalThresholdPercent" split_words:"true"`
	QuorumPercent            uint     `yaml:"quorumPercent"            split_words:"true"`
	Tracing                  bool     `yaml:"tracing"`
	TracingStdout            bool     `yaml:"tracingStdout"            split_words:"true"`
}

var globalConfig = &Config{
	DatabasePath:             ".gavel",
	BindAddr:                 "0.0.0.0",
	MetricsPort:              12798,
	VotingDelay:              "24h",
	VotingPeriod:             "72h",
	TimelockDelay:            "48h",
	ProposalThresholdPercent: 1,
	QuorumPercent:            4,
	ShutdownTimeout:          DefaultShutdownTimeout,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.gavel/gavel.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".gavel", "gavel.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		// Try to check for /etc/gavel/gavel.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/gavel/gavel.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Load config values from environment variables
	// We use "dummy" as the app name here to (mostly) prevent picking up
	// env vars that we hadn't explicitly specified in annotations above
	if err := envconfig.Process("dummy", globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	return globalConfig, nil
}

// GetConfig returns the global config instance
func GetConfig() *Config {
	return globalConfig
}
