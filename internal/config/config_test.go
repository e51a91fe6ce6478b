package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func resetGlobalConfig() {
	globalConfig = &Config{
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
}

func TestLoad_CompareFullStruct(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
databasePath: "/var/lib/gavel"
bindAddr: "127.0.0.1"
weightsFile: "weights.yaml"
votingDelay: "48h"
votingPeriod: "96h"
timelockDelay: "72h"
shutdownTimeout: "10s"
allowList:
  - "alice"
  - "bob"
metricsPort: 8088
proposalThresholdPercent: 2
quorumPercent: 10
tracing: true
tracingStdout: true
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-gavel.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	expected := &Config{
		DatabasePath:             "/var/lib/gavel",
		BindAddr:                 "127.0.0.1",
		WeightsFile:              "weights.yaml",
		VotingDelay:              "48h",
		VotingPeriod:             "96h",
		TimelockDelay:            "72h",
		ShutdownTimeout:          "10s",
		AllowList:                []string{"alice", "bob"},
		MetricsPort:              8088,
		ProposalThresholdPercent: 2,
		QuorumPercent:            10,
		Tracing:                  true,
		TracingStdout:            true,
	}

	actual, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !reflect.DeepEqual(actual, expected) {
		t.Errorf(
			"Loaded config does not match expected.\nActual: %+v\nExpected: %+v",
			actual,
			expected,
		)
	}
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig()

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Expected is the original default values from globalConfig
	expected := &Config{
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

	if !reflect.DeepEqual(cfg, expected) {
		t.Errorf(
			"config mismatch without file:\nExpected: %+v\nGot:      %+v",
			expected,
			cfg,
		)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("DUMMY_QUORUM_PERCENT", "25")
	t.Setenv("DUMMY_WEIGHTS_FILE", "/etc/gavel/weights.yaml")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.QuorumPercent != 25 {
		t.Errorf("expected QuorumPercent to be 25, got: %d", cfg.QuorumPercent)
	}
	if cfg.WeightsFile != "/etc/gavel/weights.yaml" {
		t.Errorf("expected WeightsFile override, got: %s", cfg.WeightsFile)
	}
}

func TestLoad_FileAndEnvCombined(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
votingDelay: "36h"
quorumPercent: 8
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-combined.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Env wins over the file
	t.Setenv("DUMMY_QUORUM_PERCENT", "12")

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.VotingDelay != "36h" {
		t.Errorf("expected VotingDelay to be 36h, got: %s", cfg.VotingDelay)
	}
	if cfg.QuorumPercent != 12 {
		t.Errorf("expected QuorumPercent to be 12, got: %d", cfg.QuorumPercent)
	}
}
