package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/scenario"
)

// parseRunFlags returns a fresh run command with args parsed.
func parseRunFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "run"}
	registerRunFlags(c)
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestApplyFlags_OnlyChangedFlagsOverride(t *testing.T) {
	// GIVEN a config with non-default values and only --policy set
	cfg := scenario.DefaultConfig()
	cfg.Seed = 7
	cfg.Traffic.Packets = 12
	c := parseRunFlags(t, "--policy", "round-robin")

	// WHEN flags are applied
	applyFlags(c, cfg)

	// THEN only the policy changes
	assert.Equal(t, "round-robin", cfg.Policy)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 12, cfg.Traffic.Packets)
	assert.Len(t, cfg.Paths, 4)
}

func TestApplyFlags_AllScalars(t *testing.T) {
	cfg := scenario.DefaultConfig()
	c := parseRunFlags(t,
		"--mode", "nat", "--cursor", "2", "--seed", "9", "--packets", "50",
		"--interval", "2ms", "--horizon", "3s", "--trace", "decisions")

	applyFlags(c, cfg)

	assert.Equal(t, scenario.ModeNAT, cfg.Mode)
	assert.Equal(t, 2, cfg.InitialCursor)
	assert.Equal(t, int64(9), cfg.Seed)
	assert.Equal(t, 50, cfg.Traffic.Packets)
	assert.Equal(t, 2*time.Millisecond, cfg.Traffic.Interval)
	assert.Equal(t, 3*time.Second, cfg.Horizon)
	assert.Equal(t, "decisions", cfg.TraceLevel)
}

func TestApplyFlags_PathsAndBadPath(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantPaths int
		wantBad   int // -1 for none
	}{
		{name: "grow keeps the slow path", args: []string{"--paths", "6"}, wantPaths: 6, wantBad: 3},
		{name: "shrink drops the slow path", args: []string{"--paths", "2"}, wantPaths: 2, wantBad: -1},
		{name: "move the slow path", args: []string{"--bad-path", "0"}, wantPaths: 4, wantBad: 0},
		{name: "no slow path", args: []string{"--bad-path", "-1"}, wantPaths: 4, wantBad: -1},
		{name: "shrink and move", args: []string{"--paths", "3", "--bad-path", "1"}, wantPaths: 3, wantBad: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := scenario.DefaultConfig()
			applyFlags(parseRunFlags(t, tt.args...), cfg)

			require.Len(t, cfg.Paths, tt.wantPaths)
			for i, p := range cfg.Paths {
				if i == tt.wantBad {
					assert.Equal(t, badUplink, p.Uplink, "path %d", i)
				} else {
					assert.Equal(t, goodUplink, p.Uplink, "path %d", i)
				}
			}
		})
	}
}

func TestResizePaths_EmptyUsesFastPath(t *testing.T) {
	got := resizePaths(nil, 2)

	require.Len(t, got, 2)
	assert.Equal(t, goodUplink, got[1].Uplink)
	assert.Equal(t, goodUplink, got[1].Downlink)
}

func TestLoadConfig_FileThenFlags(t *testing.T) {
	// GIVEN a scenario file selecting NAT mode and a --packets override
	path := writeScenario(t, "mode: nat\ntraffic:\n  packets: 20\n")
	c := parseRunFlags(t, "-f", path, "--packets", "8")

	// WHEN the configuration is loaded
	cfg, err := loadConfig(c)

	// THEN the file sets the mode and the flag wins for packets
	require.NoError(t, err)
	assert.Equal(t, scenario.ModeNAT, cfg.Mode)
	assert.Equal(t, 8, cfg.Traffic.Packets)
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	c := parseRunFlags(t, "--policy", "weighted")

	_, err := loadConfig(c)

	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.InfoLevel)
		logFile = ""
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		logLevel, logFile = "loud", ""
		assert.Error(t, setupLogging(&bytes.Buffer{}))
	})

	t.Run("tees into the log file", func(t *testing.T) {
		var stderr bytes.Buffer
		logLevel = "info"
		logFile = filepath.Join(t.TempDir(), "pplb.log")

		require.NoError(t, setupLogging(&stderr))
		logrus.Info("hello")

		assert.Contains(t, stderr.String(), "hello")
		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "hello")
	})
}
