package scenario

import (
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadExample(t *testing.T, name string) *Config {
	t.Helper()
	cfg, err := Load(filepath.Join("..", "..", "scenarios", name))
	require.NoError(t, err, "failed to load %s", name)
	require.NoError(t, cfg.Validate(), "validation failed for %s", name)
	return cfg
}

func TestExampleScenarios_AllBuild(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("..", "..", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, path := range matches {
		t.Run(filepath.Base(path), func(t *testing.T) {
			cfg := loadExample(t, filepath.Base(path))
			_, err := Build(cfg)
			assert.NoError(t, err)
		})
	}
}

func TestExampleScenarios_FourPaths(t *testing.T) {
	// GIVEN the four-path file with round-robin selection
	cfg := loadExample(t, "four-paths.yaml")
	require.Len(t, cfg.Paths, 4)
	assert.Equal(t, "500Mbps", cfg.Paths[3].Uplink.DataRate)

	// WHEN it runs
	_, res := run(t, cfg)

	// THEN all probes return and the slow path reorders some of them
	assert.Equal(t, []int{250, 250, 250, 250}, res.PathDistribution)
	assert.Equal(t, res.Sent, res.Received)
	assert.Positive(t, res.ClientReordered)
}

func TestExampleScenarios_NATTwoPaths(t *testing.T) {
	cfg := loadExample(t, "nat-two-paths.yaml")

	_, res := run(t, cfg)

	assert.Equal(t, ModeNAT, res.Mode)
	assert.Equal(t, res.Sent, res.Received)
	assert.Equal(t, map[netip.Addr]int{VirtualAddr: res.Received}, res.ReplySources)
}

func TestExampleScenarios_Withdrawal(t *testing.T) {
	cfg := loadExample(t, "withdrawal.yaml")

	_, res := run(t, cfg)

	// Path 3 only carries probes sent before the withdrawal.
	assert.Equal(t, res.Sent, res.Received)
	assert.Less(t, res.PathDistribution[3], res.PathDistribution[0])
	assert.Positive(t, res.PathDistribution[3])
}
