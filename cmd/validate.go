package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/scenario"
)

var validatePath string

// validateCmd checks a scenario file without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a scenario file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateScenario(cmd, validatePath)
	},
}

func validateScenario(cmd *cobra.Command, path string) error {
	cfg, err := scenario.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %v\n", e)
		}
		return fmt.Errorf("%s: %d problem(s)", path, len(multierr.Errors(err)))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s mode, %d paths, %d probes)\n", path, cfg.Mode, len(cfg.Paths), cfg.Traffic.Packets)
	return nil
}

func init() {
	validateCmd.Flags().StringVarP(&validatePath, "file", "f", "", "Scenario YAML file")
	_ = validateCmd.MarkFlagRequired("file")
}
