package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/scenario"
)

var (
	configPath  string        // Scenario YAML file
	mode        string        // Balancing mode (route-table, nat)
	policy      string        // Path selection policy (random, round-robin)
	cursor      int           // Initial round-robin cursor
	numPaths    int           // Number of parallel paths
	badPath     int           // Index of the slow path, -1 for none
	seed        int64         // Seed for path selection and traffic jitter
	packets     int           // Number of probes
	interval    time.Duration // Gap between probes
	horizon     time.Duration // Simulated time limit
	traceLevel  string        // Decision trace level
	logLevel    string        // Log verbosity level
	logFile     string        // Optional rotating log file
	metricsFile string        // Optional Prometheus text dump
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "pplb",
	Short: "Per-packet multipath load balancing simulator",
}

// runCmd builds the scenario from file and flags and runs it
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a load balancing scenario",
	Run: func(cmd *cobra.Command, args []string) {
		if err := setupLogging(cmd.ErrOrStderr()); err != nil {
			logrus.Fatalf("%v", err)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		s, err := scenario.Build(cfg)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		start := time.Now()
		res, err := s.Run()
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		res.Print(cmd.OutOrStdout())

		if metricsFile != "" {
			if err := prometheus.WriteToTextfile(metricsFile, s.Metrics.Registry()); err != nil {
				logrus.Fatalf("Writing metrics: %v", err)
			}
		}
		logrus.Infof("Simulation complete in %s.", time.Since(start))
	},
}

// loadConfig starts from the scenario file (or defaults) and applies every
// flag the user set explicitly.
func loadConfig(cmd *cobra.Command) (*scenario.Config, error) {
	cfg := scenario.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = scenario.Load(configPath); err != nil {
			return nil, err
		}
	}
	applyFlags(cmd, cfg)
	return cfg, cfg.Validate()
}

func applyFlags(cmd *cobra.Command, cfg *scenario.Config) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Mode = mode
	}
	if flags.Changed("policy") {
		cfg.Policy = policy
	}
	if flags.Changed("cursor") {
		cfg.InitialCursor = cursor
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("packets") {
		cfg.Traffic.Packets = packets
	}
	if flags.Changed("interval") {
		cfg.Traffic.Interval = interval
	}
	if flags.Changed("horizon") {
		cfg.Horizon = horizon
	}
	if flags.Changed("trace") {
		cfg.TraceLevel = traceLevel
	}
	if flags.Changed("paths") && numPaths > 0 {
		cfg.Paths = resizePaths(cfg.Paths, numPaths)
	}
	if flags.Changed("bad-path") {
		for i := range cfg.Paths {
			cfg.Paths[i].Uplink = goodUplink
		}
		if badPath >= 0 && badPath < len(cfg.Paths) {
			cfg.Paths[badPath].Uplink = badUplink
		}
	}
}

var (
	goodUplink = scenario.LinkSpec{DataRate: "1Gbps", Delay: time.Millisecond}
	badUplink  = scenario.LinkSpec{DataRate: "500Mbps", Delay: 50 * time.Millisecond}
)

// resizePaths truncates paths to n or pads it with copies of the first
// path (or a default fast path).
func resizePaths(paths []scenario.PathSpec, n int) []scenario.PathSpec {
	if len(paths) >= n {
		return paths[:n]
	}
	template := scenario.PathSpec{Uplink: goodUplink, Downlink: goodUplink}
	if len(paths) > 0 {
		template = paths[0]
	}
	for len(paths) < n {
		paths = append(paths, template)
	}
	return paths
}

// setupLogging applies --log and, with --log-file, tees output into a
// rotating file.
func setupLogging(stderr io.Writer) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
	if logFile == "" {
		logrus.SetOutput(stderr)
		return nil
	}
	logrus.SetOutput(io.MultiWriter(stderr, &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}))
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// registerRunFlags binds the run flags to c.
func registerRunFlags(c *cobra.Command) {
	c.Flags().StringVarP(&configPath, "config", "f", "", "Scenario YAML file (defaults to the four-path experiment)")
	c.Flags().StringVar(&mode, "mode", scenario.ModeRouteTable, "Balancing mode (route-table, nat)")
	c.Flags().StringVar(&policy, "policy", "random", "Path selection policy (random, round-robin)")
	c.Flags().IntVar(&cursor, "cursor", 0, "Initial round-robin cursor")
	c.Flags().IntVar(&numPaths, "paths", 4, "Number of parallel paths")
	c.Flags().IntVar(&badPath, "bad-path", 3, "Index of the slow 500Mbps/50ms path (-1 for none)")
	c.Flags().Int64Var(&seed, "seed", 42, "Seed for path selection and traffic jitter")
	c.Flags().IntVar(&packets, "packets", 1000, "Number of probes sent by the client")
	c.Flags().DurationVar(&interval, "interval", time.Millisecond, "Gap between probes")
	c.Flags().DurationVar(&horizon, "horizon", 10*time.Second, "Simulated time limit")
	c.Flags().StringVar(&traceLevel, "trace", "none", "Decision trace level (none, decisions)")
	c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	c.Flags().StringVar(&logFile, "log-file", "", "Also write logs to this file, rotated by size")
	c.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus counters to this file after the run")
}

func init() {
	registerRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
