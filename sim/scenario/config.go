package scenario

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/trace"
)

// Balancing modes.
const (
	// ModeRouteTable balances in the balancer's routing decision.
	ModeRouteTable = "route-table"
	// ModeNAT balances by rewriting addresses at the link layer.
	ModeNAT = "nat"
)

// ValidModes is the set of recognized balancing modes.
var ValidModes = map[string]bool{ModeRouteTable: true, ModeNAT: true}

// Config is a complete scenario, loadable from YAML.
// Every field has a default; see DefaultConfig.
type Config struct {
	Mode          string        `yaml:"mode"`
	Seed          int64         `yaml:"seed"`
	Policy        string        `yaml:"policy"`
	InitialCursor int           `yaml:"initial_cursor"`
	Horizon       time.Duration `yaml:"horizon"`
	TraceLevel    string        `yaml:"trace_level"`
	ClientLink    LinkSpec      `yaml:"client_link"`
	Paths         []PathSpec    `yaml:"paths"`
	Traffic       TrafficSpec   `yaml:"traffic"`
	Withdrawals   []Withdrawal  `yaml:"withdrawals"`
}

// LinkSpec describes a point-to-point link.
type LinkSpec struct {
	DataRate   string        `yaml:"data_rate"` // e.g. "10Gbps", "500Mbps"
	Delay      time.Duration `yaml:"delay"`
	MaxBacklog int           `yaml:"max_backlog"`
}

// PathSpec describes one balancer → router → server path.
type PathSpec struct {
	Uplink   LinkSpec `yaml:"uplink"`   // balancer ↔ router
	Downlink LinkSpec `yaml:"downlink"` // router ↔ server
}

// TrafficSpec describes the client's UDP probe stream.
type TrafficSpec struct {
	Packets      int           `yaml:"packets"`
	Interval     time.Duration `yaml:"interval"`
	Jitter       time.Duration `yaml:"jitter"`
	Start        time.Duration `yaml:"start"`
	PayloadBytes int           `yaml:"payload_bytes"`
	Port         uint16        `yaml:"port"`
}

// Withdrawal removes the balancer's route over one path at a given time.
// Route-table mode only.
type Withdrawal struct {
	At   time.Duration `yaml:"at"`
	Path int           `yaml:"path"`
}

// MinPayloadBytes is the room needed for the probe sequence number and send time.
const MinPayloadBytes = 16

// DefaultConfig returns the four-path experiment: three fast paths and one
// slow path at index 3.
func DefaultConfig() *Config {
	good := PathSpec{
		Uplink:   LinkSpec{DataRate: "1Gbps", Delay: time.Millisecond},
		Downlink: LinkSpec{DataRate: "1Gbps", Delay: time.Millisecond},
	}
	bad := good
	bad.Uplink = LinkSpec{DataRate: "500Mbps", Delay: 50 * time.Millisecond}
	return &Config{
		Mode:       ModeRouteTable,
		Seed:       42,
		Policy:     sim.PolicyRandom,
		Horizon:    10 * time.Second,
		TraceLevel: string(trace.TraceLevelNone),
		ClientLink: LinkSpec{DataRate: "10Gbps", Delay: time.Millisecond},
		Paths:      []PathSpec{good, good, good, bad},
		Traffic: TrafficSpec{
			Packets:      1000,
			Interval:     time.Millisecond,
			Start:        time.Second,
			PayloadBytes: 1460,
			Port:         5000,
		},
	}
}

// Load reads a scenario file on top of DefaultConfig. Unknown keys are errors.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a scenario document on top of DefaultConfig.
func Decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var err error
	if !ValidModes[c.Mode] {
		err = multierr.Append(err, fmt.Errorf("unknown mode %q", c.Mode))
	}
	if !sim.IsValidSelectionPolicy(c.Policy) {
		err = multierr.Append(err, fmt.Errorf("unknown policy %q (valid: %s)", c.Policy, strings.Join(sim.ValidSelectionPolicyNames(), ", ")))
	}
	if c.InitialCursor < 0 {
		err = multierr.Append(err, fmt.Errorf("initial_cursor must be non-negative, got %d", c.InitialCursor))
	}
	if c.Horizon <= 0 {
		err = multierr.Append(err, fmt.Errorf("horizon must be positive, got %s", c.Horizon))
	}
	if !trace.IsValidTraceLevel(c.TraceLevel) {
		err = multierr.Append(err, fmt.Errorf("unknown trace level %q", c.TraceLevel))
	}
	err = multierr.Append(err, c.ClientLink.validate("client_link"))
	if len(c.Paths) == 0 {
		err = multierr.Append(err, fmt.Errorf("at least one path is required"))
	}
	if len(c.Paths) > 63 {
		err = multierr.Append(err, fmt.Errorf("at most 63 paths fit the 10.1.2.0/24 addressing plan, got %d", len(c.Paths)))
	}
	for i, p := range c.Paths {
		err = multierr.Append(err, p.Uplink.validate(fmt.Sprintf("paths[%d].uplink", i)))
		err = multierr.Append(err, p.Downlink.validate(fmt.Sprintf("paths[%d].downlink", i)))
	}

	t := c.Traffic
	if t.Packets <= 0 {
		err = multierr.Append(err, fmt.Errorf("traffic.packets must be positive, got %d", t.Packets))
	}
	if t.Interval <= 0 {
		err = multierr.Append(err, fmt.Errorf("traffic.interval must be positive, got %s", t.Interval))
	}
	if t.Jitter < 0 || t.Start < 0 {
		err = multierr.Append(err, fmt.Errorf("traffic.jitter and traffic.start must be non-negative"))
	}
	if t.PayloadBytes < MinPayloadBytes || t.PayloadBytes > 65507 {
		err = multierr.Append(err, fmt.Errorf("traffic.payload_bytes must be in [%d, 65507], got %d", MinPayloadBytes, t.PayloadBytes))
	}
	if t.Port == 0 {
		err = multierr.Append(err, fmt.Errorf("traffic.port must be set"))
	}

	for i, w := range c.Withdrawals {
		if c.Mode == ModeNAT {
			err = multierr.Append(err, fmt.Errorf("withdrawals[%d]: route withdrawal needs mode %q", i, ModeRouteTable))
		}
		if w.Path < 0 || w.Path >= len(c.Paths) {
			err = multierr.Append(err, fmt.Errorf("withdrawals[%d]: path %d out of range", i, w.Path))
		}
		if w.At < 0 {
			err = multierr.Append(err, fmt.Errorf("withdrawals[%d]: negative time %s", i, w.At))
		}
	}
	return err
}

func (l LinkSpec) validate(name string) error {
	var err error
	if _, perr := ParseDataRate(l.DataRate); perr != nil {
		err = multierr.Append(err, fmt.Errorf("%s.data_rate: %w", name, perr))
	}
	if l.Delay < 0 {
		err = multierr.Append(err, fmt.Errorf("%s.delay must be non-negative, got %s", name, l.Delay))
	}
	if l.MaxBacklog < 0 {
		err = multierr.Append(err, fmt.Errorf("%s.max_backlog must be non-negative, got %d", name, l.MaxBacklog))
	}
	return err
}

var rateUnits = []struct {
	suffix string
	scale  float64
}{
	{"gbps", 1e9},
	{"mbps", 1e6},
	{"kbps", 1e3},
	{"bps", 1},
}

// ParseDataRate converts strings such as "10Gbps", "500Mbps" or "64kbps"
// to bits per second. An empty string means an unlimited rate (0).
func ParseDataRate(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	lower := strings.ToLower(s)
	for _, u := range rateUnits {
		if !strings.HasSuffix(lower, u.suffix) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(lower[:len(lower)-len(u.suffix)]), 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid data rate %q", s)
		}
		return uint64(v * u.scale), nil
	}
	return 0, fmt.Errorf("invalid data rate %q: want a bps, kbps, Mbps or Gbps suffix", s)
}
