package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jtomasevic/treemine/pck/errs"
	"gopkg.in/yaml.v3"
)

type InfixStrategy string

const (
	// InfixTree derives start markings from the tree structure.
	InfixTree InfixStrategy = "tree"
	// InfixBaseline starts from every reachable marking.
	InfixBaseline InfixStrategy = "baseline"
)

type Frequency string

const (
	VariantTransaction Frequency = "variant_transaction"
	VariantOccurrence  Frequency = "variant_occurrence"
	TraceTransaction   Frequency = "trace_transaction"
	TraceOccurrence    Frequency = "trace_occurrence"
)

func (f Frequency) IsTransaction() bool {
	return f == VariantTransaction || f == TraceTransaction
}

func (f Frequency) WeighsTraces() bool {
	return f == TraceTransaction || f == TraceOccurrence
}

type Strategy string

const (
	Rightmost   Strategy = "rightmost"
	Combination Strategy = "combination"
)

type AlignmentOptions struct {
	// UseDijkstra replaces the LP heuristic by zero.
	UseDijkstra bool          `yaml:"use_dijkstra"`
	Timeout     time.Duration `yaml:"timeout"`
	// InfixStrategy selects how infix and postfix start markings are found.
	InfixStrategy InfixStrategy `yaml:"infix_strategy"`
	// ReduceTree aligns infixes against the smallest subtree holding every
	// matching leaf when no loop is above it.
	ReduceTree           bool `yaml:"reduce_tree"`
	MaxStartMarkings     int  `yaml:"max_start_markings"`
	MaxReachableMarkings int  `yaml:"max_reachable_markings"`
	MaxAllowedHeuristic  int  `yaml:"max_allowed_heuristic"`

	Logger *slog.Logger `yaml:"-"`
}

func (o AlignmentOptions) WithDefaults() AlignmentOptions {
	if o.InfixStrategy == "" {
		o.InfixStrategy = InfixTree
	}
	if o.MaxStartMarkings <= 0 {
		o.MaxStartMarkings = 4096
	}
	if o.MaxReachableMarkings <= 0 {
		o.MaxReachableMarkings = 100000
	}
	if o.MaxAllowedHeuristic <= 0 {
		o.MaxAllowedHeuristic = 1 << 40
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type RepairOptions struct {
	TryPullingLCADown                   bool `yaml:"try_pulling_lca_down"`
	AddArtificialStartEnd               bool `yaml:"add_artificial_start_end"`
	AddMissingFrozenSubtreesAtRootLevel bool `yaml:"add_missing_frozen_subtrees_at_root_level"`
	// PoolSize > 1 aligns previously added traces concurrently.
	PoolSize      int              `yaml:"pool_size"`
	MaxIterations int              `yaml:"max_iterations"`
	Alignment     AlignmentOptions `yaml:"alignment"`

	Logger *slog.Logger `yaml:"-"`
}

func (o RepairOptions) WithDefaults() RepairOptions {
	if o.PoolSize <= 0 {
		o.PoolSize = 1
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 50
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Alignment.Logger == nil {
		o.Alignment.Logger = o.Logger
	}
	o.Alignment = o.Alignment.WithDefaults()
	return o
}

type MiningOptions struct {
	MinSupport int       `yaml:"min_support"`
	Frequency  Frequency `yaml:"frequency"`
	// MaxSize bounds the number of pattern nodes; 0 means unbounded.
	MaxSize       int      `yaml:"max_size"`
	Strategy      Strategy `yaml:"strategy"`
	ClosedMaximal bool     `yaml:"closed_maximal"`

	Logger *slog.Logger `yaml:"-"`
}

func (o MiningOptions) WithDefaults() MiningOptions {
	if o.MinSupport <= 0 {
		o.MinSupport = 1
	}
	if o.Frequency == "" {
		o.Frequency = VariantTransaction
	}
	if o.Strategy == "" {
		o.Strategy = Rightmost
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type Config struct {
	Repair RepairOptions `yaml:"repair"`
	Mining MiningOptions `yaml:"mining"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document and fills unset options with defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, &errs.ParseError{Input: "config", Msg: err.Error()}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.Repair = c.Repair.WithDefaults()
	c.Mining = c.Mining.WithDefaults()
	return &c, nil
}

func (c *Config) validate() error {
	switch c.Repair.Alignment.InfixStrategy {
	case "", InfixTree, InfixBaseline:
	default:
		return &errs.ParseError{Input: string(c.Repair.Alignment.InfixStrategy), Msg: "unknown infix strategy"}
	}
	switch c.Mining.Frequency {
	case "", VariantTransaction, VariantOccurrence, TraceTransaction, TraceOccurrence:
	default:
		return &errs.ParseError{Input: string(c.Mining.Frequency), Msg: "unknown frequency strategy"}
	}
	switch c.Mining.Strategy {
	case "", Rightmost, Combination:
	default:
		return &errs.ParseError{Input: string(c.Mining.Strategy), Msg: "unknown mining strategy"}
	}
	return nil
}
