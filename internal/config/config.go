// Package config loads and validates the process-wide configuration
// broadcast from the host to every worker at init time. It is populated
// once and treated as read-only thereafter; entry points receive it as an
// explicit argument rather than reaching for a package-level global, per
// the engine's Design Notes on testability.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/arxgeo/geodist/internal/dberr"
)

// EnvironmentType selects local single-process testing versus a real
// multi-host cluster.
type EnvironmentType string

const (
	EnvironmentLocal   EnvironmentType = "LOCAL"
	EnvironmentCluster EnvironmentType = "CLUSTER"
)

// PartitioningType selects the grid scheme
type PartitioningType string

const (
	PartitioningRR      PartitioningType = "RR"
	PartitioningTwoGrid PartitioningType = "TWOGRID"
)

// AssignmentFunc selects how distribution cells map to node ranks.
type AssignmentFunc string

const (
	AssignmentStandard   AssignmentFunc = "ST"
	AssignmentOptimized  AssignmentFunc = "OP" // not implemented, see Validate
)

// EnvironmentConfig mirrors the INI [Environment] section.
type EnvironmentConfig struct {
	Type         EnvironmentType
	NodefilePath string
	NodeCount    int
}

// PartitioningConfig mirrors the INI [Partitioning] section.
type PartitioningConfig struct {
	Path           string
	BatchSize      int
	Type           PartitioningType
	PPDNum         int
	DGPPDNum       int
	AssignmentFunc AssignmentFunc
}

// PipelineConfig mirrors the INI [Pipeline] section.
type PipelineConfig struct {
	MBRFilter  bool
	IFilter    bool
	Refinement bool
}

// APRILConfig mirrors the INI [APRIL] section.
type APRILConfig struct {
	N           int
	Compression bool
	Partitions  int
}

// Config is the fully validated, process-wide configuration object.
type Config struct {
	Environment  EnvironmentConfig
	Partitioning PartitioningConfig
	Pipeline     PipelineConfig
	APRIL        APRILConfig

	// MaxThreads bounds every bounded thread pool in the process (fabric
	// broadcast/gather, partition router, sweep kernel, distance-join
	// scan). Not an INI key; Default sets it to 4 unless overridden.
	MaxThreads int

	// CacheAddr, when non-empty, points the optional distributed result
	// cache at a redis instance; empty means use the in-process ristretto
	// cache only.
	CacheAddr string
}

// Default returns a Config usable for LOCAL single-process runs and tests.
func Default() *Config {
	return &Config{
		Environment: EnvironmentConfig{
			Type:      EnvironmentLocal,
			NodeCount: 1,
		},
		Partitioning: PartitioningConfig{
			BatchSize:      1000,
			Type:           PartitioningTwoGrid,
			PPDNum:         8,
			DGPPDNum:       1,
			AssignmentFunc: AssignmentStandard,
		},
		Pipeline: PipelineConfig{
			MBRFilter:  true,
			IFilter:    false,
			Refinement: true,
		},
		APRIL: APRILConfig{
			N:           10,
			Compression: false,
			Partitions:  1,
		},
		MaxThreads: 4,
	}
}

// Load reads the INI configuration at path using viper (which also backs
// the CLUSTER-mode hot-reload watch below) and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, dberr.Wrap(dberr.CodeFilesystem, "reading configuration file", err)
	}
	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WatchReload re-reads the configuration on change and invokes onChange
// with the newly validated Config. Only meaningful for Environment.type
// CLUSTER, where the host may need to pick up nodefile edits without a
// restart; LOCAL runs typically never call this.
func WatchReload(path string, onChange func(*Config)) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return dberr.Wrap(dberr.CodeFilesystem, "reading configuration file", err)
	}
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg := fromViper(v)
		if err := cfg.Validate(); err == nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
	return nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := Default()
	if s := v.GetString("environment.type"); s != "" {
		cfg.Environment.Type = EnvironmentType(strings.ToUpper(s))
	}
	cfg.Environment.NodefilePath = v.GetString("environment.nodefilepath")
	if n := v.GetInt("environment.nodecount"); n != 0 {
		cfg.Environment.NodeCount = n
	}

	cfg.Partitioning.Path = v.GetString("partitioning.path")
	if n := v.GetInt("partitioning.batchsize"); n != 0 {
		cfg.Partitioning.BatchSize = n
	}
	if s := v.GetString("partitioning.type"); s != "" {
		cfg.Partitioning.Type = PartitioningType(strings.ToUpper(s))
	}
	if n := v.GetInt("partitioning.ppdnum"); n != 0 {
		cfg.Partitioning.PPDNum = n
	}
	if n := v.GetInt("partitioning.dgppdnum"); n != 0 {
		cfg.Partitioning.DGPPDNum = n
	}
	if s := v.GetString("partitioning.assignmentfunc"); s != "" {
		cfg.Partitioning.AssignmentFunc = AssignmentFunc(strings.ToUpper(s))
	}

	if v.IsSet("pipeline.mbrfilter") {
		cfg.Pipeline.MBRFilter = v.GetInt("pipeline.mbrfilter") != 0
	}
	if v.IsSet("pipeline.ifilter") {
		cfg.Pipeline.IFilter = v.GetInt("pipeline.ifilter") != 0
	}
	if v.IsSet("pipeline.refinement") {
		cfg.Pipeline.Refinement = v.GetInt("pipeline.refinement") != 0
	}

	if n := v.GetInt("april.n"); n != 0 {
		cfg.APRIL.N = n
	}
	if v.IsSet("april.compression") {
		cfg.APRIL.Compression = v.GetInt("april.compression") != 0
	}
	if n := v.GetInt("april.partitions"); n != 0 {
		cfg.APRIL.Partitions = n
	}

	cfg.CacheAddr = v.GetString("environment.cacheaddr")
	return cfg
}

// Validate reproduces the range checks the original parser (parse.cpp)
// performs on each key, plus the partitioning grid's sizing constraints.
func (c *Config) Validate() error {
	switch c.Environment.Type {
	case EnvironmentLocal, EnvironmentCluster:
	default:
		return dberr.New(dberr.CodeConfig, fmt.Sprintf("unknown Environment.type %q", c.Environment.Type))
	}
	if c.Environment.NodeCount <= 0 {
		return dberr.New(dberr.CodeConfig, "Environment.nodeCount must be positive")
	}
	if c.Partitioning.BatchSize <= 0 {
		return dberr.New(dberr.CodeConfig, "Partitioning.batchSize must be positive")
	}

	worldSize := c.Environment.NodeCount
	switch c.Partitioning.Type {
	case PartitioningRR:
		if c.Partitioning.PPDNum < worldSize {
			return dberr.New(dberr.CodeConfig, "Partitioning.ppdNum must be >= worldSize for RR")
		}
	case PartitioningTwoGrid:
		if c.Partitioning.DGPPDNum < worldSize {
			return dberr.New(dberr.CodeConfig, "Partitioning.dgppdNum must be >= worldSize for TWOGRID")
		}
		if c.Partitioning.PPDNum == 0 || c.Partitioning.DGPPDNum == 0 ||
			c.Partitioning.PPDNum/c.Partitioning.DGPPDNum < worldSize {
			return dberr.New(dberr.CodeConfig, "Partitioning.ppdNum/dgppdNum must be >= worldSize for TWOGRID")
		}
	default:
		return dberr.New(dberr.CodeConfig, fmt.Sprintf("unknown Partitioning.type %q", c.Partitioning.Type))
	}

	switch c.Partitioning.AssignmentFunc {
	case AssignmentStandard:
	case AssignmentOptimized:
		return dberr.New(dberr.CodeFeatureUnsupported, "Partitioning.assignmentFunc=OP is not implemented")
	default:
		return dberr.New(dberr.CodeConfig, fmt.Sprintf("unknown Partitioning.assignmentFunc %q", c.Partitioning.AssignmentFunc))
	}

	if c.APRIL.N < 10 || c.APRIL.N > 16 {
		return dberr.New(dberr.CodeConfig, "APRIL.N must be in [10,16]")
	}
	if c.APRIL.Partitions < 1 || c.APRIL.Partitions > 32 {
		return dberr.New(dberr.CodeConfig, "APRIL.partitions must be in [1,32]")
	}
	return nil
}
