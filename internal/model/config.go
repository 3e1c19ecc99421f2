package model

import (
	"fmt"
	"time"
)

// Config is the full storyline configuration. Thresholds and weights are
// policy constants, not derived values: Validate rejects missing or
// non-positive settings at startup instead of silently defaulting them.
type Config struct {
	Vector    VectorConfig    `yaml:"vector" mapstructure:"vector"`
	Similar   SimilarConfig   `yaml:"similarity" mapstructure:"similarity"`
	Clusters  ClusterConfig   `yaml:"clusters" mapstructure:"clusters"`
	Hierarchy HierarchyConfig `yaml:"hierarchy" mapstructure:"hierarchy"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
}

// VectorConfig controls feature vector construction.
type VectorConfig struct {
	TimeWeight    float64   `yaml:"time_weight" mapstructure:"time_weight"`
	TextWeight    float64   `yaml:"text_weight" mapstructure:"text_weight"`
	ConceptWeight float64   `yaml:"concept_weight" mapstructure:"concept_weight"`
	TextDims      int       `yaml:"text_dims" mapstructure:"text_dims"`
	ConceptDims   int       `yaml:"concept_dims" mapstructure:"concept_dims"`
	Epoch         time.Time `yaml:"epoch" mapstructure:"epoch"`
}

// SimilarConfig controls pairwise similarity between clusterables.
type SimilarConfig struct {
	ConceptWeight float64       `yaml:"concept_weight" mapstructure:"concept_weight"`
	TextWeight    float64       `yaml:"text_weight" mapstructure:"text_weight"`
	TimeWeight    float64       `yaml:"time_weight" mapstructure:"time_weight"`
	IdealTime     time.Duration `yaml:"ideal_time" mapstructure:"ideal_time"`
}

// ClusterConfig controls cluster extraction and lifecycle policy.
type ClusterConfig struct {
	EventThreshold  float64       `yaml:"event_threshold" mapstructure:"event_threshold"`
	StoryThreshold  float64       `yaml:"story_threshold" mapstructure:"story_threshold"`
	MinEventMembers int           `yaml:"min_event_members" mapstructure:"min_event_members"`
	MinStoryMembers int           `yaml:"min_story_members" mapstructure:"min_story_members"`
	Staleness       time.Duration `yaml:"staleness" mapstructure:"staleness"`
	BatchSize       int           `yaml:"batch_size" mapstructure:"batch_size"`
}

// HierarchyConfig controls the incremental index.
type HierarchyConfig struct {
	Metric          string  `yaml:"metric" mapstructure:"metric"`
	LowerLimitScale float64 `yaml:"lower_limit_scale" mapstructure:"lower_limit_scale"`
	UpperLimitScale float64 `yaml:"upper_limit_scale" mapstructure:"upper_limit_scale"`
	SnapshotPath    string  `yaml:"snapshot_path" mapstructure:"snapshot_path"`
}

// ScoringConfig controls the time-decayed ranking function.
type ScoringConfig struct {
	DecaySeconds float64   `yaml:"decay_seconds" mapstructure:"decay_seconds"`
	Epoch        time.Time `yaml:"epoch" mapstructure:"epoch"`
}

// StoreConfig controls the persistent relational store.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LLMConfig controls the summarizer / concept extractor provider.
type LLMConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	Model             string  `yaml:"model" mapstructure:"model"`
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Timeout           int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// OutputConfig controls CLI verbosity.
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
}

// DefaultConfig returns the built-in defaults. The scoring epoch matches the
// fixed reference epoch the ranking function decays against.
func DefaultConfig() *Config {
	return &Config{
		Vector: VectorConfig{
			TimeWeight:    1,
			TextWeight:    1,
			ConceptWeight: 1,
			TextDims:      100,
			ConceptDims:   100,
			Epoch:         time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Similar: SimilarConfig{
			ConceptWeight: 2,
			TextWeight:    1,
			TimeWeight:    2,
			IdealTime:     72 * time.Hour,
		},
		Clusters: ClusterConfig{
			EventThreshold:  0.5,
			StoryThreshold:  1.0,
			MinEventMembers: 3,
			MinStoryMembers: 3,
			Staleness:       72 * time.Hour,
			BatchSize:       50,
		},
		Hierarchy: HierarchyConfig{
			Metric:          "euclidean",
			LowerLimitScale: 0.9,
			UpperLimitScale: 1.2,
			SnapshotPath:    "hierarchy.db",
		},
		Scoring: ScoringConfig{
			DecaySeconds: 45000,
			Epoch:        time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Store: StoreConfig{
			Path: "storyline.db",
		},
		LLM: LLMConfig{
			Provider:          "heuristic",
			Timeout:           30,
			MaxTokens:         1000,
			RequestsPerSecond: 2,
			Burst:             5,
		},
	}
}

// Validate reports the first configuration error. Only the missing
// hierarchy snapshot file is a legitimate silent fallback; everything else
// is fatal at startup.
func (c *Config) Validate() error {
	if c.Vector.TimeWeight < 0 || c.Vector.TextWeight < 0 || c.Vector.ConceptWeight < 0 {
		return fmt.Errorf("vector weights must be non-negative")
	}
	if c.Vector.TextDims <= 0 || c.Vector.ConceptDims <= 0 {
		return fmt.Errorf("vector dimensions must be positive")
	}
	if c.Similar.ConceptWeight+c.Similar.TextWeight+c.Similar.TimeWeight <= 0 {
		return fmt.Errorf("similarity weights must sum to a positive value")
	}
	if c.Similar.IdealTime <= 0 {
		return fmt.Errorf("similarity ideal_time must be positive")
	}
	if c.Clusters.EventThreshold <= 0 || c.Clusters.StoryThreshold <= 0 {
		return fmt.Errorf("cluster thresholds must be positive")
	}
	if c.Clusters.MinEventMembers <= 0 || c.Clusters.MinStoryMembers <= 0 {
		return fmt.Errorf("minimum member counts must be positive")
	}
	if c.Clusters.Staleness <= 0 {
		return fmt.Errorf("cluster staleness window must be positive")
	}
	if c.Clusters.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	switch c.Hierarchy.Metric {
	case "euclidean", "cosine":
	default:
		return fmt.Errorf("unknown hierarchy metric: %q", c.Hierarchy.Metric)
	}
	if c.Hierarchy.LowerLimitScale <= 0 || c.Hierarchy.UpperLimitScale <= 0 {
		return fmt.Errorf("hierarchy limit scales must be positive")
	}
	if c.Hierarchy.LowerLimitScale > c.Hierarchy.UpperLimitScale {
		return fmt.Errorf("hierarchy lower_limit_scale exceeds upper_limit_scale")
	}
	if c.Hierarchy.SnapshotPath == "" {
		return fmt.Errorf("hierarchy snapshot_path is required")
	}
	if c.Scoring.DecaySeconds <= 0 {
		return fmt.Errorf("scoring decay_seconds must be positive")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	return nil
}
