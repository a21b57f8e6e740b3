// Package config holds the tunable limits, thresholds and normalization
// constants of the analytics engine.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/pavelanni/tutorstats/internal/scoring"
)

// Config is the complete engine configuration. It maps onto the optional
// tutorstats config file and TUTORSTATS_* environment variables.
type Config struct {
	Limits     LimitsConfig             `mapstructure:"limits"`
	Engagement scoring.EngagementParams `mapstructure:"engagement"`
	Similarity SimilarityConfig         `mapstructure:"similarity"`
	Relevance  RelevanceConfig          `mapstructure:"relevance"`
	Takeaway   TakeawayConfig           `mapstructure:"takeaway"`
	Health     HealthConfig             `mapstructure:"health"`
}

// LimitsConfig bounds every in-memory structure.
type LimitsConfig struct {
	RawLog          int           `mapstructure:"raw_log"`
	Insights        int           `mapstructure:"insights"`
	PatternHistory  int           `mapstructure:"pattern_history"`
	LearningHistory int           `mapstructure:"learning_history"`
	Sessions        int           `mapstructure:"sessions"`
	FAQMembers      int           `mapstructure:"faq_members"`
	FAQGroups       int           `mapstructure:"faq_groups"`
	BucketRetention time.Duration `mapstructure:"bucket_retention"`
}

// SimilarityConfig sets when two insights are considered the same.
type SimilarityConfig struct {
	TextOverlap    float64 `mapstructure:"text_overlap"`
	ConceptJaccard float64 `mapstructure:"concept_jaccard"`
}

// RelevanceConfig weights the parts of an insight relevance score.
type RelevanceConfig struct {
	TermWeight    float64 `mapstructure:"term_weight"`
	ConceptWeight float64 `mapstructure:"concept_weight"`
	SuccessWeight float64 `mapstructure:"success_weight"`
	Threshold     float64 `mapstructure:"threshold"`
	MaxTerms      int     `mapstructure:"max_terms"`
}

// TakeawayConfig tunes session takeaway extraction.
type TakeawayConfig struct {
	MethodsThreshold   float64 `mapstructure:"methods_threshold"`
	IndicatorThreshold float64 `mapstructure:"indicator_threshold"`
	SuccessLookahead   int     `mapstructure:"success_lookahead"`
}

// HealthConfig sets the health assessment limits for the last hour.
type HealthConfig struct {
	HighVolume int     `mapstructure:"high_volume"`
	ErrorRate  float64 `mapstructure:"error_rate"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Limits: LimitsConfig{
			RawLog:          1000,
			Insights:        500,
			PatternHistory:  20,
			LearningHistory: 50,
			Sessions:        1000,
			FAQMembers:      50,
			FAQGroups:       2000,
			BucketRetention: 8 * 24 * time.Hour,
		},
		Engagement: scoring.DefaultEngagement(),
		Similarity: SimilarityConfig{
			TextOverlap:    0.6,
			ConceptJaccard: 0.7,
		},
		Relevance: RelevanceConfig{
			TermWeight:    0.4,
			ConceptWeight: 0.4,
			SuccessWeight: 0.2,
			Threshold:     0.3,
			MaxTerms:      10,
		},
		Takeaway: TakeawayConfig{
			MethodsThreshold:   0.6,
			IndicatorThreshold: 0.6,
			SuccessLookahead:   2,
		},
		Health: HealthConfig{
			HighVolume: 100,
			ErrorRate:  0.1,
		},
	}
}

// Validate rejects non-positive limits and thresholds outside [0, 1].
func (c Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"limits.raw_log":             c.Limits.RawLog,
		"limits.insights":            c.Limits.Insights,
		"limits.pattern_history":     c.Limits.PatternHistory,
		"limits.learning_history":    c.Limits.LearningHistory,
		"limits.sessions":            c.Limits.Sessions,
		"limits.faq_members":         c.Limits.FAQMembers,
		"limits.faq_groups":          c.Limits.FAQGroups,
		"relevance.max_terms":        c.Relevance.MaxTerms,
		"takeaway.success_lookahead": c.Takeaway.SuccessLookahead,
		"health.high_volume":         c.Health.HighVolume,
	}
	for key, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, v))
		}
	}
	if c.Limits.BucketRetention < 7*24*time.Hour {
		errs = append(errs, fmt.Errorf("limits.bucket_retention must cover a week, got %s", c.Limits.BucketRetention))
	}
	unit := map[string]float64{
		"similarity.text_overlap":      c.Similarity.TextOverlap,
		"similarity.concept_jaccard":   c.Similarity.ConceptJaccard,
		"relevance.term_weight":        c.Relevance.TermWeight,
		"relevance.concept_weight":     c.Relevance.ConceptWeight,
		"relevance.success_weight":     c.Relevance.SuccessWeight,
		"relevance.threshold":          c.Relevance.Threshold,
		"takeaway.methods_threshold":   c.Takeaway.MethodsThreshold,
		"takeaway.indicator_threshold": c.Takeaway.IndicatorThreshold,
		"health.error_rate":            c.Health.ErrorRate,
	}
	for key, v := range unit {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", key, v))
		}
	}
	norms := map[string]float64{
		"engagement.message_length_norm":           c.Engagement.MessageLengthNorm,
		"engagement.interactions_per_session_norm": c.Engagement.InteractionsPerSessionNorm,
		"engagement.concept_norm":                  c.Engagement.ConceptNorm,
	}
	for key, v := range norms {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", key, v))
		}
	}
	return errors.Join(errs...)
}

// Load reads the configuration from v, falling back to Default for unset keys.
func Load(v *viper.Viper) (Config, error) {
	d := Default()
	defaults := map[string]any{
		"limits.raw_log":                           d.Limits.RawLog,
		"limits.insights":                          d.Limits.Insights,
		"limits.pattern_history":                   d.Limits.PatternHistory,
		"limits.learning_history":                  d.Limits.LearningHistory,
		"limits.sessions":                          d.Limits.Sessions,
		"limits.faq_members":                       d.Limits.FAQMembers,
		"limits.faq_groups":                        d.Limits.FAQGroups,
		"limits.bucket_retention":                  d.Limits.BucketRetention,
		"engagement.message_length_norm":           d.Engagement.MessageLengthNorm,
		"engagement.interactions_per_session_norm": d.Engagement.InteractionsPerSessionNorm,
		"engagement.concept_norm":                  d.Engagement.ConceptNorm,
		"similarity.text_overlap":                  d.Similarity.TextOverlap,
		"similarity.concept_jaccard":               d.Similarity.ConceptJaccard,
		"relevance.term_weight":                    d.Relevance.TermWeight,
		"relevance.concept_weight":                 d.Relevance.ConceptWeight,
		"relevance.success_weight":                 d.Relevance.SuccessWeight,
		"relevance.threshold":                      d.Relevance.Threshold,
		"relevance.max_terms":                      d.Relevance.MaxTerms,
		"takeaway.methods_threshold":               d.Takeaway.MethodsThreshold,
		"takeaway.indicator_threshold":             d.Takeaway.IndicatorThreshold,
		"takeaway.success_lookahead":               d.Takeaway.SuccessLookahead,
		"health.high_volume":                       d.Health.HighVolume,
		"health.error_rate":                        d.Health.ErrorRate,
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
