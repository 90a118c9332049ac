package ranking

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/conflictmapper/pkg/conflicts"
	"github.com/platinummonkey/conflictmapper/pkg/overlap"
	"github.com/platinummonkey/conflictmapper/pkg/plugins"
)

// Recommendation is the action suggested for a ranked plugin
type Recommendation string

const (
	RecommendKeep    Recommendation = "keep"
	RecommendReview  Recommendation = "review"
	RecommendReplace Recommendation = "replace"
)

// Defaults for Options
const (
	DefaultKeepThreshold   = 70.0
	DefaultReviewThreshold = 40.0
	DefaultOverlapWeight   = 10.0
	PriorityActionScore    = 50.0
)

// DefaultSeverityWeights are the conflict penalty points per severity
var DefaultSeverityWeights = map[conflicts.Severity]float64{
	conflicts.SeverityLow:      1,
	conflicts.SeverityMedium:   3,
	conflicts.SeverityHigh:     7,
	conflicts.SeverityCritical: 15,
}

// Contributing factor names
const (
	FactorBaseQuality     = "base_quality"
	FactorConflictPenalty = "conflict_penalty"
	FactorOverlapPenalty  = "overlap_penalty"
)

// RankedPlugin is the scored recommendation for one plugin
type RankedPlugin struct {
	PluginID            string             `json:"plugin_id"`
	Name                string             `json:"name"`
	Score               float64            `json:"score"`
	Recommendation      Recommendation     `json:"recommendation"`
	ContributingFactors map[string]float64 `json:"contributing_factors"`
	Rank                int                `json:"rank"`
	Percentile          float64            `json:"percentile"`
	Issues              []string           `json:"issues,omitempty"`
}

// Options configures an Engine
type Options struct {
	Scorer          QualityScorer
	SeverityWeights map[conflicts.Severity]float64
	OverlapWeight   float64
	KeepThreshold   float64
	ReviewThreshold float64
	Log             *logrus.Logger
}

// Engine combines base quality, conflict and overlap penalties into a ranking
type Engine struct {
	scorer          QualityScorer
	weights         map[conflicts.Severity]float64
	overlapWeight   float64
	keepThreshold   float64
	reviewThreshold float64
	log             *logrus.Logger
}

// NewEngine creates a ranking engine, filling unset options with defaults
func NewEngine(opts Options) *Engine {
	if opts.Scorer == nil {
		opts.Scorer = NewHeuristicScorer()
	}
	if opts.SeverityWeights == nil {
		opts.SeverityWeights = DefaultSeverityWeights
	}
	if opts.OverlapWeight == 0 {
		opts.OverlapWeight = DefaultOverlapWeight
	}
	if opts.KeepThreshold == 0 {
		opts.KeepThreshold = DefaultKeepThreshold
	}
	if opts.ReviewThreshold == 0 {
		opts.ReviewThreshold = DefaultReviewThreshold
	}
	if opts.Log == nil {
		opts.Log = logrus.New()
	}

	return &Engine{
		scorer:          opts.Scorer,
		weights:         opts.SeverityWeights,
		overlapWeight:   opts.OverlapWeight,
		keepThreshold:   opts.KeepThreshold,
		reviewThreshold: opts.ReviewThreshold,
		log:             opts.Log,
	}
}

// Rank scores every plugin and returns them ordered by score descending,
// then name ascending, then id ascending.
func (e *Engine) Rank(list []plugins.Plugin, records []conflicts.ConflictRecord, clusters []overlap.Cluster) []RankedPlugin {
	conflictPenalty := make(map[string]float64, len(list))
	conflictCount := make(map[string]int, len(list))
	for _, r := range records {
		for _, id := range r.PluginIDs {
			conflictPenalty[id] += e.weights[r.Severity]
			conflictCount[id]++
		}
	}

	redundancy := make(map[string]float64, len(list))
	for _, c := range clusters {
		for _, id := range c.MemberPluginIDs {
			if c.RedundancyScore > redundancy[id] {
				redundancy[id] = c.RedundancyScore
			}
		}
	}

	ranked := make([]RankedPlugin, 0, len(list))
	for _, p := range list {
		q := e.scorer.Quality(p)
		base := clamp(q.Score, 0, 100)
		cp := conflictPenalty[p.ID]
		op := redundancy[p.ID] * e.overlapWeight
		score := round2(clamp(base-cp-op, 0, 100))

		factors := make(map[string]float64, len(q.Factors)+3)
		for k, v := range q.Factors {
			factors[k] = v
		}
		factors[FactorBaseQuality] = round2(base)
		factors[FactorConflictPenalty] = round2(cp)
		factors[FactorOverlapPenalty] = round2(op)

		issues := append([]string(nil), q.Issues...)
		if cp > 0 {
			issues = append(issues, fmt.Sprintf("Involved in %d conflicts (-%.0f points)", conflictCount[p.ID], math.Round(cp)))
		}
		if op > 0 {
			issues = append(issues, fmt.Sprintf("Functional overlap with other plugins (-%.0f points)", math.Round(op)))
		}

		ranked = append(ranked, RankedPlugin{
			PluginID:            p.ID,
			Name:                p.Name,
			Score:               score,
			Recommendation:      e.Recommend(score),
			ContributingFactors: factors,
			Issues:              issues,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Name != ranked[j].Name {
			return ranked[i].Name < ranked[j].Name
		}
		return ranked[i].PluginID < ranked[j].PluginID
	})

	n := len(ranked)
	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].Percentile = math.Round(float64(n-ranked[i].Rank)/float64(n)*1000) / 10
	}

	e.log.WithField("plugins", n).Debug("Ranking complete")
	return ranked
}

// Recommend maps a score onto keep / review / replace
func (e *Engine) Recommend(score float64) Recommendation {
	switch {
	case score >= e.keepThreshold:
		return RecommendKeep
	case score >= e.reviewThreshold:
		return RecommendReview
	default:
		return RecommendReplace
	}
}

// Action is a follow-up suggested for a low scoring plugin
type Action struct {
	PluginID string  `json:"plugin_id"`
	Name     string  `json:"name"`
	Priority string  `json:"priority"`
	Action   string  `json:"action"`
	Reason   string  `json:"reason"`
	Score    float64 `json:"score"`
}

// PriorityActions lists the plugins scoring below PriorityActionScore, in ranking order
func PriorityActions(ranked []RankedPlugin) []Action {
	actions := make([]Action, 0)
	for _, r := range ranked {
		if r.Score >= PriorityActionScore {
			continue
		}
		actions = append(actions, Action{
			PluginID: r.PluginID,
			Name:     r.Name,
			Priority: "high",
			Action:   string(RecommendReview),
			Reason:   "Low compatibility score",
			Score:    r.Score,
		})
	}
	return actions
}
