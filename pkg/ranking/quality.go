package ranking

import (
	"fmt"
	"math"
	"time"

	"github.com/platinummonkey/conflictmapper/pkg/plugins"
)

// Quality is the base quality of a plugin before conflict and overlap penalties
type Quality struct {
	Score   float64
	Factors map[string]float64
	Issues  []string
}

// QualityScorer computes the base quality factor of a plugin in [0,100].
// Implementations are heuristics; only relative ordering is meaningful.
type QualityScorer interface {
	Quality(p plugins.Plugin) Quality
}

// QualityScorerFunc adapts a function to QualityScorer
type QualityScorerFunc func(p plugins.Plugin) Quality

// Quality implements QualityScorer
func (f QualityScorerFunc) Quality(p plugins.Plugin) Quality {
	return f(p)
}

// Heuristic limits
const (
	largePluginBytes   = 10 << 20
	maxSizePenalty     = 10.0
	maxComplexity      = 20.0
	complexityDivisor  = 1000.0
	staleAfter         = 365 * 24 * time.Hour
	maxStalePenalty    = 15.0
	missingVersionCost = 20.0
	riskyCallCost      = 3.0
	maxRiskPenalty     = 15.0
)

// HeuristicScorer derives base quality from footprint, complexity, update
// recency, version presence and risky call counts.
type HeuristicScorer struct {
	// Now returns the reference time for recency; defaults to time.Now
	Now func() time.Time
}

// NewHeuristicScorer creates the default scorer
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{Now: time.Now}
}

// Quality implements QualityScorer
func (h *HeuristicScorer) Quality(p plugins.Plugin) Quality {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	q := Quality{
		Score:   100,
		Factors: make(map[string]float64),
	}
	penalize := func(factor string, points float64, issue string) {
		q.Factors[factor] = round2(points)
		if points <= 0 {
			return
		}
		q.Score -= points
		if issue != "" {
			q.Issues = append(q.Issues, fmt.Sprintf("%s (-%.0f points)", issue, math.Round(points)))
		}
	}

	var size float64
	mb := float64(p.SizeBytes) / (1 << 20)
	if p.SizeBytes > largePluginBytes {
		size = math.Min(maxSizePenalty, (mb-10)/2)
	}
	penalize("size_penalty", size, fmt.Sprintf("Large plugin size: %.2f MB", mb))

	complexity := math.Min(maxComplexity, float64(p.Metrics.Complexity())/complexityDivisor)
	penalize("complexity_penalty", complexity, "")

	var stale float64
	years := 0.0
	if !p.LastModified.IsZero() {
		if age := now().Sub(p.LastModified); age > staleAfter {
			years = age.Hours() / (24 * 365)
			stale = math.Min(maxStalePenalty, 5+(years-1)*5)
		}
	}
	penalize("staleness_penalty", stale, fmt.Sprintf("Not updated for %.1f years", years))

	var version float64
	if p.Version == "" || p.Version == plugins.DefaultVersion {
		version = missingVersionCost
	}
	penalize("version_penalty", version, "No version information")

	risk := math.Min(maxRiskPenalty, float64(p.Metrics.RiskyCalls)*riskyCallCost)
	penalize("risk_penalty", risk, fmt.Sprintf("%d potentially dangerous function calls", p.Metrics.RiskyCalls))

	q.Score = clamp(q.Score, 0, 100)
	return q
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
