package overlap

import (
	"math"
	"sort"

	"github.com/platinummonkey/conflictmapper/pkg/plugins"
)

// Thresholds for reporting two plugins as having similar hook usage
const (
	MinCommonHooks      = 5
	MinSimilarityPct    = 20.0
	similarityPrecision = 100
)

// HookSimilarity describes two plugins that attach to many of the same hooks
type HookSimilarity struct {
	PluginA     string  `json:"plugin_a"`
	PluginB     string  `json:"plugin_b"`
	CommonHooks int     `json:"common_hooks"`
	Similarity  float64 `json:"similarity"` // percent of the larger hook set
}

// SimilarHookUsage reports plugin pairs sharing more than MinCommonHooks hook
// names where the shared hooks exceed MinSimilarityPct of the larger set.
// Pairs are ordered by similarity descending, then plugin ids.
func SimilarHookUsage(list []plugins.Plugin) []HookSimilarity {
	sets := make([]map[string]bool, len(list))
	for i := range list {
		set := make(map[string]bool, len(list[i].Hooks))
		for _, h := range list[i].Hooks {
			set[h.HookName] = true
		}
		sets[i] = set
	}

	out := make([]HookSimilarity, 0)
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			common := 0
			for name := range sets[i] {
				if sets[j][name] {
					common++
				}
			}
			if common <= MinCommonHooks {
				continue
			}

			larger := len(sets[i])
			if len(sets[j]) > larger {
				larger = len(sets[j])
			}
			pct := float64(common) / float64(larger) * 100
			if pct <= MinSimilarityPct {
				continue
			}

			a, b := list[i].ID, list[j].ID
			if b < a {
				a, b = b, a
			}
			out = append(out, HookSimilarity{
				PluginA:     a,
				PluginB:     b,
				CommonHooks: common,
				Similarity:  math.Round(pct*similarityPrecision) / similarityPrecision,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].PluginA != out[j].PluginA {
			return out[i].PluginA < out[j].PluginA
		}
		return out[i].PluginB < out[j].PluginB
	})

	return out
}
