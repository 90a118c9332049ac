// Package ranking scores plugins and recommends keeping, reviewing or
// replacing them.
//
//	score = clamp(base_quality - conflict_penalty - overlap_penalty, 0, 100)
//
// The conflict penalty sums severity weights (low 1, medium 3, high 7,
// critical 15) over every conflict a plugin takes part in. The overlap
// penalty is the highest redundancy score of the plugin's clusters times the
// overlap weight. Base quality comes from a pluggable QualityScorer; the
// default HeuristicScorer is approximate and only its relative ordering is
// meaningful.
package ranking
