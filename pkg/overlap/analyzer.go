package overlap

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/conflictmapper/pkg/plugins"
)

// Cluster groups plugins that provide the same capability
type Cluster struct {
	CapabilityTag   plugins.CapabilityTag `json:"capability_tag"`
	MemberPluginIDs []string              `json:"member_plugin_ids"`
	RedundancyScore float64               `json:"redundancy_score"`
	Recommendation  string                `json:"recommendation,omitempty"`
}

// Contains reports whether the plugin is a member of the cluster
func (c Cluster) Contains(pluginID string) bool {
	for _, id := range c.MemberPluginIDs {
		if id == pluginID {
			return true
		}
	}
	return false
}

// Analyzer clusters plugins by capability tag
type Analyzer struct {
	log *logrus.Logger
}

// NewAnalyzer creates an overlap analyzer
func NewAnalyzer(log *logrus.Logger) *Analyzer {
	if log == nil {
		log = logrus.New()
	}
	return &Analyzer{log: log}
}

// Analyze returns one cluster per capability tag carried by two or more
// plugins, ordered by redundancy descending then tag ascending. An empty
// input yields an empty, non-nil slice.
func (a *Analyzer) Analyze(list []plugins.Plugin) []Cluster {
	byTag := make(map[plugins.CapabilityTag][]*plugins.Plugin)
	for i := range list {
		seen := make(map[plugins.CapabilityTag]bool, len(list[i].Capabilities))
		for _, tag := range list[i].Capabilities {
			if seen[tag] {
				continue
			}
			seen[tag] = true
			byTag[tag] = append(byTag[tag], &list[i])
		}
	}

	clusters := make([]Cluster, 0, len(byTag))
	for tag, members := range byTag {
		if len(members) < 2 {
			continue
		}

		sort.Slice(members, func(i, j int) bool {
			if members[i].Name != members[j].Name {
				return members[i].Name < members[j].Name
			}
			return members[i].ID < members[j].ID
		})

		ids := make([]string, len(members))
		for i, m := range members {
			ids[i] = m.ID
		}

		clusters = append(clusters, Cluster{
			CapabilityTag:   tag,
			MemberPluginIDs: ids,
			RedundancyScore: redundancy(members),
			Recommendation:  Recommendation(tag, len(members)),
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].RedundancyScore != clusters[j].RedundancyScore {
			return clusters[i].RedundancyScore > clusters[j].RedundancyScore
		}
		return clusters[i].CapabilityTag < clusters[j].CapabilityTag
	})

	a.log.WithField("clusters", len(clusters)).Debug("Overlap analysis complete")
	return clusters
}

// redundancy is the mean pairwise Jaccard similarity of the members' tag sets
func redundancy(members []*plugins.Plugin) float64 {
	var (
		sum   float64
		pairs int
	)
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			sum += Jaccard(members[i].Capabilities, members[j].Capabilities)
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}

// Jaccard returns |a ∩ b| / |a ∪ b| over the distinct tags of a and b, or 0
// when both are empty.
func Jaccard(a, b []plugins.CapabilityTag) float64 {
	setA := make(map[plugins.CapabilityTag]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[plugins.CapabilityTag]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}

	inter := 0
	for t := range setA {
		if setB[t] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

var recommendations = map[plugins.CapabilityTag]string{
	plugins.CapabilityCaching:           "You have %d caching plugins. Running more than one causes double caching and invalidation issues. Keep only one caching plugin.",
	plugins.CapabilitySecurity:          "%d security plugins may conflict with each other. Choose one comprehensive security solution.",
	plugins.CapabilitySEO:               "%d SEO plugins detected. Multiple SEO plugins create duplicate meta tags. Use only one SEO plugin.",
	plugins.CapabilityBackup:            "%d backup plugins found. Multiple backup solutions waste resources. Choose one reliable backup plugin.",
	plugins.CapabilityForms:             "%d form plugins installed. Consider consolidating to one form solution to reduce overhead.",
	plugins.CapabilitySocial:            "You have %d social sharing plugins. Their features usually overlap and one should be sufficient.",
	plugins.CapabilityAntiSpam:          "%d anti-spam plugins detected. One anti-spam solution is usually enough.",
	plugins.CapabilityImageOptimization: "%d image optimizers installed. Optimizing twice degrades quality. Use only one.",
	plugins.CapabilityTranslation:       "%d translation plugins installed. Different translation approaches conflict. Choose one.",
	plugins.CapabilityPageBuilder:       "%d page builders installed. Use one page builder per site and migrate content before switching.",
}

// Recommendation returns the advice text for a cluster of count plugins
func Recommendation(tag plugins.CapabilityTag, count int) string {
	if tmpl, ok := recommendations[tag]; ok {
		return fmt.Sprintf(tmpl, count)
	}
	return fmt.Sprintf("You have %d plugins in the %s category. Review whether all are necessary.", count, tag)
}

// Alternative is a well-known plugin suggested for a capability
type Alternative struct {
	Name string `json:"name"`
	Note string `json:"note"`
}

var alternatives = map[plugins.CapabilityTag][]Alternative{
	plugins.CapabilitySEO: {
		{"Yoast SEO", "Comprehensive SEO solution with excellent documentation"},
		{"Rank Math", "Feature-rich SEO plugin with built-in advanced features"},
		{"The SEO Framework", "Lightweight and fast SEO plugin"},
	},
	plugins.CapabilityCaching: {
		{"WP Rocket", "Premium caching solution"},
		{"W3 Total Cache", "Free, comprehensive caching plugin"},
		{"WP Super Cache", "Simple and reliable caching solution"},
	},
	plugins.CapabilitySecurity: {
		{"Wordfence Security", "Firewall and malware scanner"},
		{"Sucuri Security", "Security auditing, malware scanning and hardening"},
		{"iThemes Security", "Easy-to-use security hardening plugin"},
	},
	plugins.CapabilityBackup: {
		{"UpdraftPlus", "Popular backup and restoration plugin"},
		{"BackWPup", "Complete backup solution with multiple destinations"},
		{"Duplicator", "Backup and migration tool"},
	},
	plugins.CapabilityForms: {
		{"WPForms", "User-friendly drag-and-drop form builder"},
		{"Gravity Forms", "Powerful forms with advanced features"},
		{"Contact Form 7", "Simple and flexible contact form"},
	},
}

// Alternatives returns popular single-plugin choices for a capability, if known
func Alternatives(tag plugins.CapabilityTag) []Alternative {
	return alternatives[tag]
}
