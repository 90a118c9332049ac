package plugins

import (
	"sort"
	"strings"
)

// Well-known capability tags
const (
	CapabilitySEO               CapabilityTag = "seo"
	CapabilityCaching           CapabilityTag = "caching"
	CapabilitySecurity          CapabilityTag = "security"
	CapabilityBackup            CapabilityTag = "backup"
	CapabilityForms             CapabilityTag = "forms"
	CapabilityEcommerce         CapabilityTag = "ecommerce"
	CapabilitySocial            CapabilityTag = "social"
	CapabilityAnalytics         CapabilityTag = "analytics"
	CapabilityMedia             CapabilityTag = "media"
	CapabilityEmail             CapabilityTag = "email"
	CapabilityPageBuilder       CapabilityTag = "page-builder"
	CapabilityAntiSpam          CapabilityTag = "anti-spam"
	CapabilityImageOptimization CapabilityTag = "image-optimization"
	CapabilityTranslation       CapabilityTag = "translation"
)

// capabilityKeywords maps each tag to lower-case phrases searched for in a
// plugin's name and description.
var capabilityKeywords = map[CapabilityTag][]string{
	CapabilitySEO:               {"seo", "search engine", "meta tag", "sitemap", "schema markup", "robots.txt", "yoast", "rank math"},
	CapabilityCaching:           {"cache", "caching", "minify", "cdn", "page speed"},
	CapabilitySecurity:          {"security", "firewall", "malware", "login protection", "brute force", "wordfence", "sucuri"},
	CapabilityBackup:            {"backup", "restore", "migration", "updraft"},
	CapabilityForms:             {"form builder", "contact form", "survey", "gravity forms", "ninja forms", "wpforms"},
	CapabilityEcommerce:         {"woocommerce", "shop", "cart", "payment", "ecommerce", "e-commerce", "store"},
	CapabilitySocial:            {"social", "share buttons", "facebook", "twitter", "instagram", "linkedin"},
	CapabilityAnalytics:         {"analytics", "statistics", "tracking", "stats"},
	CapabilityMedia:             {"gallery", "video", "media library", "photo", "slider"},
	CapabilityEmail:             {"email", "newsletter", "subscription", "mailchimp", "smtp"},
	CapabilityPageBuilder:       {"page builder", "elementor", "visual editor", "divi"},
	CapabilityAntiSpam:          {"spam", "akismet", "recaptcha", "captcha"},
	CapabilityImageOptimization: {"image optimi", "compress images", "image compression", "smush", "webp", "lazy load"},
	CapabilityTranslation:       {"translation", "multilingual", "translate", "wpml", "polylang"},
}

// InferCapabilities returns the tags whose keywords appear in the given text
// fields, sorted and de-duplicated.
func InferCapabilities(fields ...string) []CapabilityTag {
	text := strings.ToLower(strings.Join(fields, " "))
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var tags []CapabilityTag
	for tag, keywords := range capabilityKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				tags = append(tags, tag)
				break
			}
		}
	}

	return normalizeCapabilities(tags)
}

// MergeCapabilities normalizes and unions declared and inferred tags
func MergeCapabilities(declared []string, inferred []CapabilityTag) []CapabilityTag {
	tags := make([]CapabilityTag, 0, len(declared)+len(inferred))
	for _, d := range declared {
		tags = append(tags, NewCapabilityTag(d))
	}
	tags = append(tags, inferred...)
	return normalizeCapabilities(tags)
}

func normalizeCapabilities(tags []CapabilityTag) []CapabilityTag {
	seen := make(map[CapabilityTag]bool, len(tags))
	out := make([]CapabilityTag, 0, len(tags))
	for _, t := range tags {
		t = NewCapabilityTag(string(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
