// internal/catalog/model.go

// Package catalog implements the vendor catalog pipeline: fetching rows
// from the upstream vendor database, resolving linked-record
// identifiers to display values, caching the normalized collection, and
// serving filtered reads.
package catalog

import (
	"strings"
)

// Vendor is the normalized, reader-facing shape of one catalog entry.
// Every relation field holds display strings only; record identifiers
// never appear here after a successful refresh.
type Vendor struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Vendor         string   `json:"vendor,omitempty"`
	Description    string   `json:"description,omitempty"`
	Website        string   `json:"website,omitempty"`
	FullWebsiteURL string   `json:"full_website_url,omitempty"`
	LogoURL        string   `json:"logo_url,omitempty"`
	VideoURL       string   `json:"video_url,omitempty"`
	Status         string   `json:"status,omitempty"`
	HQLocation     []string `json:"hq_location,omitempty"`
	FoundedYear    string   `json:"founded_year,omitempty"`
	Founders       []string `json:"founders,omitempty"`
	HostedType     []string `json:"hosted_type,omitempty"`
	Domain         []string `json:"domain,omitempty"`
	Regions        []string `json:"regions,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	SubCategories  []string `json:"sub_categories,omitempty"`
	Category       string   `json:"category,omitempty"`
	CategoryNames  []string `json:"category_names,omitempty"`
	Capabilities   []string `json:"capabilities,omitempty"`
}

// HasVideo reports whether the vendor carries a demo video link.
func (v Vendor) HasVideo() bool {
	return strings.TrimSpace(v.VideoURL) != ""
}

// InCategory reports membership in either the legacy single category or
// the category name list.
func (v Vendor) InCategory(category string) bool {
	if v.Category == category {
		return true
	}
	return containsString(v.Categories, category)
}

// MatchesSearch reports a case-insensitive substring match over name,
// description, and capabilities.
func (v Vendor) MatchesSearch(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(v.Name), term) {
		return true
	}
	if strings.Contains(strings.ToLower(v.Description), term) {
		return true
	}
	for _, capability := range v.Capabilities {
		if strings.Contains(strings.ToLower(capability), term) {
			return true
		}
	}
	return false
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

// NormalizeURL prefixes bare domains with https so stored links are
// always absolute. Empty input stays empty.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}
