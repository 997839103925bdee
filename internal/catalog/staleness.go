// internal/catalog/staleness.go
package catalog

import (
	"encoding/json"
	"strings"

	"treasury-portal/internal/records"
)

// relationKeys are the normalized names of fields that hold linked
// record references. Key normalization lowercases and strips spaces,
// underscores, and hyphens, so "region_ids", "Region IDs", and
// "regionIds" all land on "regionids".
var relationKeys = map[string]struct{}{
	"region":          {},
	"regions":         {},
	"regionids":       {},
	"category":        {},
	"categories":      {},
	"categoryids":     {},
	"categorynames":   {},
	"subcategory":     {},
	"subcategories":   {},
	"subcategoryids":  {},
	"domain":          {},
	"domains":         {},
	"vendor":          {},
	"vendors":         {},
	"vendorids":       {},
	"linkedvendor":    {},
	"linkedvendors":   {},
	"linkedvendorids": {},
	"hostedtype":      {},
	"hostedtypes":     {},
	"capability":      {},
	"capabilities":    {},
	"hqlocation":      {},
}

func normalizeRelationKey(key string) string {
	key = strings.ToLower(key)
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	return key
}

func isRelationKey(key string) bool {
	_, ok := relationKeys[normalizeRelationKey(key)]
	return ok
}

// CollectionNeedsResolution reports whether a cached vendor payload
// still carries unresolved record identifiers in any relation-like
// field, at any nesting depth. Unparseable payloads count as stale so
// they get rebuilt rather than served.
func CollectionNeedsResolution(raw []byte) bool {
	if len(raw) == 0 {
		return true
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return true
	}
	return valueNeedsResolution(decoded)
}

// VendorsNeedResolution runs the staleness scan over an in-memory
// collection.
func VendorsNeedResolution(vendors []Vendor) bool {
	raw, err := json.Marshal(vendors)
	if err != nil {
		return true
	}
	return valueNeedsResolution(mustDecode(raw))
}

func mustDecode(raw []byte) interface{} {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	return decoded
}

// relationValueHasIDs classifies only scalar carriers under a relation
// key. A relation field holding objects is an already expanded record
// and is left to the generic walk, which re-checks its own keys.
func relationValueHasIDs(value interface{}) bool {
	switch v := value.(type) {
	case map[string]interface{}:
		return false
	case []interface{}:
		for _, item := range v {
			if relationValueHasIDs(item) {
				return true
			}
		}
		return false
	default:
		return records.ContainsRecordIDs(value)
	}
}

func valueNeedsResolution(value interface{}) bool {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, inner := range v {
			if isRelationKey(key) && relationValueHasIDs(inner) {
				return true
			}
			if valueNeedsResolution(inner) {
				return true
			}
		}
	case []interface{}:
		for _, inner := range v {
			if valueNeedsResolution(inner) {
				return true
			}
		}
	}
	return false
}
