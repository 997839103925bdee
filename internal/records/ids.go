// internal/records/ids.go
package records

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

var (
	// Airtable-style record identifiers: a known prefix followed by an
	// alphanumeric tail that contains at least one digit.
	idPattern   = regexp.MustCompile(`(?i)^(?:r(?:ec|es|cs|cx)|sel|opt)[0-9a-z]*[0-9][0-9a-z]*$`)
	digitsOnly  = regexp.MustCompile(`^[0-9]+$`)
	nonAlphaNum = regexp.MustCompile(`[^0-9A-Za-z]`)
)

// ContainsRecordIDs reports whether value holds at least one token that
// still looks like an unresolved linked-record identifier. It recurses
// depth-first through slices and maps, so a single identifier buried in a
// nested structure is enough to return true.
//
// Purely numeric tokens are treated as identifiers. That deliberately
// biases toward a false positive (an extra resolution attempt) over a
// false negative (an identifier leaking to readers).
func ContainsRecordIDs(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return looksLikeRecordID(v)
	case json.Number:
		return looksLikeRecordID(v.String())
	case []interface{}:
		for _, item := range v {
			if ContainsRecordIDs(item) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if looksLikeRecordID(item) {
				return true
			}
		}
		return false
	case map[string]interface{}:
		for _, item := range v {
			if ContainsRecordIDs(item) {
				return true
			}
		}
		return false
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return looksLikeRecordID(numberString(v))
	default:
		return false
	}
}

// looksLikeRecordID applies the scalar classification: strip everything
// that is not alphanumeric, then match either the all-digits form or the
// prefixed identifier form.
func looksLikeRecordID(s string) bool {
	stripped := nonAlphaNum.ReplaceAllString(s, "")
	if stripped == "" {
		return false
	}
	if digitsOnly.MatchString(stripped) {
		return true
	}
	return idPattern.MatchString(stripped)
}

// numberString renders a numeric scalar without a float exponent, so
// classification sees the same digits a reader would.
func numberString(v interface{}) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	default:
		return fmt.Sprintf("%d", n)
	}
}
