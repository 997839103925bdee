// internal/records/parse.go
package records

import (
	"encoding/json"
	"sort"
	"strings"
)

// Token is a single normalized value extracted from a raw field. Numbers
// keep their numeric type; everything else is a trimmed string.
type Token interface{}

// preferredKeys is the lookup order when a record arrives as an object:
// the first of these that is present wins and the rest of the object is
// ignored.
var preferredKeys = []string{"name", "text", "value", "id"}

// ParseTokens normalizes a raw field value of any shape into a flat,
// ordered list of tokens. It accepts strings (including JSON-encoded and
// delimiter-joined strings), numbers, slices, and maps, and it never
// fails: unrecognized shapes simply contribute nothing.
func ParseTokens(value interface{}) []Token {
	var out []Token
	appendTokens(&out, value)
	return out
}

func appendTokens(out *[]Token, value interface{}) {
	switch v := value.(type) {
	case nil:
		return
	case string:
		appendStringTokens(out, v)
	case []interface{}:
		for _, item := range v {
			appendTokens(out, item)
		}
	case []string:
		for _, item := range v {
			appendTokens(out, item)
		}
	case map[string]interface{}:
		for _, key := range preferredKeys {
			if inner, ok := v[key]; ok {
				appendTokens(out, inner)
				return
			}
		}
		// No usable representative key: take every value, in a stable
		// key order so repeated parses agree.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			appendTokens(out, v[k])
		}
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		*out = append(*out, v)
	case json.Number:
		*out = append(*out, v)
	}
}

func appendStringTokens(out *[]Token, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}

	// A string that decodes to JSON structure is treated as that
	// structure. Scalars like "123" stay strings.
	if decoded, ok := decodeJSONStructure(s); ok {
		appendTokens(out, decoded)
		return
	}

	if idx, _ := firstUnquotedDelimiter(s); idx >= 0 {
		for _, segment := range splitOutsideQuotes(s, s[idx]) {
			appendTokens(out, segment)
		}
		return
	}

	*out = append(*out, stripWrappingQuotes(s))
}

// decodeJSONStructure attempts a strict JSON decode and reports success
// only for arrays and objects.
func decodeJSONStructure(s string) (interface{}, bool) {
	if len(s) < 2 {
		return nil, false
	}
	switch s[0] {
	case '[', '{':
	default:
		return nil, false
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return nil, false
	}
	switch decoded.(type) {
	case []interface{}, map[string]interface{}:
		return decoded, true
	}
	return nil, false
}

// firstUnquotedDelimiter returns the position and value of the first
// comma, semicolon, or newline that sits outside a double-quoted
// segment, or -1 when none exists. Splitting on the first delimiter type
// and recursing per segment handles mixed-delimiter input.
func firstUnquotedDelimiter(s string) (int, byte) {
	inQuotes := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case ',', ';', '\n':
			if !inQuotes {
				return i, s[i]
			}
		}
	}
	return -1, 0
}

// splitOutsideQuotes splits s on delim, keeping double-quoted segments
// intact so a quoted vendor name may contain the delimiter.
func splitOutsideQuotes(s string, delim byte) []string {
	var segments []string
	inQuotes := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case delim:
			if !inQuotes {
				segments = append(segments, s[start:i])
				start = i + 1
			}
		}
	}
	return append(segments, s[start:])
}

// stripWrappingQuotes removes one pair of surrounding double quotes from
// a leaf token, the leftover of quote-aware splitting.
func stripWrappingQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// TokenString renders a token the way it should appear to a reader:
// strings unchanged, numbers without a float exponent.
func TokenString(t Token) string {
	if s, ok := t.(string); ok {
		return s
	}
	if n, ok := t.(json.Number); ok {
		return n.String()
	}
	return numberString(t)
}

// TokenStrings maps TokenString over a token list, preserving order.
func TokenStrings(tokens []Token) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, TokenString(t))
	}
	return out
}
