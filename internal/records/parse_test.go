// internal/records/parse_test.go
package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ==========================================
// ParseTokens Tests
// ==========================================

func TestParseTokens_Strings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single value", "rec123", []string{"rec123"}},
		{"trims whitespace", "  Treasury One  ", []string{"Treasury One"}},
		{"comma separated", "rec1,rec2,rec3", []string{"rec1", "rec2", "rec3"}},
		{"semicolon separated", "rec1;rec2;rec3", []string{"rec1", "rec2", "rec3"}},
		{"newline separated", "rec1\nrec2\nrec3", []string{"rec1", "rec2", "rec3"}},
		{"mixed delimiters", "A,B;C", []string{"A", "B", "C"}},
		{"whitespace around segments", " rec1 , rec2 ", []string{"rec1", "rec2"}},
		{"empty segments dropped", "rec1,,rec2,", []string{"rec1", "rec2"}},
		{"quoted segment keeps comma", `"Acme, Inc",rec2`, []string{"Acme, Inc", "rec2"}},
		{"quoted single token", `"Smith, Jones & Co"`, []string{"Smith, Jones & Co"}},
		{"empty string", "", []string{}},
		{"numeric string stays string", "123", []string{"123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenStrings(ParseTokens(tt.input)))
		})
	}
}

func TestParseTokens_JSONStrings(t *testing.T) {
	t.Run("json array decodes and recurses", func(t *testing.T) {
		got := ParseTokens(`["rec1","rec2"]`)
		assert.Equal(t, []string{"rec1", "rec2"}, TokenStrings(got))
	})

	t.Run("json array equals delimited form", func(t *testing.T) {
		fromJSON := TokenStrings(ParseTokens(`["rec1","rec2"]`))
		fromCSV := TokenStrings(ParseTokens("rec1,rec2"))
		assert.Equal(t, fromCSV, fromJSON)
	})

	t.Run("json object prefers name key", func(t *testing.T) {
		got := ParseTokens(`{"id":"rec9","name":"Acme"}`)
		assert.Equal(t, []string{"Acme"}, TokenStrings(got))
	})

	t.Run("malformed json falls through to splitting", func(t *testing.T) {
		got := ParseTokens(`[broken,json`)
		assert.Equal(t, []string{"[broken", "json"}, TokenStrings(got))
	})
}

func TestParseTokens_Collections(t *testing.T) {
	t.Run("flattens nested lists in order", func(t *testing.T) {
		input := []interface{}{"a", []interface{}{"b", "c"}, "d"}
		assert.Equal(t, []string{"a", "b", "c", "d"}, TokenStrings(ParseTokens(input)))
	})

	t.Run("map prefers name over text value id", func(t *testing.T) {
		input := map[string]interface{}{
			"value": "v", "id": "rec1", "name": "Acme", "text": "t",
		}
		assert.Equal(t, []string{"Acme"}, TokenStrings(ParseTokens(input)))
	})

	t.Run("map without preferred keys takes all values", func(t *testing.T) {
		input := map[string]interface{}{"b": "two", "a": "one"}
		assert.Equal(t, []string{"one", "two"}, TokenStrings(ParseTokens(input)))
	})

	t.Run("numbers pass through as numbers", func(t *testing.T) {
		got := ParseTokens([]interface{}{float64(42), "x"})
		assert.Equal(t, float64(42), got[0])
		assert.Equal(t, []string{"42", "x"}, TokenStrings(got))
	})

	t.Run("nil contributes nothing", func(t *testing.T) {
		assert.Empty(t, ParseTokens(nil))
		assert.Equal(t, []string{"a"}, TokenStrings(ParseTokens([]interface{}{nil, "a"})))
	})
}

// Parsing is convergent: feeding the flattened output back in yields the
// same tokens, as long as no token itself contains a delimiter.
func TestParseTokens_Idempotent(t *testing.T) {
	inputs := []interface{}{
		"rec1,rec2;rec3",
		`["a","b"]`,
		[]interface{}{"x", map[string]interface{}{"name": "y"}},
	}
	for _, input := range inputs {
		first := TokenStrings(ParseTokens(input))
		var again []string
		for _, tok := range first {
			again = append(again, TokenStrings(ParseTokens(tok))...)
		}
		assert.Equal(t, first, again)
	}
}
