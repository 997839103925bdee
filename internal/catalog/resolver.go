// internal/catalog/resolver.go
package catalog

import (
	"context"
	"time"

	"treasury-portal/internal/airbase"
	commonerrors "treasury-portal/internal/common/errors"
	"treasury-portal/internal/records"
)

const (
	// resolveAttempts is the total number of tries for one field's
	// resolution before degrading to display-only tokens.
	resolveAttempts = 3

	// defaultRetryDelay spaces resolution retries so a transient
	// upstream hiccup has time to clear.
	defaultRetryDelay = 250 * time.Millisecond
)

// SourceAPI is the slice of the upstream client the pipeline consumes.
type SourceAPI interface {
	GetVendors(ctx context.Context, fields []string) ([]airbase.Record, error)
	GetTableSchema(ctx context.Context) (map[string]string, error)
	GetPrimaryField(ctx context.Context, table string) (airbase.PrimaryField, error)
	ResolveLinkedRecords(ctx context.Context, table string, ids []string, primaryField string) (map[string]string, error)
}

// resolveLinkedField turns one raw relation field into display strings.
// Tokens that already read as display values pass through untouched and
// in place; identifier tokens are resolved against the linked table.
// When no token classifies as an identifier the upstream is never
// called. Identifiers that fail to resolve are dropped, logged under
// the field label, and recorded in the unresolved report. The function
// degrades, it never fails.
func (r *Refresher) resolveLinkedField(ctx context.Context, raw interface{}, fieldLabel, table, primaryField string) []string {
	tokens := records.ParseTokens(raw)
	if len(tokens) == 0 {
		return nil
	}

	ids := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if records.ContainsRecordIDs(token) {
			ids = append(ids, records.TokenString(token))
		}
	}
	if len(ids) == 0 {
		return records.TokenStrings(tokens)
	}

	resolved := r.resolveWithRetry(ctx, table, ids, primaryField, fieldLabel)

	out := make([]string, 0, len(tokens))
	var misses []string
	for _, token := range tokens {
		text := records.TokenString(token)
		if !records.ContainsRecordIDs(token) {
			out = append(out, text)
			continue
		}
		if value, ok := resolved[text]; ok {
			out = append(out, value)
		} else {
			misses = append(misses, text)
		}
	}

	if len(misses) > 0 {
		r.log.Warn("identifiers did not resolve to display values", map[string]interface{}{
			"field": fieldLabel,
			"table": table,
			"ids":   misses,
		})
		r.recordUnresolved(ctx, fieldLabel, misses)
	}

	return out
}

// resolveWithRetry calls the upstream up to resolveAttempts times,
// backing off between attempts on recoverable errors. On final failure
// it returns an empty map; the caller treats every identifier as a miss.
func (r *Refresher) resolveWithRetry(ctx context.Context, table string, ids []string, primaryField, fieldLabel string) map[string]string {
	var lastErr error
	for attempt := 1; attempt <= resolveAttempts; attempt++ {
		resolved, err := r.source.ResolveLinkedRecords(ctx, table, ids, primaryField)
		if err == nil {
			return resolved
		}
		lastErr = err
		if !commonerrors.IsRetryable(err) {
			break
		}
		if attempt < resolveAttempts {
			select {
			case <-ctx.Done():
				return map[string]string{}
			case <-time.After(r.retryDelay):
			}
		}
	}

	r.log.Error("linked record resolution failed", map[string]interface{}{
		"field":    fieldLabel,
		"table":    table,
		"idCount":  len(ids),
		"attempts": resolveAttempts,
		"error":    lastErr.Error(),
	})
	return map[string]string{}
}
