// internal/catalog/unresolved.go
package catalog

import (
	"context"
	"encoding/json"
	"sort"

	"treasury-portal/internal/common/metrics"
)

// unresolvedReportOption is the durable option holding the accumulated
// field-label to identifier report. It survives refreshes and is only
// cleared by an explicit operator action.
const unresolvedReportOption = "unresolved_fields"

// recordUnresolved merges newly failed identifiers into the persisted
// report, deduplicating per field label.
func (r *Refresher) recordUnresolved(ctx context.Context, fieldLabel string, ids []string) {
	if len(ids) == 0 {
		return
	}
	metrics.UnresolvedIdentifiers.WithLabelValues(fieldLabel).Add(float64(len(ids)))

	report, err := loadUnresolvedReport(ctx, r.store)
	if err != nil {
		r.log.Warn("could not load unresolved report", map[string]interface{}{
			"error": err.Error(),
		})
		report = map[string][]string{}
	}

	seen := make(map[string]bool, len(report[fieldLabel])+len(ids))
	for _, id := range report[fieldLabel] {
		seen[id] = true
	}
	merged := append([]string(nil), report[fieldLabel]...)
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	sort.Strings(merged)
	report[fieldLabel] = merged

	encoded, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := r.store.SetOption(ctx, unresolvedReportOption, encoded); err != nil {
		r.log.Warn("could not persist unresolved report", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func loadUnresolvedReport(ctx context.Context, st optionReader) (map[string][]string, error) {
	raw, found, err := st.GetOption(ctx, unresolvedReportOption)
	if err != nil {
		return nil, err
	}
	report := map[string][]string{}
	if !found {
		return report, nil
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return map[string][]string{}, nil
	}
	return report, nil
}

// optionReader is the read slice of the store, enough for report loads.
type optionReader interface {
	GetOption(ctx context.Context, name string) ([]byte, bool, error)
}
