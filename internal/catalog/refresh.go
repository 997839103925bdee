// internal/catalog/refresh.go
package catalog

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"treasury-portal/internal/airbase"
	"treasury-portal/internal/alerts"
	commonerrors "treasury-portal/internal/common/errors"
	"treasury-portal/internal/common/logger"
	"treasury-portal/internal/common/metrics"
	"treasury-portal/internal/common/observability"
	"treasury-portal/internal/records"
	"treasury-portal/internal/store"
)

const (
	// vendorCollectionKey names both the durable option and the
	// transient holding the normalized collection.
	vendorCollectionKey = "vendors"

	// missingSchemaOption holds the latest missing-field report.
	missingSchemaOption = "missing_schema_fields"
)

// requiredFields must exist in the vendors table schema or the refresh
// aborts without touching the cached collection.
var requiredFields = []string{"Name", "Website"}

// scalarFields maps vendors-table labels to their Vendor assignment.
var scalarFields = []struct {
	label  string
	assign func(v *Vendor, value string)
}{
	{"Name", func(v *Vendor, s string) { v.Name = s }},
	{"Description", func(v *Vendor, s string) { v.Description = s }},
	{"Website", func(v *Vendor, s string) { v.Website = s }},
	{"Logo URL", func(v *Vendor, s string) { v.LogoURL = NormalizeURL(s) }},
	{"Video URL", func(v *Vendor, s string) { v.VideoURL = NormalizeURL(s) }},
	{"Status", func(v *Vendor, s string) { v.Status = s }},
	{"Founded Year", func(v *Vendor, s string) { v.FoundedYear = s }},
}

// plainListFields are multi-valued but not record links.
var plainListFields = []struct {
	label  string
	assign func(v *Vendor, values []string)
}{
	{"Founders", func(v *Vendor, vals []string) { v.Founders = vals }},
}

// linkedFields are the relation fields resolved against their tables.
var linkedFields = []struct {
	label  string
	table  string
	assign func(v *Vendor, values []string)
}{
	{"Linked Vendor", "Vendors", func(v *Vendor, vals []string) {
		// Single display string: the parent vendor or linked party.
		if len(vals) > 0 {
			v.Vendor = vals[0]
		}
	}},
	{"Regions", "Regions", func(v *Vendor, vals []string) { v.Regions = vals }},
	{"Categories", "Categories", func(v *Vendor, vals []string) { v.Categories = vals }},
	{"Sub Categories", "Sub Categories", func(v *Vendor, vals []string) { v.SubCategories = vals }},
	{"Domain", "Domain", func(v *Vendor, vals []string) { v.Domain = vals }},
	{"Hosted Type", "Hosted Type", func(v *Vendor, vals []string) { v.HostedType = vals }},
	{"Capabilities", "Capabilities", func(v *Vendor, vals []string) { v.Capabilities = vals }},
	{"HQ Location", "HQ Location", func(v *Vendor, vals []string) { v.HQLocation = vals }},
}

// collectionEnvelope is the persisted shape of the catalog. Each
// successful refresh mints a new generation.
type collectionEnvelope struct {
	Generation  string    `json:"generation"`
	RefreshedAt time.Time `json:"refreshed_at"`
	Vendors     []Vendor  `json:"vendors"`
}

// Refresher rebuilds the normalized vendor collection from upstream.
type Refresher struct {
	source SourceAPI
	store  store.Store
	log    logger.Logger

	// Optional collaborators; nil disables them.
	Indexer Indexer
	Alerter alerts.Alerter
	Obs     *observability.Observability

	cacheTTL   time.Duration
	retryDelay time.Duration
}

func NewRefresher(source SourceAPI, st store.Store, cacheTTL time.Duration, log logger.Logger) *Refresher {
	return &Refresher{
		source:     source,
		store:      st,
		log:        log,
		Alerter:    alerts.Noop{},
		cacheTTL:   cacheTTL,
		retryDelay: defaultRetryDelay,
	}
}

// Refresh fetches, resolves, validates, and atomically persists the
// full vendor collection. On any abort the previously cached collection
// stays in service.
func (r *Refresher) Refresh(ctx context.Context) error {
	start := time.Now()
	err := r.refresh(ctx)

	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.RefreshTotal.WithLabelValues(result).Inc()
	metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	if r.Obs != nil {
		r.Obs.RecordRefresh(ctx, result)
		r.Obs.RecordRefreshDuration(ctx, time.Since(start), result)
	}
	return err
}

func (r *Refresher) refresh(ctx context.Context) error {
	schema, err := r.source.GetTableSchema(ctx)
	if err != nil {
		r.log.Error("could not load vendors table schema", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	// Always persisted, so a repaired schema clears the report.
	missing := r.missingFields(schema)
	r.persistMissingFieldReport(ctx, missing)
	if required := requiredMissing(missing); len(required) > 0 {
		schemaErr := commonerrors.NewSchemaMissingFieldError(required)
		r.log.Error("aborting refresh, required fields missing from schema", map[string]interface{}{
			"fields": keysOf(required),
		})
		r.Alerter.RefreshAborted(ctx, "required vendor fields are missing from the upstream schema", required)
		return schemaErr
	}

	labels := r.knownLabels(schema)
	rows, err := r.source.GetVendors(ctx, labels)
	if err != nil {
		r.log.Error("could not fetch vendor records", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	primaries := r.primaryFieldLabels(ctx)

	vendors := make([]Vendor, 0, len(rows))
	for _, row := range rows {
		vendor := r.buildVendor(ctx, row, schema, primaries)
		if err := ValidateVendor(vendor); err != nil {
			r.log.Warn("dropping vendor that failed validation", map[string]interface{}{
				"id":    row.ID,
				"error": err.Error(),
			})
			continue
		}
		vendors = append(vendors, vendor)
	}

	if err := r.persistCollection(ctx, vendors); err != nil {
		return err
	}

	r.log.Info("vendor cache refreshed", map[string]interface{}{
		"vendors": len(vendors),
		"dropped": len(rows) - len(vendors),
	})
	return nil
}

// buildVendor normalizes one upstream row. Relation fields degrade to
// whatever resolved; a single bad field never discards the row.
func (r *Refresher) buildVendor(ctx context.Context, row airbase.Record, schema map[string]string, primaries map[string]string) Vendor {
	vendor := Vendor{ID: row.ID}

	for _, field := range scalarFields {
		if id, ok := schema[field.label]; ok {
			field.assign(&vendor, firstString(row.Fields[id]))
		}
	}
	vendor.FullWebsiteURL = NormalizeURL(vendor.Website)

	for _, field := range plainListFields {
		if id, ok := schema[field.label]; ok {
			field.assign(&vendor, records.TokenStrings(records.ParseTokens(row.Fields[id])))
		}
	}

	for _, field := range linkedFields {
		id, ok := schema[field.label]
		if !ok {
			continue
		}
		values := r.resolveLinkedField(ctx, row.Fields[id], field.label, field.table, primaries[field.table])
		field.assign(&vendor, values)
	}

	// Derived attributes: the legacy single category is the first
	// category, and category_names is categories then sub-categories.
	if len(vendor.Categories) > 0 {
		vendor.Category = vendor.Categories[0]
	}
	if len(vendor.Categories)+len(vendor.SubCategories) > 0 {
		names := make([]string, 0, len(vendor.Categories)+len(vendor.SubCategories))
		names = append(names, vendor.Categories...)
		names = append(names, vendor.SubCategories...)
		vendor.CategoryNames = names
	}

	return vendor
}

// persistCollection writes the collection durably first, then refreshes
// the transient copy. Failing the durable write aborts; a transient
// write failure only logs, the next read falls through to the option.
func (r *Refresher) persistCollection(ctx context.Context, vendors []Vendor) error {
	envelope := collectionEnvelope{
		Generation:  uuid.NewString(),
		RefreshedAt: time.Now().UTC(),
		Vendors:     vendors,
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return commonerrors.NewOptionSaveFailedError(vendorCollectionKey, err)
	}

	if err := r.store.SetOption(ctx, vendorCollectionKey, encoded); err != nil {
		return err
	}
	if err := r.store.SetTransient(ctx, vendorCollectionKey, encoded, r.cacheTTL); err != nil {
		r.log.Warn("could not update transient vendor cache", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if r.Indexer != nil {
		if err := r.Indexer.IndexVendors(ctx, envelope.Generation, vendors); err != nil {
			r.log.Warn("search mirror update failed", map[string]interface{}{
				"generation": envelope.Generation,
				"error":      err.Error(),
			})
		}
	}
	return nil
}

// missingFields returns every configured label the schema lacks.
func (r *Refresher) missingFields(schema map[string]string) map[string]string {
	missing := map[string]string{}
	check := func(label string) {
		if schema[label] == "" {
			missing[label] = ""
		}
	}
	for _, field := range scalarFields {
		check(field.label)
	}
	for _, field := range plainListFields {
		check(field.label)
	}
	for _, field := range linkedFields {
		check(field.label)
	}
	return missing
}

func requiredMissing(missing map[string]string) map[string]string {
	out := map[string]string{}
	for _, label := range requiredFields {
		if _, ok := missing[label]; ok {
			out[label] = missing[label]
		}
	}
	return out
}

func (r *Refresher) knownLabels(schema map[string]string) []string {
	var labels []string
	add := func(label string) {
		if schema[label] != "" {
			labels = append(labels, label)
		}
	}
	for _, field := range scalarFields {
		add(field.label)
	}
	for _, field := range plainListFields {
		add(field.label)
	}
	for _, field := range linkedFields {
		add(field.label)
	}
	return labels
}

// primaryFieldLabels asks the upstream for each linked table's display
// field, falling back to the conventional labels when the lookup fails:
// domain-style tables label theirs "Domain Name", everything else "Name".
func (r *Refresher) primaryFieldLabels(ctx context.Context) map[string]string {
	labels := make(map[string]string, len(linkedFields))
	for _, field := range linkedFields {
		if _, done := labels[field.table]; done {
			continue
		}
		if primary, err := r.source.GetPrimaryField(ctx, field.table); err == nil && primary.Name != "" {
			labels[field.table] = primary.Name
			continue
		}
		if strings.Contains(strings.ToLower(field.table), "domain") {
			labels[field.table] = "Domain Name"
		} else {
			labels[field.table] = "Name"
		}
	}
	return labels
}

func (r *Refresher) persistMissingFieldReport(ctx context.Context, missing map[string]string) {
	encoded, err := json.Marshal(missing)
	if err != nil {
		return
	}
	if err := r.store.SetOption(ctx, missingSchemaOption, encoded); err != nil {
		r.log.Warn("could not persist missing field report", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// firstString extracts a scalar display value. Plain strings pass
// through whole; commas in a name or description are content, not
// delimiters. Structured values fall back to their first parsed token.
func firstString(raw interface{}) string {
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s)
	}
	tokens := records.ParseTokens(raw)
	if len(tokens) == 0 {
		return ""
	}
	return records.TokenString(tokens[0])
}

func keysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
