// internal/airbase/client.go

// Package airbase is the client for the upstream vendor database. All
// requests go through a shared HTTP client that retries rate-limited
// responses, table schemas are cached as a transient, and linked-record
// lookups are memoized per client instance.
package airbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"treasury-portal/internal/common/config"
	commonerrors "treasury-portal/internal/common/errors"
	commonhttp "treasury-portal/internal/common/http"
	"treasury-portal/internal/common/logger"
	"treasury-portal/internal/common/metrics"
	"treasury-portal/internal/records"
	"treasury-portal/internal/store"
)

// requestAttempts is the total number of tries for a rate-limited request.
const requestAttempts = 3

const schemaCacheKey = "airbase:schema"

// Record is a single row from the upstream table. When fetched through
// GetVendors, Fields is keyed by field identifier; resolution lookups
// return fields keyed by label.
type Record struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

// PrimaryField describes the display field of a table.
type PrimaryField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableSchema maps field labels to identifiers for one table.
type TableSchema struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Fields  map[string]string `json:"fields"`
	Types   map[string]string `json:"types"`
	Primary PrimaryField      `json:"primary"`
}

type Client struct {
	cfg   config.AirbaseConfig
	store store.Store
	log   logger.Logger

	// HTTP is exported so tests can shrink the backoff delay.
	HTTP *commonhttp.Client

	mu   sync.Mutex
	memo map[string]map[string]*string // table -> record id -> display value (nil = known miss)
}

func NewClient(cfg config.AirbaseConfig, st store.Store, log logger.Logger) *Client {
	return &Client{
		cfg:   cfg,
		store: st,
		log:   log,
		HTTP:  commonhttp.NewClient(config.GetDuration(cfg.Timeout)),
		memo:  make(map[string]map[string]*string),
	}
}

func (c *Client) checkCredentials() error {
	if c.cfg.Token == "" {
		return commonerrors.NewMissingCredentialsError("airbase.token")
	}
	if c.cfg.BaseID == "" {
		return commonerrors.NewMissingCredentialsError("airbase.base_id")
	}
	return nil
}

func (c *Client) tableURL(table string) string {
	return fmt.Sprintf("%s/%s/%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.BaseID, url.PathEscape(table))
}

func (c *Client) metaURL() string {
	return fmt.Sprintf("%s/meta/bases/%s/tables",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.BaseID)
}

// doJSON executes an authenticated GET and decodes the JSON response
// into out. Rate-limited responses are retried by the HTTP layer before
// surfacing here.
func (c *Client) doJSON(ctx context.Context, operation, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return commonerrors.NewUpstreamFetchFailedError(operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.DoWithBackoff(ctx, req, requestAttempts)
	if err != nil {
		return commonerrors.NewUpstreamFetchFailedError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return commonerrors.NewUpstreamRateLimitedError(operation)
	}
	if resp.StatusCode != http.StatusOK {
		return commonerrors.NewUpstreamFetchFailedError(operation,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return commonerrors.NewInvalidResponseError(operation, err.Error())
	}
	return nil
}

// ==========================================
// Table Schemas
// ==========================================

type metaResponse struct {
	Tables []struct {
		ID             string `json:"id"`
		Name           string `json:"name"`
		PrimaryFieldID string `json:"primaryFieldId"`
		Fields         []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
	} `json:"tables"`
}

// tableSchemas returns the schema of every table in the base, keyed by
// both table identifier and lowercase table name. The result is cached
// as a transient so repeated refreshes skip the metadata round trip.
func (c *Client) tableSchemas(ctx context.Context) (map[string]TableSchema, error) {
	if cached, found, err := c.store.GetTransient(ctx, schemaCacheKey); err == nil && found {
		var schemas map[string]TableSchema
		if err := json.Unmarshal(cached, &schemas); err == nil {
			metrics.CacheHits.WithLabelValues("schema").Inc()
			return schemas, nil
		}
	}
	metrics.CacheMisses.WithLabelValues("schema").Inc()

	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	var meta metaResponse
	if err := c.doJSON(ctx, "get_table_schema", c.metaURL(), &meta); err != nil {
		return nil, err
	}
	if len(meta.Tables) == 0 {
		return nil, commonerrors.NewInvalidResponseError("get_table_schema", "no tables in response")
	}

	schemas := make(map[string]TableSchema, len(meta.Tables)*2)
	for _, table := range meta.Tables {
		schema := TableSchema{
			ID:     table.ID,
			Name:   table.Name,
			Fields: make(map[string]string, len(table.Fields)),
			Types:  make(map[string]string, len(table.Fields)),
		}
		for _, field := range table.Fields {
			schema.Fields[field.Name] = field.ID
			schema.Types[field.Name] = field.Type
			if field.ID == table.PrimaryFieldID {
				schema.Primary = PrimaryField{ID: field.ID, Name: field.Name, Type: field.Type}
			}
		}
		schemas[table.ID] = schema
		schemas[strings.ToLower(table.Name)] = schema
	}

	if encoded, err := json.Marshal(schemas); err == nil {
		if err := c.store.SetTransient(ctx, schemaCacheKey, encoded,
			config.GetSeconds(c.cfg.SchemaCacheTTL)); err != nil {
			c.log.Warn("failed to cache table schemas", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return schemas, nil
}

// GetTableSchema returns the label-to-identifier field map of the
// configured vendors table.
func (c *Client) GetTableSchema(ctx context.Context) (map[string]string, error) {
	schemas, err := c.tableSchemas(ctx)
	if err != nil {
		return nil, err
	}
	schema, ok := c.lookupTable(schemas, c.cfg.TablePath)
	if !ok {
		return nil, commonerrors.NewInvalidResponseError("get_table_schema",
			fmt.Sprintf("table %q not present in base", c.cfg.TablePath))
	}
	return schema.Fields, nil
}

// GetPrimaryField returns the display field of the named table.
func (c *Client) GetPrimaryField(ctx context.Context, table string) (PrimaryField, error) {
	schemas, err := c.tableSchemas(ctx)
	if err != nil {
		return PrimaryField{}, err
	}
	schema, ok := c.lookupTable(schemas, table)
	if !ok {
		return PrimaryField{}, commonerrors.NewInvalidResponseError("get_primary_field",
			fmt.Sprintf("table %q not present in base", table))
	}
	return schema.Primary, nil
}

func (c *Client) lookupTable(schemas map[string]TableSchema, table string) (TableSchema, bool) {
	if schema, ok := schemas[table]; ok {
		return schema, true
	}
	schema, ok := schemas[strings.ToLower(table)]
	return schema, ok
}

// InvalidateSchemaCache drops the cached table schemas so the next call
// refetches them.
func (c *Client) InvalidateSchemaCache(ctx context.Context) error {
	return c.store.DeleteTransient(ctx, schemaCacheKey)
}

// ==========================================
// Vendor Listing
// ==========================================

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

// GetVendors fetches every row of the vendors table, walking pagination
// offsets until exhausted. Requested field labels are normalized to
// identifiers through the table schema; labels the schema does not know
// are reported and skipped. Returned records key their fields by field
// identifier.
func (c *Client) GetVendors(ctx context.Context, fields []string) ([]Record, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	fieldIDs, missing := c.normalizeFields(ctx, fields)
	if len(missing) > 0 {
		c.log.Warn("requested fields missing from table schema", map[string]interface{}{
			"table":  c.cfg.TablePath,
			"fields": missing,
		})
	}

	var out []Record
	offset := ""
	for {
		query := url.Values{}
		query.Set("pageSize", fmt.Sprintf("%d", c.cfg.PageSize))
		query.Set("cellFormat", "string")
		query.Set("timeZone", "utc")
		query.Set("userLocale", "en-us")
		query.Set("returnFieldsByFieldId", "true")
		for _, id := range fieldIDs {
			query.Add("fields[]", id)
		}
		if offset != "" {
			query.Set("offset", offset)
		}

		var page listResponse
		requestURL := c.tableURL(c.cfg.TablePath) + "?" + query.Encode()
		if err := c.doJSON(ctx, "get_vendors", requestURL, &page); err != nil {
			return nil, err
		}

		out = append(out, page.Records...)
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}

	c.log.Info("fetched vendor records", map[string]interface{}{
		"table": c.cfg.TablePath,
		"count": len(out),
	})
	return out, nil
}

// normalizeFields maps field labels to identifiers. Labels that already
// look like identifiers pass through untouched. When the schema cannot
// be fetched at all, labels are used as-is so the listing still works.
func (c *Client) normalizeFields(ctx context.Context, fields []string) ([]string, []string) {
	if len(fields) == 0 {
		return nil, nil
	}

	schema, err := c.GetTableSchema(ctx)
	if err != nil {
		c.log.Warn("schema unavailable, requesting fields by label", map[string]interface{}{
			"error": err.Error(),
		})
		return fields, nil
	}

	known := make(map[string]bool, len(schema))
	for _, id := range schema {
		known[id] = true
	}

	var ids, missing []string
	for _, field := range fields {
		switch {
		case known[field]:
			ids = append(ids, field)
		case schema[field] != "":
			ids = append(ids, schema[field])
		default:
			missing = append(missing, field)
		}
	}
	return ids, missing
}

// ==========================================
// Linked Record Resolution
// ==========================================

// ResolveLinkedRecords resolves record identifiers in the named table to
// the display value of primaryField. Identifiers are looked up in
// batches; results and misses are memoized for the lifetime of the
// client, so repeated fields in one refresh cost one request. The result
// maps only the identifiers that resolved.
func (c *Client) ResolveLinkedRecords(ctx context.Context, table string, ids []string, primaryField string) (map[string]string, error) {
	resolved := make(map[string]string)
	if len(ids) == 0 {
		return resolved, nil
	}
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	pending := c.consultMemo(table, ids, resolved)
	if len(pending) == 0 {
		return resolved, nil
	}

	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		metrics.ResolutionRequests.WithLabelValues(table).Inc()
		found, err := c.resolveBatch(ctx, table, batch, primaryField)
		if err != nil {
			metrics.ResolutionFailures.WithLabelValues(table).Inc()
			return nil, err
		}

		c.memoize(table, batch, found)
		for id, value := range found {
			resolved[id] = value
		}
	}

	return resolved, nil
}

func (c *Client) resolveBatch(ctx context.Context, table string, ids []string, primaryField string) (map[string]string, error) {
	clauses := make([]string, 0, len(ids))
	for _, id := range ids {
		clauses = append(clauses, fmt.Sprintf("RECORD_ID()='%s'", strings.ReplaceAll(id, "'", "")))
	}

	query := url.Values{}
	query.Set("filterByFormula", fmt.Sprintf("OR(%s)", strings.Join(clauses, ",")))
	query.Set("cellFormat", "string")
	query.Set("timeZone", "utc")
	query.Set("userLocale", "en-us")
	if primaryField != "" {
		query.Add("fields[]", primaryField)
	}

	var page listResponse
	requestURL := c.tableURL(table) + "?" + query.Encode()
	if err := c.doJSON(ctx, "resolve_linked_records", requestURL, &page); err != nil {
		if commonerrors.IsRetryable(err) {
			return nil, commonerrors.NewResolutionFailedError(table, err)
		}
		return nil, err
	}

	found := make(map[string]string, len(page.Records))
	for _, record := range page.Records {
		value := c.displayValue(record, primaryField)
		if value != "" {
			found[record.ID] = value
		}
	}
	return found, nil
}

// displayValue extracts the display string from a resolved record,
// preferring the requested primary field and falling back to the first
// non-empty field.
func (c *Client) displayValue(record Record, primaryField string) string {
	if raw, ok := record.Fields[primaryField]; ok {
		if tokens := records.ParseTokens(raw); len(tokens) > 0 {
			return records.TokenString(tokens[0])
		}
	}
	for _, raw := range record.Fields {
		if tokens := records.ParseTokens(raw); len(tokens) > 0 {
			return records.TokenString(tokens[0])
		}
	}
	return ""
}

// consultMemo fills resolved from the memo and returns the deduplicated
// identifiers that still need a lookup.
func (c *Client) consultMemo(table string, ids []string, resolved map[string]string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	tableMemo := c.memo[table]
	seen := make(map[string]bool, len(ids))
	var pending []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		if tableMemo != nil {
			if value, known := tableMemo[id]; known {
				if value != nil {
					resolved[id] = *value
				}
				continue
			}
		}
		pending = append(pending, id)
	}
	return pending
}

// memoize records both hits and misses for the attempted batch. Misses
// are remembered so deleted upstream records are not refetched every
// field.
func (c *Client) memoize(table string, attempted []string, found map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tableMemo := c.memo[table]
	if tableMemo == nil {
		tableMemo = make(map[string]*string)
		c.memo[table] = tableMemo
	}
	for _, id := range attempted {
		if value, ok := found[id]; ok {
			v := value
			tableMemo[id] = &v
		} else {
			tableMemo[id] = nil
		}
	}
}
