// internal/catalog/service.go
package catalog

import (
	"context"
	"encoding/json"
	"sync"

	"treasury-portal/internal/common/config"
	"treasury-portal/internal/common/logger"
	"treasury-portal/internal/common/metrics"
	"treasury-portal/internal/store"
)

const (
	enabledCategoriesOption = "enabled_categories"
	enabledDomainsOption    = "enabled_domains"
)

// Service is the read surface of the catalog. Reads are cache-first and
// trigger a refresh only when no fresh collection exists.
type Service struct {
	store     store.Store
	refresher *Refresher
	cfg       config.CatalogConfig
	log       logger.Logger

	// refreshMu serializes refreshes; concurrent readers that lose the
	// race re-check the cache instead of refreshing twice.
	refreshMu sync.Mutex
}

func NewService(st store.Store, refresher *Refresher, cfg config.CatalogConfig, log logger.Logger) *Service {
	return &Service{
		store:     st,
		refresher: refresher,
		cfg:       cfg,
		log:       log,
	}
}

// GetAllVendors returns the full normalized collection, refreshing it
// first when it is absent or still carries unresolved identifiers.
func (s *Service) GetAllVendors(ctx context.Context) ([]Vendor, error) {
	if vendors, ok := s.readFresh(ctx); ok {
		return vendors, nil
	}

	if err := s.RefreshVendorCache(ctx); err != nil {
		// Serve the durable copy, even a stale one, over an error page.
		if raw, found, readErr := s.store.GetOption(ctx, vendorCollectionKey); readErr == nil && found {
			if vendors, decodeErr := decodeVendors(raw); decodeErr == nil {
				s.log.Warn("refresh failed, serving previous collection", map[string]interface{}{
					"error": err.Error(),
				})
				return vendors, nil
			}
		}
		return nil, err
	}

	if vendors, ok := s.readFresh(ctx); ok {
		return vendors, nil
	}
	return []Vendor{}, nil
}

// readFresh checks the transient first, then the durable option, and
// treats a payload with unresolved identifiers as a miss.
func (s *Service) readFresh(ctx context.Context) ([]Vendor, bool) {
	if raw, found, err := s.store.GetTransient(ctx, vendorCollectionKey); err == nil && found {
		if !CollectionNeedsResolution(raw) {
			if vendors, err := decodeVendors(raw); err == nil {
				metrics.CacheHits.WithLabelValues("transient").Inc()
				return vendors, true
			}
		}
	}
	metrics.CacheMisses.WithLabelValues("transient").Inc()

	if raw, found, err := s.store.GetOption(ctx, vendorCollectionKey); err == nil && found {
		if !CollectionNeedsResolution(raw) {
			if vendors, err := decodeVendors(raw); err == nil {
				metrics.CacheHits.WithLabelValues("durable").Inc()
				if err := s.store.SetTransient(ctx, vendorCollectionKey, raw,
					config.GetSeconds(s.cfg.CacheTTL)); err != nil {
					s.log.Warn("could not promote collection to transient cache", map[string]interface{}{
						"error": err.Error(),
					})
				}
				return vendors, true
			}
		}
	}
	metrics.CacheMisses.WithLabelValues("durable").Inc()
	return nil, false
}

// RefreshVendorCache rebuilds the collection. Concurrent callers are
// serialized; a caller that waited re-checks the cache and skips the
// duplicate rebuild.
func (s *Service) RefreshVendorCache(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if _, ok := s.readFresh(ctx); ok {
		return nil
	}
	return s.refresher.Refresh(ctx)
}

// SaveVendors validates and persists a collection directly, bypassing
// the upstream fetch. Used by imports and tests.
func (s *Service) SaveVendors(ctx context.Context, vendors []Vendor) error {
	for _, vendor := range vendors {
		if err := ValidateVendor(vendor); err != nil {
			return err
		}
	}
	return s.refresher.persistCollection(ctx, vendors)
}

// ToolFilter narrows GetTools output. Zero values mean "no constraint".
type ToolFilter struct {
	Category    string
	SubCategory string
	Region      string
	Domain      string
	Search      string
	HasVideo    bool
	Page        int
	PerPage     int
}

// GetTools returns the filtered, paginated catalog view.
func (s *Service) GetTools(ctx context.Context, filter ToolFilter) ([]Vendor, error) {
	vendors, err := s.GetAllVendors(ctx)
	if err != nil {
		return nil, err
	}

	enabledCategories := s.enabledList(ctx, enabledCategoriesOption, s.cfg.EnabledCategories)
	enabledDomains := s.enabledList(ctx, enabledDomainsOption, s.cfg.EnabledDomains)

	filtered := make([]Vendor, 0, len(vendors))
	for _, vendor := range vendors {
		if filter.Category != "" {
			if !vendor.InCategory(filter.Category) {
				continue
			}
			if len(enabledCategories) > 0 && !containsString(enabledCategories, filter.Category) {
				continue
			}
		}
		if filter.SubCategory != "" && !containsString(vendor.SubCategories, filter.SubCategory) {
			continue
		}
		if filter.Region != "" && !containsString(vendor.Regions, filter.Region) {
			continue
		}
		if filter.Domain != "" {
			if !containsString(vendor.Domain, filter.Domain) {
				continue
			}
			if len(enabledDomains) > 0 && !containsString(enabledDomains, filter.Domain) {
				continue
			}
		}
		if filter.HasVideo && !vendor.HasVideo() {
			continue
		}
		if !vendor.MatchesSearch(filter.Search) {
			continue
		}
		filtered = append(filtered, vendor)
	}

	return paginate(filtered, filter.Page, filter.PerPage), nil
}

// enabledList reads an operator-managed list from the option store,
// falling back to configuration.
func (s *Service) enabledList(ctx context.Context, option string, fallback []string) []string {
	raw, found, err := s.store.GetOption(ctx, option)
	if err != nil || !found {
		return fallback
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return fallback
	}
	return values
}

// UnresolvedReport returns the accumulated unresolved-identifier report.
func (s *Service) UnresolvedReport(ctx context.Context) (map[string][]string, error) {
	return loadUnresolvedReport(ctx, s.store)
}

// ClearUnresolvedReport discards the report. Operator action only; the
// pipeline never clears it on its own.
func (s *Service) ClearUnresolvedReport(ctx context.Context) error {
	return s.store.DeleteOption(ctx, unresolvedReportOption)
}

// MissingFieldReport returns the latest schema gap report, empty when
// the last refresh saw every configured field.
func (s *Service) MissingFieldReport(ctx context.Context) (map[string]string, error) {
	raw, found, err := s.store.GetOption(ctx, missingSchemaOption)
	if err != nil {
		return nil, err
	}
	report := map[string]string{}
	if !found {
		return report, nil
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return map[string]string{}, nil
	}
	return report, nil
}

// paginate slices the filtered collection. A zero perPage is the
// ToolFilter zero value and means unpaginated; a negative one is
// invalid and clamps to a single result per page.
func paginate(vendors []Vendor, page, perPage int) []Vendor {
	if page < 1 {
		page = 1
	}
	if perPage == 0 {
		perPage = len(vendors)
	}
	if perPage < 1 {
		perPage = 1
	}
	start := (page - 1) * perPage
	if start >= len(vendors) {
		return []Vendor{}
	}
	end := start + perPage
	if end > len(vendors) {
		end = len(vendors)
	}
	return vendors[start:end]
}

// decodeVendors accepts both the enveloped shape and a bare vendor
// array left over from earlier deployments.
func decodeVendors(raw []byte) ([]Vendor, error) {
	var envelope collectionEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Generation != "" {
		return envelope.Vendors, nil
	}
	var vendors []Vendor
	if err := json.Unmarshal(raw, &vendors); err != nil {
		return nil, err
	}
	return vendors, nil
}
