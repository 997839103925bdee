// internal/catalog/service_test.go
package catalog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-portal/internal/airbase"
	"treasury-portal/internal/common/config"
	commonerrors "treasury-portal/internal/common/errors"
	"treasury-portal/internal/common/logger"
)

func newTestService(t *testing.T, source *fakeSource, st *memStore, cfg config.CatalogConfig) *Service {
	t.Helper()
	r := NewRefresher(source, st, time.Hour, logger.NewTestLogger(t))
	r.retryDelay = 0
	return NewService(st, r, cfg, logger.NewTestLogger(t))
}

func catalogFixture() []Vendor {
	return []Vendor{
		{
			ID:             "rec1aaaaaaaaaaaa",
			Name:           "Acme Treasury",
			Description:    "Cash visibility platform",
			Website:        "https://acme.example.com",
			FullWebsiteURL: "https://acme.example.com",
			VideoURL:       "https://videos.example.com/acme",
			Regions:        []string{"North America"},
			Categories:     []string{"Cash Management"},
			SubCategories:  []string{"Payments Ops"},
			Domain:         []string{"Treasury"},
			Category:       "Cash Management",
		},
		{
			ID:             "rec2bbbbbbbbbbbb",
			Name:           "Borealis Risk",
			Description:    "FX exposure analytics",
			Website:        "https://borealis.example.com",
			FullWebsiteURL: "https://borealis.example.com",
			Regions:        []string{"Europe"},
			Categories:     []string{"Risk Management"},
			Domain:         []string{"Risk"},
			Category:       "Risk Management",
		},
		{
			ID:             "rec3cccccccccccc",
			Name:           "Cumulus Payments",
			Description:    "Cross border payment rails",
			Website:        "https://cumulus.example.com",
			FullWebsiteURL: "https://cumulus.example.com",
			Regions:        []string{"North America", "Asia Pacific"},
			Categories:     []string{"Cash Management"},
			Domain:         []string{"Payments"},
			Category:       "Cash Management",
		},
	}
}

func seedCollection(t *testing.T, st *memStore, vendors []Vendor) {
	t.Helper()
	encoded, err := json.Marshal(collectionEnvelope{
		Generation: "seed",
		Vendors:    vendors,
	})
	require.NoError(t, err)
	require.NoError(t, st.SetOption(context.Background(), vendorCollectionKey, encoded))
	require.NoError(t, st.SetTransient(context.Background(), vendorCollectionKey, encoded, time.Hour))
}

// ==========================================
// READ THROUGH CACHE TESTS
// ==========================================

func TestGetAllVendorsRefreshesWhenCacheIsEmpty(t *testing.T) {
	st := newMemStore()
	source := &fakeSource{
		schema: fullSchema(),
		records: []airbase.Record{
			{ID: "rec1aaaaaaaaaaaa", Fields: map[string]interface{}{
				"fldName":    "Acme Treasury",
				"fldWebsite": "https://acme.example.com",
			}},
		},
	}
	svc := newTestService(t, source, st, config.CatalogConfig{CacheTTL: 3600})

	vendors, err := svc.GetAllVendors(context.Background())
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, "Acme Treasury", vendors[0].Name)
	assert.Equal(t, 1, source.fetchCalls)

	// Second read serves the cache.
	vendors, err = svc.GetAllVendors(context.Background())
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, 1, source.fetchCalls, "a fresh cache must not refetch")
}

func TestGetAllVendorsRefreshesStaleCollection(t *testing.T) {
	st := newMemStore()
	stale := catalogFixture()
	stale[0].Regions = []string{"recreg1aaaaaaaaaa"}
	seedCollection(t, st, stale)

	source := &fakeSource{
		schema: fullSchema(),
		records: []airbase.Record{
			{ID: "rec1aaaaaaaaaaaa", Fields: map[string]interface{}{
				"fldName":    "Acme Treasury",
				"fldWebsite": "https://acme.example.com",
				"fldRegions": "recreg1aaaaaaaaaa",
			}},
		},
		resolutions: map[string]map[string]string{
			"Regions": {"recreg1aaaaaaaaaa": "North America"},
		},
	}
	svc := newTestService(t, source, st, config.CatalogConfig{CacheTTL: 3600})

	vendors, err := svc.GetAllVendors(context.Background())
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, []string{"North America"}, vendors[0].Regions)
	assert.Equal(t, 1, source.fetchCalls, "unresolved identifiers in the cache must force a refresh")
}

func TestGetAllVendorsServesPreviousCollectionWhenRefreshFails(t *testing.T) {
	st := newMemStore()
	stale := catalogFixture()
	stale[0].Regions = []string{"recreg1aaaaaaaaaa"}
	seedCollection(t, st, stale)

	source := &fakeSource{
		schema:     fullSchema(),
		vendorsErr: commonerrors.NewUpstreamFetchFailedError("get_vendors", assert.AnError),
	}
	svc := newTestService(t, source, st, config.CatalogConfig{CacheTTL: 3600})

	vendors, err := svc.GetAllVendors(context.Background())
	require.NoError(t, err, "a failed refresh falls back to the durable copy")
	assert.Len(t, vendors, 3)
}

func TestGetAllVendorsPromotesDurableCopyToTransient(t *testing.T) {
	st := newMemStore()
	encoded, err := json.Marshal(collectionEnvelope{Generation: "seed", Vendors: catalogFixture()})
	require.NoError(t, err)
	require.NoError(t, st.SetOption(context.Background(), vendorCollectionKey, encoded))

	svc := newTestService(t, &fakeSource{}, st, config.CatalogConfig{CacheTTL: 3600})

	vendors, err := svc.GetAllVendors(context.Background())
	require.NoError(t, err)
	assert.Len(t, vendors, 3)

	_, found, err := st.GetTransient(context.Background(), vendorCollectionKey)
	require.NoError(t, err)
	assert.True(t, found, "a durable hit re-seeds the transient tier")
}

// ==========================================
// TOOL FILTER TESTS
// ==========================================

func TestGetToolsFilters(t *testing.T) {
	st := newMemStore()
	seedCollection(t, st, catalogFixture())
	svc := newTestService(t, &fakeSource{}, st, config.CatalogConfig{CacheTTL: 3600})
	ctx := context.Background()

	tests := []struct {
		name   string
		filter ToolFilter
		want   []string
	}{
		{
			name:   "no constraints",
			filter: ToolFilter{},
			want:   []string{"Acme Treasury", "Borealis Risk", "Cumulus Payments"},
		},
		{
			name:   "category",
			filter: ToolFilter{Category: "Cash Management"},
			want:   []string{"Acme Treasury", "Cumulus Payments"},
		},
		{
			name:   "category and region",
			filter: ToolFilter{Category: "Cash Management", Region: "Asia Pacific"},
			want:   []string{"Cumulus Payments"},
		},
		{
			name:   "sub category",
			filter: ToolFilter{SubCategory: "Payments Ops"},
			want:   []string{"Acme Treasury"},
		},
		{
			name:   "domain",
			filter: ToolFilter{Domain: "Risk"},
			want:   []string{"Borealis Risk"},
		},
		{
			name:   "has video",
			filter: ToolFilter{HasVideo: true},
			want:   []string{"Acme Treasury"},
		},
		{
			name:   "search is case insensitive",
			filter: ToolFilter{Search: "fx EXPOSURE"},
			want:   []string{"Borealis Risk"},
		},
		{
			name:   "search with no match",
			filter: ToolFilter{Search: "blockchain"},
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools, err := svc.GetTools(ctx, tt.filter)
			require.NoError(t, err)
			names := make([]string, 0, len(tools))
			for _, tool := range tools {
				names = append(names, tool.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestGetToolsHonorsEnabledLists(t *testing.T) {
	st := newMemStore()
	seedCollection(t, st, catalogFixture())
	ctx := context.Background()

	enabled, err := json.Marshal([]string{"Risk Management"})
	require.NoError(t, err)
	require.NoError(t, st.SetOption(ctx, enabledCategoriesOption, enabled))

	svc := newTestService(t, &fakeSource{}, st, config.CatalogConfig{CacheTTL: 3600})

	tools, err := svc.GetTools(ctx, ToolFilter{Category: "Cash Management"})
	require.NoError(t, err)
	assert.Empty(t, tools, "a disabled category filter returns nothing")

	tools, err = svc.GetTools(ctx, ToolFilter{Category: "Risk Management"})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "Borealis Risk", tools[0].Name)
}

func TestGetToolsPagination(t *testing.T) {
	st := newMemStore()
	seedCollection(t, st, catalogFixture())
	svc := newTestService(t, &fakeSource{}, st, config.CatalogConfig{CacheTTL: 3600})
	ctx := context.Background()

	page1, err := svc.GetTools(ctx, ToolFilter{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page2, err := svc.GetTools(ctx, ToolFilter{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "Cumulus Payments", page2[0].Name)

	// Page zero clamps to the first page.
	clamped, err := svc.GetTools(ctx, ToolFilter{Page: 0, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, page1, clamped)

	beyond, err := svc.GetTools(ctx, ToolFilter{Page: 5, PerPage: 2})
	require.NoError(t, err)
	assert.Empty(t, beyond)

	// The zero value means unpaginated.
	all, err := svc.GetTools(ctx, ToolFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// A negative per-page is invalid and clamps to one result.
	single, err := svc.GetTools(ctx, ToolFilter{Page: 1, PerPage: -5})
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, page1[0], single[0])
}

// ==========================================
// DIRECT SAVE AND REPORT TESTS
// ==========================================

func TestSaveVendorsValidatesBeforePersisting(t *testing.T) {
	st := newMemStore()
	svc := newTestService(t, &fakeSource{}, st, config.CatalogConfig{CacheTTL: 3600})
	ctx := context.Background()

	err := svc.SaveVendors(ctx, []Vendor{{ID: "rec1aaaaaaaaaaaa"}})
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeVendorInvalid, commonerrors.CodeOf(err))

	_, found, readErr := st.GetOption(ctx, vendorCollectionKey)
	require.NoError(t, readErr)
	assert.False(t, found, "an invalid vendor aborts the whole save")

	require.NoError(t, svc.SaveVendors(ctx, catalogFixture()))

	vendors, err := svc.GetAllVendors(ctx)
	require.NoError(t, err)
	assert.Len(t, vendors, 3)
}

func TestUnresolvedReportLifecycle(t *testing.T) {
	st := newMemStore()
	source := &fakeSource{
		schema: fullSchema(),
		records: []airbase.Record{
			{ID: "rec1aaaaaaaaaaaa", Fields: map[string]interface{}{
				"fldName":    "Acme Treasury",
				"fldWebsite": "https://acme.example.com",
				"fldRegions": "recreg9zzzzzzzzzz",
			}},
		},
	}
	svc := newTestService(t, source, st, config.CatalogConfig{CacheTTL: 3600})
	ctx := context.Background()

	_, err := svc.GetAllVendors(ctx)
	require.NoError(t, err)

	report, err := svc.UnresolvedReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"recreg9zzzzzzzzzz"}, report["Regions"])

	require.NoError(t, svc.ClearUnresolvedReport(ctx))

	report, err = svc.UnresolvedReport(ctx)
	require.NoError(t, err)
	assert.Empty(t, report)
}

func TestMissingFieldReport(t *testing.T) {
	st := newMemStore()
	schema := fullSchema()
	delete(schema, "Founders")
	source := &fakeSource{
		schema: schema,
		records: []airbase.Record{
			{ID: "rec1aaaaaaaaaaaa", Fields: map[string]interface{}{
				"fldName":    "Acme Treasury",
				"fldWebsite": "https://acme.example.com",
			}},
		},
	}
	svc := newTestService(t, source, st, config.CatalogConfig{CacheTTL: 3600})
	ctx := context.Background()

	_, err := svc.GetAllVendors(ctx)
	require.NoError(t, err)

	report, err := svc.MissingFieldReport(ctx)
	require.NoError(t, err)
	assert.Contains(t, report, "Founders")
}
