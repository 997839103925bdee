// internal/catalog/resolver_test.go
package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "treasury-portal/internal/common/errors"
)

// ==========================================
// PASSTHROUGH AND FAST PATH TESTS
// ==========================================

func TestResolveLinkedFieldDisplayValuesSkipUpstream(t *testing.T) {
	source := &fakeSource{}
	r := newTestRefresher(t, source, newMemStore())

	out := r.resolveLinkedField(context.Background(), "North America, Europe", "Regions", "Regions", "Name")

	assert.Equal(t, []string{"North America", "Europe"}, out)
	assert.Equal(t, 0, source.resolveCalls, "display-only fields must not hit the upstream")
}

func TestResolveLinkedFieldEmptyValue(t *testing.T) {
	source := &fakeSource{}
	r := newTestRefresher(t, source, newMemStore())

	assert.Nil(t, r.resolveLinkedField(context.Background(), nil, "Regions", "Regions", "Name"))
	assert.Nil(t, r.resolveLinkedField(context.Background(), "", "Regions", "Regions", "Name"))
	assert.Equal(t, 0, source.resolveCalls)
}

// ==========================================
// RESOLUTION AND MERGE ORDER TESTS
// ==========================================

func TestResolveLinkedFieldMergesInOrder(t *testing.T) {
	source := &fakeSource{
		resolutions: map[string]map[string]string{
			"Regions": {"recreg1aaaaaaaaaa": "Europe"},
		},
	}
	r := newTestRefresher(t, source, newMemStore())

	out := r.resolveLinkedField(context.Background(),
		"North America,recreg1aaaaaaaaaa,Asia Pacific", "Regions", "Regions", "Name")

	assert.Equal(t, []string{"North America", "Europe", "Asia Pacific"}, out)
	assert.Equal(t, 1, source.resolveCalls)
}

func TestResolveLinkedFieldDropsMissesAndReportsThem(t *testing.T) {
	st := newMemStore()
	source := &fakeSource{
		resolutions: map[string]map[string]string{
			"Regions": {"recreg1aaaaaaaaaa": "North America"},
		},
	}
	r := newTestRefresher(t, source, st)

	out := r.resolveLinkedField(context.Background(),
		"recreg1aaaaaaaaaa,recreg2bbbbbbbbbb", "Regions", "Regions", "Name")

	assert.Equal(t, []string{"North America"}, out)

	report, err := loadUnresolvedReport(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, []string{"recreg2bbbbbbbbbb"}, report["Regions"])
}

func TestResolveLinkedFieldListInput(t *testing.T) {
	source := &fakeSource{
		resolutions: map[string]map[string]string{
			"Categories": {"reccat1aaaaaaaaaa": "Cash Management"},
		},
	}
	r := newTestRefresher(t, source, newMemStore())

	out := r.resolveLinkedField(context.Background(),
		[]interface{}{"reccat1aaaaaaaaaa", "Payments"}, "Categories", "Categories", "Name")

	assert.Equal(t, []string{"Cash Management", "Payments"}, out)
}

// ==========================================
// RETRY AND DEGRADATION TESTS
// ==========================================

func TestResolveWithRetryRecoversOnLaterAttempt(t *testing.T) {
	source := &fakeSource{
		resolveErrs: []error{
			commonerrors.NewUpstreamRateLimitedError("resolve_linked_records"),
			commonerrors.NewUpstreamRateLimitedError("resolve_linked_records"),
			nil,
		},
		resolutions: map[string]map[string]string{
			"Regions": {"recreg1aaaaaaaaaa": "North America"},
		},
	}
	r := newTestRefresher(t, source, newMemStore())

	out := r.resolveLinkedField(context.Background(), "recreg1aaaaaaaaaa", "Regions", "Regions", "Name")

	assert.Equal(t, []string{"North America"}, out)
	assert.Equal(t, 3, source.resolveCalls)
}

func TestResolveWithRetryGivesUpAfterThreeAttempts(t *testing.T) {
	st := newMemStore()
	source := &fakeSource{
		resolveErrs: []error{
			commonerrors.NewUpstreamRateLimitedError("resolve_linked_records"),
			commonerrors.NewUpstreamRateLimitedError("resolve_linked_records"),
			commonerrors.NewUpstreamRateLimitedError("resolve_linked_records"),
		},
	}
	r := newTestRefresher(t, source, st)

	out := r.resolveLinkedField(context.Background(),
		"Existing Value,recreg1aaaaaaaaaa", "Regions", "Regions", "Name")

	assert.Equal(t, 3, source.resolveCalls)
	assert.Equal(t, []string{"Existing Value"}, out, "passthrough tokens survive a failed resolution")

	report, err := loadUnresolvedReport(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, []string{"recreg1aaaaaaaaaa"}, report["Regions"])
}

func TestResolveWithRetryStopsOnNonRetryableError(t *testing.T) {
	source := &fakeSource{
		resolveErrs: []error{
			commonerrors.NewMissingCredentialsError("airbase.token"),
		},
	}
	r := newTestRefresher(t, source, newMemStore())

	out := r.resolveLinkedField(context.Background(), "recreg1aaaaaaaaaa", "Regions", "Regions", "Name")

	assert.Equal(t, 1, source.resolveCalls, "configuration errors must not be retried")
	assert.Empty(t, out)
}

// ==========================================
// UNRESOLVED REPORT ACCUMULATION TESTS
// ==========================================

func TestRecordUnresolvedMergesAndDeduplicates(t *testing.T) {
	st := newMemStore()
	r := newTestRefresher(t, &fakeSource{}, st)
	ctx := context.Background()

	r.recordUnresolved(ctx, "Regions", []string{"recreg2bbbbbbbbbb"})
	r.recordUnresolved(ctx, "Regions", []string{"recreg2bbbbbbbbbb", "recreg1aaaaaaaaaa"})
	r.recordUnresolved(ctx, "Categories", []string{"reccat9zzzzzzzzzz"})

	report, err := loadUnresolvedReport(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, []string{"recreg1aaaaaaaaaa", "recreg2bbbbbbbbbb"}, report["Regions"])
	assert.Equal(t, []string{"reccat9zzzzzzzzzz"}, report["Categories"])
}
