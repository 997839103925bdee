// internal/catalog/helpers_test.go
package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"treasury-portal/internal/airbase"
	commonerrors "treasury-portal/internal/common/errors"
	"treasury-portal/internal/common/logger"
)

// memStore is an in-memory Store for pipeline tests.
type memStore struct {
	mu         sync.Mutex
	options    map[string][]byte
	transients map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{
		options:    make(map[string][]byte),
		transients: make(map[string][]byte),
	}
}

func (m *memStore) GetOption(_ context.Context, name string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.options[name]
	return value, ok, nil
}

func (m *memStore) SetOption(_ context.Context, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[name] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) DeleteOption(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.options, name)
	return nil
}

func (m *memStore) GetTransient(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.transients[key]
	return value, ok, nil
}

func (m *memStore) SetTransient(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transients[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) DeleteTransient(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transients, key)
	return nil
}

// fakeSource implements SourceAPI with scripted responses and call
// accounting.
type fakeSource struct {
	schema    map[string]string
	schemaErr error

	records    []airbase.Record
	vendorsErr error
	fetchCalls int

	primaries map[string]airbase.PrimaryField

	resolutions  map[string]map[string]string // table -> id -> value
	resolveErrs  []error                      // consumed one per call
	resolveCalls int
}

func (f *fakeSource) GetVendors(_ context.Context, _ []string) ([]airbase.Record, error) {
	f.fetchCalls++
	if f.vendorsErr != nil {
		return nil, f.vendorsErr
	}
	return f.records, nil
}

func (f *fakeSource) GetTableSchema(_ context.Context) (map[string]string, error) {
	if f.schemaErr != nil {
		return nil, f.schemaErr
	}
	return f.schema, nil
}

func (f *fakeSource) GetPrimaryField(_ context.Context, table string) (airbase.PrimaryField, error) {
	if primary, ok := f.primaries[table]; ok {
		return primary, nil
	}
	return airbase.PrimaryField{}, commonerrors.NewInvalidResponseError("get_primary_field", "unknown table")
}

func (f *fakeSource) ResolveLinkedRecords(_ context.Context, table string, ids []string, _ string) (map[string]string, error) {
	f.resolveCalls++
	if len(f.resolveErrs) > 0 {
		err := f.resolveErrs[0]
		f.resolveErrs = f.resolveErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string]string)
	for _, id := range ids {
		if value, ok := f.resolutions[table][id]; ok {
			out[id] = value
		}
	}
	return out, nil
}

// fakeAlerter records abort notifications.
type fakeAlerter struct {
	aborts  int
	reason  string
	missing map[string]string
}

func (f *fakeAlerter) RefreshAborted(_ context.Context, reason string, missing map[string]string) {
	f.aborts++
	f.reason = reason
	f.missing = missing
}

// fullSchema covers every configured field label.
func fullSchema() map[string]string {
	return map[string]string{
		"Name":           "fldName",
		"Linked Vendor":  "fldLinkedVendor",
		"Description":    "fldDesc",
		"Website":        "fldWebsite",
		"Logo URL":       "fldLogo",
		"Video URL":      "fldVideo",
		"Status":         "fldStatus",
		"Founded Year":   "fldFounded",
		"Founders":       "fldFounders",
		"Regions":        "fldRegions",
		"Categories":     "fldCategories",
		"Sub Categories": "fldSubCategories",
		"Domain":         "fldDomain",
		"Hosted Type":    "fldHostedType",
		"Capabilities":   "fldCapabilities",
		"HQ Location":    "fldHQ",
	}
}

func newTestRefresher(t *testing.T, source *fakeSource, st *memStore) *Refresher {
	t.Helper()
	r := NewRefresher(source, st, time.Hour, logger.NewTestLogger(t))
	r.retryDelay = 0
	return r
}
