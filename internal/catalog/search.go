// internal/catalog/search.go
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"treasury-portal/internal/common/database"
	commonerrors "treasury-portal/internal/common/errors"
	"treasury-portal/internal/common/logger"
)

// Indexer mirrors a refreshed collection into a secondary search store.
// The mirror is best-effort; the catalog of record lives in the store.
type Indexer interface {
	IndexVendors(ctx context.Context, generation string, vendors []Vendor) error
}

// ESIndexer bulk-writes vendors into an Elasticsearch index, one
// document per vendor keyed by record id and stamped with the refresh
// generation.
type ESIndexer struct {
	es    *database.ElasticsearchClient
	index string
	log   logger.Logger
}

func NewESIndexer(es *database.ElasticsearchClient, index string, log logger.Logger) *ESIndexer {
	return &ESIndexer{es: es, index: index, log: log}
}

type indexedVendor struct {
	Vendor
	Generation string `json:"generation"`
}

func (i *ESIndexer) IndexVendors(ctx context.Context, generation string, vendors []Vendor) error {
	if len(vendors) == 0 {
		return nil
	}

	var body bytes.Buffer
	for _, vendor := range vendors {
		fmt.Fprintf(&body, `{"index":{"_id":%q}}`+"\n", vendor.ID)
		doc, err := json.Marshal(indexedVendor{Vendor: vendor, Generation: generation})
		if err != nil {
			return commonerrors.NewIndexWriteFailedError(i.index, err)
		}
		body.Write(doc)
		body.WriteByte('\n')
	}

	if err := i.es.Bulk(ctx, i.index, body.Bytes()); err != nil {
		return commonerrors.NewIndexWriteFailedError(i.index, err)
	}

	i.log.Debug("mirrored vendors to search index", map[string]interface{}{
		"index":      i.index,
		"generation": generation,
		"count":      len(vendors),
	})
	return nil
}
