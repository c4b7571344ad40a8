// Package indexer maintains the Elasticsearch read model of reconciled
// opportunities used by the search endpoints.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/logger"
)

// DefaultSearchSize caps search results when the caller passes zero.
const DefaultSearchSize = 10

var mapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"title":            map[string]any{"type": "text"},
			"description":      map[string]any{"type": "text"},
			"department":       map[string]any{"type": "keyword"},
			"opportunity_type": map[string]any{"type": "keyword"},
			"tags":             map[string]any{"type": "keyword"},
			"source_url":       map[string]any{"type": "keyword"},
			"application_url":  map[string]any{"type": "keyword"},
			"status":           map[string]any{"type": "keyword"},
			"is_active":        map[string]any{"type": "boolean"},
			"deadline":         map[string]any{"type": "keyword"},
			"funding_amount":   map[string]any{"type": "keyword"},
			"first_seen_at":    map[string]any{"type": "date"},
			"last_seen_at":     map[string]any{"type": "date"},
		},
	},
}

// Indexer writes opportunities to one Elasticsearch index.
type Indexer struct {
	client *es.Client
	index  string
	log    logger.Logger
}

// New creates an Indexer for index.
func New(client *es.Client, index string, log logger.Logger) *Indexer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Indexer{client: client, index: index, log: log.With(logger.Component("indexer"))}
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := ix.client.Indices.Exists([]string{ix.index}, ix.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	var buf bytes.Buffer
	if encodeErr := json.NewEncoder(&buf).Encode(mapping); encodeErr != nil {
		return fmt.Errorf("error encoding mapping: %w", encodeErr)
	}
	res, err = ix.client.Indices.Create(
		ix.index,
		ix.client.Indices.Create.WithContext(ctx),
		ix.client.Indices.Create.WithBody(&buf),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index %s: %s", ix.index, res.String())
	}

	ix.log.Info("Created index", logger.String("index", ix.index))
	return nil
}

// Index writes every opportunity using its ID as the document ID. It keeps
// going after a failed document and returns the joined errors.
func (ix *Indexer) Index(ctx context.Context, opps []domain.Opportunity) error {
	var errs []error
	for i := range opps {
		if err := ix.indexOne(ctx, &opps[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		ix.log.Warn("Indexing incomplete",
			logger.Int("failed", len(errs)),
			logger.Int("total", len(opps)))
	}
	return errors.Join(errs...)
}

func (ix *Indexer) indexOne(ctx context.Context, o *domain.Opportunity) error {
	docBytes, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", o.ID, err)
	}

	res, err := ix.client.Index(
		ix.index,
		bytes.NewReader(docBytes),
		ix.client.Index.WithContext(ctx),
		ix.client.Index.WithDocumentID(o.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to index document %s: %w", o.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing document %s: %s", o.ID, res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source domain.Opportunity `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns active opportunities matching query across title,
// description, department and tags.
func (ix *Indexer) Search(ctx context.Context, query string, size int) ([]domain.Opportunity, error) {
	if size <= 0 {
		size = DefaultSearchSize
	}

	body := map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":  query,
						"fields": []string{"title^3", "description", "department", "tags^2"},
					},
				},
				"filter": []any{
					map[string]any{"term": map[string]any{"is_active": true}},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("error encoding query: %w", err)
	}

	res, err := ix.client.Search(
		ix.client.Search.WithContext(ctx),
		ix.client.Search.WithIndex(ix.index),
		ix.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var decoded searchResponse
	if err = json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	out := make([]domain.Opportunity, 0, len(decoded.Hits.Hits))
	for _, hit := range decoded.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out, nil
}
