package indexer_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/indexer"
	"github.com/jonesrussell/re-search/internal/logger"
)

const testIndex = "opportunities"

// fakeES records requests and answers like a single-node cluster.
type fakeES struct {
	mu          sync.Mutex
	indexExists bool
	created     bool
	docs        map[string]map[string]any
	failID      string
	lastSearch  map[string]any
}

func newFakeES(t *testing.T) (*fakeES, *httptest.Server) {
	t.Helper()
	f := &fakeES{docs: make(map[string]map[string]any)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeES) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/" && (r.Method == http.MethodHead || r.Method == http.MethodGet):
		fmt.Fprint(w, `{"version":{"number":"8.19.0"},"tagline":"You Know, for Search"}`)
	case r.URL.Path == "/"+testIndex && r.Method == http.MethodHead:
		if !f.indexExists {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.URL.Path == "/"+testIndex && r.Method == http.MethodPut:
		f.indexExists, f.created = true, true
		fmt.Fprint(w, `{"acknowledged":true}`)
	case strings.HasPrefix(r.URL.Path, "/"+testIndex+"/_doc/"):
		id := strings.TrimPrefix(r.URL.Path, "/"+testIndex+"/_doc/")
		if id == f.failID {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"type":"mapper_parsing_exception"}}`)
			return
		}
		var doc map[string]any
		_ = json.NewDecoder(r.Body).Decode(&doc)
		f.docs[id] = doc
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"_id":%q,"result":"created"}`, id)
	case r.URL.Path == "/"+testIndex+"/_search":
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &f.lastSearch)
		fmt.Fprint(w, `{"hits":{"hits":[{"_source":{"id":"a","title":"Robotics Lab Internship","status":"active","is_active":true}}]}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeES) snapshot() (created bool, docs map[string]map[string]any, search map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs = make(map[string]map[string]any, len(f.docs))
	for k, v := range f.docs {
		docs[k] = v
	}
	return f.created, docs, f.lastSearch
}

func newIndexer(t *testing.T, srv *httptest.Server) *indexer.Indexer {
	t.Helper()
	client, err := indexer.NewClient(context.Background(), &config.ElasticsearchConfig{URL: srv.URL}, logger.NewNop())
	require.NoError(t, err)
	return indexer.New(client, testIndex, logger.NewNop())
}

func TestEnsureIndex(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeES(t)
	ix := newIndexer(t, srv)

	require.NoError(t, ix.EnsureIndex(context.Background()))
	created, _, _ := fake.snapshot()
	assert.True(t, created)

	fake.mu.Lock()
	fake.created = false
	fake.mu.Unlock()
	require.NoError(t, ix.EnsureIndex(context.Background()))
	created, _, _ = fake.snapshot()
	assert.False(t, created, "existing index is left alone")
}

func TestIndex_UsesOpportunityID(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeES(t)
	ix := newIndexer(t, srv)

	err := ix.Index(context.Background(), []domain.Opportunity{
		{ID: "a", Title: "Robotics Lab Internship", Status: domain.StatusNew, IsActive: true},
		{ID: "b", Title: "Travel Grant", Status: domain.StatusMissing, IsActive: true},
	})
	require.NoError(t, err)

	_, docs, _ := fake.snapshot()
	require.Len(t, docs, 2)
	assert.Equal(t, "Robotics Lab Internship", docs["a"]["title"])
	assert.Equal(t, "missing", docs["b"]["status"])
}

func TestIndex_ContinuesPastFailures(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeES(t)
	fake.failID = "bad"
	ix := newIndexer(t, srv)

	err := ix.Index(context.Background(), []domain.Opportunity{{ID: "bad"}, {ID: "good"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	_, docs, _ := fake.snapshot()
	assert.Contains(t, docs, "good")
}

func TestSearch(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeES(t)
	ix := newIndexer(t, srv)

	hits, err := ix.Search(context.Background(), "robotics", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Robotics Lab Internship", hits[0].Title)
	_, _, search := fake.snapshot()
	assert.EqualValues(t, indexer.DefaultSearchSize, search["size"])
}
