package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/capitalize-ai/concierge-platform/internal/model"
)

const vectorField = "content_vector"

// ElasticConfig holds Elasticsearch settings.
type ElasticConfig struct {
	Addresses  []string
	Username   string
	Password   string
	Index      string
	Dimensions int
	TopK       int
}

// ElasticRetriever runs kNN searches over embedded knowledge entries.
type ElasticRetriever struct {
	es         *elasticsearch.Client
	embedder   Embedder
	index      string
	dimensions int
	topK       int
}

// NewElasticRetriever creates a retriever.
func NewElasticRetriever(cfg ElasticConfig, embedder Embedder) (*ElasticRetriever, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 1536
	}

	return &ElasticRetriever{
		es:         es,
		embedder:   embedder,
		index:      cfg.Index,
		dimensions: dims,
		topK:       topK,
	}, nil
}

// EnsureIndex creates the knowledge index when it does not exist.
func (r *ElasticRetriever) EnsureIndex(ctx context.Context) error {
	res, err := r.es.Indices.Exists([]string{r.index}, r.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"tenant_id": map[string]any{"type": "keyword"},
				"category":  map[string]any{"type": "keyword"},
				"title":     map[string]any{"type": "text"},
				"content":   map[string]any{"type": "text"},
				vectorField: map[string]any{
					"type":       "dense_vector",
					"dims":       r.dimensions,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	res, err = r.es.Indices.Create(r.index,
		r.es.Indices.Create.WithContext(ctx),
		r.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to create index: %s", res.String())
	}
	return nil
}

// Index embeds and stores a knowledge entry.
func (r *ElasticRetriever) Index(ctx context.Context, entry *model.KnowledgeEntry) error {
	vec, err := r.embedder.Embed(ctx, entry.Title+"\n"+entry.Content)
	if err != nil {
		return err
	}

	doc, err := json.Marshal(map[string]any{
		"tenant_id": entry.TenantID,
		"category":  entry.Category,
		"title":     entry.Title,
		"content":   entry.Content,
		vectorField: vec,
	})
	if err != nil {
		return err
	}

	res, err := r.es.Index(r.index, bytes.NewReader(doc),
		r.es.Index.WithContext(ctx),
		r.es.Index.WithDocumentID(entry.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to index knowledge entry: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to index knowledge entry: %s", res.String())
	}
	return nil
}

// SearchSimilar returns the tenant's entries nearest to the query embedding.
func (r *ElasticRetriever) SearchSimilar(ctx context.Context, query, tenantID string) ([]Snippet, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(buildKNNQuery(vec, tenantID, r.topK))
	if err != nil {
		return nil, err
	}

	res, err := r.es.Search(
		r.es.Search.WithContext(ctx),
		r.es.Search.WithIndex(r.index),
		r.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("knowledge search failed: %s", res.String())
	}

	return parseHits(res.Body)
}

func buildKNNQuery(vec []float32, tenantID string, k int) map[string]any {
	return map[string]any{
		"size": k,
		"knn": map[string]any{
			"field":          vectorField,
			"query_vector":   vec,
			"k":              k,
			"num_candidates": k * 10,
			"filter": map[string]any{
				"term": map[string]any{"tenant_id": tenantID},
			},
		},
		"_source": []string{"title", "content", "tenant_id"},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				Title   string `json:"title"`
				Content string `json:"content"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func parseHits(body io.Reader) ([]Snippet, error) {
	var resp searchResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	snippets := make([]Snippet, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		snippets = append(snippets, Snippet{
			ID:      h.ID,
			Title:   h.Source.Title,
			Content: h.Source.Content,
			Score:   h.Score,
		})
	}
	return snippets, nil
}
