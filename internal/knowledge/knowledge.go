// Package knowledge retrieves tenant-scoped supporting content for
// AI-generated answers.
package knowledge

import (
	"context"

	"github.com/capitalize-ai/concierge-platform/internal/model"
)

// DefaultTopK is how many snippets a search returns by default.
const DefaultTopK = 5

// Snippet is one ranked piece of supporting knowledge.
type Snippet struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Retriever finds knowledge similar to a query within one tenant.
type Retriever interface {
	SearchSimilar(ctx context.Context, query, tenantID string) ([]Snippet, error)
}

// Searcher is the keyword search the store provides.
type Searcher interface {
	SearchKnowledge(ctx context.Context, tenantID, query string, limit int) ([]model.KnowledgeEntry, error)
}

// StoreRetriever answers searches with the store's keyword match. It is
// used when no vector index is configured.
type StoreRetriever struct {
	store Searcher
	topK  int
}

// NewStoreRetriever creates a keyword retriever.
func NewStoreRetriever(store Searcher, topK int) *StoreRetriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &StoreRetriever{store: store, topK: topK}
}

// SearchSimilar returns keyword matches in store order.
func (r *StoreRetriever) SearchSimilar(ctx context.Context, query, tenantID string) ([]Snippet, error) {
	entries, err := r.store.SearchKnowledge(ctx, tenantID, query, r.topK)
	if err != nil {
		return nil, err
	}

	snippets := make([]Snippet, len(entries))
	for i, e := range entries {
		snippets[i] = Snippet{
			ID:      e.ID,
			Title:   e.Title,
			Content: e.Content,
			Score:   1 / float64(i+1),
		}
	}
	return snippets, nil
}
