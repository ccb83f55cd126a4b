// Package similarity scores semantic closeness of memory contents for
// initial-strength boosting. The plasticity engine never computes similarity
// itself; it receives a scoring function built from one of these scorers.
package similarity

import (
	"fmt"
	"math"
	"sync"

	"github.com/soundprediction/go-embedeverything/pkg/embedder"
)

// Scorer rates how semantically close two texts are, on a 0-1 scale.
type Scorer interface {
	Score(a, b string) (float64, error)
	Close() error
}

// EmbeddingScorer embeds both texts with a local model and takes their
// cosine similarity, shifted into [0,1]. A small cache avoids re-embedding
// the same content across a Hebbian batch.
type EmbeddingScorer struct {
	client *embedder.Embedder

	mu    sync.Mutex
	cache map[string][]float32
}

// NewEmbeddingScorer loads the named embedding model. An empty model name
// uses the library default.
func NewEmbeddingScorer(model string) (*EmbeddingScorer, error) {
	client, err := embedder.NewEmbedder(model)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &EmbeddingScorer{
		client: client,
		cache:  make(map[string][]float32),
	}, nil
}

// Score embeds both texts and returns their similarity in [0,1].
func (s *EmbeddingScorer) Score(a, b string) (float64, error) {
	va, err := s.embed(a)
	if err != nil {
		return 0, err
	}
	vb, err := s.embed(b)
	if err != nil {
		return 0, err
	}
	// Cosine lands in [-1,1]; shift so opposite vectors score 0.
	cos := cosineSimilarity(va, vb)
	return (cos + 1) / 2, nil
}

func (s *EmbeddingScorer) embed(text string) ([]float32, error) {
	s.mu.Lock()
	cached, ok := s.cache[text]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	embeddings, err := s.client.Embed([]string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	s.mu.Lock()
	s.cache[text] = embeddings[0]
	s.mu.Unlock()
	return embeddings[0], nil
}

// Close releases the underlying model.
func (s *EmbeddingScorer) Close() error {
	s.client.Close()
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
