// Package contextstore provides the long-term context storage backends used
// for retrieval and exchange write-back.
package contextstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/observability"
)

const scopeDigestLength = 16

// SemanticConfig tunes a Semantic store.
type SemanticConfig struct {
	KeyPrefix string
	Threshold float64
	TTL       time.Duration
}

// Semantic stores exchanges as embeddings and retrieves them by similarity.
type Semantic struct {
	embeddingGen     domain.EmbeddingGenerator
	similaritySearch domain.SimilaritySearch
	config           SemanticConfig
}

type storedChunk struct {
	Panel     string    `json:"panel"`
	SessionID string    `json:"session_id"`
	Chunk     string    `json:"chunk"`
	StoredAt  time.Time `json:"stored_at"`
}

// NewSemantic creates an embedding-backed context store.
func NewSemantic(
	embeddingGen domain.EmbeddingGenerator,
	similaritySearch domain.SimilaritySearch,
	config SemanticConfig,
) *Semantic {
	return &Semantic{
		embeddingGen:     embeddingGen,
		similaritySearch: similaritySearch,
		config:           config,
	}
}

// Store embeds chunk and indexes it under the panel and session scope.
func (s *Semantic) Store(ctx context.Context, panel, sessionID, chunk string) error {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return errors.New("chunk cannot be empty")
	}

	logger := observability.FromContext(ctx)

	embedding, err := s.embeddingGen.Generate(ctx, chunk)
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}

	data, err := json.Marshal(storedChunk{
		Panel:     panel,
		SessionID: sessionID,
		Chunk:     chunk,
		StoredAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}

	scope := Scope(panel, sessionID)
	key := s.config.KeyPrefix + digest(scope+"\x00"+chunk)
	if indexErr := s.similaritySearch.Index(ctx, key, scope, embedding, data, s.config.TTL); indexErr != nil {
		return fmt.Errorf("failed to index chunk: %w", indexErr)
	}

	logger.Debug("stored context chunk",
		observability.String("key", key),
		observability.Int("chunk_length", len(chunk)))
	return nil
}

// Search returns up to limit chunks similar to query within the panel and session scope.
func (s *Semantic) Search(ctx context.Context, panel, sessionID, query string, limit int) ([]domain.RagMatch, error) {
	if limit <= 0 {
		return nil, nil
	}

	embedding, err := s.embeddingGen.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	results, err := s.similaritySearch.Search(ctx, Scope(panel, sessionID), embedding, s.config.Threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar vectors: %w", err)
	}

	matches := make([]domain.RagMatch, 0, len(results))
	for _, result := range results {
		var stored storedChunk
		if unmarshalErr := json.Unmarshal(result.Data, &stored); unmarshalErr != nil {
			observability.FromContext(ctx).Warn("skipping undecodable context chunk",
				observability.String("key", result.Key),
				observability.Error(unmarshalErr))
			continue
		}
		matches = append(matches, domain.RagMatch{
			ID:      result.Key,
			Content: stored.Chunk,
			Score:   result.Similarity,
			Source:  s.embeddingGen.Name(),
		})
	}

	return matches, nil
}

// Scope derives the partition tag for a panel and session.
func Scope(panel, sessionID string) string {
	return digest(panel + "\x00" + sessionID)[:scopeDigestLength]
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
