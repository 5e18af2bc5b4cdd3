// Package redis indexes conversation exchanges as vectors in Redis and
// searches them with KNN queries scoped to a panel and session.
package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/observability"
)

const (
	redisDialectVersion = 2

	// KeyPrefix is the hash key prefix covered by the index.
	KeyPrefix = "memory:"
)

// VectorSearch implements domain.SimilaritySearch using Redis.
type VectorSearch struct {
	client             redis.UniversalClient
	indexName          string
	embeddingDimension int
}

// NewVectorSearch creates a Redis vector search adapter and ensures the index exists.
func NewVectorSearch(
	ctx context.Context,
	client redis.UniversalClient,
	indexName string,
	embeddingDimension int,
) (*VectorSearch, error) {
	v := &VectorSearch{
		client:             client,
		indexName:          indexName,
		embeddingDimension: embeddingDimension,
	}

	if err := v.createIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return v, nil
}

// floatsToBytes packs the vector as little-endian FLOAT32 values.
func floatsToBytes(fs []float64) []byte {
	const bytesPerFloat32 = 4
	buf := make([]byte, len(fs)*bytesPerFloat32)

	for i, f := range fs {
		u := math.Float32bits(float32(f))
		binary.LittleEndian.PutUint32(buf[i*bytesPerFloat32:], u)
	}

	return buf
}

// knnQuery builds the scoped KNN query. Scope values are hex digests, so they
// need no tag escaping.
func knnQuery(scope string, limit int) string {
	return fmt.Sprintf("(@scope:{%s})=>[KNN %d @embedding $vec AS score]", scope, limit)
}

// Search finds vectors in scope whose similarity is at least threshold.
func (v *VectorSearch) Search(
	ctx context.Context,
	scope string,
	embed []float64,
	threshold float64,
	limit int,
) ([]*domain.SearchResult, error) {
	logger := observability.FromContext(ctx)
	logger.Debug("starting vector search",
		observability.String("index", v.indexName),
		observability.Int("embedding_dim", len(embed)),
		observability.Float64("threshold", threshold),
		observability.Int("limit", limit))

	results, err := v.client.FTSearchWithArgs(ctx, v.indexName, knnQuery(scope, limit),
		&redis.FTSearchOptions{
			Return: []redis.FTSearchReturn{
				{FieldName: "data"},
				{FieldName: "indexed_at"},
				{FieldName: "score"},
			},
			SortBy:         []redis.FTSearchSortBy{{FieldName: "score", Asc: true}},
			DialectVersion: redisDialectVersion,
			Params: map[string]any{
				"vec": floatsToBytes(embed),
			},
		},
	).Result()
	if err != nil {
		logger.Error("vector search failed", observability.Error(err))
		return nil, fmt.Errorf("search failed: %w", err)
	}

	logger.Debug("vector search completed",
		observability.Int("total_docs", results.Total),
		observability.Int("docs_returned", len(results.Docs)))

	return parseSearchResults(ctx, results, threshold), nil
}

// Index stores a vector with its data under scope.
func (v *VectorSearch) Index(
	ctx context.Context,
	key, scope string,
	embedding []float64,
	data []byte,
	ttl time.Duration,
) error {
	logger := observability.FromContext(ctx)
	logger.Debug("starting vector index",
		observability.String("key", key),
		observability.Int("embedding_dim", len(embedding)),
		observability.Int("data_size", len(data)))

	pipe := v.client.Pipeline()

	pipe.HSet(ctx, key,
		"embedding", floatsToBytes(embedding),
		"scope", scope,
		"data", string(data),
		"indexed_at", time.Now().Unix(),
	)

	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}

	if _, execErr := pipe.Exec(ctx); execErr != nil {
		logger.Error("vector index failed", observability.Error(execErr))
		return fmt.Errorf("failed to index: %w", execErr)
	}

	return nil
}

func (v *VectorSearch) createIndex(ctx context.Context) error {
	logger := observability.FromContext(ctx)

	if _, err := v.client.FTInfo(ctx, v.indexName).Result(); err == nil {
		logger.Info("redis search index already exists, skipping creation",
			observability.String("index_name", v.indexName))
		return nil
	}

	logger.Info("creating redis search index",
		observability.String("index_name", v.indexName),
		observability.Int("embedding_dimension", v.embeddingDimension))

	_, err := v.client.FTCreate(ctx, v.indexName,
		&redis.FTCreateOptions{
			OnHash: true,
			Prefix: []any{KeyPrefix},
		},
		&redis.FieldSchema{
			FieldName: "embedding",
			FieldType: redis.SearchFieldTypeVector,
			VectorArgs: &redis.FTVectorArgs{
				FlatOptions: &redis.FTFlatOptions{
					Type:           "FLOAT32",
					Dim:            v.embeddingDimension,
					DistanceMetric: "COSINE",
				},
			},
		},
		&redis.FieldSchema{
			FieldName: "scope",
			FieldType: redis.SearchFieldTypeTag,
		},
		&redis.FieldSchema{
			FieldName: "data",
			FieldType: redis.SearchFieldTypeText,
		},
		&redis.FieldSchema{
			FieldName: "indexed_at",
			FieldType: redis.SearchFieldTypeNumeric,
			Sortable:  true,
		},
	).Result()
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	logger.Info("created redis search index", observability.String("index_name", v.indexName))
	return nil
}

func parseSearchResults(ctx context.Context, result redis.FTSearchResult, threshold float64) []*domain.SearchResult {
	var results []*domain.SearchResult

	for _, doc := range result.Docs {
		if searchResult := parseSearchResult(ctx, doc, threshold); searchResult != nil {
			results = append(results, searchResult)
		}
	}

	return results
}

// parseSearchResult converts one document, or returns nil when it falls below threshold.
func parseSearchResult(ctx context.Context, doc redis.Document, threshold float64) *domain.SearchResult {
	// KNN distance comes back as a field named after the AS alias, not doc.Score.
	scoreStr, ok := doc.Fields["score"]
	if !ok {
		return nil
	}

	distance, err := strconv.ParseFloat(scoreStr, 64)
	if err != nil {
		return nil
	}

	similarity := 1.0 - distance
	if similarity < threshold {
		return nil
	}

	dataStr, ok := doc.Fields["data"]
	if !ok {
		observability.FromContext(ctx).Warn("data field not found in search result",
			observability.String("key", doc.ID))
		return nil
	}

	var indexedAt time.Time
	if tsStr, tsOk := doc.Fields["indexed_at"]; tsOk {
		if ts, parseErr := strconv.ParseInt(tsStr, 10, 64); parseErr == nil {
			indexedAt = time.Unix(ts, 0)
		}
	}

	return &domain.SearchResult{
		Key:        doc.ID,
		Similarity: similarity,
		Data:       []byte(dataStr),
		IndexedAt:  indexedAt,
	}
}
