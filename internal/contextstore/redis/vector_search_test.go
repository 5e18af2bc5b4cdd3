package redis //nolint:testpackage // exercises unexported parsing helpers

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestFloatsToBytes(t *testing.T) {
	buf := floatsToBytes([]float64{1.5, -2})

	require.Len(t, buf, 8)
	require.InDelta(t, 1.5, math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])), 0.0001)
	require.InDelta(t, -2.0, math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])), 0.0001)
}

func TestKnnQuery(t *testing.T) {
	require.Equal(t, "(@scope:{abc123})=>[KNN 5 @embedding $vec AS score]", knnQuery("abc123", 5))
}

func TestParseSearchResults(t *testing.T) {
	ctx := context.Background()

	t.Run("should convert distance to similarity and drop results below threshold", func(t *testing.T) {
		result := redis.FTSearchResult{
			Total: 3,
			Docs: []redis.Document{
				{ID: "memory:a", Fields: map[string]string{"score": "0.1", "data": "near", "indexed_at": "1700000000"}},
				{ID: "memory:b", Fields: map[string]string{"score": "0.6", "data": "far"}},
				{ID: "memory:c", Fields: map[string]string{"data": "no score"}},
			},
		}

		parsed := parseSearchResults(ctx, result, 0.5)

		require.Len(t, parsed, 1)
		require.Equal(t, "memory:a", parsed[0].Key)
		require.InDelta(t, 0.9, parsed[0].Similarity, 0.0001)
		require.Equal(t, []byte("near"), parsed[0].Data)
		require.Equal(t, int64(1700000000), parsed[0].IndexedAt.Unix())
	})

	t.Run("should skip documents without data", func(t *testing.T) {
		result := redis.FTSearchResult{
			Docs: []redis.Document{{ID: "memory:x", Fields: map[string]string{"score": "0"}}},
		}

		require.Empty(t, parseSearchResults(ctx, result, 0))
	})
}
