package openai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGenerator(t *testing.T) {
	t.Run("should require an API key", func(t *testing.T) {
		_, err := NewGenerator(Config{})
		require.ErrorIs(t, err, ErrAPIKeyRequired)
	})

	t.Run("should default the model", func(t *testing.T) {
		gen, err := NewGenerator(Config{APIKey: "sk-test"})
		require.NoError(t, err)
		require.Equal(t, "openai:text-embedding-3-small", gen.Name())
		require.Equal(t, 1536, gen.Dimension())
	})

	t.Run("should size large models", func(t *testing.T) {
		gen, err := NewGenerator(Config{APIKey: "sk-test", Model: "text-embedding-3-large"})
		require.NoError(t, err)
		require.Equal(t, 3072, gen.Dimension())
	})
}

func TestGenerator_prepare(t *testing.T) {
	gen := &Generator{maxRunes: 5}

	require.Equal(t, "a b c", gen.prepare("  a \n b\tc  "))
	require.Equal(t, "héllo", gen.prepare("héllo world"))

	gen.maxRunes = 0
	require.Equal(t, "héllo world", gen.prepare("héllo world"))
}

func TestGenerator_Generate(t *testing.T) {
	t.Run("should reject blank text without calling the API", func(t *testing.T) {
		gen, err := NewGenerator(Config{APIKey: "sk-test"})
		require.NoError(t, err)

		_, err = gen.Generate(context.Background(), " \n ")
		require.Error(t, err)
	})
}
