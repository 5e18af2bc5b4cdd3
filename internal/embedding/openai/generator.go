// Package openai embeds stored council exchanges and search queries with the
// OpenAI embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/council-relay/internal/observability"
)

const (
	dimensionStandard = 1536 // ada-002 and 3-small
	dimensionLarge    = 3072 // 3-large
)

// ErrAPIKeyRequired is returned when the redis backend is selected without a key.
var ErrAPIKeyRequired = errors.New("OpenAI API key is required")

// Generator implements domain.EmbeddingGenerator.
type Generator struct {
	client   openai.Client
	model    string
	maxRunes int
}

// NewGenerator creates a new OpenAI embedding generator.
func NewGenerator(config Config) (*Generator, error) {
	if config.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}

	if config.Model == "" {
		config.Model = string(openai.EmbeddingModelTextEmbedding3Small)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.TimeoutDuration()))
	}
	if config.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	return &Generator{
		client:   openai.NewClient(opts...),
		model:    config.Model,
		maxRunes: config.MaxInputRunes,
	}, nil
}

// Generate embeds one chunk or query.
func (g *Generator) Generate(ctx context.Context, text string) ([]float64, error) {
	text = g.prepare(text)
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}

	//nolint:exhaustruct // OpenAI SDK struct has many optional fields
	resp, err := g.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model: openai.EmbeddingModel(g.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embeddings returned")
	}

	observability.FromContext(ctx).Debug("text embedded",
		observability.String("model", g.model),
		observability.Int64("prompt_tokens", resp.Usage.PromptTokens),
	)

	return resp.Data[0].Embedding, nil
}

// prepare collapses whitespace and truncates to the configured rune budget.
func (g *Generator) prepare(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if g.maxRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) > g.maxRunes {
		return string(runes[:g.maxRunes])
	}
	return text
}

// Name identifies the generator in retrieved matches.
func (g *Generator) Name() string {
	return "openai:" + g.model
}

// Dimension returns the vector dimension.
func (g *Generator) Dimension() int {
	switch g.model {
	case string(openai.EmbeddingModelTextEmbedding3Large):
		return dimensionLarge
	default:
		return dimensionStandard
	}
}
