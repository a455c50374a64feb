package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MikeSquared-Agency/arbiter/internal/metrics"
)

// DefaultModel is the embedding model used unless overridden.
const DefaultModel = "text-embedding-3-small"

// OpenAIProvider computes embeddings via an OpenAI-compatible embeddings
// endpoint.
type OpenAIProvider struct {
	client openai.EmbeddingService
	model  string
}

// OpenAIOptions configures the provider. BaseURL is optional and lets the
// same client target self-hosted OpenAI-compatible servers.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Model   string
}

func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIProvider{
		client: openai.NewEmbeddingService(reqOpts...),
		model:  model,
	}
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	start := time.Now()
	defer func() {
		metrics.DefaultMetrics.RecordSemanticLatency(time.Since(start).Seconds())
	}()
	res, err := p.client.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("embedding response has no data")
	}
	return res.Data[0].Embedding, nil
}
