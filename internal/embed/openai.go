package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "expograph/pkg/errors"
	"expograph/pkg/logger"
)

// Func encodes a batch of texts into fixed-length dense vectors. The
// generator takes this as an injected dependency so tests can supply a
// deterministic implementation.
type Func func(ctx context.Context, texts []string) ([][]float32, error)

// OpenAIEmbedder computes embeddings through an OpenAI-compatible endpoint
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIEmbedder creates an embedder. A missing API key is a
// configuration error caught before the embeddings stage mutates anything.
func NewOpenAIEmbedder(apiKey, baseURL, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, apperrors.NewConfigMissingRequired("OPENAI_API_KEY")
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger.Get(),
	}, nil
}

// Embed encodes one batch of texts, retrying transient failures with
// linear backoff before giving up.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}

	var resp openai.EmbeddingResponse
	var err error
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			e.logger.Warn("Retrying embedding request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err = e.client.CreateEmbeddings(ctx, req)
		if err == nil {
			break
		}
		e.logger.Error("Embedding request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", e.model),
			zap.Int("batch_size", len(texts)),
		)
	}
	if err != nil {
		return nil, apperrors.NewEmbeddingFailed(e.model, maxRetries, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embedding response index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
