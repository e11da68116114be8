package openai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"
)

// DefaultModel is the embedding model used when Config.Model is empty.
const DefaultModel = string(openai.AdaEmbeddingV2)

// knownDimensions avoids a probe request for well-known models.
var knownDimensions = map[string]int{
	string(openai.AdaEmbeddingV2):  1536,
	string(openai.SmallEmbedding3): 1536,
	string(openai.LargeEmbedding3): 3072,
}

// Config configures the OpenAI embedder.
type Config struct {
	// APIKey authenticates requests.
	APIKey string

	// Model is the embedding model (default: text-embedding-ada-002).
	Model string

	// BaseURL overrides the API endpoint, e.g. for Azure or a proxy.
	BaseURL string

	// Dimensions requests shortened embeddings from text-embedding-3 models.
	// Zero uses the model's native size.
	Dimensions int
}

// OpenAIEmbedder generates embeddings with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int

	mu        sync.Mutex
	probeDims int
}

// New creates an OpenAI embedder.
func New(cfg Config) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("APIKey is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
	}, nil
}

// Embed converts text to an embedding vector.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	return rsp.Data[0].Embedding, nil
}

// Dimensions returns the configured size, the known size of the model, or
// the length of a probe embedding.
func (e *OpenAIEmbedder) Dimensions(ctx context.Context) (int, error) {
	if e.dims > 0 {
		return e.dims, nil
	}
	if dims, ok := knownDimensions[e.model]; ok {
		return dims, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.probeDims > 0 {
		return e.probeDims, nil
	}

	vec, err := e.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("probe %s dimensions: %w", e.model, err)
	}
	e.probeDims = len(vec)
	return e.probeDims, nil
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}
