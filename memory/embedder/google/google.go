package google

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel is the Gemini embedding model used when Config.Model is empty.
const DefaultModel = "text-embedding-004"

// Config configures the Gemini embedder.
type Config struct {
	APIKey string
	Model  string
}

// GoogleEmbedder generates embeddings with the Gemini API.
type GoogleEmbedder struct {
	client *genai.Client
	model  string

	mu   sync.Mutex
	dims int
}

// New creates a Gemini embedder.
func New(ctx context.Context, cfg Config) (*GoogleEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("APIKey is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GoogleEmbedder{
		client: client,
		model:  cfg.Model,
	}, nil
}

// Embed converts text to an embedding vector.
func (e *GoogleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	model := e.client.EmbeddingModel(e.model)
	rsp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}

	if rsp == nil || rsp.Embedding == nil || len(rsp.Embedding.Values) == 0 {
		return nil, errors.New("no response from Google")
	}

	return rsp.Embedding.Values, nil
}

// Dimensions probes the model once and remembers the vector length.
func (e *GoogleEmbedder) Dimensions(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dims > 0 {
		return e.dims, nil
	}

	vec, err := e.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("probe %s dimensions: %w", e.model, err)
	}
	e.dims = len(vec)
	return e.dims, nil
}

// Close releases the client.
func (e *GoogleEmbedder) Close() error {
	return e.client.Close()
}
