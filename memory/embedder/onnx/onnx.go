//go:build onnx

package onnx

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/becomeliminal/nim-memory/memory"
)

// Defaults for all-MiniLM-L6-v2.
const (
	DefaultDimensions        = 384
	DefaultMaxSequenceLength = 128
)

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// SharedLibraryPath locates libonnxruntime. Empty uses the runtime's
	// platform default.
	SharedLibraryPath string

	// Dimensions is the embedding vector size (default: 384).
	Dimensions int

	// MaxSequenceLength is the token window fed to the model (default: 128).
	MaxSequenceLength int
}

// ONNXEmbedder generates embeddings with a local sentence-transformer model.
type ONNXEmbedder struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *Tokenizer
	dimensions int
	maxLen     int

	// The session is not safe for concurrent Run calls.
	mu sync.Mutex
}

var _ memory.Embedder = (*ONNXEmbedder)(nil)

// New loads the model and tokenizer.
func New(cfg Config) (*ONNXEmbedder, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("ModelPath is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, errors.New("TokenizerPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.MaxSequenceLength < 2 {
		cfg.MaxSequenceLength = DefaultMaxSequenceLength
	}

	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	tokenizer, err := LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	log.Printf("[ONNX] Loaded %s (dims=%d, max_len=%d)", cfg.ModelPath, cfg.Dimensions, cfg.MaxSequenceLength)

	return &ONNXEmbedder{
		session:    session,
		tokenizer:  tokenizer,
		dimensions: cfg.Dimensions,
		maxLen:     cfg.MaxSequenceLength,
	}, nil
}

// Embed converts text to a normalized, mean-pooled embedding vector.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask := e.tokenizer.Encode(text, e.maxLen)
	typeIDs := make([]int64, e.maxLen)

	shape := ort.NewShape(1, int64(e.maxLen))
	inputs := make([]ort.Value, 0, 3)
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, data := range [][]int64{ids, mask, typeIDs} {
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		inputs = append(inputs, tensor)
	}

	outputs := []ort.Value{nil}
	e.mu.Lock()
	err := e.session.Run(inputs, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}

	embedding, err := e.pool(out.GetShape(), out.GetData(), mask)
	if err != nil {
		return nil, err
	}
	return normalize(embedding), nil
}

// pool reduces the model output to one vector. Pooled outputs ([1, dims])
// are copied, token outputs ([1, seq, dims]) are mean-pooled over the
// attended positions.
func (e *ONNXEmbedder) pool(shape ort.Shape, data []float32, mask []int64) ([]float32, error) {
	embedding := make([]float32, e.dimensions)

	switch len(shape) {
	case 2:
		if len(data) < e.dimensions {
			return nil, fmt.Errorf("%w: model returned %d values, want %d", memory.ErrDimensionMismatch, len(data), e.dimensions)
		}
		copy(embedding, data[:e.dimensions])
		return embedding, nil

	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("expected batch size 1, got %d", shape[0])
		}
		seqLen, hidden := int(shape[1]), int(shape[2])
		if hidden != e.dimensions {
			return nil, fmt.Errorf("%w: hidden size %d, want %d", memory.ErrDimensionMismatch, hidden, e.dimensions)
		}

		var attended float32
		for i := 0; i < seqLen && i < len(mask); i++ {
			if mask[i] == 0 {
				continue
			}
			attended++
			row := data[i*hidden : (i+1)*hidden]
			for j, v := range row {
				embedding[j] += v
			}
		}
		if attended > 0 {
			for j := range embedding {
				embedding[j] /= attended
			}
		}
		return embedding, nil

	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
}

// Dimensions returns the configured embedding size.
func (e *ONNXEmbedder) Dimensions(ctx context.Context) (int, error) {
	return e.dimensions, nil
}

// Close releases the session.
func (e *ONNXEmbedder) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}

	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
