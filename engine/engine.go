package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/tools"
)

// Defaults applied when Input leaves them unset.
const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 4096
	DefaultMaxTurns  = 20
)

// DefaultSystemPrompt is used when Input.SystemPrompt is empty.
const DefaultSystemPrompt = `You are a helpful assistant with long-term memory.

Use store_memory to save facts the user tells you that will matter in later conversations.
Use search_memories when earlier context could help you answer.
Use delete_memory when the user asks you to forget something or a saved fact is no longer true.
Relevant memories may already be listed below; do not store them again.`

// MessageClient creates Claude messages. *anthropic.MessageService satisfies it.
type MessageClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Recaller formats the memories relevant to a message for the system prompt.
// *memory.Manager satisfies it.
type Recaller interface {
	Retrieve(ctx context.Context, key string, message string) (string, error)
}

// Engine runs a Claude conversation with the memory tools attached to one
// memory space per run.
type Engine struct {
	client   MessageClient
	provider memory.Provider
	recaller Recaller
}

// Option configures the engine.
type Option func(*Engine)

// WithRecall injects relevant memories into the system prompt before each run.
func WithRecall(r Recaller) Option {
	return func(e *Engine) {
		e.recaller = r
	}
}

// NewEngine creates an engine. Pass &client.Messages for a real client.
func NewEngine(client MessageClient, provider memory.Provider, opts ...Option) *Engine {
	e := &Engine{
		client:   client,
		provider: provider,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input represents the input to an agent run.
type Input struct {
	// Key selects the memory space, typically the user ID.
	Key string

	// UserMessage is the user's message to process.
	UserMessage string

	// History contains previous messages in the conversation.
	History []anthropic.MessageParam

	SystemPrompt string
	Model        string
	MaxTokens    int64
	MaxTurns     int
}

// Output represents the output from an agent run.
type Output struct {
	// Text is the agent's final text response.
	Text string

	// ToolsUsed lists the memory tools invoked, in order.
	ToolsUsed []string

	// History is the conversation including this run, for the next call.
	History []anthropic.MessageParam

	InputTokens  int64
	OutputTokens int64
}

// Run executes the agent loop until Claude stops asking for tools.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	if input.Key == "" {
		return nil, fmt.Errorf("input key is required")
	}

	model := input.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := input.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	maxTurns := input.MaxTurns
	if maxTurns == 0 {
		maxTurns = DefaultMaxTurns
	}
	systemPrompt := input.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	// Recall is best effort
	if e.recaller != nil && input.UserMessage != "" {
		enrichment, err := e.recaller.Retrieve(ctx, input.Key, input.UserMessage)
		if err != nil {
			log.Printf("[ENGINE] Memory retrieval failed: %v", err)
		} else if enrichment != "" {
			systemPrompt += "\n\n" + enrichment
		}
	}

	messages := append([]anthropic.MessageParam(nil), input.History...)
	if input.UserMessage != "" {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(input.UserMessage)))
	}

	memoryTools := tools.NewMemory(e.provider, input.Key)
	out := &Output{}

	for turn := 0; ; turn++ {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("timed out: %w", err)
		}
		if turn >= maxTurns {
			return out, fmt.Errorf("exceeded maximum turns (%d)", maxTurns)
		}

		resp, err := e.client.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: maxTokens,
			Messages:  messages,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Tools:     tools.Definitions(),
		})
		if err != nil {
			return out, fmt.Errorf("claude API error: %w", err)
		}

		out.InputTokens += resp.Usage.InputTokens
		out.OutputTokens += resp.Usage.OutputTokens
		messages = append(messages, resp.ToParam())

		var text string
		var results []anthropic.ContentBlockParamUnion
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text += block.Text
			case "tool_use":
				log.Printf("[ENGINE] %s → %s", input.Key, block.Name)
				out.ToolsUsed = append(out.ToolsUsed, block.Name)
				results = append(results, memoryTools.ResultBlock(ctx, block.ID, block.Name, block.Input))
			}
		}

		if len(results) == 0 {
			out.Text = text
			out.History = messages
			return out, nil
		}
		messages = append(messages, anthropic.NewUserMessage(results...))
	}
}
