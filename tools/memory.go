package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/becomeliminal/nim-memory/memory"
)

// Tool names exposed to the model.
const (
	StoreMemory    = "store_memory"
	SearchMemories = "search_memories"
	DeleteMemory   = "delete_memory"
)

// Definitions returns the memory tools in API form.
func Definitions() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		ToolParam(StoreMemory,
			"Save a fact about the user for later conversations, such as a preference, a plan or a list item. Store one self-contained fact per call.",
			WithThought(ObjectSchema(map[string]interface{}{
				"content": StringProperty("The fact to remember, phrased so it makes sense on its own"),
			}, "content"), false),
		),
		ToolParam(SearchMemories,
			"Search saved memories by meaning. Returns matching memory IDs and their text.",
			WithThought(ObjectSchema(map[string]interface{}{
				"query": StringProperty("What to look for, in natural language"),
				"limit": IntegerProperty(fmt.Sprintf("Maximum number of memories to return (default: %d)", memory.DefaultSearchLimit)),
			}, "query"), false),
		),
		ToolParam(DeleteMemory,
			"Forget a saved memory. Use the ID returned by store_memory or search_memories.",
			WithThought(ObjectSchema(map[string]interface{}{
				"memory_id": StringProperty("ID of the memory to delete"),
			}, "memory_id"), true),
		),
	}
}

// Memory executes memory tools against one memory space.
type Memory struct {
	provider memory.Provider
	key      string
}

// NewMemory binds provider to the space named by key, typically a user ID.
func NewMemory(provider memory.Provider, key string) *Memory {
	return &Memory{provider: provider, key: key}
}

type storeInput struct {
	Thought string  `json:"thought,omitempty"`
	Content *string `json:"content"`
}

type searchInput struct {
	Thought string `json:"thought,omitempty"`
	Query   string `json:"query"`
	Limit   int    `json:"limit,omitempty"`
}

type deleteInput struct {
	Thought  string `json:"thought,omitempty"`
	MemoryID string `json:"memory_id"`
}

// Execute runs the named tool with its raw JSON input and returns the JSON
// result handed back to the model.
func (m *Memory) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	switch name {
	case StoreMemory:
		var in storeInput
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("invalid %s input: %w", name, err)
		}
		if in.Content == nil {
			return "", errors.New("content is required")
		}
		id, err := m.provider.Add(ctx, m.key, *in.Content)
		if err != nil {
			return "", err
		}
		return marshal(map[string]string{"id": id})

	case SearchMemories:
		var in searchInput
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("invalid %s input: %w", name, err)
		}
		if in.Limit == 0 {
			in.Limit = memory.DefaultSearchLimit
		}
		results, err := m.provider.Search(ctx, m.key, in.Query, in.Limit)
		if err != nil {
			return "", err
		}
		return marshal(map[string]interface{}{"memories": results})

	case DeleteMemory:
		var in deleteInput
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("invalid %s input: %w", name, err)
		}
		if in.MemoryID == "" {
			return "", errors.New("memory_id is required")
		}
		if strings.TrimSpace(in.Thought) == "" {
			return "", errors.New(`missing "thought": explain why this memory should be forgotten`)
		}
		if err := m.provider.Delete(ctx, m.key, in.MemoryID); err != nil {
			return "", err
		}
		log.Printf("[TOOLS] Deleted memory %s: %s", in.MemoryID, in.Thought)
		return marshal(map[string]bool{"deleted": true})

	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ResultBlock runs a tool_use block and wraps the outcome as a tool_result,
// reporting failures to the model rather than to the caller.
func (m *Memory) ResultBlock(ctx context.Context, toolUseID, name string, input json.RawMessage) anthropic.ContentBlockParamUnion {
	result, err := m.Execute(ctx, name, input)
	if err != nil {
		log.Printf("[TOOLS] %s failed: %v", name, err)
		return anthropic.NewToolResultBlock(toolUseID, err.Error(), true)
	}
	return anthropic.NewToolResultBlock(toolUseID, result, false)
}

func marshal(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(b), nil
}
