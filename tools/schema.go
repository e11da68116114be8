package tools

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// Schema helpers for building JSON Schema definitions.

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property with optional description.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// IntegerProperty creates an integer property with optional description.
func IntegerProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

// WithThought adds an optional or required "thought" parameter to a schema,
// giving the model room to state why it is calling the tool.
func WithThought(schema map[string]interface{}, requireThought bool) map[string]interface{} {
	result := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		result[k] = v
	}

	props := make(map[string]interface{})
	if existing, ok := result["properties"].(map[string]interface{}); ok {
		for k, v := range existing {
			props[k] = v
		}
	}
	props["thought"] = StringProperty("Your reasoning about why you're using this tool and what you expect to accomplish.")
	result["properties"] = props

	if requireThought {
		required, _ := result["required"].([]string)
		result["required"] = append(append([]string(nil), required...), "thought")
	}

	return result
}

// ToolParam converts a JSON schema built with these helpers into an API tool
// definition.
func ToolParam(name, description string, schema map[string]interface{}) anthropic.ToolUnionParam {
	required, _ := schema["required"].([]string)
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        name,
			Description: anthropic.String(description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
				Required:   required,
			},
		},
	}
}
