package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"memoryengine/internal/config"
	"memoryengine/internal/observability"
)

const anthropicDefaultMaxTokens int64 = 4096

// AnthropicClient adapts github.com/anthropics/anthropic-sdk-go to Provider.
// Grounded on internal/llm/anthropic/client.go's Chat path, with the
// streaming/thinking/prompt-cache machinery dropped per this package's
// simplification (see provider.go doc comment).
type AnthropicClient struct {
	sdk   anthropic.Client
	model string
}

// NewAnthropic builds a client from config.AnthropicAPIKey()/ReflectModelID().
func NewAnthropic() *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(config.AnthropicAPIKey())}
	model := config.ReflectModelID()
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicClient{sdk: anthropic.NewClient(opts...), model: model}
}

func (c *AnthropicClient) Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string, opts ...ChatOption) (Message, error) {
	sys, converted, err := anthropicAdaptMessages(msgs)
	if err != nil {
		return Message{}, err
	}
	toolDefs, err := anthropicAdaptTools(tools)
	if err != nil {
		return Message{}, err
	}

	m := model
	if strings.TrimSpace(m) == "" {
		m = c.model
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m),
		Messages:  converted,
		System:    sys,
		Tools:     toolDefs,
		MaxTokens: anthropicDefaultMaxTokens,
	}
	if o := applyChatOptions(opts); o.Temperature != nil {
		params.Temperature = anthropic.Float(*o.Temperature)
	}

	log := observability.LoggerWithTrace(ctx)
	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", m).Dur("duration", dur).Msg("anthropic_chat_error")
		return Message{}, fmt.Errorf("anthropic chat: %w", err)
	}
	log.Debug().Str("model", m).Dur("duration", dur).Msg("anthropic_chat_ok")
	return anthropicMessageFromResponse(resp), nil
}

func anthropicAdaptTools(tools []ToolSchema) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("anthropic: tool name required")
		}
		schema := anthropic.ToolInputSchemaParam{Type: constant.ValueOf[constant.Object]()}
		extras := map[string]any{}
		for k, v := range t.Parameters {
			extras[k] = v
		}
		if props, ok := extras["properties"]; ok {
			schema.Properties = props
			delete(extras, "properties")
		}
		if req, ok := extras["required"].([]string); ok {
			schema.Required = req
			delete(extras, "required")
		}
		delete(extras, "type")
		if len(extras) > 0 {
			schema.ExtraFields = extras
		}
		param := anthropic.ToolParam{Name: name, InputSchema: schema}
		if t.Description != "" {
			param.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out, nil
}

func anthropicAdaptMessages(msgs []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	toolResultCount := 0

	for _, m := range msgs {
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "system":
			if m.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case "user":
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case "assistant":
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for i, tc := range m.ToolCalls {
				id := tc.ID
				if id == "" {
					id = fmt.Sprintf("call-%d", i+1)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(id, anthropicDecodeArgs(tc.Args), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case "tool":
			id := m.ToolID
			if id == "" {
				toolResultCount++
				id = fmt.Sprintf("tool-result-%d", toolResultCount)
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(id, m.Content, false)))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported role %q", m.Role)
		}
	}
	return system, out, nil
}

func anthropicDecodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func anthropicMessageFromResponse(resp *anthropic.Message) Message {
	if resp == nil {
		return Message{}
	}
	var sb strings.Builder
	var calls []ToolCall
	callIdx := 0
	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			callIdx++
			id := v.ID
			if id == "" {
				id = fmt.Sprintf("call-%d", callIdx)
			}
			calls = append(calls, ToolCall{ID: id, Name: v.Name, Args: v.Input})
		}
	}
	return Message{Role: "assistant", Content: sb.String(), ToolCalls: calls}
}
