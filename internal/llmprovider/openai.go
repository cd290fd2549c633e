package llmprovider

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"memoryengine/internal/config"
	"memoryengine/internal/observability"
)

// OpenAIClient adapts github.com/openai/openai-go/v2 to Provider. Grounded
// on internal/llm/openai/client.go's Chat path, with the self-hosted SSE
// transport wrapper and Gemini-compat raw-HTTP branch dropped: neither
// applies once streaming (and Gemini-via-OpenAI-shim) is out of scope for
// this package.
type OpenAIClient struct {
	sdk   sdk.Client
	model string
}

// NewOpenAI builds a client from config.OpenAIAPIKey()/ReflectModelID().
func NewOpenAI() *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(config.OpenAIAPIKey())}
	model := config.ReflectModelID()
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIClient{sdk: sdk.NewClient(opts...), model: model}
}

func (c *OpenAIClient) Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string, opts ...ChatOption) (Message, error) {
	m := model
	if strings.TrimSpace(m) == "" {
		m = c.model
	}
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(m),
		Messages: openaiAdaptMessages(msgs),
	}
	if len(tools) > 0 {
		params.Tools = openaiAdaptTools(tools)
	}
	if o := applyChatOptions(opts); o.Temperature != nil {
		params.Temperature = param.NewOpt(*o.Temperature)
	}

	log := observability.LoggerWithTrace(ctx)
	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", m).Dur("duration", dur).Msg("openai_chat_error")
		return Message{}, fmt.Errorf("openai chat: %w", err)
	}
	log.Debug().Str("model", m).Dur("duration", dur).Msg("openai_chat_ok")
	if len(comp.Choices) == 0 {
		return Message{}, fmt.Errorf("openai chat: no choices returned")
	}

	out := Message{Role: "assistant", Content: comp.Choices[0].Message.Content}
	for _, tc := range comp.Choices[0].Message.ToolCalls {
		if fn, ok := tc.AsAny().(sdk.ChatCompletionMessageFunctionToolCall); ok {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:   fn.ID,
				Name: fn.Function.Name,
				Args: []byte(fn.Function.Arguments),
			})
		}
	}
	return out, nil
}

func openaiAdaptMessages(msgs []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "user":
			out = append(out, sdk.UserMessage(m.Content))
		case "assistant":
			am := sdk.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				am.Content.OfString = sdk.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				am.ToolCalls = append(am.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &sdk.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(tc.Args),
						},
					},
				})
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &am})
		case "tool":
			out = append(out, sdk.ToolMessage(m.Content, m.ToolID))
		}
	}
	return out
}

func openaiAdaptTools(tools []ToolSchema) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, sdk.ChatCompletionFunctionTool(sdk.FunctionDefinitionParam{
			Name:        t.Name,
			Description: sdk.String(t.Description),
			Parameters:  t.Parameters,
		}))
	}
	return out
}
