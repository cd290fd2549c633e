package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"memoryengine/internal/config"
	"memoryengine/internal/observability"
)

// GoogleClient adapts google.golang.org/genai to Provider. Grounded on
// internal/llm/google/client.go's Chat path, with thought-signature/image
// handling dropped per this package's simplification.
type GoogleClient struct {
	client *genai.Client
	model  string
}

// NewGoogle builds a client from config.GoogleAPIKey()/ReflectModelID(). The
// genai.NewClient call runs here; if it fails, the returned client holds no
// genai client and every Chat call on it returns an error.
func NewGoogle() *GoogleClient {
	model := config.ReflectModelID()
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: config.GoogleAPIKey(),
	})
	if err != nil {
		// Deferred to first Chat call: constructing at process start should
		// not crash the engine over a missing/invalid Google key when another
		// provider is actually configured for use.
		return &GoogleClient{client: nil, model: model}
	}
	return &GoogleClient{client: client, model: model}
}

func (c *GoogleClient) Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string, chatOpts ...ChatOption) (Message, error) {
	if c.client == nil {
		return Message{}, fmt.Errorf("google: client not initialized (missing API key)")
	}
	m := model
	if strings.TrimSpace(m) == "" {
		m = c.model
	}

	contents, err := googleToContents(msgs)
	if err != nil {
		return Message{}, err
	}
	toolDecls, toolCfg, err := googleAdaptTools(tools)
	if err != nil {
		return Message{}, err
	}

	genCfg := &genai.GenerateContentConfig{
		Tools:      toolDecls,
		ToolConfig: toolCfg,
	}
	if o := applyChatOptions(chatOpts); o.Temperature != nil {
		t := float32(*o.Temperature)
		genCfg.Temperature = &t
	}

	log := observability.LoggerWithTrace(ctx)
	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, m, contents, genCfg)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", m).Dur("duration", dur).Msg("google_chat_error")
		return Message{}, fmt.Errorf("google chat: %w", err)
	}
	log.Debug().Str("model", m).Dur("duration", dur).Msg("google_chat_ok")
	return googleMessageFromResponse(resp)
}

func googleToContents(msgs []Message) ([]*genai.Content, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("google: messages required")
	}
	toolNamesByID := map[string]string{}
	var lastFuncName string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case "", "user", "system":
			role = genai.RoleUser
		case "assistant":
			role = genai.RoleModel
			for _, tc := range m.ToolCalls {
				if tc.ID != "" && tc.Name != "" {
					toolNamesByID[tc.ID] = tc.Name
				}
				if tc.Name != "" {
					lastFuncName = tc.Name
				}
			}
		case "tool":
			name := toolNamesByID[m.ToolID]
			if name == "" {
				name = lastFuncName
			}
			if name == "" {
				name = "tool_response"
			}
			respMap := map[string]any{}
			if trimmed := strings.TrimSpace(m.Content); trimmed != "" {
				if err := json.Unmarshal([]byte(trimmed), &respMap); err != nil {
					respMap = map[string]any{"output": m.Content}
				}
			}
			part := genai.NewPartFromFunctionResponse(name, respMap)
			part.FunctionResponse.ID = m.ToolID
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
			continue
		default:
			return nil, fmt.Errorf("google: unsupported role %q", m.Role)
		}
		text := m.Content
		if strings.ToLower(strings.TrimSpace(m.Role)) == "system" {
			text = "[system] " + text
		}
		var parts []*genai.Part
		if strings.TrimSpace(text) != "" {
			parts = append(parts, &genai.Part{Text: text})
		}
		for i, tc := range m.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal(tc.Args, &args)
			id := tc.ID
			if id == "" {
				id = "call-" + strconv.Itoa(i+1)
			}
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: id, Name: tc.Name, Args: args}})
		}
		if len(parts) > 0 {
			contents = append(contents, genai.NewContentFromParts(parts, role))
		}
	}
	return contents, nil
}

func googleAdaptTools(schemas []ToolSchema) ([]*genai.Tool, *genai.ToolConfig, error) {
	if len(schemas) == 0 {
		return nil, nil, nil
	}
	fd := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		if strings.TrimSpace(s.Name) == "" {
			return nil, nil, fmt.Errorf("google: tool name required")
		}
		fd = append(fd, &genai.FunctionDeclaration{
			Name:                 s.Name,
			Description:          s.Description,
			ParametersJsonSchema: s.Parameters,
		})
	}
	cfg := &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
	}
	return []*genai.Tool{{FunctionDeclarations: fd}}, cfg, nil
}

func googleMessageFromResponse(resp *genai.GenerateContentResponse) (Message, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Message{Role: "assistant"}, nil
	}
	var sb strings.Builder
	var calls []ToolCall
	callIdx := 0
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			callIdx++
			id := part.FunctionCall.ID
			if id == "" {
				id = "call-" + strconv.Itoa(callIdx)
			}
			calls = append(calls, ToolCall{ID: id, Name: part.FunctionCall.Name, Args: args})
		}
	}
	return Message{Role: "assistant", Content: sb.String(), ToolCalls: calls}, nil
}
