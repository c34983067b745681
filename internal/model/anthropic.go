package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/diane-assistant/filevault/mcp/tools"
)

// DefaultAnthropicModel is used when no model name is configured.
const DefaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicClient creates an Anthropic client.
func NewAnthropicClient(opts Options) *AnthropicClient {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	c := anthropic.NewClient(reqOpts...)

	name := opts.Model
	if name == "" {
		name = DefaultAnthropicModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicClient{client: &c, model: anthropic.Model(name), maxTokens: maxTokens}
}

// Name returns the provider and model.
func (a *AnthropicClient) Name() string {
	return ProviderAnthropic + "/" + string(a.model)
}

// Generate sends history plus prompt in one Messages request.
func (a *AnthropicClient) Generate(ctx context.Context, req Request) (*Reply, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: SystemPrompt}},
		Messages:  anthropicMessages(req.History, req.Prompt),
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropicTools(req.Tools)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			args := map[string]interface{}{}
			if raw := v.JSON.Input.Raw(); raw != "" {
				if err := json.Unmarshal([]byte(raw), &args); err != nil {
					return nil, fmt.Errorf("decode tool input for %s: %w", v.Name, err)
				}
			}
			return &Reply{ToolCall: &ToolCall{Name: v.Name, Args: args}}, nil
		}
	}
	if len(msg.Content) == 0 {
		return nil, ErrEmptyResponse
	}
	return &Reply{Text: text.String()}, nil
}

func anthropicTools(ts []tools.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(ts))
	for _, t := range ts {
		schema := t.SchemaMap()
		var required []string
		if t.InputSchema != nil {
			required = t.InputSchema.Required
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
				Required:   required,
			},
		}})
	}
	return out
}

// anthropicMessages builds an alternating user/assistant list ending with
// the prompt. Adjacent turns of the same role are merged and empty turns
// dropped, since the API rejects both.
func anthropicMessages(history []Message, prompt string) []anthropic.MessageParam {
	turns := append(append([]Message(nil), history...), Message{Role: RoleUser, Content: prompt})

	var merged []Message
	for _, m := range turns {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if n := len(merged); n > 0 && merged[n-1].Role == m.Role {
			merged[n-1].Content += "\n\n" + m.Content
			continue
		}
		merged = append(merged, m)
	}
	for len(merged) > 0 && merged[0].Role != RoleUser {
		merged = merged[1:]
	}

	out := make([]anthropic.MessageParam, 0, len(merged))
	for _, m := range merged {
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}
