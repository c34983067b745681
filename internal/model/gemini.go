package model

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/diane-assistant/filevault/mcp/tools"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient calls the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	cfg    genai.GenerateContentConfig
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	cc := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	name := opts.Model
	if name == "" {
		name = DefaultGeminiModel
	}
	g := &GeminiClient{
		client: client,
		model:  name,
		cfg: genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.2),
		},
	}
	if opts.MaxTokens > 0 {
		g.cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	return g, nil
}

// Name returns the provider and model.
func (g *GeminiClient) Name() string {
	return ProviderGemini + "/" + g.model
}

// Generate sends the prompt. With history a chat is started from it; without
// history a single generateContent call is made.
func (g *GeminiClient) Generate(ctx context.Context, req Request) (*Reply, error) {
	cfg := g.cfg
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: functionDeclarations(req.Tools)}}
	}

	var (
		resp *genai.GenerateContentResponse
		err  error
	)
	if len(req.History) > 0 {
		var chat *genai.Chat
		chat, err = g.client.Chats.Create(ctx, g.model, &cfg, geminiHistory(req.History))
		if err != nil {
			return nil, fmt.Errorf("failed to start chat: %w", err)
		}
		resp, err = chat.SendMessage(ctx, genai.Part{Text: req.Prompt})
	} else {
		resp, err = g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}

	if calls := resp.FunctionCalls(); len(calls) > 0 {
		slog.Debug("Gemini requested tool", "tool", calls[0].Name)
		return &Reply{ToolCall: &ToolCall{Name: calls[0].Name, Args: calls[0].Args}}, nil
	}
	return &Reply{Text: resp.Text()}, nil
}

func functionDeclarations(ts []tools.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(ts))
	for _, t := range ts {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGenaiSchema(t.InputSchema),
		})
	}
	return decls
}

func geminiHistory(msgs []Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(m.Content, role))
	}
	return history
}
