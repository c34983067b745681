// Package model talks to the language model that drives the assistant.
// A call is one blocking request: the conversation history, the new prompt
// and the tool catalog go in; either text or one tool call comes out.
package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/diane-assistant/filevault/mcp/tools"
)

// Role is the author of a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    Role
	Content string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name string
	Args map[string]interface{}
}

// Reply is the outcome of a model call: ToolCall when the model asked for
// a tool, otherwise Text.
type Reply struct {
	Text     string
	ToolCall *ToolCall
}

// Request is the input of a model call. An empty History is a stateless call.
type Request struct {
	History []Message
	Prompt  string
	Tools   []tools.Tool
}

// Client is implemented by each model backend.
type Client interface {
	Generate(ctx context.Context, req Request) (*Reply, error)
	Name() string
}

var (
	// ErrNotConfigured is returned when no API key is available.
	ErrNotConfigured = errors.New("model API key not configured")

	// ErrEmptyResponse is returned when the model produced neither text nor a tool call.
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// SystemPrompt frames every conversation.
const SystemPrompt = `You are a file management assistant. Users upload files that are stored with automatic deduplication.
Use the provided tools to search, list and delete files. Deleting is a two-step process: first call find_files_to_delete, then call delete_files with confirmed=true only after the user explicitly agrees.
Never claim to have uploaded a file yourself; files arrive as attachments.`

// Provider names.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Options configures New.
type Options struct {
	Provider  string
	Model     string
	APIKey    string
	MaxTokens int64

	// HTTPClient and BaseURL override the transport; used by tests.
	HTTPClient *http.Client
	BaseURL    string
}

// New builds the client for opts.Provider. A missing API key yields a
// client whose calls fail with ErrNotConfigured, so the server can still
// start and serve the file API.
func New(ctx context.Context, opts Options) (Client, error) {
	provider := strings.ToLower(opts.Provider)
	if opts.APIKey == "" {
		return unconfigured{provider: provider}, nil
	}
	switch provider {
	case "", ProviderGemini:
		return NewGeminiClient(ctx, opts)
	case ProviderAnthropic:
		return NewAnthropicClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", opts.Provider)
	}
}

type unconfigured struct {
	provider string
}

func (u unconfigured) Name() string { return u.provider + " (unconfigured)" }

func (u unconfigured) Generate(context.Context, Request) (*Reply, error) {
	return nil, ErrNotConfigured
}

// Bounded limits the number of concurrent calls to the wrapped client.
type Bounded struct {
	Client
	sem *semaphore.Weighted
}

// NewBounded wraps c so that at most n calls are in flight.
func NewBounded(c Client, n int64) *Bounded {
	if n <= 0 {
		n = 1
	}
	return &Bounded{Client: c, sem: semaphore.NewWeighted(n)}
}

// Generate waits for a slot, honouring ctx, then delegates.
func (b *Bounded) Generate(ctx context.Context, req Request) (*Reply, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.sem.Release(1)
	return b.Client.Generate(ctx, req)
}
