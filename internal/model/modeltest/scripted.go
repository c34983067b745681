// Package modeltest provides a scripted model.Client for tests.
package modeltest

import (
	"context"
	"errors"
	"sync"

	"github.com/diane-assistant/filevault/internal/model"
)

// Step is one scripted outcome of Scripted.Generate.
type Step struct {
	Reply *model.Reply
	Err   error

	// Block makes the call wait for ctx to be done and return its error.
	Block bool
}

// TextStep replies with text.
func TextStep(text string) Step { return Step{Reply: &model.Reply{Text: text}} }

// ToolStep replies with a tool call.
func ToolStep(name string, args map[string]interface{}) Step {
	return Step{Reply: &model.Reply{ToolCall: &model.ToolCall{Name: name, Args: args}}}
}

// ErrorStep fails the call.
func ErrorStep(err error) Step { return Step{Err: err} }

// ErrScriptExhausted is returned once every step has been consumed.
var ErrScriptExhausted = errors.New("no scripted reply left")

// Scripted is a Client that replays steps in order and records requests.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []model.Request
}

// NewScripted returns a client that will play steps in order.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Name identifies the client.
func (s *Scripted) Name() string { return "scripted" }

// Generate records req and plays the next step.
func (s *Scripted) Generate(ctx context.Context, req model.Request) (*model.Reply, error) {
	s.mu.Lock()
	req.History = append([]model.Message(nil), req.History...)
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()

	if step.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Reply, nil
}

// Requests returns the requests seen so far.
func (s *Scripted) Requests() []model.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Request(nil), s.requests...)
}
