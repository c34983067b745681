package modeltest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diane-assistant/filevault/internal/model"
)

var _ model.Client = (*Scripted)(nil)

func TestScripted(t *testing.T) {
	s := NewScripted(TextStep("hello"), ErrorStep(errors.New("down")))
	r, err := s.Generate(context.Background(), model.Request{Prompt: "a"})
	require.NoError(t, err)
	assert.Equal(t, "hello", r.Text)
	_, err = s.Generate(context.Background(), model.Request{Prompt: "b"})
	assert.EqualError(t, err, "down")
	_, err = s.Generate(context.Background(), model.Request{Prompt: "c"})
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Len(t, s.Requests(), 3)
}

func TestScriptedBlockWaitsForContext(t *testing.T) {
	s := NewScripted(Step{Block: true})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Generate(ctx, model.Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
