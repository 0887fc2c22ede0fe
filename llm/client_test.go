package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	calls int
	err   error
	out   string
}

func (s *stubClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.calls++
	return s.out, s.err
}

func TestBreakerClientPassesThroughOnSuccess(t *testing.T) {
	stub := &stubClient{out: "hello"}
	bc := NewBreakerClient(stub)
	out, err := bc.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 1, stub.calls)
}

func TestBreakerClientPropagatesErrors(t *testing.T) {
	stub := &stubClient{err: errors.New("boom")}
	bc := NewBreakerClient(stub)
	_, err := bc.Complete(context.Background(), "sys", "user")
	assert.Error(t, err)
}
