package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Handle(t *testing.T) {
	r := NewRegistry()

	Handle(r, func(_ context.Context, task echoTask) (echoResult, error) {
		return echoResult{Text: task.Text, From: "local"}, nil
	})

	require.True(t, r.Has("echo"))

	args, err := encodeTask(echoTask{Text: "ping"})
	require.NoError(t, err)

	reply, err := r.Execute(context.Background(), "echo", args)
	require.NoError(t, err)

	var res echoResult
	require.NoError(t, json.Unmarshal(reply, &res))
	assert.Equal(t, echoResult{Text: "ping", From: "local"}, res)
}

func TestRegistry_UnknownTask(t *testing.T) {
	r := NewRegistry()

	_, err := r.Execute(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestRegistry_BadPayload(t *testing.T) {
	r := NewRegistry()

	Handle(r, func(_ context.Context, task echoTask) (echoResult, error) {
		return echoResult{}, nil
	})

	_, err := r.Execute(context.Background(), "echo", []byte("garbage"))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestRegistry_HandlerError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")

	Handle(r, func(_ context.Context, task echoTask) (echoResult, error) {
		return echoResult{}, boom
	})

	args, err := encodeTask(echoTask{})
	require.NoError(t, err)

	_, err = r.Execute(context.Background(), "echo", args)
	assert.Equal(t, boom, err)
}
