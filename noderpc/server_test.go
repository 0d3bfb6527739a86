package noderpc

import (
	"context"
	"errors"
	"net"
	"testing"

	kitlog "github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/maxpoletaev/kluster/dispatch"
	"github.com/maxpoletaev/kluster/store"
	"github.com/maxpoletaev/kluster/store/inmemory"
)

type storeHandlerFunc func(ctx context.Context, op store.Op) (store.Result, error)

func (f storeHandlerFunc) ExecLocal(ctx context.Context, op store.Op) (store.Result, error) {
	return f(ctx, op)
}

func startServer(t *testing.T, sh StoreHandler, th TaskHandler) *Client {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterNodeServer(server, NewServer(sh, th, kitlog.NewNopLogger()))

	go func() {
		_ = server.Serve(listener)
	}()

	t.Cleanup(server.Stop)

	client, err := Dial(context.Background(), "bufnet", grpc.WithContextDialer(
		func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		},
	))
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestServer_Store(t *testing.T) {
	local := inmemory.New()
	handler := storeHandlerFunc(func(ctx context.Context, op store.Op) (store.Result, error) {
		return store.Exec(ctx, local, op)
	})

	client := startServer(t, handler, dispatch.NewRegistry())
	ctx := context.Background()

	res, err := client.Store(ctx, store.Op{Kind: store.OpPutIfAbsent, Map: "m", Key: "k", Value: []byte("v1")})
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = client.Store(ctx, store.Op{Kind: store.OpPutIfAbsent, Map: "m", Key: "k", Value: []byte("v2")})
	require.NoError(t, err)
	assert.False(t, res.OK)

	res, err = client.Store(ctx, store.Op{Kind: store.OpGet, Map: "m", Key: "k"})
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, []byte("v1"), res.Value)
}

func TestServer_StoreError(t *testing.T) {
	handler := storeHandlerFunc(func(ctx context.Context, op store.Op) (store.Result, error) {
		return store.Result{}, errors.New("disk on fire")
	})

	client := startServer(t, handler, dispatch.NewRegistry())

	_, err := client.Store(context.Background(), store.Op{Kind: store.OpGet, Map: "m", Key: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

type pingTask struct {
	Text string `json:"text"`
}

func (pingTask) TaskName() string { return "ping" }

func TestServer_Execute(t *testing.T) {
	tasks := dispatch.NewRegistry()

	dispatch.Handle(tasks, func(_ context.Context, task pingTask) (string, error) {
		if task.Text == "fail" {
			return "", errors.New("refusing to pong")
		}

		return "pong: " + task.Text, nil
	})

	client := startServer(t, storeHandlerFunc(nil), tasks)
	ctx := context.Background()

	reply, err := client.Execute(ctx, "ping", []byte(`{"text":"hello"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `"pong: hello"`, string(reply))

	_, err = client.Execute(ctx, "ping", []byte(`{"text":"fail"}`))

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "refusing to pong", remoteErr.Message)

	_, err = client.Execute(ctx, "missing", nil)
	assert.ErrorIs(t, err, dispatch.ErrUnknownTask)
}

func TestServer_ExecuteCancelled(t *testing.T) {
	tasks := dispatch.NewRegistry()
	started := make(chan struct{})

	tasks.Register("block", func(ctx context.Context, _ []byte) ([]byte, error) {
		close(started)
		<-ctx.Done()

		return nil, ctx.Err()
	})

	client := startServer(t, storeHandlerFunc(nil), tasks)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-started
		cancel()
	}()

	_, err := client.Execute(ctx, "block", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_CloseTwice(t *testing.T) {
	client := startServer(t, storeHandlerFunc(nil), dispatch.NewRegistry())

	require.False(t, client.IsClosed())
	require.NoError(t, client.Close())
	require.True(t, client.IsClosed())
	require.NoError(t, client.Close())
}
