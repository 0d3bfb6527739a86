package noderpc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/maxpoletaev/kluster/dispatch"
	"github.com/maxpoletaev/kluster/internal/grpcutil"
	"github.com/maxpoletaev/kluster/internal/multierror"
	"github.com/maxpoletaev/kluster/store"
)

var _ Conn = (*Client)(nil)

// RemoteError is an error raised by a task on the remote member.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote task failed: " + e.Message
}

type Client struct {
	conn    grpc.ClientConnInterface
	onClose []func() error
	closed  uint32
}

// Dial connects to the node service at addr. It blocks until the connection
// is established or ctx is done.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	creds := insecure.NewCredentials()

	opts = append([]grpc.DialOption{
		grpc.WithBlock(),
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.UseCompressor(gzip.Name)),
	}, opts...)

	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial failed: %w", err)
	}

	c := &Client{conn: conn}
	c.addOnCloseHook(conn.Close)

	return c, nil
}

func (c *Client) addOnCloseHook(f func() error) {
	c.onClose = append(c.onClose, f)
}

func (c *Client) Close() error {
	if !atomic.CompareAndSwapUint32(&c.closed, 0, 1) {
		return nil // already closed
	}

	errs := multierror.New[int]()

	for idx, f := range c.onClose {
		if err := f(); err != nil {
			errs.Add(idx, err)
		}
	}

	return errs.Combined()
}

func (c *Client) IsClosed() bool {
	return atomic.LoadUint32(&c.closed) == 1
}

func (c *Client) Store(ctx context.Context, op store.Op) (store.Result, error) {
	data, err := store.EncodeOp(op)
	if err != nil {
		return store.Result{}, err
	}

	out := new(wrapperspb.BytesValue)
	in := &anypb.Any{TypeUrl: storeOpType, Value: data}

	if err := c.conn.Invoke(ctx, storeMethod, in, out); err != nil {
		return store.Result{}, fromStatus(err)
	}

	return store.DecodeResult(out.GetValue())
}

func (c *Client) Execute(ctx context.Context, name string, args []byte) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	in := &anypb.Any{TypeUrl: taskTypeBase + name, Value: args}

	if err := c.conn.Invoke(ctx, executeMethod, in, out); err != nil {
		return nil, fromStatus(err)
	}

	return out.GetValue(), nil
}

// fromStatus turns status errors carrying a meaning on this side back into
// plain errors.
func fromStatus(err error) error {
	switch {
	case grpcutil.IsCanceled(err):
		return errors.Join(context.Canceled, err)
	case grpcutil.IsDeadlineExceeded(err):
		return errors.Join(context.DeadlineExceeded, err)
	}

	switch grpcutil.ErrorCode(err) {
	case codes.Aborted:
		return &RemoteError{Message: status.Convert(err).Message()}
	case codes.NotFound:
		return fmt.Errorf("%w: %s", dispatch.ErrUnknownTask, status.Convert(err).Message())
	}

	return err
}
