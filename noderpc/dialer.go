package noderpc

import (
	"context"

	"google.golang.org/grpc"
)

// DialerFunc adapts a plain function to the Dialer interface.
type DialerFunc func(ctx context.Context, addr string) (Conn, error)

func (f DialerFunc) DialContext(ctx context.Context, addr string) (Conn, error) {
	return f(ctx, addr)
}

// NewGrpcDialer returns a Dialer that connects with Dial.
func NewGrpcDialer(opts ...grpc.DialOption) Dialer {
	return DialerFunc(func(ctx context.Context, addr string) (Conn, error) {
		return Dial(ctx, addr, opts...)
	})
}
