package noderpc

import (
	"context"
	"errors"
	"strings"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/maxpoletaev/kluster/dispatch"
	"github.com/maxpoletaev/kluster/internal/grpcutil"
	"github.com/maxpoletaev/kluster/store"
)

// StoreHandler executes store operations forwarded by other members.
type StoreHandler interface {
	ExecLocal(ctx context.Context, op store.Op) (store.Result, error)
}

// TaskHandler executes tasks dispatched by other members.
type TaskHandler interface {
	Execute(ctx context.Context, name string, args []byte) ([]byte, error)
}

var _ NodeServer = (*Server)(nil)

type Server struct {
	store  StoreHandler
	tasks  TaskHandler
	logger kitlog.Logger
}

func NewServer(store StoreHandler, tasks TaskHandler, logger kitlog.Logger) *Server {
	return &Server{
		store:  store,
		tasks:  tasks,
		logger: logger,
	}
}

func (s *Server) Store(ctx context.Context, in *anypb.Any) (*wrapperspb.BytesValue, error) {
	if in.GetTypeUrl() != storeOpType {
		return nil, status.Errorf(codes.InvalidArgument, "unexpected payload type %q", in.GetTypeUrl())
	}

	op, err := store.DecodeOp(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.store.ExecLocal(ctx, op)
	if err != nil {
		if ctx.Err() != nil {
			return nil, grpcutil.FromContext(ctx.Err())
		}

		level.Warn(s.logger).Log("msg", "forwarded store operation failed", "op", op.Kind, "map", op.Map, "key", op.Key, "err", err)

		return nil, status.Error(codes.Internal, err.Error())
	}

	data, err := store.EncodeResult(res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return wrapperspb.Bytes(data), nil
}

func (s *Server) Execute(ctx context.Context, in *anypb.Any) (*wrapperspb.BytesValue, error) {
	name, ok := strings.CutPrefix(in.GetTypeUrl(), taskTypeBase)
	if !ok || name == "" {
		return nil, status.Errorf(codes.InvalidArgument, "unexpected payload type %q", in.GetTypeUrl())
	}

	reply, err := s.tasks.Execute(ctx, name, in.GetValue())
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrUnknownTask):
			return nil, status.Error(codes.NotFound, err.Error())
		case ctx.Err() != nil:
			return nil, grpcutil.FromContext(ctx.Err())
		}

		// The task itself failed, which is not a transport problem.
		return nil, status.Error(codes.Aborted, err.Error())
	}

	return wrapperspb.Bytes(reply), nil
}
