package backend

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/feedsync/internal/core/domain"
	"github.com/vietddude/feedsync/internal/feed/fetch"
)

// GRPCHandler executes one read against a gRPC connection and returns rows.
// Callers wrap their generated client calls here, so this package needs no
// generated stubs.
type GRPCHandler func(ctx context.Context, conn grpc.ClientConnInterface) ([]domain.Row, error)

// GRPCBackend adapts a gRPC connection into fetch queries.
type GRPCBackend struct {
	name string
	conn grpc.ClientConnInterface
}

// NewGRPCBackend wraps an established connection.
func NewGRPCBackend(name string, conn grpc.ClientConnInterface) *GRPCBackend {
	return &GRPCBackend{name: name, conn: conn}
}

// Name returns the backend identifier for logs.
func (b *GRPCBackend) Name() string { return b.name }

// Rows builds a fetch query around a caller-supplied handler.
func (b *GRPCBackend) Rows(handler GRPCHandler) fetch.Query[domain.Row] {
	return func(ctx context.Context) ([]domain.Row, error) {
		rows, err := handler(ctx, b.conn)
		if err != nil {
			return nil, classifyGRPCError(err)
		}
		return rows, nil
	}
}

// classifyGRPCError maps gRPC status codes onto the failure taxonomy.
func classifyGRPCError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return domain.NewError(domain.FailureTransient, "unknown", err)
	}

	code := st.Code()
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return domain.NewError(domain.FailureTransient, code.String(), err)
	case codes.NotFound, codes.Unimplemented:
		return domain.NewError(domain.FailureNotFound, code.String(), err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return domain.NewError(domain.FailureAuth, code.String(), err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return domain.NewError(domain.FailureClient, code.String(), err)
	default:
		return domain.NewError(domain.FailureTransient, code.String(), err)
	}
}
