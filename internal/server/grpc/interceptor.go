package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// authInterceptor applies the role gate to methods listed in the policy.
// The bearer token is read from the "authorization" metadata key.
func (s *GRPCServer) authInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	roles, guarded := s.rolesFor(info.FullMethod)
	if !guarded {
		return handler(ctx, req)
	}

	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
			header = values[0]
		}
	}

	claims, err := s.codec.Authorize(header, roles...)
	if err != nil {
		return nil, toStatus(err)
	}

	return handler(auth.WithClaims(ctx, claims), req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug(ctx, "grpc call", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
	return resp, err
}

// toStatus maps service errors to gRPC codes with the same generic messages
// the HTTP boundary uses.
func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, "service temporarily unavailable, try again")
	case errors.Is(err, common.ErrMissingToken):
		return status.Error(codes.Unauthenticated, "Missing authorization token")
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "Invalid or expired token")
	case errors.Is(err, common.ErrInsufficientRole):
		return status.Error(codes.PermissionDenied, "Insufficient permissions")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
