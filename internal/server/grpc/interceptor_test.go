package grpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const guardedMethod = "/authcore.Admin/ListUsers"

// helper to build server
func newTestServer(secret string) *GRPCServer {
	codec := auth.NewCodec([]byte(secret), time.Hour)
	return NewGRPCServer("127.0.0.1:0", codec, logging.Nop{}, WithPolicy(guardedMethod, models.RoleAdmin))
}

func tokenFor(t *testing.T, secret string, role models.Role) string {
	t.Helper()
	codec := auth.NewCodec([]byte(secret), time.Hour)
	token, err := codec.Issue(&models.User{ID: "user-123", Username: "u", Email: "u@example.com", Role: role})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	return token
}

func incoming(header string) context.Context {
	md := metadata.New(map[string]string{common.AuthorizationHeaderName: header})
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestInterceptor_UnguardedAllowsWithoutToken(t *testing.T) {
	s := newTestServer("secret")

	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Service/OtherMethod"}
	handlerCalled := false

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.authInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Fatal("handler was not called")
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
}

func TestInterceptor_MissingToken(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.UnaryServerInfo{FullMethod: guardedMethod}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	}

	_, err := s.authInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
	}
	if status.Convert(err).Message() != "Missing authorization token" {
		t.Fatalf("unexpected message %q", status.Convert(err).Message())
	}
}

func TestInterceptor_InvalidToken(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.UnaryServerInfo{FullMethod: guardedMethod}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called for invalid token")
		return nil, nil
	}

	for _, header := range []string{
		"Bearer not-a-valid-jwt",
		"Bearer " + tokenFor(t, "other-secret", models.RoleAdmin),
	} {
		_, err := s.authInterceptor(incoming(header), nil, info, h)
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
		}
	}
}

func TestInterceptor_WrongRole(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.UnaryServerInfo{FullMethod: guardedMethod}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called for wrong role")
		return nil, nil
	}

	_, err := s.authInterceptor(incoming("Bearer "+tokenFor(t, "secret", models.RoleCandidate)), nil, info, h)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", status.Code(err))
	}
}

func TestInterceptor_ValidToken_SetsClaims(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.UnaryServerInfo{FullMethod: guardedMethod}

	var got *auth.Claims
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		got, _ = auth.ClaimsFromContext(ctx)
		return "ok", nil
	}

	resp, err := s.authInterceptor(incoming("Bearer "+tokenFor(t, "secret", models.RoleAdmin)), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
	if got == nil || got.UserID != "user-123" {
		t.Fatalf("claims not propagated in context: got %+v", got)
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{common.ErrStoreUnavailable, codes.Unavailable},
		{common.ErrTokenExpired, codes.Unauthenticated},
		{common.ErrInsufficientRole, codes.PermissionDenied},
		{errors.New("boom"), codes.Internal},
	}
	for _, tc := range tests {
		if got := status.Code(toStatus(tc.err)); got != tc.code {
			t.Errorf("toStatus(%v) = %v, want %v", tc.err, got, tc.code)
		}
	}
}
