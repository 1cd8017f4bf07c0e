// Package grpc hosts the gRPC listener: the standard health service, whose
// status follows store reachability, the channelz diagnostics service, and
// a role-gate interceptor that keeps diagnostics admin-only.
package grpc

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"google.golang.org/grpc"
	channelzsvc "google.golang.org/grpc/channelz/service"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall "" entry.
const ServiceName = "authcore.Auth"

// ChannelzService is the policy key covering every channelz method.
const ChannelzService = "/grpc.channelz.v1.Channelz/"

const defaultHealthInterval = 10 * time.Second

type GRPCServer struct {
	address        string
	codec          *auth.Codec
	policy         map[string][]models.Role
	health         *health.Server
	ping           func(ctx context.Context) error
	healthInterval time.Duration
	register       []func(*grpc.Server)
	logger         logging.Logger
}

type Option func(*GRPCServer)

// WithPolicy guards method, either one call ("/pkg.Service/Method") or a
// whole service ("/pkg.Service/"). An empty roles list admits any
// authenticated caller.
func WithPolicy(method string, roles ...models.Role) Option {
	return func(s *GRPCServer) { s.policy[method] = roles }
}

// WithHealthCheck makes the health status follow ping, polled every interval.
func WithHealthCheck(ping func(ctx context.Context) error, interval time.Duration) Option {
	return func(s *GRPCServer) {
		s.ping = ping
		if interval > 0 {
			s.healthInterval = interval
		}
	}
}

// WithService registers an additional service on the server before it starts.
func WithService(register func(*grpc.Server)) Option {
	return func(s *GRPCServer) { s.register = append(s.register, register) }
}

// WithChannelz mounts the channelz service, callable only by roles.
func WithChannelz(roles ...models.Role) Option {
	return func(s *GRPCServer) {
		WithService(func(srv *grpc.Server) { channelzsvc.RegisterChannelzServiceToServer(srv) })(s)
		WithPolicy(ChannelzService, roles...)(s)
	}
}

func NewGRPCServer(address string, codec *auth.Codec, l logging.Logger, opts ...Option) *GRPCServer {
	s := &GRPCServer{
		address:        address,
		codec:          codec,
		policy:         make(map[string][]models.Role),
		health:         health.NewServer(),
		healthInterval: defaultHealthInterval,
		logger:         l.With("module", "grpc_server"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

// serve runs the server on listen until ctx is done.
func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.authInterceptor))

	healthpb.RegisterHealthServer(srv, s.health)
	for _, register := range s.register {
		register(srv)
	}

	s.checkHealth(ctx)
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go s.watchHealth(watchCtx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

// rolesFor returns the policy for fullMethod, an exact entry winning over
// its service entry.
func (s *GRPCServer) rolesFor(fullMethod string) ([]models.Role, bool) {
	if roles, ok := s.policy[fullMethod]; ok {
		return roles, true
	}
	if i := strings.LastIndex(fullMethod, "/"); i > 0 {
		roles, ok := s.policy[fullMethod[:i+1]]
		return roles, ok
	}
	return nil, false
}

func (s *GRPCServer) watchHealth(ctx context.Context) {
	if s.ping == nil {
		return
	}
	t := time.NewTicker(s.healthInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.checkHealth(ctx)
		}
	}
}

// checkHealth pings the store once and publishes the result.
func (s *GRPCServer) checkHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.ping != nil {
		if err := s.ping(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn(ctx, "store unreachable", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
