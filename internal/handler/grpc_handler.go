package handler

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/logger"
	"github.com/pesio-ai/be-ops-indicators/internal/service"
)

// TokenValidator turns a bearer token into an actor.
type TokenValidator interface {
	Validate(token string) (service.Actor, error)
}

// HealthChecker serves grpc.health.v1.Health and refreshes the overall
// status from the datastore on every Check.
type HealthChecker struct {
	*health.Server
	store Pinger
	log   *logger.Logger
}

// NewHealthChecker creates a health server backed by store.
func NewHealthChecker(store Pinger, log *logger.Logger) *HealthChecker {
	return &HealthChecker{Server: health.NewServer(), store: store, log: log}
}

// Refresh pings the datastore and records the result.
func (h *HealthChecker) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Datastore ping failed")
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.SetServingStatus("", st)
	return st
}

// Check implements healthpb.HealthServer.
func (h *HealthChecker) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	h.Refresh(ctx)
	return h.Server.Check(ctx, req)
}

type grpcActorKey struct{}

// ActorFromContext returns the actor stored by AuthInterceptor. The gRPC
// surface currently serves health and reflection only, both auth exempt, so
// no registered handler reads it yet.
func ActorFromContext(ctx context.Context) (service.Actor, bool) {
	a, ok := ctx.Value(grpcActorKey{}).(service.Actor)
	return a, ok
}

func authExempt(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.v1.Health/") ||
		strings.HasPrefix(method, "/grpc.reflection.")
}

// AuthInterceptor validates the bearer token of the "authorization" metadata.
// Health and reflection methods pass through untouched; every other method
// registered on the server requires a valid token.
func AuthInterceptor(validator TokenValidator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if authExempt(info.FullMethod) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, errors.Unauthenticated(nil)
		}
		token, ok := bearerToken(values[0])
		if !ok {
			return nil, errors.Unauthenticated(nil)
		}
		actor, err := validator.Validate(token)
		if err != nil {
			return nil, err
		}
		return handler(context.WithValue(ctx, grpcActorKey{}, actor), req)
	}
}

// ErrorInterceptor converts domain errors into gRPC statuses and logs every
// call.
func ErrorInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		err = toStatus(err)

		event := log.Info()
		if status.Code(err) == codes.Internal || status.Code(err) == codes.Unavailable {
			event = log.Error().Err(err)
		}
		event.
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC request")
		return resp, err
	}
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if errors.As(err, &e) {
		return status.Error(e.Code.GRPCCode(), e.Message)
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, "internal error")
}

// NewGRPCServer builds the gRPC server with health, reflection and the
// interceptor chain.
func NewGRPCServer(validator TokenValidator, hc *HealthChecker, log *logger.Logger) *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		ErrorInterceptor(log),
		AuthInterceptor(validator),
	))
	healthpb.RegisterHealthServer(srv, hc)
	reflection.Register(srv)
	return srv
}
