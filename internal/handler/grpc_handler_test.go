package handler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/logger"
	"github.com/pesio-ai/be-ops-indicators/internal/service"
)

type fakeValidator struct {
	actor service.Actor
	token string
}

func (f fakeValidator) Validate(token string) (service.Actor, error) {
	if token != f.token {
		return service.Actor{}, errors.Unauthenticated(fmt.Errorf("bad token"))
	}
	return f.actor, nil
}

func TestErrorInterceptorMapsCodes(t *testing.T) {
	intercept := ErrorInterceptor(logger.Nop())
	info := &grpc.UnaryServerInfo{FullMethod: "/indicators.v1.Indicators/Approve"}

	tests := []struct {
		name string
		err  error
		want codes.Code
		msg  string
	}{
		{"forbidden", errors.Forbidden("requires level 3 or above"), codes.PermissionDenied, "requires level 3 or above"},
		{"nothing to approve", errors.New(errors.ErrCodeNothingToApprove, "no pending drafts"), codes.FailedPrecondition, "no pending drafts"},
		{"storage", errors.Wrap(fmt.Errorf("dial tcp"), errors.ErrCodeStorageUnavailable, "storage unavailable"), codes.Unavailable, "storage unavailable"},
		{"wrapped domain error", fmt.Errorf("approve: %w", errors.NotFound("draft", 9)), codes.NotFound, "draft 9 not found"},
		{"status passthrough", status.Error(codes.Canceled, "gone"), codes.Canceled, "gone"},
		{"plain error", fmt.Errorf("boom"), codes.Internal, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
				return nil, tt.err
			})
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, st.Code())
			assert.Equal(t, tt.msg, st.Message())
		})
	}

	resp, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp)
}

func TestAuthInterceptor(t *testing.T) {
	actor := service.Actor{ID: 4, Level: 3}
	intercept := AuthInterceptor(fakeValidator{actor: actor, token: "good"})
	info := &grpc.UnaryServerInfo{FullMethod: "/indicators.v1.Indicators/ListDrafts"}

	var seen service.Actor
	handler := func(ctx context.Context, _ any) (any, error) {
		seen, _ = ActorFromContext(ctx)
		return "ok", nil
	}
	withAuth := func(value string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", value))
	}

	_, err := intercept(context.Background(), nil, info, handler)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthenticated))

	_, err = intercept(withAuth("Token good"), nil, info, handler)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthenticated))

	_, err = intercept(withAuth("Bearer bad"), nil, info, handler)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthenticated))

	_, err = intercept(withAuth("Bearer good"), nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, actor, seen)

	healthInfo := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	resp, err := intercept(context.Background(), nil, healthInfo, func(context.Context, any) (any, error) {
		return "healthy", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp)
}

func TestHealthCheckerFollowsDatastore(t *testing.T) {
	pinger := &fakePinger{}
	hc := NewHealthChecker(pinger, logger.Nop())

	resp, err := hc.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	pinger.err = fmt.Errorf("connection refused")
	resp, err = hc.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestNewGRPCServerRegistersServices(t *testing.T) {
	srv := NewGRPCServer(fakeValidator{}, NewHealthChecker(&fakePinger{}, logger.Nop()), logger.Nop())
	defer srv.Stop()

	info := srv.GetServiceInfo()
	assert.Contains(t, info, "grpc.health.v1.Health")
	assert.Contains(t, info, "grpc.reflection.v1.ServerReflection")
}
