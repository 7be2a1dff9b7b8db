package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var testInfo = &grpc.UnaryServerInfo{FullMethod: "/eloverblik.v1.MeterDataService/QueryTimeSeries"}

func okHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "ok", nil
}

func TestContextMiddleware(t *testing.T) {
	var got string
	capture := func(ctx context.Context, req interface{}) (interface{}, error) {
		got = RequestIDFromContext(ctx)
		return nil, nil
	}

	_, err := ContextMiddleware(context.Background(), nil, testInfo, capture)
	require.NoError(t, err)
	_, err = uuid.Parse(got)
	assert.NoError(t, err, "expected a generated UUID")

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDHeader, "caller-id"))
	_, err = ContextMiddleware(ctx, nil, testInfo, capture)
	require.NoError(t, err)
	assert.Equal(t, "caller-id", got)

	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestRateLimitingInterceptor(t *testing.T) {
	interceptor := NewRateLimitingInterceptor(0.001, 2)

	for i := 0; i < 2; i++ {
		_, err := interceptor(context.Background(), nil, testInfo, okHandler)
		require.NoError(t, err)
	}

	_, err := interceptor(context.Background(), nil, testInfo, okHandler)
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestLoggingInterceptor(t *testing.T) {
	logger, hook := test.NewNullLogger()
	interceptor := NewLoggingInterceptor(logger)

	ctx := context.WithValue(context.Background(), requestIDKey, "req-1")
	_, err := interceptor(ctx, nil, testInfo, okHandler)
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "req-1", entry.Data["request_id"])
	assert.Equal(t, testInfo.FullMethod, entry.Data["method"])
	assert.Equal(t, "OK", entry.Data["code"])

	failing := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "bad")
	}
	_, err = interceptor(ctx, nil, testInfo, failing)
	require.Error(t, err)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "InvalidArgument", hook.LastEntry().Data["code"])
}

func TestMetricsInterceptor(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewServerMetrics(reg)
	require.NoError(t, err)

	interceptor := NewMetricsInterceptor(metrics.Requests, metrics.Latency)
	_, err = interceptor(context.Background(), nil, testInfo, okHandler)
	require.NoError(t, err)
	_, err = interceptor(context.Background(), nil, testInfo, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, errors.New("plain error")
	})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("QueryTimeSeries", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("QueryTimeSeries", "Unknown")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.Latency))

	_, err = NewServerMetrics(reg)
	assert.Error(t, err, "registering twice should fail")
}
