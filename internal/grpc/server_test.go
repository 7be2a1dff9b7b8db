package server_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	server "github.com/tejusbharadwaj/eloverblik/internal/grpc"
	"github.com/tejusbharadwaj/eloverblik/internal/models"
)

const testMeteringPoint = "571313174100000001"

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) QueryTimeSeries(ctx context.Context, ids []string, start, end time.Time) ([]models.TimeSeriesPoint, error) {
	args := m.Called(ctx, ids, start, end)
	points, _ := args.Get(0).([]models.TimeSeriesPoint)
	return points, args.Error(1)
}

func (m *mockRepo) QueryMeterReadings(ctx context.Context, ids []string, start, end time.Time) ([]models.MeterReadingRow, error) {
	args := m.Called(ctx, ids, start, end)
	rows, _ := args.Get(0).([]models.MeterReadingRow)
	return rows, args.Error(1)
}

var (
	dayStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dayEnd   = dayStart.Add(24 * time.Hour)
)

func request(t *testing.T, fields map[string]interface{}) *structpb.Struct {
	req, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return req
}

func dayRequest(t *testing.T) *structpb.Struct {
	return request(t, map[string]interface{}{
		"metering_point_id": testMeteringPoint,
		"start":             dayStart.Format(time.RFC3339),
		"end":               dayEnd.Format(time.RFC3339),
	})
}

func samplePoints() []models.TimeSeriesPoint {
	return []models.TimeSeriesPoint{
		{MeteringPointID: testMeteringPoint, PeriodStart: dayStart, PeriodEnd: dayEnd, Resolution: "PT1H", Position: 1, Quantity: 0.5, Quality: "A04", Unit: "KWH"},
		{MeteringPointID: testMeteringPoint, PeriodStart: dayStart, PeriodEnd: dayEnd, Resolution: "PT1H", Position: 2, Quantity: 0.75, Quality: "A04", Unit: "KWH"},
		{MeteringPointID: testMeteringPoint, PeriodStart: dayStart, PeriodEnd: dayEnd, Resolution: "P1D", Position: 1, Quantity: 12.5, Quality: "A04", Unit: "KWH"},
	}
}

func TestQueryTimeSeries(t *testing.T) {
	tests := []struct {
		name          string
		request       map[string]interface{}
		setupMock     func(repo *mockRepo)
		expectedCode  codes.Code
		expectedError string
		expectedLen   int
	}{
		{
			name: "Success case",
			request: map[string]interface{}{
				"metering_point_id": testMeteringPoint,
				"start":             dayStart.Format(time.RFC3339),
				"end":               dayEnd.Format(time.RFC3339),
			},
			setupMock: func(repo *mockRepo) {
				repo.On("QueryTimeSeries", mock.Anything, []string{testMeteringPoint}, dayStart, dayEnd).
					Return(samplePoints(), nil)
			},
			expectedCode: codes.OK,
			expectedLen:  3,
		},
		{
			name: "Resolution filter",
			request: map[string]interface{}{
				"metering_point_id": testMeteringPoint,
				"start":             dayStart.Format(time.RFC3339),
				"end":               dayEnd.Format(time.RFC3339),
				"resolution":        "P1D",
			},
			setupMock: func(repo *mockRepo) {
				repo.On("QueryTimeSeries", mock.Anything, []string{testMeteringPoint}, dayStart, dayEnd).
					Return(samplePoints(), nil)
			},
			expectedCode: codes.OK,
			expectedLen:  1,
		},
		{
			name: "Invalid resolution",
			request: map[string]interface{}{
				"metering_point_id": testMeteringPoint,
				"start":             dayStart.Format(time.RFC3339),
				"end":               dayEnd.Format(time.RFC3339),
				"resolution":        "PT5M",
			},
			setupMock:     func(repo *mockRepo) {},
			expectedCode:  codes.InvalidArgument,
			expectedError: "invalid resolution: PT5M",
		},
		{
			name: "Invalid time range",
			request: map[string]interface{}{
				"metering_point_id": testMeteringPoint,
				"start":             dayEnd.Format(time.RFC3339),
				"end":               dayStart.Format(time.RFC3339),
			},
			setupMock:     func(repo *mockRepo) {},
			expectedCode:  codes.InvalidArgument,
			expectedError: "start time must be before end time",
		},
		{
			name: "Repository failure",
			request: map[string]interface{}{
				"metering_point_id": testMeteringPoint,
				"start":             dayStart.Format(time.RFC3339),
				"end":               dayEnd.Format(time.RFC3339),
			},
			setupMock: func(repo *mockRepo) {
				repo.On("QueryTimeSeries", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, errors.New("connection reset"))
			},
			expectedCode:  codes.Internal,
			expectedError: "query failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRepo)
			tt.setupMock(repo)
			svc := server.NewMeterDataService(repo)

			resp, err := svc.QueryTimeSeries(context.Background(), request(t, tt.request))

			if tt.expectedCode != codes.OK {
				require.Error(t, err)
				st, ok := status.FromError(err)
				require.True(t, ok)
				assert.Equal(t, tt.expectedCode, st.Code())
				assert.Contains(t, st.Message(), tt.expectedError)
				assert.Nil(t, resp)
				return
			}

			require.NoError(t, err)
			points := resp.GetFields()["points"].GetListValue().GetValues()
			require.Len(t, points, tt.expectedLen)
			first := points[0].GetStructValue().GetFields()
			assert.Equal(t, "2024-01-01T00:00:00Z", first["start"].GetStringValue())
			assert.NotEmpty(t, first["resolution"].GetStringValue())
			assert.Equal(t, "KWH", first["unit"].GetStringValue())
			repo.AssertExpectations(t)
		})
	}
}

func TestQueryMeterReadings(t *testing.T) {
	repo := new(mockRepo)
	repo.On("QueryMeterReadings", mock.Anything, []string{testMeteringPoint}, dayStart, dayEnd).
		Return([]models.MeterReadingRow{{
			MeteringPointID: testMeteringPoint,
			ReadAt:          dayStart.Add(6 * time.Hour),
			RegisteredAt:    dayStart.Add(7 * time.Hour),
			MeterNumber:     "12345",
			Value:           1234.5,
			Unit:            "KWH",
		}}, nil)
	svc := server.NewMeterDataService(repo)

	resp, err := svc.QueryMeterReadings(context.Background(), dayRequest(t))
	require.NoError(t, err)

	points := resp.GetFields()["points"].GetListValue().GetValues()
	require.Len(t, points, 1)
	fields := points[0].GetStructValue().GetFields()
	assert.Equal(t, "2024-01-01T06:00:00Z", fields["read_at"].GetStringValue())
	assert.Equal(t, "12345", fields["meter_number"].GetStringValue())
	assert.Equal(t, 1234.5, fields["value"].GetNumberValue())

	_, err = svc.QueryMeterReadings(context.Background(), request(t, map[string]interface{}{
		"start": dayStart.Format(time.RFC3339),
		"end":   dayEnd.Format(time.RFC3339),
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSetupServer(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	repo := new(mockRepo)

	srv, err := server.SetupServer(repo, server.DefaultServerConfig(), logger, prometheus.NewRegistry())
	require.NoError(t, err)
	require.NotNil(t, srv)
	srv.Stop()

	// Test with invalid config
	invalidConfig := server.ServerConfig{
		CacheSize: -1,
	}
	srv, err = server.SetupServer(repo, invalidConfig, logger, prometheus.NewRegistry())
	require.Error(t, err)
	require.Nil(t, srv)
}

func dial(t *testing.T, srv *grpc.Server) *grpc.ClientConn {
	lis := bufconn.Listen(1024 * 1024)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerOverConnection(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo := new(mockRepo)
	repo.On("QueryTimeSeries", mock.Anything, []string{testMeteringPoint}, dayStart, dayEnd).
		Return(samplePoints(), nil).Once()

	srv, err := server.SetupServer(repo, server.DefaultServerConfig(), logger, prometheus.NewRegistry())
	require.NoError(t, err)

	conn := dial(t, srv.Server)
	client := server.NewMeterDataClient(conn)
	ctx := context.Background()

	resp, err := client.QueryTimeSeries(ctx, dayRequest(t))
	require.NoError(t, err)
	assert.Len(t, resp.GetFields()["points"].GetListValue().GetValues(), 3)

	// The second identical call is served from the cache.
	resp, err = client.QueryTimeSeries(ctx, dayRequest(t))
	require.NoError(t, err)
	assert.Len(t, resp.GetFields()["points"].GetListValue().GetValues(), 3)
	repo.AssertNumberOfCalls(t, "QueryTimeSeries", 1)
	assert.Equal(t, 1, srv.Cache.Len())

	_, err = client.QueryTimeSeries(ctx, request(t, map[string]interface{}{"metering_point_id": testMeteringPoint}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	health := grpc_health_v1.NewHealthClient(conn)
	hc, err := health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: server.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, hc.Status)

	srv.Health.Shutdown()
	hc, err = health.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, hc.Status)

	_, err = health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "unknown"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServerRateLimit(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo := new(mockRepo)
	srv, err := server.SetupServer(repo, server.ServerConfig{
		CacheSize:      10,
		RateLimit:      0.001,
		RateLimitBurst: 1,
	}, logger, prometheus.NewRegistry())
	require.NoError(t, err)

	client := server.NewMeterDataClient(dial(t, srv.Server))
	invalid := request(t, map[string]interface{}{})

	_, err = client.QueryMeterReadings(context.Background(), invalid)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.QueryMeterReadings(context.Background(), invalid)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}
