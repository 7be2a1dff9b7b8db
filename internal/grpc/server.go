package server

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	middleware "github.com/tejusbharadwaj/eloverblik/internal/grpc/middlewares"
	"github.com/tejusbharadwaj/eloverblik/internal/models"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "eloverblik.v1.MeterDataService"

// ServerConfig holds configuration options for the gRPC server
type ServerConfig struct {
	CacheSize      int     // Size of the LRU cache
	RateLimit      float64 // Requests per second
	RateLimitBurst int     // Maximum burst size for rate limiting
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		CacheSize:      1000,
		RateLimit:      5.0, // 5 requests per second
		RateLimitBurst: 10,  // Burst of 10 requests
	}
}

// DataRepository is the read side of database.MeterDataRepository.
type DataRepository interface {
	QueryTimeSeries(ctx context.Context, meteringPointIDs []string, start, end time.Time) ([]models.TimeSeriesPoint, error)
	QueryMeterReadings(ctx context.Context, meteringPointIDs []string, start, end time.Time) ([]models.MeterReadingRow, error)
}

// MeterDataServer is the server API of MeterDataService. Requests and
// responses are google.protobuf.Struct messages.
type MeterDataServer interface {
	QueryTimeSeries(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QueryMeterReadings(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// MeterDataServiceDesc describes MeterDataService for grpc.Server.RegisterService.
var MeterDataServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MeterDataServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "QueryTimeSeries", Handler: queryTimeSeriesHandler},
		{MethodName: "QueryMeterReadings", Handler: queryMeterReadingsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eloverblik/v1/meterdata.proto",
}

func queryTimeSeriesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MeterDataServer).QueryTimeSeries(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/QueryTimeSeries",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MeterDataServer).QueryTimeSeries(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func queryMeterReadingsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MeterDataServer).QueryMeterReadings(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/QueryMeterReadings",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MeterDataServer).QueryMeterReadings(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// MeterDataClient calls MeterDataService over a client connection.
type MeterDataClient struct {
	cc grpc.ClientConnInterface
}

func NewMeterDataClient(cc grpc.ClientConnInterface) *MeterDataClient {
	return &MeterDataClient{cc: cc}
}

func (c *MeterDataClient) QueryTimeSeries(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/QueryTimeSeries", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MeterDataClient) QueryMeterReadings(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/QueryMeterReadings", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// MeterDataService serves stored meter data
type MeterDataService struct {
	repository DataRepository
	validator  *RequestValidator
}

// NewMeterDataService creates a new service instance
func NewMeterDataService(repo DataRepository) *MeterDataService {
	return &MeterDataService{
		repository: repo,
		validator:  NewRequestValidator(),
	}
}

// QueryTimeSeries returns the stored interval values of one metering point
// whose period starts in [start, end), optionally limited to one resolution.
func (s *MeterDataService) QueryTimeSeries(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := s.validator.Parse(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	points, err := s.repository.QueryTimeSeries(ctx, []string{q.MeteringPointID}, q.Start, q.End)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "query failed: %v", err)
	}

	values := make([]interface{}, 0, len(points))
	for _, p := range points {
		if q.Resolution != "" && p.Resolution != q.Resolution {
			continue
		}
		values = append(values, map[string]interface{}{
			"start":      p.PeriodStart.UTC().Format(time.RFC3339),
			"end":        p.PeriodEnd.UTC().Format(time.RFC3339),
			"resolution": p.Resolution,
			"position":   float64(p.Position),
			"quantity":   p.Quantity,
			"quality":    p.Quality,
			"unit":       p.Unit,
		})
	}
	return pointsResponse(values)
}

// QueryMeterReadings returns the stored register readings of one metering
// point read in [start, end).
func (s *MeterDataService) QueryMeterReadings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := s.validator.Parse(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	readings, err := s.repository.QueryMeterReadings(ctx, []string{q.MeteringPointID}, q.Start, q.End)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "query failed: %v", err)
	}

	values := make([]interface{}, 0, len(readings))
	for _, r := range readings {
		values = append(values, map[string]interface{}{
			"read_at":       r.ReadAt.Format(time.RFC3339),
			"registered_at": r.RegisteredAt.Format(time.RFC3339),
			"meter_number":  r.MeterNumber,
			"value":         r.Value,
			"unit":          r.Unit,
		})
	}
	return pointsResponse(values)
}

func pointsResponse(values []interface{}) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(map[string]interface{}{"points": values})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return resp, nil
}

// gRPC Server Configuration without the middleware (for development and debug only)
func ConfigureGRPCServer(
	repo DataRepository,
	opts ...grpc.ServerOption,
) *grpc.Server {
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&MeterDataServiceDesc, NewMeterDataService(repo))
	return srv
}

// Server bundles the gRPC server with the parts the command manages.
type Server struct {
	*grpc.Server
	Health *HealthChecker
	Cache  *middleware.ResponseCache
}

// SetupServer initializes and configures the gRPC server with all middleware
func SetupServer(repo DataRepository, config ServerConfig, logger *logrus.Logger, reg prometheus.Registerer) (*Server, error) {
	cache, err := middleware.NewResponseCache(config.CacheSize)
	if err != nil {
		return nil, err
	}

	metrics, err := middleware.NewServerMetrics(reg)
	if err != nil {
		return nil, err
	}

	// Create server with chained interceptors
	server := grpc.NewServer(
		grpc.UnaryInterceptor(
			chainUnaryInterceptors(
				// Add request ID first
				middleware.ContextMiddleware,
				// Rate limit early
				middleware.NewRateLimitingInterceptor(config.RateLimit, config.RateLimitBurst),
				// Log all requests (with request ID)
				middleware.NewLoggingInterceptor(logger),
				middleware.NewMetricsInterceptor(metrics.Requests, metrics.Latency),
				// Cache last to avoid caching errors
				cache.Interceptor,
			),
		),
	)

	server.RegisterService(&MeterDataServiceDesc, NewMeterDataService(repo))

	health := NewHealthChecker()
	health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(server, health)

	return &Server{Server: server, Health: health, Cache: cache}, nil
}

// chainUnaryInterceptors creates a single interceptor from multiple interceptors
func chainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor := interceptors[i]
			chainedInterceptor := chain
			chain = func(currentCtx context.Context, currentReq interface{}) (interface{}, error) {
				return interceptor(currentCtx, currentReq, info, chainedInterceptor)
			}
		}
		return chain(ctx, req)
	}
}
