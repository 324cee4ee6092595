package server

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	middleware "github.com/tejusbharadwaj/spotprice/internal/grpc/middlewares"
)

// ServerConfig holds configuration options for the gRPC server
type ServerConfig struct {
	CacheSize      int           // Size of the LRU response cache
	CacheTTL       time.Duration // How long a cached response is served
	RateLimit      float64       // Requests per second
	RateLimitBurst int           // Maximum burst size for rate limiting
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		CacheSize:      256,
		CacheTTL:       30 * time.Second,
		RateLimit:      10.0,
		RateLimitBurst: 20,
	}
}

// ConfigureGRPCServer registers the service without middleware (for
// development and debug only).
func ConfigureGRPCServer(fetcher PriceFetcher, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	RegisterPriceServer(srv, NewPriceService(fetcher))
	return srv
}

// SetupServer initializes the gRPC server with all middleware, the price
// service and the health service. Metrics are registered with reg.
func SetupServer(fetcher PriceFetcher, config ServerConfig, logger *logrus.Logger, reg prometheus.Registerer) (*grpc.Server, *HealthChecker, error) {
	cache, err := middleware.NewResponseCache(config.CacheSize, config.CacheTTL)
	if err != nil {
		return nil, nil, err
	}
	metrics := middleware.NewServerMetrics(reg)

	server := grpc.NewServer(
		grpc.UnaryInterceptor(
			chainUnaryInterceptors(
				middleware.ContextMiddleware,                                       // Add request ID first
				middleware.NewRateLimiter(config.RateLimit, config.RateLimitBurst), // Rate limit early
				middleware.NewLoggingInterceptor(logger),                           // Log all requests (with request ID)
				metrics.Interceptor(),                                              // Collect metrics
				cache.Interceptor,                                                  // Cache last to avoid caching errors
			),
		),
	)

	RegisterPriceServer(server, NewPriceService(fetcher))

	health := NewHealthChecker()
	health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	for _, area := range fetcher.Areas() {
		health.SetServingStatus(AreaService(area), grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	grpc_health_v1.RegisterHealthServer(server, health)

	return server, health, nil
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
