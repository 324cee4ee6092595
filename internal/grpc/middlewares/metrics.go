package middleware

import (
	"context"
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// ServerMetrics are the request collectors of the gRPC server.
type ServerMetrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

// NewServerMetrics registers the request collectors with reg.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	f := promauto.With(reg)
	return &ServerMetrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spotprice",
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "gRPC requests by method and code.",
		}, []string{"method", "code"}),
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spotprice",
			Subsystem: "grpc",
			Name:      "request_duration_seconds",
			Help:      "gRPC request latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (m *ServerMetrics) Interceptor() grpc.UnaryServerInterceptor {
	return NewMetricsInterceptor(m.Requests, m.Latency)
}

func NewMetricsInterceptor(
	requests *prometheus.CounterVec,
	latency *prometheus.HistogramVec,
) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start).Seconds()
		method := path.Base(info.FullMethod)

		requests.WithLabelValues(method, status.Code(err).String()).Inc()
		latency.WithLabelValues(method).Observe(duration)

		return resp, err
	}
}
