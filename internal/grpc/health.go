package server

import (
	"context"
	"strings"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// HealthChecker implements the gRPC health checking protocol. Besides the
// server itself ("") and PriceService, every area is a service of its own
// named by AreaService.
type HealthChecker struct {
	grpc_health_v1.UnimplementedHealthServer
	mu     sync.RWMutex
	status map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		status: make(map[string]grpc_health_v1.HealthCheckResponse_ServingStatus),
	}
}

// AreaService is the health service name of area.
func AreaService(area string) string {
	return "area/" + strings.ToUpper(area)
}

func (h *HealthChecker) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if status, ok := h.status[req.Service]; ok {
		return &grpc_health_v1.HealthCheckResponse{
			Status: status,
		}, nil
	}

	return nil, status.Error(codes.NotFound, "unknown service")
}

func (h *HealthChecker) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "watching is not supported")
}

// SetServingStatus sets the serving status of a service
func (h *HealthChecker) SetServingStatus(service string, status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[service] = status
}

// Observe updates the area's status from a fetch cycle result. An area is
// serving while it has a price for the current interval.
func (h *HealthChecker) Observe(r *models.PipelineResult) {
	if r == nil || r.Area == "" {
		return
	}
	s := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if r.CurrentPrice != nil {
		s = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.SetServingStatus(AreaService(r.Area), s)
}
