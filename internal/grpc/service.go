package server

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tejusbharadwaj/spotprice/internal/interval"
	"github.com/tejusbharadwaj/spotprice/internal/models"
)

//go:generate mockgen -destination=mocks/fetcher.go -package=mocks github.com/tejusbharadwaj/spotprice/internal/grpc PriceFetcher

const (
	ServiceName     = "spotprice.v1.PriceService"
	GetPricesMethod = "/" + ServiceName + "/GetPrices"
	ListAreasMethod = "/" + ServiceName + "/ListAreas"
	getPricesName   = "GetPrices"
	listAreasName   = "ListAreas"
)

// PriceFetcher is the pipeline as seen by the service.
type PriceFetcher interface {
	Areas() []string
	Settings(area string) (models.AreaSettings, bool)
	Fetch(ctx context.Context, area string, force bool) *models.PipelineResult
}

type GetPricesRequest struct {
	Area  string `json:"area"`
	Force bool   `json:"force,omitempty"`
}

// SkipCache keeps forced refreshes out of the response cache.
func (r *GetPricesRequest) SkipCache() bool { return r.Force }

type GetPricesResponse struct {
	Result *models.PipelineResult `json:"result"`
}

// Cacheable reports whether the response may be served again.
func (r *GetPricesResponse) Cacheable() bool {
	return r.Result != nil && r.Result.Error == ""
}

// ExpiresAt is the end of the interval containing now. The current and next
// prices of the response are stale from then on.
func (r *GetPricesResponse) ExpiresAt(now time.Time) time.Time {
	if r.Result == nil || r.Result.IntervalMinutes <= 0 {
		return time.Time{}
	}
	loc, err := time.LoadLocation(r.Result.TargetTimezone)
	if err != nil {
		return time.Time{}
	}
	width := time.Duration(r.Result.IntervalMinutes) * time.Minute
	return interval.Floor(now, r.Result.IntervalMinutes, loc).Add(width)
}

type ListAreasRequest struct{}

type AreaInfo struct {
	Area            string             `json:"area"`
	Timezone        string             `json:"timezone"`
	Currency        string             `json:"currency"`
	IntervalMinutes int                `json:"interval_minutes"`
	DisplayUnit     models.DisplayUnit `json:"display_unit"`
	VATIncluded     bool               `json:"vat_included"`
}

type ListAreasResponse struct {
	Areas []AreaInfo `json:"areas"`
}

// PriceServer is implemented by PriceService.
type PriceServer interface {
	GetPrices(ctx context.Context, req *GetPricesRequest) (*GetPricesResponse, error)
	ListAreas(ctx context.Context, req *ListAreasRequest) (*ListAreasResponse, error)
}

// PriceService serves pipeline results over gRPC.
type PriceService struct {
	fetcher   PriceFetcher
	validator *RequestValidator
}

func NewPriceService(fetcher PriceFetcher) *PriceService {
	return &PriceService{
		fetcher:   fetcher,
		validator: NewRequestValidator(fetcher.Areas()),
	}
}

// GetPrices runs a fetch cycle for the requested area. Pipeline failures are
// reported in Result.Error, not as a gRPC status.
func (s *PriceService) GetPrices(ctx context.Context, req *GetPricesRequest) (*GetPricesResponse, error) {
	if err := s.validator.Validate(req.Area); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	r := s.fetcher.Fetch(ctx, strings.ToUpper(req.Area), req.Force)
	if r == nil {
		return nil, status.Error(codes.Internal, "pipeline returned no result")
	}
	if ctx.Err() != nil {
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	return &GetPricesResponse{Result: r}, nil
}

func (s *PriceService) ListAreas(_ context.Context, _ *ListAreasRequest) (*ListAreasResponse, error) {
	resp := &ListAreasResponse{}
	for _, area := range s.fetcher.Areas() {
		settings, ok := s.fetcher.Settings(area)
		if !ok {
			continue
		}
		resp.Areas = append(resp.Areas, AreaInfo{
			Area:            area,
			Timezone:        settings.Timezone,
			Currency:        settings.Currency,
			IntervalMinutes: settings.IntervalMinutes,
			DisplayUnit:     settings.DisplayUnit,
			VATIncluded:     settings.IncludeVAT,
		})
	}
	return resp, nil
}

// PriceServiceDesc describes PriceService for grpc.Server.RegisterService.
var PriceServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PriceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: getPricesName, Handler: getPricesHandler},
		{MethodName: listAreasName, Handler: listAreasHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterPriceServer(s grpc.ServiceRegistrar, srv PriceServer) {
	s.RegisterService(&PriceServiceDesc, srv)
}

func getPricesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetPricesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PriceServer).GetPrices(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetPricesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PriceServer).GetPrices(ctx, req.(*GetPricesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listAreasHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListAreasRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PriceServer).ListAreas(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListAreasMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PriceServer).ListAreas(ctx, req.(*ListAreasRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// PriceClient calls PriceService using the JSON codec.
type PriceClient struct {
	cc grpc.ClientConnInterface
}

func NewPriceClient(cc grpc.ClientConnInterface) *PriceClient {
	return &PriceClient{cc: cc}
}

func (c *PriceClient) GetPrices(ctx context.Context, in *GetPricesRequest, opts ...grpc.CallOption) (*GetPricesResponse, error) {
	out := new(GetPricesResponse)
	if err := c.cc.Invoke(ctx, GetPricesMethod, in, out, c.callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PriceClient) ListAreas(ctx context.Context, opts ...grpc.CallOption) (*ListAreasResponse, error) {
	out := new(ListAreasResponse)
	if err := c.cc.Invoke(ctx, ListAreasMethod, &ListAreasRequest{}, out, c.callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PriceClient) callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
