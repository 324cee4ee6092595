package server_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	server "github.com/tejusbharadwaj/spotprice/internal/grpc"
	"github.com/tejusbharadwaj/spotprice/internal/grpc/mocks"
	"github.com/tejusbharadwaj/spotprice/internal/models"
)

func price(v float64) *float64 { return &v }

func sampleResult(area string) *models.PipelineResult {
	return &models.PipelineResult{
		IntervalPriceData: models.IntervalPriceData{
			Area:                area,
			Source:              models.SourceEnergyCharts,
			TargetCurrency:      "SEK",
			IntervalMinutes:     15,
			TodayIntervalPrices: models.IntervalPrices{"10:00": 140.625, "10:15": 120.5},
		},
		CurrentIntervalKey: "10:00",
		NextIntervalKey:    "10:15",
		CurrentPrice:       price(140.625),
		NextIntervalPrice:  price(120.5),
	}
}

func TestGetPrices(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockFetcher := mocks.NewMockPriceFetcher(ctrl)
	mockFetcher.EXPECT().Areas().Return([]string{"SE3"}).AnyTimes()

	svc := server.NewPriceService(mockFetcher)

	tests := []struct {
		name          string
		request       *server.GetPricesRequest
		setupMock     func()
		expectedCode  codes.Code
		expectedError string
	}{
		{
			name:    "Success case",
			request: &server.GetPricesRequest{Area: "se3"},
			setupMock: func() {
				mockFetcher.EXPECT().Fetch(gomock.Any(), "SE3", false).Return(sampleResult("SE3"))
			},
			expectedCode: codes.OK,
		},
		{
			name:    "Forced refresh",
			request: &server.GetPricesRequest{Area: "SE3", Force: true},
			setupMock: func() {
				mockFetcher.EXPECT().Fetch(gomock.Any(), "SE3", true).Return(sampleResult("SE3"))
			},
			expectedCode: codes.OK,
		},
		{
			name:          "Missing area",
			request:       &server.GetPricesRequest{},
			setupMock:     func() {},
			expectedCode:  codes.InvalidArgument,
			expectedError: "missing area",
		},
		{
			name:          "Unknown area",
			request:       &server.GetPricesRequest{Area: "DK1"},
			setupMock:     func() {},
			expectedCode:  codes.InvalidArgument,
			expectedError: "unknown area: DK1",
		},
		{
			name:    "Nil result",
			request: &server.GetPricesRequest{Area: "SE3"},
			setupMock: func() {
				mockFetcher.EXPECT().Fetch(gomock.Any(), "SE3", false).Return(nil)
			},
			expectedCode:  codes.Internal,
			expectedError: "no result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()

			resp, err := svc.GetPrices(context.Background(), tt.request)

			if tt.expectedCode != codes.OK {
				require.Error(t, err)
				st, ok := status.FromError(err)
				require.True(t, ok)
				assert.Equal(t, tt.expectedCode, st.Code())
				assert.Contains(t, st.Message(), tt.expectedError)
				assert.Nil(t, resp)
			} else {
				require.NoError(t, err)
				require.NotNil(t, resp)
				require.NotNil(t, resp.Result.CurrentPrice)
				assert.Equal(t, 140.625, *resp.Result.CurrentPrice)
			}
		})
	}
}

func TestGetPricesReportsPipelineErrorInResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockFetcher := mocks.NewMockPriceFetcher(ctrl)
	mockFetcher.EXPECT().Areas().Return([]string{"SE3"}).AnyTimes()
	failed := &models.PipelineResult{Error: "rate limited: no cached data for SE3"}
	failed.Area = "SE3"
	mockFetcher.EXPECT().Fetch(gomock.Any(), "SE3", false).Return(failed)

	resp, err := server.NewPriceService(mockFetcher).GetPrices(context.Background(), &server.GetPricesRequest{Area: "SE3"})
	require.NoError(t, err)
	assert.Contains(t, resp.Result.Error, "rate limited")
	assert.False(t, resp.Cacheable())
}

func TestGetPricesResponseExpiresAtIntervalEnd(t *testing.T) {
	r := sampleResult("SE3")
	r.TargetTimezone = "Europe/Stockholm"
	resp := &server.GetPricesResponse{Result: r}

	now := time.Date(2025, 1, 15, 9, 14, 50, 0, time.UTC) // 10:14:50 local
	assert.Equal(t, time.Date(2025, 1, 15, 9, 15, 0, 0, time.UTC), resp.ExpiresAt(now))

	r.IntervalMinutes = 60
	assert.Equal(t, time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC), resp.ExpiresAt(now))

	assert.True(t, (&server.GetPricesResponse{}).ExpiresAt(now).IsZero())
}

func TestListAreas(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockFetcher := mocks.NewMockPriceFetcher(ctrl)
	mockFetcher.EXPECT().Areas().Return([]string{"FI", "SE3"}).AnyTimes()
	mockFetcher.EXPECT().Settings("FI").Return(models.AreaSettings{Timezone: "Europe/Helsinki", Currency: "EUR", IntervalMinutes: 15}, true)
	mockFetcher.EXPECT().Settings("SE3").Return(models.AreaSettings{Timezone: "Europe/Stockholm", Currency: "SEK", IntervalMinutes: 15, IncludeVAT: true}, true)

	resp, err := server.NewPriceService(mockFetcher).ListAreas(context.Background(), &server.ListAreasRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Areas, 2)
	assert.Equal(t, "FI", resp.Areas[0].Area)
	assert.Equal(t, "SEK", resp.Areas[1].Currency)
	assert.True(t, resp.Areas[1].VATIncluded)
}

func TestSetupServer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockFetcher := mocks.NewMockPriceFetcher(ctrl)
	mockFetcher.EXPECT().Areas().Return([]string{"SE3"}).AnyTimes()

	srv, health, err := server.SetupServer(mockFetcher, server.DefaultServerConfig(), quietLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	require.NotNil(t, srv)
	require.NotNil(t, health)

	// Test with invalid config
	invalidConfig := server.ServerConfig{
		CacheSize: -1,
	}
	srv, _, err = server.SetupServer(mockFetcher, invalidConfig, quietLogger(), prometheus.NewRegistry())
	require.Error(t, err)
	require.Nil(t, srv)
}

func TestServeOverBufconn(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockFetcher := mocks.NewMockPriceFetcher(ctrl)
	mockFetcher.EXPECT().Areas().Return([]string{"SE3"}).AnyTimes()
	// Second identical call is served from the response cache.
	mockFetcher.EXPECT().Fetch(gomock.Any(), "SE3", false).Return(sampleResult("SE3")).Times(1)

	srv, health, err := server.SetupServer(mockFetcher, server.DefaultServerConfig(), quietLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := server.NewPriceClient(conn)
	for i := 0; i < 2; i++ {
		resp, err := client.GetPrices(ctx, &server.GetPricesRequest{Area: "SE3"})
		require.NoError(t, err)
		require.NotNil(t, resp.Result.CurrentPrice)
		assert.Equal(t, 140.625, *resp.Result.CurrentPrice)
		assert.Equal(t, "10:00", resp.Result.CurrentIntervalKey)
		assert.Equal(t, 120.5, resp.Result.TodayIntervalPrices["10:15"])
	}

	_, err = client.GetPrices(ctx, &server.GetPricesRequest{Area: "nowhere"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	hc := grpc_health_v1.NewHealthClient(conn)
	check := func(service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
		resp, err := hc.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.Status
	}
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(server.ServiceName))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(server.AreaService("SE3")))

	health.Observe(sampleResult("SE3"))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(server.AreaService("se3")))

	_, err = hc.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "area/XX"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
