package skyapi

import (
	"context"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/thyrannic-sky/core"
	"github.com/signalsfoundry/thyrannic-sky/internal/logging"
	"github.com/signalsfoundry/thyrannic-sky/internal/observability"
	"github.com/signalsfoundry/thyrannic-sky/kb"
)

func newEngine(t *testing.T) *core.SimulationEngine {
	t.Helper()
	store := kb.NewKnowledgeBase()
	if _, err := core.BuildScenario(store, core.DefaultScenario()); err != nil {
		t.Fatalf("BuildScenario: %v", err)
	}
	return core.NewSimulationEngine(store)
}

func dialService(t *testing.T, engine *core.SimulationEngine, collector *observability.SkyCollector) SkyServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(logging.Noop(), collector)
	RegisterSkyServiceServer(srv, NewService(engine, logging.Noop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewSkyServiceClient(conn)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("structpb.NewStruct: %v", err)
	}
	return s
}

func bodyField(t *testing.T, frame *structpb.Struct, id, field string) float64 {
	t.Helper()
	for _, v := range frame.GetFields()["bodies"].GetListValue().GetValues() {
		b := v.GetStructValue().GetFields()
		if b["id"].GetStringValue() == id {
			return b[field].GetNumberValue()
		}
	}
	t.Fatalf("body %q not in frame", id)
	return 0
}

func TestGetSkyAtRequestedTime(t *testing.T) {
	engine := newEngine(t)
	client := dialService(t, engine, nil)

	const value = 4321.5
	resp, err := client.GetSky(context.Background(), mustStruct(t, map[string]any{"time_value": value}))
	if err != nil {
		t.Fatalf("GetSky: %v", err)
	}
	if got := resp.GetFields()["time_value"].GetNumberValue(); got != value {
		t.Fatalf("time_value = %v, want %v", got, value)
	}

	snap := engine.KB.Snapshot()
	if snap.Ticked {
		t.Fatalf("GetSky with time_value must not tick the live sky")
	}
	want, err := core.ComputeSky(snap.Observer, snap.PrimaryID, snap.Bodies, value)
	if err != nil {
		t.Fatalf("ComputeSky: %v", err)
	}
	if got := bodyField(t, resp, "losit", "zenith_angle"); got != want[2].Position.ZenithAngle {
		t.Fatalf("losit zenith = %v, want %v", got, want[2].Position.ZenithAngle)
	}
	if got := resp.GetFields()["clock"].GetStringValue(); got != "1:30 AM" {
		t.Fatalf("clock = %q, want 1:30 AM", got)
	}
}

func TestGetSkyReturnsLastTick(t *testing.T) {
	engine := newEngine(t)
	if err := engine.Tick(50); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	client := dialService(t, engine, nil)

	resp, err := client.GetSky(context.Background(), &structpb.Struct{})
	if err != nil {
		t.Fatalf("GetSky: %v", err)
	}
	if got := resp.GetFields()["time_value"].GetNumberValue(); got != 50 {
		t.Fatalf("time_value = %v, want 50", got)
	}
	sun, _ := engine.KB.GetBody("sun")
	if got := bodyField(t, resp, "sun", "right_ascension"); got != sun.Position.RightAscension {
		t.Fatalf("sun RA = %v, want %v", got, sun.Position.RightAscension)
	}
}

func TestGetSkyCalendarFields(t *testing.T) {
	client := dialService(t, newEngine(t), nil)

	resp, err := client.GetSky(context.Background(), mustStruct(t, map[string]any{
		"year": 2, "month": 3, "day": 4, "hour": 5,
	}))
	if err != nil {
		t.Fatalf("GetSky: %v", err)
	}
	want := float64((2*360+2*30+3)*24 + 5)
	if got := resp.GetFields()["time_value"].GetNumberValue(); got != want {
		t.Fatalf("time_value = %v, want %v", got, want)
	}
	if got := resp.GetFields()["date"].GetStringValue(); got != "Day 4 of Month 3, Year 2" {
		t.Fatalf("date = %q", got)
	}
}

func TestGetSkyInvalidArguments(t *testing.T) {
	client := dialService(t, newEngine(t), nil)

	for _, req := range []map[string]any{
		{"time_value": "noon"},
		{"year": 1, "month": 13},
		{"year": 1.5},
	} {
		_, err := client.GetSky(context.Background(), mustStruct(t, req))
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("GetSky(%v) code = %v, want InvalidArgument", req, status.Code(err))
		}
	}
}

func TestEmptyRegistryIsFailedPrecondition(t *testing.T) {
	client := dialService(t, core.NewSimulationEngine(kb.NewKnowledgeBase()), nil)

	if _, err := client.GetSky(context.Background(), &structpb.Struct{}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("GetSky code = %v, want FailedPrecondition", status.Code(err))
	}
	if _, err := client.ListBodies(context.Background(), &emptypb.Empty{}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("ListBodies code = %v, want FailedPrecondition", status.Code(err))
	}
}

func TestListBodies(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewSkyCollector(reg)
	if err != nil {
		t.Fatalf("NewSkyCollector: %v", err)
	}
	client := dialService(t, newEngine(t), collector)

	resp, err := client.ListBodies(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("ListBodies: %v", err)
	}
	if got := resp.GetFields()["primary"].GetStringValue(); got != "sun" {
		t.Fatalf("primary = %q, want sun", got)
	}
	if got := len(resp.GetFields()["bodies"].GetListValue().GetValues()); got != 3 {
		t.Fatalf("len(bodies) = %d, want 3", got)
	}
	if got := bodyField(t, resp, "losit", "angular_diameter"); got != 0.44 {
		t.Fatalf("losit angular_diameter = %v, want 0.44", got)
	}
	if got := resp.GetFields()["observer"].GetStructValue().GetFields()["latitude"].GetNumberValue(); got != 40 {
		t.Fatalf("observer latitude = %v, want 40", got)
	}
	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SkyService", "ListBodies", "OK")); got != 1 {
		t.Fatalf("sky_rpc_requests_total = %v, want 1", got)
	}
}

func TestRequestIDInterceptorUsesMetadata(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(nil)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "abc123"))

	var gotID string
	var gotLogger logging.Logger
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: GetSkyMethod}, func(ctx context.Context, _ any) (any, error) {
		gotID = logging.RequestIDFromContext(ctx)
		gotLogger = logging.FromContext(ctx, nil)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if gotID != "abc123" {
		t.Fatalf("request id = %q, want abc123", gotID)
	}
	if gotLogger == nil {
		t.Fatalf("no logger on context")
	}
}
