package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// SkyCollector bundles the Prometheus metrics of a running sky: tick
// throughput, body altitudes, the gRPC surface and the websocket feed.
// It satisfies core.TickRecorder.
type SkyCollector struct {
	gatherer prometheus.Gatherer

	Ticks        prometheus.Counter
	TickDuration prometheus.Histogram
	TimeValue    prometheus.Gauge
	BodyAltitude *prometheus.GaugeVec

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	FeedClients     prometheus.Gauge
	EphemerisFrames prometheus.Counter
}

// NewSkyCollector registers sky metrics against reg, defaulting to the
// global registry when nil. Registering twice against the same registry
// reuses the existing collectors.
func NewSkyCollector(reg prometheus.Registerer) (*SkyCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &SkyCollector{gatherer: gatherer}

	var err error
	if c.Ticks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sky_ticks_total",
		Help: "Number of completed sky ticks.",
	}), "sky_ticks_total"); err != nil {
		return nil, err
	}
	if c.TickDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sky_tick_duration_seconds",
		Help:    "Wall time spent recomputing every body for one tick.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "sky_tick_duration_seconds"); err != nil {
		return nil, err
	}
	if c.TimeValue, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sky_time_value_hours",
		Help: "Simulated time of the last tick, in hours since the epoch.",
	}), "sky_time_value_hours"); err != nil {
		return nil, err
	}
	if c.BodyAltitude, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sky_body_altitude_degrees",
		Help: "Altitude above the horizon of each body at the last tick.",
	}, []string{"body"}), "sky_body_altitude_degrees"); err != nil {
		return nil, err
	}
	if c.RPCRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sky_rpc_requests_total",
		Help: "Handled sky RPCs, labeled by service, method and gRPC status code.",
	}, []string{"service", "method", "code"}), "sky_rpc_requests_total"); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sky_rpc_duration_seconds",
		Help:    "Sky RPC latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method"}), "sky_rpc_duration_seconds"); err != nil {
		return nil, err
	}
	if c.FeedClients, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sky_feed_clients",
		Help: "Connected websocket feed clients.",
	}), "sky_feed_clients"); err != nil {
		return nil, err
	}
	if c.EphemerisFrames, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sky_ephemeris_frames_total",
		Help: "Frames written to the ephemeris store.",
	}), "sky_ephemeris_frames_total"); err != nil {
		return nil, err
	}
	return c, nil
}

// ObserveTick records one completed tick.
func (c *SkyCollector) ObserveTick(timeValue float64, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickDuration.Observe(elapsed.Seconds())
	c.TimeValue.Set(timeValue)
}

func (c *SkyCollector) SetBodyAltitude(bodyID string, altitude float64) {
	if c == nil {
		return
	}
	c.BodyAltitude.WithLabelValues(bodyID).Set(altitude)
}

func (c *SkyCollector) SetFeedClients(n int) {
	if c == nil {
		return
	}
	c.FeedClients.Set(float64(n))
}

func (c *SkyCollector) IncEphemerisFrames() {
	if c == nil {
		return
	}
	c.EphemerisFrames.Inc()
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *SkyCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *SkyCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod turns "/pkg.Service/Method" into ("Service", "Method"), or
// "unknown" for either part it cannot find.
func SplitMethod(fullMethod string) (string, string) {
	parts := strings.Split(strings.TrimPrefix(fullMethod, "/"), "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service, method := parts[len(parts)-2], parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var zero C
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
		return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
	}
	return zero, err
}
