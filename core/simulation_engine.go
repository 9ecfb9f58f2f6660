package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/thyrannic-sky/internal/logging"
	"github.com/signalsfoundry/thyrannic-sky/kb"
	"github.com/signalsfoundry/thyrannic-sky/model"
)

const tracerName = "github.com/signalsfoundry/thyrannic-sky/core"

// TickRecorder receives per-tick measurements. It is satisfied by
// observability.SkyCollector.
type TickRecorder interface {
	ObserveTick(timeValue float64, elapsed time.Duration)
	SetBodyAltitude(bodyID string, altitude float64)
}

// bodyAltitude is captured inside the tick so metrics always describe the
// same tick as ObserveTick.
type bodyAltitude struct {
	id       string
	altitude float64
}

// EngineOption customises a SimulationEngine.
type EngineOption func(*SimulationEngine)

// WithLogger sets the engine logger.
func WithLogger(log logging.Logger) EngineOption {
	return func(se *SimulationEngine) {
		if log != nil {
			se.log = log
		}
	}
}

// WithMetricsRecorder wires a recorder that observes every tick.
func WithMetricsRecorder(m TickRecorder) EngineOption {
	return func(se *SimulationEngine) {
		se.metrics = m
	}
}

// SimulationEngine advances every body of one sky together. It owns the
// registry it was built with; independent engines share nothing.
type SimulationEngine struct {
	KB *kb.KnowledgeBase

	// serialises ticks so the primary-first ordering can never interleave
	mu sync.Mutex

	log           logging.Logger
	metrics       TickRecorder
	tracer        trace.Tracer
	tickListeners []func(float64)
}

// NewSimulationEngine builds an engine over store.
func NewSimulationEngine(store *kb.KnowledgeBase, opts ...EngineOption) *SimulationEngine {
	se := &SimulationEngine{
		KB:     store,
		log:    logging.Noop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(se)
	}
	return se
}

// RegisterTickListener adds a callback invoked with the time value after
// every successful tick.
func (se *SimulationEngine) RegisterTickListener(fn func(float64)) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.tickListeners = append(se.tickListeners, fn)
}

// Tick recomputes every body for timeValue (hours since the epoch). The
// primary body's equatorial position is computed first; every hour angle
// then uses that fresh right ascension. Ticking twice with the same value
// gives the same positions.
//
// Non-finite time values produce non-finite positions, not errors. Errors
// only report an incomplete registry.
func (se *SimulationEngine) Tick(timeValue float64) error {
	return se.TickContext(context.Background(), timeValue)
}

// TickContext is Tick with a parent context for tracing.
func (se *SimulationEngine) TickContext(ctx context.Context, timeValue float64) error {
	ctx, span := se.tracer.Start(ctx, "sky.tick", trace.WithAttributes(
		attribute.Float64("sky.time_value", timeValue),
	))
	defer span.End()

	se.mu.Lock()
	start := time.Now()
	var altitudes []bodyAltitude
	err := se.KB.UpdatePositions(timeValue, func(obs model.ObserverState, primary *model.Body, bodies []*model.Body) {
		advance(obs, primary, bodies, timeValue)
		altitudes = make([]bodyAltitude, 0, len(bodies))
		for _, b := range bodies {
			altitudes = append(altitudes, bodyAltitude{id: b.ID, altitude: b.Position.Altitude()})
		}
	})
	elapsed := time.Since(start)
	listeners := append([]func(float64){}, se.tickListeners...)
	se.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		se.log.Warn(ctx, "sky tick skipped", logging.Float64("time_value", timeValue), logging.Err(err))
		return fmt.Errorf("tick %v: %w", timeValue, err)
	}

	if se.metrics != nil {
		se.metrics.ObserveTick(timeValue, elapsed)
		for _, a := range altitudes {
			se.metrics.SetBodyAltitude(a.id, a.altitude)
		}
	}
	se.log.Debug(ctx, "sky tick", logging.Float64("time_value", timeValue), logging.Any("elapsed", elapsed))

	for _, fn := range listeners {
		fn(timeValue)
	}
	return nil
}

// ComputeSky evaluates a detached copy of a sky at timeValue without
// touching any registry. bodies must contain the primary.
func ComputeSky(obs model.ObserverState, primaryID string, bodies []model.Body, timeValue float64) ([]model.Body, error) {
	out := make([]model.Body, len(bodies))
	copy(out, bodies)

	ptrs := make([]*model.Body, len(out))
	var primary *model.Body
	for i := range out {
		ptrs[i] = &out[i]
		if out[i].ID == primaryID {
			primary = &out[i]
		}
	}
	if primary == nil {
		return nil, fmt.Errorf("%w: %q", kb.ErrNoPrimary, primaryID)
	}
	advance(obs, primary, ptrs, timeValue)
	return out, nil
}
