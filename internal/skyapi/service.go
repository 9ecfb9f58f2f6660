package skyapi

import (
	"context"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/thyrannic-sky/calendar"
	"github.com/signalsfoundry/thyrannic-sky/core"
	"github.com/signalsfoundry/thyrannic-sky/internal/logging"
	"github.com/signalsfoundry/thyrannic-sky/kb"
	"github.com/signalsfoundry/thyrannic-sky/model"
)

// Service implements SkyServiceServer over one simulation engine. Requests
// for a specific time are evaluated on a copy of the registry, so queries
// never move the live sky.
type Service struct {
	engine *core.SimulationEngine
	log    logging.Logger
}

var _ SkyServiceServer = (*Service)(nil)

func NewService(engine *core.SimulationEngine, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{engine: engine, log: log}
}

func (s *Service) GetSky(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := logging.FromContext(ctx, s.log)

	snap, err := s.snapshot()
	if err != nil {
		return nil, ToStatusError(err)
	}
	timeValue, requested, err := requestedTime(req)
	if err != nil {
		log.Debug(ctx, "rejecting sky request", logging.Err(err))
		return nil, ToStatusError(err)
	}

	bodies := snap.Bodies
	if requested || !snap.Ticked {
		if !requested {
			timeValue = snap.TimeValue
		}
		bodies, err = core.ComputeSky(snap.Observer, snap.PrimaryID, snap.Bodies, timeValue)
		if err != nil {
			return nil, ToStatusError(err)
		}
	} else {
		timeValue = snap.TimeValue
	}

	out, err := structpb.NewStruct(core.NewFrame(timeValue, bodies).AsMap())
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("encode frame: %w", err))
	}
	log.Debug(ctx, "served sky", logging.Float64("time_value", timeValue), logging.Bool("detached", requested))
	return out, nil
}

func (s *Service) ListBodies(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, ToStatusError(err)
	}

	bodies := make([]any, 0, len(snap.Bodies))
	for i := range snap.Bodies {
		bodies = append(bodies, bodyElements(&snap.Bodies[i]))
	}
	out, err := structpb.NewStruct(map[string]any{
		"observer": map[string]any{
			"name":     snap.Observer.Name,
			"latitude": snap.Observer.Latitude,
			"tilt":     snap.Observer.Tilt,
		},
		"primary":    snap.PrimaryID,
		"time_value": snap.TimeValue,
		"bodies":     bodies,
	})
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("encode bodies: %w", err))
	}
	return out, nil
}

func (s *Service) snapshot() (kb.Snapshot, error) {
	if _, ok := s.engine.KB.Observer(); !ok {
		return kb.Snapshot{}, kb.ErrNoObserver
	}
	snap := s.engine.KB.Snapshot()
	if snap.PrimaryID == "" {
		return kb.Snapshot{}, kb.ErrNoPrimary
	}
	return snap, nil
}

func bodyElements(b *model.Body) map[string]any {
	e := b.Elements
	return map[string]any{
		"id":                       b.ID,
		"name":                     b.Name,
		"inclination":              e.Inclination,
		"ascending_node_longitude": e.AscendingNodeLongitude,
		"periapsis_argument":       e.PeriapsisArgument,
		"eccentricity":             e.Eccentricity,
		"origin_angle":             e.OriginAngle,
		"orbital_period":           e.OrbitalPeriod,
		"mean_distance":            e.MeanDistance,
		"radius":                   e.Radius,
		"angular_diameter":         b.FixedAngularDiameter,
	}
}

// requestedTime reads the optional moment of a GetSky request: either
// "time_value" in hours, or calendar fields with month, day and hour
// defaulting to the start of the year.
func requestedTime(req *structpb.Struct) (float64, bool, error) {
	fields := req.GetFields()
	if _, ok := fields["time_value"]; ok {
		v, err := numberField(fields, "time_value", 0)
		if err != nil {
			return 0, false, err
		}
		return v, true, nil
	}
	if _, ok := fields["year"]; !ok {
		return 0, false, nil
	}

	var vals [4]float64
	for i, f := range []struct {
		name string
		def  float64
	}{{"year", 0}, {"month", 1}, {"day", 1}, {"hour", 0}} {
		v, err := numberField(fields, f.name, f.def)
		if err != nil {
			return 0, false, err
		}
		vals[i] = v
	}
	if vals[0] != math.Trunc(vals[0]) || vals[1] != math.Trunc(vals[1]) || vals[2] != math.Trunc(vals[2]) {
		return 0, false, fmt.Errorf("%w: year, month and day must be whole numbers", ErrInvalidArgument)
	}
	date, err := calendar.DateFromFields(int64(vals[0]), int(vals[1]), int(vals[2]))
	if err != nil {
		return 0, false, err
	}
	return calendar.NewDateTime(date, vals[3]).Value(), true, nil
}

func numberField(fields map[string]*structpb.Value, name string, def float64) (float64, error) {
	v, ok := fields[name]
	if !ok {
		return def, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidArgument, name)
	}
	if math.IsNaN(n.NumberValue) || math.IsInf(n.NumberValue, 0) {
		return 0, fmt.Errorf("%w: %s must be finite", ErrInvalidArgument, name)
	}
	return n.NumberValue, nil
}
