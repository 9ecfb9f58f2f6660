package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/signalsfoundry/thyrannic-sky/kb"
	"github.com/signalsfoundry/thyrannic-sky/model"
)

// ErrInvalidScenario is returned for structurally broken sky definitions.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario defines a sky: the observer, the primary body and its
// companions. It decodes from JSON and, through the config package, YAML.
type Scenario struct {
	Observer ObserverSpec `json:"observer" mapstructure:"observer"`
	Primary  string       `json:"primary" mapstructure:"primary"`
	Bodies   []BodySpec   `json:"bodies" mapstructure:"bodies"`
}

// ObserverSpec is the observer planet.
type ObserverSpec struct {
	Name     string  `json:"name" mapstructure:"name"`
	Latitude float64 `json:"latitude" mapstructure:"latitude"`
	Tilt     float64 `json:"tilt" mapstructure:"tilt"`
}

// BodySpec is one body's configuration. A secondary body may give its
// period as seen against the primary (SynodicPeriod) and its origin angle
// as an offset from the primary's.
type BodySpec struct {
	ID                      string  `json:"id" mapstructure:"id"`
	Name                    string  `json:"name" mapstructure:"name"`
	Inclination             float64 `json:"inclination" mapstructure:"inclination"`
	AscendingNodeLongitude  float64 `json:"ascending_node_longitude" mapstructure:"ascending_node_longitude"`
	PeriapsisArgument       float64 `json:"periapsis_argument" mapstructure:"periapsis_argument"`
	Eccentricity            float64 `json:"eccentricity" mapstructure:"eccentricity"`
	OriginAngle             float64 `json:"origin_angle" mapstructure:"origin_angle"`
	OriginRelativeToPrimary bool    `json:"origin_relative_to_primary" mapstructure:"origin_relative_to_primary"`
	OrbitalPeriod           float64 `json:"orbital_period" mapstructure:"orbital_period"`
	SynodicPeriod           float64 `json:"synodic_period" mapstructure:"synodic_period"`
	MeanDistance            float64 `json:"mean_distance" mapstructure:"mean_distance"`
	Radius                  float64 `json:"radius" mapstructure:"radius"`
	AngularDiameter         float64 `json:"angular_diameter" mapstructure:"angular_diameter"`
}

// ScenarioSummary reports what was registered.
type ScenarioSummary struct {
	Observer  string
	PrimaryID string
	BodyIDs   []string
}

// LoadScenario decodes a JSON scenario from r and registers it in store.
func LoadScenario(store *kb.KnowledgeBase, r io.Reader) (*ScenarioSummary, error) {
	var sc Scenario
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}
	return BuildScenario(store, sc)
}

// BuildScenario registers the observer and every body of sc in store. The
// primary is registered first so that synodic periods and relative origin
// angles can be resolved against it.
func BuildScenario(store *kb.KnowledgeBase, sc Scenario) (*ScenarioSummary, error) {
	if store == nil {
		return nil, fmt.Errorf("BuildScenario: kb is nil")
	}
	if sc.Primary == "" {
		return nil, fmt.Errorf("%w: no primary body named", ErrInvalidScenario)
	}

	var primarySpec *BodySpec
	for i := range sc.Bodies {
		if sc.Bodies[i].ID == sc.Primary {
			primarySpec = &sc.Bodies[i]
			break
		}
	}
	if primarySpec == nil {
		return nil, fmt.Errorf("%w: primary %q is not among the bodies", ErrInvalidScenario, sc.Primary)
	}
	if primarySpec.SynodicPeriod != 0 || primarySpec.OriginRelativeToPrimary {
		return nil, fmt.Errorf("%w: primary %q cannot be defined relative to itself", ErrInvalidScenario, sc.Primary)
	}

	if err := store.SetObserver(model.ObserverState{
		Name:     sc.Observer.Name,
		Latitude: sc.Observer.Latitude,
		Tilt:     sc.Observer.Tilt,
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}

	primary, err := primarySpec.body(nil)
	if err != nil {
		return nil, err
	}
	if err := store.AddBody(primary); err != nil {
		return nil, err
	}
	if err := store.SetPrimary(primary.ID); err != nil {
		return nil, err
	}

	summary := &ScenarioSummary{
		Observer:  sc.Observer.Name,
		PrimaryID: primary.ID,
		BodyIDs:   []string{primary.ID},
	}
	for i := range sc.Bodies {
		spec := &sc.Bodies[i]
		if spec.ID == sc.Primary {
			continue
		}
		b, err := spec.body(&primary.Elements)
		if err != nil {
			return nil, err
		}
		if err := store.AddBody(b); err != nil {
			return nil, err
		}
		summary.BodyIDs = append(summary.BodyIDs, b.ID)
	}
	return summary, nil
}

func (s *BodySpec) body(primary *model.OrbitalElements) (*model.Body, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("%w: body with empty id", ErrInvalidScenario)
	}
	elems := model.OrbitalElements{
		Inclination:            s.Inclination,
		AscendingNodeLongitude: s.AscendingNodeLongitude,
		PeriapsisArgument:      s.PeriapsisArgument,
		Eccentricity:           s.Eccentricity,
		OriginAngle:            s.OriginAngle,
		OrbitalPeriod:          s.OrbitalPeriod,
		MeanDistance:           s.MeanDistance,
		Radius:                 s.Radius,
	}

	if s.SynodicPeriod != 0 {
		if s.OrbitalPeriod != 0 {
			return nil, fmt.Errorf("%w: body %q sets both orbital_period and synodic_period", ErrInvalidScenario, s.ID)
		}
		if s.SynodicPeriod < 0 {
			return nil, fmt.Errorf("%w: body %q synodic_period must be positive", ErrInvalidScenario, s.ID)
		}
		elems.OrbitalPeriod = model.SynodicToSiderealPeriod(s.SynodicPeriod, primary.OrbitalPeriod)
	}
	if s.OriginRelativeToPrimary {
		elems.OriginAngle += primary.OriginAngle
	}

	name := s.Name
	if name == "" {
		name = s.ID
	}
	return &model.Body{
		ID:                   s.ID,
		Name:                 name,
		Elements:             elems,
		FixedAngularDiameter: s.AngularDiameter,
	}, nil
}

// DefaultScenario is the built-in Thyrannic sky: the sun as primary with
// Arukma and Losit as companions, seen from the observer planet.
func DefaultScenario() Scenario {
	return Scenario{
		Observer: ObserverSpec{Name: "Earth", Latitude: 40, Tilt: 23.4393},
		Primary:  "sun",
		Bodies: []BodySpec{
			{
				ID:                "sun",
				Name:              "Sun",
				PeriapsisArgument: 282.9404,
				Eccentricity:      0.016709,
				OriginAngle:       280.4665,
				OrbitalPeriod:     360,
				MeanDistance:      149598000,
				Radius:            696000,
			},
			{
				ID:                      "arukma",
				Name:                    "Arukma",
				Inclination:             5.1454,
				AscendingNodeLongitude:  125.1228,
				PeriapsisArgument:       318.0634,
				Eccentricity:            0.0549,
				OriginAngle:             115.3654,
				OriginRelativeToPrimary: true,
				SynodicPeriod:           29.530589,
				MeanDistance:            384400,
				Radius:                  1737.4,
			},
			{
				ID:                      "losit",
				Name:                    "Losit",
				Inclination:             10.1134,
				AscendingNodeLongitude:  329.915,
				PeriapsisArgument:       265.951,
				Eccentricity:            0.1361,
				OriginAngle:             321.7148,
				OriginRelativeToPrimary: true,
				SynodicPeriod:           48.28098,
				MeanDistance:            702000,
				Radius:                  2410,
				AngularDiameter:         0.44,
			},
		},
	}
}
