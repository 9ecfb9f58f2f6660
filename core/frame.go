package core

import (
	"math"

	"github.com/signalsfoundry/thyrannic-sky/calendar"
	"github.com/signalsfoundry/thyrannic-sky/model"
)

// BodyView is the flat, presentation-facing form of one body's position.
type BodyView struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	RightAscension   float64 `json:"right_ascension"`
	Declination      float64 `json:"declination"`
	Distance         float64 `json:"distance"`
	HourAngle        float64 `json:"hour_angle"`
	ZenithAngle      float64 `json:"zenith_angle"`
	Altitude         float64 `json:"altitude"`
	VerticalOffset   float64 `json:"vertical_offset"`
	HorizontalOffset float64 `json:"horizontal_offset"`
	AngularDiameter  float64 `json:"angular_diameter"`
}

// Frame is the whole sky at one time value, as handed to the gRPC service,
// the websocket feed and the ephemeris recorder.
type Frame struct {
	TimeValue float64    `json:"time_value"`
	Date      string     `json:"date,omitempty"`
	Clock     string     `json:"clock,omitempty"`
	Bodies    []BodyView `json:"bodies"`
}

// NewFrame flattens bodies into a Frame stamped with timeValue.
func NewFrame(timeValue float64, bodies []model.Body) Frame {
	f := Frame{TimeValue: timeValue, Bodies: make([]BodyView, 0, len(bodies))}
	if !math.IsNaN(timeValue) && !math.IsInf(timeValue, 0) {
		dt := calendar.FromHours(timeValue)
		f.Date = dt.Date().String()
		f.Clock = dt.Clock()
	}
	for i := range bodies {
		b := &bodies[i]
		f.Bodies = append(f.Bodies, BodyView{
			ID:               b.ID,
			Name:             b.Name,
			RightAscension:   b.Position.RightAscension,
			Declination:      b.Position.Declination,
			Distance:         b.Position.Distance,
			HourAngle:        b.Position.HourAngle,
			ZenithAngle:      b.Position.ZenithAngle,
			Altitude:         b.Position.Altitude(),
			VerticalOffset:   b.Position.VerticalOffset,
			HorizontalOffset: b.Position.HorizontalOffset,
			AngularDiameter:  b.AngularDiameter(),
		})
	}
	return f
}

// Finite reports whether every number in the frame is finite.
func (f Frame) Finite() bool {
	vals := []float64{f.TimeValue}
	for _, b := range f.Bodies {
		vals = append(vals, b.RightAscension, b.Declination, b.Distance, b.HourAngle,
			b.ZenithAngle, b.VerticalOffset, b.HorizontalOffset, b.AngularDiameter)
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// AsMap renders the frame as nested generic values, the shape
// structpb.NewStruct accepts.
func (f Frame) AsMap() map[string]any {
	bodies := make([]any, 0, len(f.Bodies))
	for _, b := range f.Bodies {
		bodies = append(bodies, map[string]any{
			"id":                b.ID,
			"name":              b.Name,
			"right_ascension":   b.RightAscension,
			"declination":       b.Declination,
			"distance":          b.Distance,
			"hour_angle":        b.HourAngle,
			"zenith_angle":      b.ZenithAngle,
			"altitude":          b.Altitude,
			"vertical_offset":   b.VerticalOffset,
			"horizontal_offset": b.HorizontalOffset,
			"angular_diameter":  b.AngularDiameter,
		})
	}
	return map[string]any{
		"time_value": f.TimeValue,
		"date":       f.Date,
		"clock":      f.Clock,
		"bodies":     bodies,
	}
}
