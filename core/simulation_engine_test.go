package core

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/thyrannic-sky/calendar"
	"github.com/signalsfoundry/thyrannic-sky/kb"
	"github.com/signalsfoundry/thyrannic-sky/model"
	floats "gonum.org/v1/gonum/floats/scalar"
)

type capturingRecorder struct {
	ticks     []float64
	altitudes map[string]float64
}

func (c *capturingRecorder) ObserveTick(timeValue float64, _ time.Duration) {
	c.ticks = append(c.ticks, timeValue)
}

func (c *capturingRecorder) SetBodyAltitude(id string, altitude float64) {
	if c.altitudes == nil {
		c.altitudes = make(map[string]float64)
	}
	c.altitudes[id] = altitude
}

func newDefaultEngine(t *testing.T, opts ...EngineOption) *SimulationEngine {
	t.Helper()
	store := kb.NewKnowledgeBase()
	if _, err := BuildScenario(store, DefaultScenario()); err != nil {
		t.Fatalf("BuildScenario: %v", err)
	}
	return NewSimulationEngine(store, opts...)
}

func mustBody(t *testing.T, se *SimulationEngine, id string) model.Body {
	t.Helper()
	b, err := se.KB.GetBody(id)
	if err != nil {
		t.Fatalf("GetBody(%s): %v", id, err)
	}
	return b
}

func TestTickUsesPostTickPrimaryRightAscension(t *testing.T) {
	se := newDefaultEngine(t)
	obs, _ := se.KB.Observer()

	if err := se.Tick(0); err != nil {
		t.Fatalf("Tick(0): %v", err)
	}
	staleSunRA := mustBody(t, se, "sun").Position.RightAscension

	const value = 5*24 + 7.5
	if err := se.Tick(value); err != nil {
		t.Fatalf("Tick(%v): %v", value, err)
	}
	sun := mustBody(t, se, "sun")
	losit := mustBody(t, se, "losit")

	d := value * calendar.Hour.As(calendar.Day)
	freshSunRA, _, _ := EquatorialPosition(sun.Elements, d, obs.Tilt)
	if sun.Position.RightAscension != freshSunRA {
		t.Fatalf("sun RA = %v, want %v", sun.Position.RightAscension, freshSunRA)
	}
	if math.Abs(freshSunRA-staleSunRA) < 1 {
		t.Fatalf("test needs the sun to move between ticks: %v -> %v", staleSunRA, freshSunRA)
	}

	want := HourAngle(7.5, freshSunRA, losit.Position.RightAscension)
	if losit.Position.HourAngle != want {
		t.Fatalf("losit hour angle = %v, want %v (post-tick primary RA)", losit.Position.HourAngle, want)
	}
	stale := HourAngle(7.5, staleSunRA, losit.Position.RightAscension)
	if floats.EqualWithinAbs(losit.Position.HourAngle, stale, 1e-6) {
		t.Fatalf("losit hour angle matches the stale primary RA")
	}
}

func TestTickIsIdempotent(t *testing.T) {
	se := newDefaultEngine(t)
	if err := se.Tick(1234.5); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	first := se.KB.ListBodies()

	if err := se.Tick(99); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if err := se.Tick(1234.5); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	second := se.KB.ListBodies()

	for i := range first {
		if first[i].Position != second[i].Position {
			t.Fatalf("%s: %+v != %+v after re-tick", first[i].ID, first[i].Position, second[i].Position)
		}
	}
}

func TestTickComputesEveryStage(t *testing.T) {
	se := newDefaultEngine(t)
	obs, _ := se.KB.Observer()
	const value = 37.25
	if err := se.Tick(value); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	sun := mustBody(t, se, "sun")
	for _, b := range se.KB.ListBodies() {
		p := b.Position
		if p.RightAscension < 0 || p.RightAscension >= 360 {
			t.Fatalf("%s: RA %v outside [0,360)", b.ID, p.RightAscension)
		}
		if p.Declination < 0 || p.Declination >= 360 {
			t.Fatalf("%s: declination %v outside [0,360)", b.ID, p.Declination)
		}
		if p.HourAngle <= -180 || p.HourAngle > 180 {
			t.Fatalf("%s: hour angle %v outside (-180,180]", b.ID, p.HourAngle)
		}
		wantZ := ZenithAngle(obs.Latitude, p.Declination, HourAngle(13.25, sun.Position.RightAscension, p.RightAscension))
		if p.ZenithAngle != wantZ {
			t.Fatalf("%s: zenith %v, want %v", b.ID, p.ZenithAngle, wantZ)
		}
		if p.VerticalOffset != p.ZenithAngle-90 || p.HorizontalOffset != p.HourAngle {
			t.Fatalf("%s: offsets (%v, %v) not derived from zenith/hour angle", b.ID, p.VerticalOffset, p.HorizontalOffset)
		}
		if p.Distance <= 0 {
			t.Fatalf("%s: distance %v, want positive", b.ID, p.Distance)
		}
	}
}

func TestTickNonFiniteTimePropagates(t *testing.T) {
	se := newDefaultEngine(t)
	if err := se.Tick(math.NaN()); err != nil {
		t.Fatalf("Tick(NaN) returned error %v, want nil", err)
	}
	if got := mustBody(t, se, "arukma").Position.ZenithAngle; !math.IsNaN(got) {
		t.Fatalf("zenith after Tick(NaN) = %v, want NaN", got)
	}
}

func TestTickRequiresCompleteRegistry(t *testing.T) {
	se := NewSimulationEngine(kb.NewKnowledgeBase())
	if err := se.Tick(0); !errors.Is(err, kb.ErrNoObserver) {
		t.Fatalf("Tick on empty registry = %v, want ErrNoObserver", err)
	}
}

func TestTickListenersAndMetrics(t *testing.T) {
	rec := &capturingRecorder{}
	se := newDefaultEngine(t, WithMetricsRecorder(rec))

	var heard []float64
	se.RegisterTickListener(func(v float64) { heard = append(heard, v) })

	for _, v := range []float64{0, 1, 2} {
		if err := se.Tick(v); err != nil {
			t.Fatalf("Tick(%v): %v", v, err)
		}
	}
	if len(heard) != 3 || heard[2] != 2 {
		t.Fatalf("listener heard %v, want [0 1 2]", heard)
	}
	if len(rec.ticks) != 3 {
		t.Fatalf("recorder saw %d ticks, want 3", len(rec.ticks))
	}
	sun := mustBody(t, se, "sun")
	if rec.altitudes["sun"] != sun.Position.Altitude() {
		t.Fatalf("recorded sun altitude %v, want %v", rec.altitudes["sun"], sun.Position.Altitude())
	}
}

func TestTickMetricsDescribeTheirOwnTick(t *testing.T) {
	rec := &capturingRecorder{}
	se := newDefaultEngine(t, WithMetricsRecorder(rec))
	other := NewSimulationEngine(se.KB)

	// another writer moves the shared registry before se reports metrics
	interfered := false
	se.KB.Subscribe(func(kb.Event) {
		if interfered {
			return
		}
		interfered = true
		if err := other.Tick(6); err != nil {
			t.Errorf("other Tick: %v", err)
		}
	})

	if err := se.Tick(18); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	snap := se.KB.Snapshot()
	if snap.TimeValue != 6 {
		t.Fatalf("registry time value = %v, want 6", snap.TimeValue)
	}
	want, err := ComputeSky(snap.Observer, snap.PrimaryID, snap.Bodies, 18)
	if err != nil {
		t.Fatalf("ComputeSky: %v", err)
	}
	for _, b := range want {
		if got := rec.altitudes[b.ID]; got != b.Position.Altitude() {
			t.Fatalf("recorded %s altitude %v, want %v from tick 18", b.ID, got, b.Position.Altitude())
		}
	}
}

func TestIndependentEngines(t *testing.T) {
	a := newDefaultEngine(t)
	b := newDefaultEngine(t)
	if err := a.Tick(100); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if err := b.Tick(200); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if mustBody(t, a, "sun").Position == mustBody(t, b, "sun").Position {
		t.Fatalf("engines share state")
	}
}

func TestComputeSkyMatchesTick(t *testing.T) {
	se := newDefaultEngine(t)
	snap := se.KB.Snapshot()

	const value = 777.75
	detached, err := ComputeSky(snap.Observer, snap.PrimaryID, snap.Bodies, value)
	if err != nil {
		t.Fatalf("ComputeSky: %v", err)
	}
	if se.KB.Snapshot().Ticked {
		t.Fatalf("ComputeSky must not touch the registry")
	}

	if err := se.Tick(value); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	for i, b := range se.KB.ListBodies() {
		if detached[i].Position != b.Position {
			t.Fatalf("%s: detached %+v, ticked %+v", b.ID, detached[i].Position, b.Position)
		}
	}

	if _, err := ComputeSky(snap.Observer, "nope", snap.Bodies, value); !errors.Is(err, kb.ErrNoPrimary) {
		t.Fatalf("ComputeSky with unknown primary = %v, want ErrNoPrimary", err)
	}
}

func TestSunIsUpAtNoonAndDownAtMidnight(t *testing.T) {
	se := newDefaultEngine(t)
	day := float64(100 * calendar.HoursPerDay)

	if err := se.Tick(day + 12); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	noon := mustBody(t, se, "sun").Position
	if !floats.EqualWithinAbs(noon.HourAngle, 0, 1e-9) {
		t.Fatalf("sun hour angle at noon = %v, want 0", noon.HourAngle)
	}

	if err := se.Tick(day); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	midnight := mustBody(t, se, "sun").Position
	if midnight.Altitude() >= noon.Altitude() {
		t.Fatalf("sun altitude at midnight %v should be below noon %v", midnight.Altitude(), noon.Altitude())
	}
}
