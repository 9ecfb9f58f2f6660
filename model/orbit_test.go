package model

import (
	"math"
	"testing"
)

func TestMeanLongitudeAdvancesUniformly(t *testing.T) {
	e := OrbitalElements{OriginAngle: 10, OrbitalPeriod: 360}
	if got := e.MeanLongitude(0); got != 10 {
		t.Fatalf("MeanLongitude(0) = %v, want 10", got)
	}
	if got := e.MeanLongitude(90); math.Abs(got-100) > 1e-12 {
		t.Fatalf("MeanLongitude(90) = %v, want 100", got)
	}
	if got := e.MeanLongitude(360); math.Abs(got-10) > 1e-9 {
		t.Fatalf("MeanLongitude(period) = %v, want 10", got)
	}
	if got := e.MeanLongitude(-20); math.Abs(got-350) > 1e-12 {
		t.Fatalf("MeanLongitude(-20) = %v, want 350", got)
	}
}

func TestMeanAnomaly(t *testing.T) {
	e := OrbitalElements{
		AscendingNodeLongitude: 300,
		PeriapsisArgument:      100,
		OriginAngle:            50,
		OrbitalPeriod:          100,
	}
	if got := e.PeriapsisLongitude(); math.Abs(got-40) > 1e-12 {
		t.Fatalf("PeriapsisLongitude() = %v, want 40", got)
	}
	if got := e.MeanAnomaly(0); math.Abs(got-10) > 1e-12 {
		t.Fatalf("MeanAnomaly(0) = %v, want 10", got)
	}
	if got := e.MeanAnomaly(25); math.Abs(got-100) > 1e-12 {
		t.Fatalf("MeanAnomaly(25) = %v, want 100", got)
	}
}

func TestPeriapsisEpochAndTime(t *testing.T) {
	e := OrbitalElements{PeriapsisArgument: 90, OriginAngle: 0, OrbitalPeriod: 360}
	if got := e.PeriapsisEpoch(); got != 90 {
		t.Fatalf("PeriapsisEpoch() = %v, want 90", got)
	}
	// mean anomaly at d=0 is 270
	want := 90 - (270.0/360)/360
	if got := e.PeriapsisTime(0); math.Abs(got-want) > 1e-12 {
		t.Fatalf("PeriapsisTime(0) = %v, want %v", got, want)
	}
}

func TestSynodicToSiderealPeriod(t *testing.T) {
	const primary = 360.0
	for _, synodic := range []float64{29.5, 48.28098, 500} {
		sidereal := SynodicToSiderealPeriod(synodic, primary)
		if got, want := 1/sidereal, 1/synodic+1/primary; math.Abs(got-want) > 1e-15 {
			t.Fatalf("1/p = %v, want 1/S + 1/P = %v", got, want)
		}
		if sidereal >= synodic {
			t.Fatalf("sidereal period %v should be shorter than synodic %v", sidereal, synodic)
		}
	}
}
