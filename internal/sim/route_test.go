package sim

import (
	"math"
	"testing"
	"time"

	"gpsdrain/internal/gps"
)

func TestRoute_Position_StaysWithinRadius(t *testing.T) {
	r := Route{CenterLatDeg: 45.0, CenterLonDeg: -122.0, RadiusM: 500, Period: 60 * time.Second}
	radiusDeg := r.RadiusM / metersPerDegLat
	maxLonDeg := radiusDeg / math.Cos(r.CenterLatDeg*math.Pi/180.0)

	start := time.Date(2025, 12, 20, 19, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		p := r.Position(start.Add(time.Duration(i) * 500 * time.Millisecond))
		if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
			t.Fatalf("invalid position %v", p)
		}
		if math.Abs(p.Lat-r.CenterLatDeg) > radiusDeg*1.01 {
			t.Fatalf("lat offset too large: %f", math.Abs(p.Lat-r.CenterLatDeg))
		}
		if math.Abs(p.Lon-r.CenterLonDeg) > maxLonDeg*1.01 {
			t.Fatalf("lon offset too large: %f", math.Abs(p.Lon-r.CenterLonDeg))
		}
	}
}

func TestRoute_Position_DeterministicForNow(t *testing.T) {
	r := Route{CenterLatDeg: 1, CenterLonDeg: 2, RadiusM: 100, Period: 120 * time.Second}
	now := time.Date(2025, 12, 20, 19, 0, 0, 123, time.UTC)
	if r.Position(now) != r.Position(now) {
		t.Fatalf("expected deterministic result for same now")
	}
	if r.Position(now) == r.Position(now.Add(10*time.Second)) {
		t.Fatalf("expected movement over time")
	}
}

func TestFixed_Position(t *testing.T) {
	f := Fixed{Lat: 12.5, Lon: -98.25}
	if got := f.Position(time.Now()); got != (gps.Coordinate{Lat: 12.5, Lon: -98.25}) {
		t.Fatalf("got=%v", got)
	}
}
