package sim

import (
	"math"
	"time"

	"gpsdrain/internal/gps"
)

const metersPerDegLat = 111320.0

// Route is a deterministic figure-eight track around a centre point, used
// by the stub server to hand out moving coordinates.
type Route struct {
	CenterLatDeg float64
	CenterLonDeg float64
	RadiusM      float64
	Period       time.Duration
}

// Position returns the coordinate at now. The same now always yields the
// same coordinate.
func (r Route) Position(now time.Time) gps.Coordinate {
	period := r.Period
	if period <= 0 {
		period = 120 * time.Second
	}
	radiusM := r.RadiusM
	if radiusM <= 0 {
		radiusM = 200
	}
	radiusDeg := radiusM / metersPerDegLat

	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())

	//	x = cos(2πt)      east-west, scaled by cos(lat) for lon degrees
	//	y = 0.5*sin(4πt)  north-south
	w := 2 * math.Pi * phase
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)

	return gps.Coordinate{
		Lat: r.CenterLatDeg + radiusDeg*y,
		Lon: r.CenterLonDeg + (radiusDeg*x)/math.Cos(r.CenterLatDeg*math.Pi/180.0),
	}
}

// Fixed always returns the same coordinate.
type Fixed gps.Coordinate

func (f Fixed) Position(time.Time) gps.Coordinate { return gps.Coordinate(f) }
