// Package nmeaout renders fixes as NMEA 0183 sentences for consumers that
// expect a receiver-style feed.
package nmeaout

import (
	"fmt"
	"math"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// Talker is the talker ID prefixed to every sentence.
const Talker = "GP"

// RMC renders a recommended-minimum sentence, including "$" and checksum,
// without line terminator.
func RMC(t time.Time, lat, lon float64) string {
	t = t.UTC()
	latS, ns := formatLat(lat)
	lonS, ew := formatLon(lon)
	payload := strings.Join([]string{
		Talker + "RMC",
		formatTime(t),
		"A",
		latS, ns,
		lonS, ew,
		"0.0",
		"0.0",
		t.Format("020106"),
		"",
		"",
	}, ",")
	return frame(payload)
}

// GGA renders a fix-data sentence. Fix quality is always GPS (1).
func GGA(t time.Time, lat, lon float64, hdop float64) string {
	latS, ns := formatLat(lat)
	lonS, ew := formatLon(lon)
	if hdop <= 0 {
		hdop = 1.0
	}
	payload := strings.Join([]string{
		Talker + "GGA",
		formatTime(t.UTC()),
		latS, ns,
		lonS, ew,
		"1",
		"08",
		fmt.Sprintf("%.1f", hdop),
		"0.0", "M",
		"0.0", "M",
		"",
		"",
	}, ",")
	return frame(payload)
}

func frame(payload string) string {
	return "$" + payload + "*" + nmea.Checksum(payload)
}

func formatTime(t time.Time) string {
	return fmt.Sprintf("%02d%02d%02d.%02d", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(10*time.Millisecond))
}

func formatLat(lat float64) (string, string) {
	hemi := "N"
	if lat < 0 {
		hemi = "S"
	}
	deg, min := degMin(math.Abs(lat))
	return fmt.Sprintf("%02d%07.4f", deg, min), hemi
}

func formatLon(lon float64) (string, string) {
	hemi := "E"
	if lon < 0 {
		hemi = "W"
	}
	deg, min := degMin(math.Abs(lon))
	return fmt.Sprintf("%03d%07.4f", deg, min), hemi
}

func degMin(v float64) (int, float64) {
	deg := math.Floor(v)
	min := (v - deg) * 60
	// Rounding to 4 decimals can push minutes to 60.0000.
	if math.Round(min*1e4)/1e4 >= 60 {
		deg++
		min = 0
	}
	return int(deg), min
}
