// Package sink holds LocationSink implementations that republish injected
// coordinates to other consumers on the device or network.
package sink

import (
	"encoding/json"
	"errors"
	"time"

	"gpsdrain/internal/gps"
)

// Fix is the JSON payload published by the message-bus sinks.
type Fix struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	AccuracyM float32 `json:"accuracy_m"`
	TimeMS    int64   `json:"time_ms"`
	TimeUTC   string  `json:"time_utc"`
}

func NewFix(lat, lon float64, accuracyM float32, timestampMillis int64) Fix {
	return Fix{
		Lat:       lat,
		Lon:       lon,
		AccuracyM: accuracyM,
		TimeMS:    timestampMillis,
		TimeUTC:   time.UnixMilli(timestampMillis).UTC().Format(time.RFC3339Nano),
	}
}

func (f Fix) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// Multi injects into every sink, in order, even if one fails. The returned
// error joins all failures.
type Multi []gps.LocationSink

func (m Multi) Inject(lat, lon float64, accuracyM float32, timestampMillis int64) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Inject(lat, lon, accuracyM, timestampMillis); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
