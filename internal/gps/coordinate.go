package gps

import (
	"math"
	"strconv"
	"strings"
)

// Coordinate is one decoded fix. It is handed to a LocationSink and dropped.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

// ParseResponse decodes one server line of the form <tag>:<lat>,<lon>.
// The tag is not interpreted. Surrounding whitespace and a trailing CR are
// tolerated; anything else that deviates returns a *MalformedError.
func ParseResponse(line string) (Coordinate, error) {
	line = strings.TrimSpace(line)
	_, payload, ok := strings.Cut(line, ":")
	if !ok {
		return Coordinate{}, &MalformedError{Line: line, Reason: "missing ':'"}
	}
	tokens := strings.Split(payload, ",")
	if len(tokens) != 2 {
		return Coordinate{}, &MalformedError{Line: line, Reason: "want 2 comma-separated values, got " + strconv.Itoa(len(tokens))}
	}
	lat, ok := parseFinite(tokens[0])
	if !ok {
		return Coordinate{}, &MalformedError{Line: line, Reason: "latitude is not a number"}
	}
	lon, ok := parseFinite(tokens[1])
	if !ok {
		return Coordinate{}, &MalformedError{Line: line, Reason: "longitude is not a number"}
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatResponse renders the server side of the protocol, without the
// trailing newline.
func FormatResponse(tag string, c Coordinate) string {
	return tag + ":" + c.String()
}
