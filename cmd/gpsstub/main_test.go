package main

import (
	"testing"
	"time"
)

func TestCLISource(t *testing.T) {
	c := CLI{Lat: 47.397, Lon: 8.545, Radius: 200, Period: time.Minute}
	now := time.Unix(1700000000, 0)

	moving := c.source().Position(now)
	if moving.Lat == c.Lat && moving.Lon == c.Lon {
		t.Fatalf("route position equals centre: %v", moving)
	}

	c.Fixed = true
	fixed := c.source().Position(now)
	if fixed.Lat != 47.397 || fixed.Lon != 8.545 {
		t.Fatalf("fixed=%v", fixed)
	}
}
