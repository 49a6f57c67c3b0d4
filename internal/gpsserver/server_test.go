package gpsserver

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"gpsdrain/internal/discovery"
	"gpsdrain/internal/gps"
	"gpsdrain/internal/session"
	"gpsdrain/internal/sim"
)

func startServer(t *testing.T, cfg Config) (*Server, net.Listener, context.CancelFunc) {
	t.Helper()
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv, ln, cancel
}

func TestServer_AnswersRequests(t *testing.T) {
	srv, ln, _ := startServer(t, Config{Source: sim.Fixed{Lat: 12.5, Lon: -98.25}})

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	if _, err := conn.Write([]byte(gps.RequestLine)); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "GPS:12.5,-98.25\n" {
		t.Fatalf("line=%q", line)
	}

	if _, err := conn.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err = r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "ERR:unknown request\n" {
		t.Fatalf("line=%q", line)
	}
	if srv.Served() != 2 {
		t.Fatalf("served=%d want 2", srv.Served())
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected source error")
	}
	if _, err := New(Config{Source: sim.Fixed{}, Tag: "A:B"}); err == nil {
		t.Fatalf("expected tag error")
	}
}

func TestEndToEnd_DiscoverAndPollLoopbackServer(t *testing.T) {
	_, ln, _ := startServer(t, Config{Source: sim.Fixed{Lat: 1.0, Lon: 2.0}, MaxResponses: 1})
	port := ln.Addr().(*net.TCPAddr).Port

	var mu sync.Mutex
	var injects []gps.Coordinate
	loc := gps.LocationFunc(func(lat, lon float64, acc float32, ts int64) error {
		mu.Lock()
		defer mu.Unlock()
		injects = append(injects, gps.Coordinate{Lat: lat, Lon: lon})
		return nil
	})

	c := session.NewController(session.Config{Client: gps.ClientConfig{Interval: 10 * time.Millisecond}})
	s, err := c.Start(context.Background(), session.Request{
		Range:                   discovery.AddressRange{SubnetPrefix: "127.0.0", StartOctet: 1, EndOctet: 1, Port: port},
		Sinks:                   session.Sinks{Location: loc},
		LocationOverrideAllowed: true,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		c.Stop()
		t.Fatalf("session did not end after server closed the stream")
	}
	if !errors.Is(s.Err(), gps.ErrConnectionLost) {
		t.Fatalf("err=%v want ErrConnectionLost", s.Err())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(injects) != 1 || injects[0] != (gps.Coordinate{Lat: 1.0, Lon: 2.0}) {
		t.Fatalf("injects=%v", injects)
	}
}
