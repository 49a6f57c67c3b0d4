package main

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gpsdrain/internal/config"
	"gpsdrain/internal/gps"
	"gpsdrain/internal/gpsserver"
	"gpsdrain/internal/session"
	"gpsdrain/internal/sim"
	"gpsdrain/internal/web"
)

func startStub(t *testing.T, maxResponses int) (int, *gpsserver.Server) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv, err := gpsserver.New(gpsserver.Config{
		Source:       sim.Fixed{Lat: 47.25, Lon: 8.5},
		MaxResponses: maxResponses,
	})
	if err != nil {
		t.Fatalf("gpsserver.New: %v", err)
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
	return ln.Addr().(*net.TCPAddr).Port, srv
}

func loopbackConfig(port int) config.Config {
	cfg := config.Default()
	cfg.Scan.Subnet = "127.0.0"
	cfg.Scan.StartOctet = 1
	cfg.Scan.EndOctet = 1
	cfg.Scan.Port = port
	cfg.Poll.Interval = 10 * time.Millisecond
	cfg.Session.RetryDelay = 10 * time.Millisecond
	cfg.Location.OverrideAllowed = true
	return cfg
}

func runWithTimeout(t *testing.T, rt *drainRuntime, ctx context.Context) error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- rt.Run(ctx) }()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return")
		return nil
	}
}

func TestResolveSubnet(t *testing.T) {
	logger := zerolog.Nop()

	cfg := config.Default()
	cfg.Scan.Subnet = "10.0.0"
	resolveSubnet(&cfg, func() (string, error) { t.Fatalf("detect called"); return "", nil }, logger)
	if cfg.Scan.Subnet != "10.0.0" {
		t.Fatalf("subnet=%q", cfg.Scan.Subnet)
	}

	cfg.Scan.Subnet = ""
	resolveSubnet(&cfg, func() (string, error) { return "192.168.231", nil }, logger)
	if cfg.Scan.Subnet != "192.168.231" {
		t.Fatalf("subnet=%q want 192.168.231", cfg.Scan.Subnet)
	}

	cfg.Scan.Subnet = ""
	resolveSubnet(&cfg, func() (string, error) { return "", errors.New("no interfaces") }, logger)
	if cfg.Scan.Subnet != "0.0.0" {
		t.Fatalf("subnet=%q want fallback 0.0.0", cfg.Scan.Subnet)
	}
}

func TestLoadConfig_CLIOverrides(t *testing.T) {
	cfg, err := loadConfig(CLI{
		Subnet:        "10.1.2",
		Start:         5,
		End:           6,
		Port:          9999,
		AllowOverride: true,
		Retry:         true,
		Web:           "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got := cfg.Scan.Range().String(); got != "10.1.2.5-6:9999" {
		t.Fatalf("range=%s", got)
	}
	if !cfg.Location.OverrideAllowed || !cfg.Session.Retry || !cfg.Web.Enable || cfg.Web.Listen != "127.0.0.1:0" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadConfig_RejectsBadOverride(t *testing.T) {
	_, err := loadConfig(CLI{Start: 200, End: 100})
	if err == nil || err.Error() != "scan.start_octet must be <= scan.end_octet" {
		t.Fatalf("err=%v", err)
	}
}

func TestDrainRuntime_RunEndsWhenStreamCloses(t *testing.T) {
	port, _ := startStub(t, 2)
	logs := web.NewLogBuffer(100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := newDrainRuntime(ctx, loopbackConfig(port), zerolog.Nop(), logs, nil)
	if err != nil {
		t.Fatalf("newDrainRuntime: %v", err)
	}
	defer rt.Close()

	err = runWithTimeout(t, rt, ctx)
	if !errors.Is(err, gps.ErrConnectionLost) {
		t.Fatalf("err=%v want ErrConnectionLost", err)
	}

	fix, ok := rt.Locations().Last()
	if !ok || fix.Lat != 47.25 || fix.Lon != 8.5 {
		t.Fatalf("last fix=%+v ok=%v", fix, ok)
	}
	snap, ok := rt.SessionSnapshot()
	if !ok || snap.State != session.Stopped || snap.Fixes != 2 {
		t.Fatalf("snapshot=%+v ok=%v", snap, ok)
	}
	if rt.Running() {
		t.Fatalf("still running after Run returned")
	}

	lines, _ := logs.Snapshot(100)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"Trying server 127.0.0.1:", "Found GPS server at 127.0.0.1:", "Mocked: 47.25,8.5", "Lost connection"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("log missing %q:\n%s", want, joined)
		}
	}
}

func TestDrainRuntime_PermissionDenied(t *testing.T) {
	cfg := loopbackConfig(2768)
	cfg.Location.OverrideAllowed = false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := newDrainRuntime(ctx, cfg, zerolog.Nop(), nil, nil)
	if err != nil {
		t.Fatalf("newDrainRuntime: %v", err)
	}
	defer rt.Close()

	if err := rt.Run(ctx); !errors.Is(err, session.ErrPermissionDenied) {
		t.Fatalf("err=%v want ErrPermissionDenied", err)
	}
}

func TestDrainRuntime_RetriesAfterConnectionLoss(t *testing.T) {
	port, srv := startStub(t, 1)
	cfg := loopbackConfig(port)
	cfg.Session.Retry = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := newDrainRuntime(ctx, cfg, zerolog.Nop(), nil, nil)
	if err != nil {
		t.Fatalf("newDrainRuntime: %v", err)
	}
	defer rt.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- rt.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Served() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("served=%d, sessions were not retried", srv.Served())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run after cancel err=%v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestDrainRuntime_StartStopThroughSessionControl(t *testing.T) {
	port, _ := startStub(t, 0)
	cfg := loopbackConfig(port)
	cfg.Web.Enable = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := newDrainRuntime(ctx, cfg, zerolog.Nop(), nil, nil)
	if err != nil {
		t.Fatalf("newDrainRuntime: %v", err)
	}
	defer rt.Close()

	var ctl web.SessionControl = rt
	if err := ctl.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	first, _ := ctl.SessionSnapshot()
	if err := ctl.StartSession(); err != nil {
		t.Fatalf("second StartSession: %v", err)
	}
	again, _ := ctl.SessionSnapshot()
	if again.ID != first.ID {
		t.Fatalf("second start replaced session %s with %s", first.ID, again.ID)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := rt.Locations().Last(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no fix injected")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctl.StopSession()
	if ctl.Running() {
		t.Fatalf("running after StopSession")
	}
	snap, _ := ctl.SessionSnapshot()
	if snap.State != session.Stopped || snap.LastError != "" {
		t.Fatalf("snapshot=%+v", snap)
	}
}
