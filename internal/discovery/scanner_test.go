package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"
)

type fakeDialer struct {
	mu       sync.Mutex
	attempts []string
	accept   map[string]bool
	conns    []net.Conn
}

func (d *fakeDialer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, addr)
	if network != "tcp" {
		return nil, errors.New("unexpected network " + network)
	}
	if !d.accept[addr] {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	}
	client, server := net.Pipe()
	d.conns = append(d.conns, client, server)
	return client, nil
}

func (d *fakeDialer) closeAll() {
	for _, c := range d.conns {
		_ = c.Close()
	}
}

func TestScanner_Probe_FirstSuccessWinsAscending(t *testing.T) {
	d := &fakeDialer{accept: map[string]bool{
		"10.0.0.102:2768": true,
		"10.0.0.103:2768": true,
	}}
	defer d.closeAll()

	var logs []string
	s := NewScanner(ScannerConfig{Dial: d.dial, Logf: func(format string, args ...any) {
		logs = append(logs, format)
	}})
	r := AddressRange{SubnetPrefix: "10.0.0", StartOctet: 100, EndOctet: 105, Port: 2768}

	conn, err := s.Probe(context.Background(), r)
	if err != nil {
		t.Fatalf("Probe() error: %v", err)
	}
	if conn == nil {
		t.Fatalf("expected connection")
	}

	want := []string{"10.0.0.100:2768", "10.0.0.101:2768", "10.0.0.102:2768"}
	if len(d.attempts) != len(want) {
		t.Fatalf("attempts=%v want %v", d.attempts, want)
	}
	for i := range want {
		if d.attempts[i] != want[i] {
			t.Fatalf("attempt[%d]=%q want %q", i, d.attempts[i], want[i])
		}
	}
	if len(logs) == 0 {
		t.Fatalf("expected per-candidate log lines")
	}
}

func TestScanner_Probe_StartAfterEndMakesNoAttempts(t *testing.T) {
	d := &fakeDialer{accept: map[string]bool{}}
	s := NewScanner(ScannerConfig{Dial: d.dial})

	start := time.Now()
	_, err := s.Probe(context.Background(), AddressRange{SubnetPrefix: "10.0.0", StartOctet: 9, EndOctet: 3, Port: 2768})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want %v", err, ErrNotFound)
	}
	if len(d.attempts) != 0 {
		t.Fatalf("attempts=%v want none", d.attempts)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("expected immediate return")
	}
}

func TestScanner_Probe_ExhaustedRangeNotFound(t *testing.T) {
	d := &fakeDialer{accept: map[string]bool{}}
	s := NewScanner(ScannerConfig{Dial: d.dial})

	_, err := s.Probe(context.Background(), AddressRange{SubnetPrefix: "192.168.1", StartOctet: 1, EndOctet: 4, Port: 2768})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want %v", err, ErrNotFound)
	}
	if len(d.attempts) != 4 {
		t.Fatalf("attempts=%d want 4", len(d.attempts))
	}
}

func TestScanner_Probe_DialTimeoutBoundsEachCandidate(t *testing.T) {
	var deadlines []time.Duration
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		dl, ok := ctx.Deadline()
		if !ok {
			t.Errorf("expected per-candidate deadline")
		}
		deadlines = append(deadlines, time.Until(dl))
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := NewScanner(ScannerConfig{Dial: dial, DialTimeout: 20 * time.Millisecond})

	_, err := s.Probe(context.Background(), AddressRange{SubnetPrefix: "10.1.1", StartOctet: 1, EndOctet: 2, Port: 2768})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want %v", err, ErrNotFound)
	}
	if len(deadlines) != 2 {
		t.Fatalf("deadlines=%d want 2", len(deadlines))
	}
	for _, d := range deadlines {
		if d > 20*time.Millisecond {
			t.Fatalf("deadline %s exceeds dial timeout", d)
		}
	}
}

func TestScanner_Probe_CancelAbortsInFlightConnect(t *testing.T) {
	started := make(chan struct{})
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := NewScanner(ScannerConfig{Dial: dial, DialTimeout: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Probe(ctx, AddressRange{SubnetPrefix: "10.0.0", StartOctet: 1, EndOctet: 254, Port: 2768})
		errCh <- err
	}()

	<-started
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v want %v", err, context.Canceled)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Probe did not observe cancellation")
	}
}

func TestScanner_Probe_RealLoopbackListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	s := NewScanner(ScannerConfig{})
	conn, err := s.Probe(context.Background(), AddressRange{SubnetPrefix: "127.0.0", StartOctet: 1, EndOctet: 1, Port: port})
	if err != nil {
		t.Fatalf("Probe() error: %v", err)
	}
	defer conn.Close()
	if got := conn.RemoteAddr().String(); got != "127.0.0.1:"+strconv.Itoa(port) {
		t.Fatalf("remote=%q", got)
	}
}

func TestCandidateError_Unwrap(t *testing.T) {
	base := errors.New("refused")
	err := error(&CandidateError{Addr: "10.0.0.1:2768", Err: base})
	if !errors.Is(err, base) {
		t.Fatalf("expected errors.Is to unwrap")
	}
	if err.Error() != "candidate 10.0.0.1:2768 unreachable: refused" {
		t.Fatalf("error=%q", err.Error())
	}
}

func TestPrefixOf(t *testing.T) {
	cases := []struct {
		ip   string
		want string
		ok   bool
	}{
		{ip: "192.168.231.17", want: "192.168.231", ok: true},
		{ip: "127.0.0.1", ok: false},
		{ip: "0.0.0.0", ok: false},
		{ip: "fe80::1", ok: false},
	}
	for _, tc := range cases {
		got, ok := prefixOf(net.ParseIP(tc.ip))
		if ok != tc.ok || got != tc.want {
			t.Fatalf("prefixOf(%s)=(%q,%v) want (%q,%v)", tc.ip, got, ok, tc.want, tc.ok)
		}
	}
}
