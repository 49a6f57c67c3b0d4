package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// DefaultDialTimeout bounds each candidate connect attempt. Worst-case
// discovery latency is roughly range size times this value.
const DefaultDialTimeout = 500 * time.Millisecond

// ErrNotFound is returned when every candidate in the range was tried and
// none accepted a connection. It ends the scan attempt, not the program.
var ErrNotFound = errors.New("discovery: no server found in range")

// CandidateError reports why one candidate was skipped.
type CandidateError struct {
	Addr string
	Err  error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("candidate %s unreachable: %v", e.Addr, e.Err)
}

func (e *CandidateError) Unwrap() error { return e.Err }

// DialFunc opens a TCP connection. ctx carries the per-candidate deadline.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ScannerConfig controls a Scanner.
type ScannerConfig struct {
	// DialTimeout bounds each connect attempt. Defaults to DefaultDialTimeout.
	DialTimeout time.Duration

	// Dial replaces the default net.Dialer. Tests use it to simulate
	// refusing and accepting peers.
	Dial DialFunc

	// Logf receives one line per candidate attempt and outcome.
	Logf func(format string, args ...any)
}

// Scanner probes candidates one at a time, lowest octet first, and returns
// the first live connection.
type Scanner struct {
	cfg ScannerConfig
}

func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.Dial == nil {
		d := &net.Dialer{}
		cfg.Dial = d.DialContext
	}
	if cfg.Logf == nil {
		cfg.Logf = func(string, ...any) {}
	}
	return &Scanner{cfg: cfg}
}

// Probe walks the range in ascending order. The returned connection belongs
// to the caller. A range with StartOctet > EndOctet makes no attempts and
// returns ErrNotFound.
//
// Cancelling ctx aborts the in-flight connect attempt and returns ctx.Err().
func (s *Scanner) Probe(ctx context.Context, r AddressRange) (net.Conn, error) {
	if s == nil {
		return nil, fmt.Errorf("scanner is nil")
	}
	if r.StartOctet > r.EndOctet {
		return nil, ErrNotFound
	}

	for octet := r.StartOctet; octet <= r.EndOctet; octet++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		addr := r.CandidateAddr(octet)
		s.cfg.Logf("Trying server %s", addr)

		conn, err := s.dialOne(ctx, addr)
		if err == nil {
			s.cfg.Logf("Found GPS server at %s", addr)
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		cerr := &CandidateError{Addr: addr, Err: err}
		s.cfg.Logf("Connect failed: %v", cerr)
	}

	s.cfg.Logf("No GPS server found in %s", r)
	return nil, ErrNotFound
}

func (s *Scanner) dialOne(ctx context.Context, addr string) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()
	return s.cfg.Dial(dialCtx, "tcp", addr)
}
