package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"gpsdrain/internal/discovery"
	"gpsdrain/internal/gps"
)

// Session is one run of discovery followed by polling.
type Session struct {
	id    string
	rng   discovery.AddressRange
	start time.Time

	state atomic.Int32

	mu       sync.RWMutex
	server   string
	lastErr  error
	lastFix  gps.Coordinate
	lastFixT time.Time
	fixes    uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// Snapshot is a read-only view of a session for status output.
type Snapshot struct {
	ID         string                 `json:"id"`
	State      State                  `json:"state"`
	Range      discovery.AddressRange `json:"range"`
	StartedUTC string                 `json:"started_utc"`
	Server     string                 `json:"server,omitempty"`
	Fixes      uint64                 `json:"fixes"`
	LastFix    *gps.Coordinate        `json:"last_fix,omitempty"`
	LastFixUTC string                 `json:"last_fix_utc,omitempty"`
	LastError  string                 `json:"last_error,omitempty"`
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the worker has released its connection.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the worker ended: nil after a requested stop,
// discovery.ErrNotFound, or an error matching gps.ErrConnectionLost.
// Only meaningful after Done is closed.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Stop cancels the worker and waits for it to exit.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{
		ID:         s.id,
		State:      s.State(),
		Range:      s.rng,
		StartedUTC: s.start.UTC().Format(time.RFC3339Nano),
		Server:     s.server,
		Fixes:      s.fixes,
	}
	if !s.lastFixT.IsZero() {
		c := s.lastFix
		out.LastFix = &c
		out.LastFixUTC = s.lastFixT.UTC().Format(time.RFC3339Nano)
	}
	if s.lastErr != nil {
		out.LastError = s.lastErr.Error()
	}
	return out
}

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

func (s *Session) setServer(conn net.Conn) {
	if conn == nil || conn.RemoteAddr() == nil {
		return
	}
	s.mu.Lock()
	s.server = conn.RemoteAddr().String()
	s.mu.Unlock()
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.setState(Stopped)
}

// trackingSink counts successful injections for status output.
type trackingSink struct {
	s    *Session
	next gps.LocationSink
}

func (t trackingSink) Inject(lat, lon float64, accuracyM float32, timestampMillis int64) error {
	if err := t.next.Inject(lat, lon, accuracyM, timestampMillis); err != nil {
		return err
	}
	t.s.mu.Lock()
	t.s.fixes++
	t.s.lastFix = gps.Coordinate{Lat: lat, Lon: lon}
	t.s.lastFixT = time.UnixMilli(timestampMillis)
	t.s.mu.Unlock()
	return nil
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.id, s.State())
}
