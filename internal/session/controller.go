package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gpsdrain/internal/discovery"
	"gpsdrain/internal/gps"
)

var (
	// ErrPermissionDenied is returned by Start when the caller has not
	// confirmed that location override is available.
	ErrPermissionDenied = errors.New("location override permission not granted")

	// ErrInvalidRange wraps AddressRange validation failures.
	ErrInvalidRange = errors.New("invalid address range")
)

// Prober finds a peer. *discovery.Scanner satisfies it.
type Prober interface {
	Probe(ctx context.Context, r discovery.AddressRange) (net.Conn, error)
}

// Poller drives a connection. *gps.StreamClient satisfies it.
type Poller interface {
	Run(ctx context.Context, conn net.Conn, loc gps.LocationSink, logs gps.LogSink) error
}

// Sinks are the capabilities a session reports into.
type Sinks struct {
	Location gps.LocationSink
	Log      gps.LogSink
}

// Request describes one session start.
type Request struct {
	Range discovery.AddressRange
	Sinks Sinks

	// LocationOverrideAllowed is the caller's confirmation that the
	// location-override capability is available. Start refuses without it.
	LocationOverrideAllowed bool
}

// Config controls a Controller. All fields are optional.
type Config struct {
	// DialTimeout and Dial configure the per-session scanner.
	DialTimeout time.Duration
	Dial        discovery.DialFunc

	// Client configures the polling loop.
	Client gps.ClientConfig

	// NewProber and NewPoller override the default scanner and client.
	NewProber func(logs gps.LogSink) Prober
	NewPoller func() Poller

	Logger *zerolog.Logger
}

// Controller runs at most one session at a time.
type Controller struct {
	cfg Config
	log zerolog.Logger

	running atomic.Bool

	mu      sync.Mutex
	current *Session
}

func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg, log: zerolog.Nop()}
	if cfg.Logger != nil {
		c.log = cfg.Logger.With().Str("component", "session").Logger()
	}
	if c.cfg.NewProber == nil {
		c.cfg.NewProber = func(logs gps.LogSink) Prober {
			return discovery.NewScanner(discovery.ScannerConfig{
				DialTimeout: cfg.DialTimeout,
				Dial:        cfg.Dial,
				Logf: func(format string, args ...any) {
					logs.Emit(fmt.Sprintf(format, args...))
				},
			})
		}
	}
	if c.cfg.NewPoller == nil {
		c.cfg.NewPoller = func() Poller { return gps.NewStreamClient(cfg.Client) }
	}
	return c
}

// Running reports whether a session worker is active.
func (c *Controller) Running() bool { return c.running.Load() }

// Current returns the most recent session, or nil if none was started.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Start launches a session worker and returns immediately. If a session is
// already active, Start does nothing and returns that session. The range and
// permission are checked before any network activity.
func (c *Controller) Start(ctx context.Context, req Request) (*Session, error) {
	if c == nil {
		return nil, fmt.Errorf("session controller is nil")
	}
	if ctx == nil {
		return nil, fmt.Errorf("ctx is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.CompareAndSwap(false, true) {
		c.log.Debug().Str("session", c.current.id).Msg("start ignored, session already running")
		return c.current, nil
	}

	if !req.LocationOverrideAllowed {
		c.running.Store(false)
		return nil, ErrPermissionDenied
	}
	if err := req.Range.Validate(); err != nil {
		c.running.Store(false)
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	if req.Sinks.Location == nil {
		c.running.Store(false)
		return nil, fmt.Errorf("location sink is required")
	}
	logs := req.Sinks.Log
	if logs == nil {
		logs = gps.DiscardLog
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:     uuid.NewString(),
		rng:    req.Range,
		start:  time.Now(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.setState(Scanning)
	c.current = s

	prober := c.cfg.NewProber(logs)
	poller := c.cfg.NewPoller()
	loc := trackingSink{s: s, next: req.Sinks.Location}

	c.log.Info().Str("session", s.id).Str("range", req.Range.String()).Msg("session started")
	logs.Emit("GPS client started, scanning " + req.Range.String())

	go func() {
		defer close(s.done)
		defer c.running.Store(false)
		defer cancel()

		err := c.work(runCtx, s, prober, poller, loc, logs)
		s.finish(err)

		ev := c.log.Info()
		if err != nil {
			ev = c.log.Warn().Err(err)
		}
		ev.Str("session", s.id).Msg("session ended")
	}()
	return s, nil
}

func (c *Controller) work(ctx context.Context, s *Session, prober Prober, poller Poller, loc gps.LocationSink, logs gps.LogSink) error {
	conn, err := prober.Probe(ctx, s.rng)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if ctx.Err() != nil {
		_ = conn.Close()
		return nil
	}

	s.setServer(conn)
	s.setState(Polling)
	return poller.Run(ctx, conn, loc, logs)
}

// Stop cancels the active session and blocks until its worker has
// released the connection. It is safe to call when nothing is running.
func (c *Controller) Stop() {
	if c == nil {
		return
	}
	s := c.Current()
	if s == nil {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	c.log.Info().Str("session", s.id).Msg("session stopping")
	s.Stop()
}
