// Package gpsserver implements the server side of the line protocol: it
// answers every "Give me GPS" request with "<tag>:<lat>,<lon>".
package gpsserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"gpsdrain/internal/gps"
)

const DefaultTag = "GPS"

// Source yields the coordinate to report at a given time.
type Source interface {
	Position(now time.Time) gps.Coordinate
}

type Config struct {
	// Tag prefixes every response. Defaults to DefaultTag.
	Tag    string
	Source Source

	// MaxResponses closes a connection after that many answers; 0 means
	// unlimited. Useful for exercising client reconnect handling.
	MaxResponses int

	Logger *zerolog.Logger
}

type Server struct {
	cfg Config
	log zerolog.Logger

	served atomic.Uint64

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func New(cfg Config) (*Server, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("gps server source is required")
	}
	if strings.TrimSpace(cfg.Tag) == "" {
		cfg.Tag = DefaultTag
	}
	if strings.ContainsAny(cfg.Tag, ":\n") {
		return nil, fmt.Errorf("gps server tag %q must not contain ':' or newline", cfg.Tag)
	}
	s := &Server{cfg: cfg, log: zerolog.Nop(), conns: map[net.Conn]struct{}{}}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("component", "gpsserver").Logger()
	}
	return s, nil
}

// Served is the number of responses written so far.
func (s *Server) Served() uint64 { return s.served.Load() }

// Serve accepts connections until ctx is cancelled, then closes the
// listener and every open connection and waits for handlers to exit.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	defer func() {
		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("gps server listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handle(conn)
		}()
	}
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
		return
	}
	delete(s.conns, c)
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	s.log.Info().Str("remote", remote).Msg("client connected")

	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 0, 256), 4096)
	answered := 0
	for reader.Scan() {
		req := strings.TrimSpace(reader.Text())
		var resp string
		if req == strings.TrimSuffix(gps.RequestLine, "\n") {
			resp = gps.FormatResponse(s.cfg.Tag, s.cfg.Source.Position(time.Now()))
		} else {
			resp = "ERR:unknown request"
		}
		if _, err := conn.Write([]byte(resp + "\n")); err != nil {
			s.log.Warn().Err(err).Str("remote", remote).Msg("write failed")
			return
		}
		s.served.Add(1)
		answered++
		if s.cfg.MaxResponses > 0 && answered >= s.cfg.MaxResponses {
			s.log.Info().Str("remote", remote).Int("responses", answered).Msg("response limit reached, closing")
			return
		}
	}
	if err := reader.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Warn().Err(err).Str("remote", remote).Msg("read failed")
	}
	s.log.Info().Str("remote", remote).Msg("client disconnected")
}
