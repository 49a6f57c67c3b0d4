package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

const (
	// RequestLine is the only request the client ever sends.
	RequestLine = "Give me GPS\n"

	DefaultInterval     = 1 * time.Second
	DefaultAccuracyM    = float32(1.0)
	DefaultMaxLineBytes = 4096
)

// ClientConfig controls a StreamClient. All fields are optional.
type ClientConfig struct {
	// Interval is the pause between a response and the next request.
	Interval time.Duration

	// AccuracyM is the accuracy hint passed to the LocationSink.
	AccuracyM float32

	// MaxLineBytes caps a single response line. Longer lines are malformed.
	MaxLineBytes int

	// Now and Sleep are the clock. Sleep must return false once ctx is done.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) bool
}

// StreamClient polls one connection for coordinates.
type StreamClient struct {
	cfg ClientConfig
}

func NewStreamClient(cfg ClientConfig) *StreamClient {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.AccuracyM <= 0 {
		cfg.AccuracyM = DefaultAccuracyM
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return &StreamClient{cfg: cfg}
}

// Run owns conn until it returns and closes it exactly once. It polls until
// ctx is cancelled (returns nil) or the stream fails (returns an error
// matching ErrConnectionLost). Malformed lines and sink failures are logged
// and skipped.
func (c *StreamClient) Run(ctx context.Context, conn net.Conn, loc LocationSink, logs LogSink) error {
	if conn == nil {
		return fmt.Errorf("gps connection is nil")
	}
	defer func() { _ = conn.Close() }()
	if loc == nil {
		return fmt.Errorf("location sink is nil")
	}
	if logs == nil {
		logs = DiscardLog
	}

	// A past deadline unblocks any pending read or write on cancel.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	reader := bufio.NewReaderSize(conn, c.cfg.MaxLineBytes)
	for {
		if ctx.Err() != nil {
			logs.Emit("Polling stopped")
			return nil
		}

		if _, err := io.WriteString(conn, RequestLine); err != nil {
			return c.lost(ctx, logs, err)
		}

		line, tooLong, err := readLine(reader)
		if err != nil {
			return c.lost(ctx, logs, err)
		}

		if tooLong {
			logs.Emit(fmt.Sprintf("Malformed response: line exceeds %d bytes", c.cfg.MaxLineBytes))
		} else {
			c.handleLine(line, loc, logs)
		}

		if !c.cfg.Sleep(ctx, c.cfg.Interval) {
			logs.Emit("Polling stopped")
			return nil
		}
	}
}

func (c *StreamClient) handleLine(line string, loc LocationSink, logs LogSink) {
	coord, err := ParseResponse(line)
	if err != nil {
		logs.Emit(fmt.Sprintf("Malformed response: %v", err))
		return
	}
	ts := c.cfg.Now().UnixMilli()
	if err := loc.Inject(coord.Lat, coord.Lon, c.cfg.AccuracyM, ts); err != nil {
		ierr := &InjectionError{Coord: coord, Err: err}
		logs.Emit(fmt.Sprintf("Mocking failed: %v", ierr))
		return
	}
	logs.Emit("Mocked: " + coord.String())
}

func (c *StreamClient) lost(ctx context.Context, logs LogSink, err error) error {
	if ctx.Err() != nil {
		logs.Emit("Polling stopped")
		return nil
	}
	lerr := &connectionLostError{err: err}
	logs.Emit(fmt.Sprintf("Lost connection: %v", err))
	return lerr
}

// readLine returns one newline-terminated line without its terminator. A
// final unterminated line before EOF is returned as-is; the EOF surfaces on
// the next call.
func readLine(r *bufio.Reader) (string, bool, error) {
	b, err := r.ReadSlice('\n')
	switch {
	case err == nil:
		return strings.TrimRight(string(b), "\r\n"), false, nil
	case errors.Is(err, bufio.ErrBufferFull):
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = r.ReadSlice('\n')
		}
		if err != nil {
			return "", false, err
		}
		return "", true, nil
	case errors.Is(err, io.EOF) && len(b) > 0:
		return strings.TrimRight(string(b), "\r\n"), false, nil
	default:
		return "", false, err
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
