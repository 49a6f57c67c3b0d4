package web

import (
	"sync/atomic"
	"time"

	"gpsdrain/internal/session"
	"gpsdrain/internal/sink"
)

// SessionControl is the subset of the drain the web UI drives. Implementations
// must be safe to call concurrently.
type SessionControl interface {
	StartSession() error
	StopSession()
	Running() bool
	// SessionSnapshot reports the most recent session, if one was started.
	SessionSnapshot() (session.Snapshot, bool)
}

type Status struct {
	startUnixNano int64
	listen        atomic.Value // string
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.listen.Store("")
	return s
}

func (s *Status) SetListen(addr string) {
	s.listen.Store(addr)
}

type StatusSnapshot struct {
	Service   string            `json:"service"`
	NowUTC    string            `json:"now_utc"`
	UptimeSec int64             `json:"uptime_sec"`
	Listen    string            `json:"listen,omitempty"`
	Running   bool              `json:"running"`
	Session   *session.Snapshot `json:"session,omitempty"`
	LastFix   *sink.Fix         `json:"last_fix,omitempty"`
	Listeners int               `json:"listeners"`
}

func (s *Status) Snapshot(nowUTC time.Time, ctl SessionControl, locs *LocationBroadcaster) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "gpsdrain",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Listen:    s.listen.Load().(string),
		Listeners: locs.Subscribers(),
	}
	if ctl != nil {
		snap.Running = ctl.Running()
		if ss, ok := ctl.SessionSnapshot(); ok {
			snap.Session = &ss
		}
	}
	if fix, ok := locs.Last(); ok {
		snap.LastFix = &fix
	}
	return snap
}
