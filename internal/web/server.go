package web

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gpsdrain/internal/session"
)

const (
	wsWriteWait    = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from the same device; any LAN origin may watch fixes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler builds the HTTP API. ctl, logs and locs may be nil; the matching
// endpoints then report 404.
func Handler(status *Status, ctl SessionControl, logs *LogBuffer, locs *LocationBroadcaster, logger zerolog.Logger) http.Handler {
	if status == nil {
		status = NewStatus()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, status.Snapshot(time.Now().UTC(), ctl, locs))
	})

	r.Post("/api/session/start", func(w http.ResponseWriter, r *http.Request) {
		if ctl == nil {
			http.Error(w, "session control unavailable", http.StatusNotFound)
			return
		}
		if err := ctl.StartSession(); err != nil {
			code := http.StatusInternalServerError
			switch {
			case errors.Is(err, session.ErrPermissionDenied):
				code = http.StatusForbidden
			case errors.Is(err, session.ErrInvalidRange):
				code = http.StatusBadRequest
			}
			http.Error(w, err.Error(), code)
			return
		}
		logger.Info().Str("remote", r.RemoteAddr).Msg("session start requested")
		writeJSON(w, http.StatusOK, status.Snapshot(time.Now().UTC(), ctl, locs))
	})

	r.Post("/api/session/stop", func(w http.ResponseWriter, r *http.Request) {
		if ctl == nil {
			http.Error(w, "session control unavailable", http.StatusNotFound)
			return
		}
		ctl.StopSession()
		logger.Info().Str("remote", r.RemoteAddr).Msg("session stop requested")
		writeJSON(w, http.StatusOK, status.Snapshot(time.Now().UTC(), ctl, locs))
	})

	if logs != nil {
		r.Method(http.MethodGet, "/api/logs", logs.Handler())
	}
	if locs != nil {
		r.Get("/api/location/ws", locationSocket(locs, logger))
	}

	r.Method(http.MethodGet, "/api/about", AboutHandler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		snap := status.Snapshot(time.Now().UTC(), ctl, locs)
		state := session.NotRunning.String()
		server := ""
		if snap.Session != nil {
			state = snap.Session.State.String()
			server = snap.Session.Server
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>gpsdrain</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>gpsdrain</h1>")
		_, _ = fmt.Fprintf(w, "<p>See <a href=\"/api/status\">/api/status</a> and <a href=\"/api/logs?format=text\">/api/logs</a>.</p>")
		_, _ = fmt.Fprintf(w, "<pre>running=%t\nstate=%s\nserver=%s\nlisteners=%d</pre>",
			snap.Running, html.EscapeString(state), html.EscapeString(server), snap.Listeners,
		)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return r
}

// locationSocket streams every injected fix to a websocket client as JSON.
func locationSocket(locs *LocationBroadcaster, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		id, fixes := locs.Subscribe(16)
		defer locs.Unsubscribe(id)

		// Drain client frames so close and pong are processed.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case fix, ok := <-fixes:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(fix); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}
}

func Serve(ctx context.Context, listenAddr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
