package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gpsdrain/internal/config"
	"gpsdrain/internal/discovery"
	"gpsdrain/internal/gps"
	"gpsdrain/internal/logging"
	"gpsdrain/internal/serialport"
	"gpsdrain/internal/session"
	"gpsdrain/internal/sink"
	"gpsdrain/internal/udp"
	"gpsdrain/internal/web"
)

// drainRuntime owns the session controller and every output it feeds. It
// implements web.SessionControl.
type drainRuntime struct {
	ctx context.Context
	cfg config.Config
	log zerolog.Logger

	ctl  *session.Controller
	req  session.Request
	locs *web.LocationBroadcaster

	closers []io.Closer

	mu      sync.Mutex
	last    *session.Session
	started chan struct{}
}

// resolveSubnet fills an empty scan.subnet from the local interface.
func resolveSubnet(cfg *config.Config, detect func() (string, error), logger zerolog.Logger) {
	if cfg.Scan.Subnet != "" {
		return
	}
	prefix, err := detect()
	if err != nil {
		logger.Warn().Err(err).Str("fallback", discovery.FallbackSubnetPrefix).Msg("subnet detection failed")
		prefix = discovery.FallbackSubnetPrefix
	}
	cfg.Scan.Subnet = prefix
	logger.Info().Str("subnet", prefix).Msg("scan subnet detected")
}

func newDrainRuntime(ctx context.Context, cfg config.Config, logger zerolog.Logger, logs *web.LogBuffer, dial discovery.DialFunc) (*drainRuntime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}
	if ctx == nil {
		return nil, fmt.Errorf("ctx is nil")
	}

	r := &drainRuntime{
		ctx:     ctx,
		cfg:     c,
		log:     logger,
		locs:    web.NewLocationBroadcaster(),
		started: make(chan struct{}, 1),
	}

	outputs := sink.Multi{r.locs}

	// Optional: message bus republishing.
	if c.Sinks.MQTT.Enable {
		m, err := sink.NewMQTT(sink.MQTTConfig{
			Broker:   c.Sinks.MQTT.Broker,
			ClientID: c.Sinks.MQTT.ClientID,
			Topic:    c.Sinks.MQTT.Topic,
			QoS:      byte(c.Sinks.MQTT.QoS),
			Retained: c.Sinks.MQTT.Retained,
		})
		if err != nil {
			r.Close()
			return nil, err
		}
		r.closers = append(r.closers, m)
		outputs = append(outputs, m)
		logger.Info().Str("broker", c.Sinks.MQTT.Broker).Str("topic", c.Sinks.MQTT.Topic).Msg("mqtt sink enabled")
	}
	if c.Sinks.NATS.Enable {
		n, err := sink.NewNATS(sink.NATSConfig{URL: c.Sinks.NATS.URL, Subject: c.Sinks.NATS.Subject})
		if err != nil {
			r.Close()
			return nil, err
		}
		r.closers = append(r.closers, n)
		outputs = append(outputs, n)
		logger.Info().Str("subject", c.Sinks.NATS.Subject).Msg("nats sink enabled")
	}

	// Optional: NMEA feed over UDP and/or a serial port.
	if c.Sinks.NMEA.Enable {
		var writers []io.Writer
		if dest := strings.TrimSpace(c.Sinks.NMEA.UDPDest); dest != "" {
			b, err := udp.NewBroadcaster(dest)
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("nmea udp: %w", err)
			}
			writers = append(writers, b)
		}
		if dev := strings.TrimSpace(c.Sinks.NMEA.SerialDevice); dev != "" {
			port, err := serialport.Open(dev, c.Sinks.NMEA.Baud)
			if err != nil {
				for _, w := range writers {
					_ = w.(io.Closer).Close()
				}
				r.Close()
				return nil, fmt.Errorf("nmea serial: %w", err)
			}
			writers = append(writers, port)
		}
		n := sink.NewNMEA(writers...)
		r.closers = append(r.closers, n)
		outputs = append(outputs, n)
		logger.Info().Str("udp_dest", c.Sinks.NMEA.UDPDest).Str("serial", c.Sinks.NMEA.SerialDevice).Msg("nmea sink enabled")
	}

	var diag []gps.LogSink
	diag = append(diag, logging.NewLogSink(logger))
	if logs != nil {
		diag = append(diag, logs)
	}

	r.req = session.Request{
		Range: c.Scan.Range(),
		Sinks: session.Sinks{
			Location: outputs,
			Log:      logging.Tee(diag...),
		},
		LocationOverrideAllowed: c.Location.OverrideAllowed,
	}
	r.ctl = session.NewController(session.Config{
		DialTimeout: c.Scan.DialTimeout,
		Dial:        dial,
		Client:      c.Poll.ClientConfig(),
		Logger:      &logger,
	})
	return r, nil
}

func (r *drainRuntime) Locations() *web.LocationBroadcaster { return r.locs }

func (r *drainRuntime) StartSession() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.ctl.Start(r.ctx, r.req)
	if err != nil {
		return err
	}
	if s != r.last {
		r.last = s
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	return nil
}

func (r *drainRuntime) StopSession() { r.ctl.Stop() }

func (r *drainRuntime) Running() bool { return r.ctl.Running() }

func (r *drainRuntime) SessionSnapshot() (session.Snapshot, bool) {
	s := r.ctl.Current()
	if s == nil {
		return session.Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Run starts the first session and supervises it until ctx is done. A
// session that ends with an error is restarted after session.retry_delay
// when retry is enabled. Without the web surface nothing can start a new
// session, so Run returns once the session ends for good.
func (r *drainRuntime) Run(ctx context.Context) error {
	if err := r.StartSession(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			r.ctl.Stop()
			return nil
		case <-r.started:
		}

		s := r.ctl.Current()
		select {
		case <-ctx.Done():
			r.ctl.Stop()
			return nil
		case <-s.Done():
		}

		err := s.Err()
		if err == nil {
			r.log.Info().Str("session", s.ID()).Msg("session stopped on request")
		}
		if err != nil && r.cfg.Session.Retry {
			r.log.Info().Err(err).Dur("delay", r.cfg.Session.RetryDelay).Msg("session ended, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.cfg.Session.RetryDelay):
			}
			if err := r.StartSession(); err != nil {
				return err
			}
			continue
		}
		if !r.cfg.Web.Enable {
			return err
		}
	}
}

func (r *drainRuntime) Close() {
	if r == nil {
		return
	}
	if r.ctl != nil {
		r.ctl.Stop()
	}
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			r.log.Warn().Err(err).Msg("sink close failed")
		}
	}
	r.closers = nil
}
