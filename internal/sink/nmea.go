package sink

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gpsdrain/internal/nmeaout"
)

// NMEA writes each fix as an RMC and a GGA sentence to every writer. Each
// sentence is a single Write call so datagram writers get one per packet.
type NMEA struct {
	writers []io.Writer
	closers []io.Closer
}

func NewNMEA(writers ...io.Writer) *NMEA {
	n := &NMEA{}
	for _, w := range writers {
		if w == nil {
			continue
		}
		n.writers = append(n.writers, w)
		if c, ok := w.(io.Closer); ok {
			n.closers = append(n.closers, c)
		}
	}
	return n
}

func (n *NMEA) Inject(lat, lon float64, accuracyM float32, timestampMillis int64) error {
	ts := time.UnixMilli(timestampMillis)
	sentences := []string{
		nmeaout.RMC(ts, lat, lon),
		nmeaout.GGA(ts, lat, lon, float64(accuracyM)),
	}
	var errs []error
	for _, w := range n.writers {
		for _, s := range sentences {
			if _, err := io.WriteString(w, s+"\r\n"); err != nil {
				errs = append(errs, fmt.Errorf("nmea write: %w", err))
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (n *NMEA) Close() error {
	var errs []error
	for _, c := range n.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
