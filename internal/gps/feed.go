// Package gps ingests NMEA from the receiver's serial port and runs the
// reception watchdog that classifies link health and substitutes a safe
// ground speed when the fix degrades in flight.
package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"pilot-ng/internal/sensors"
)

// knotsToMS converts NMEA ground speed (knots) to m/s.
const knotsToMS = 0.514444

// FeedConfig controls the serial NMEA reader.
type FeedConfig struct {
	Device string
	Baud   int
}

// Feed reads NMEA sentences from the receiver and keeps the most recent
// parsed values. Every accepted sentence pokes the arrival channel so the
// watchdog can distinguish "sentences flowing" from "line dead".
type Feed struct {
	cfg FeedConfig

	arrival chan struct{}

	mu      sync.Mutex
	pending sensors.GPSFix
	seen    bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closer    io.Closer
}

func NewFeed(cfg FeedConfig) *Feed {
	return &Feed{cfg: cfg, arrival: make(chan struct{}, 1)}
}

// Arrival signals once per accepted sentence. The channel has a buffer of
// one; a slow consumer coalesces bursts instead of blocking the reader.
func (f *Feed) Arrival() <-chan struct{} {
	return f.arrival
}

func (f *Feed) Start(ctx context.Context) error {
	if f == nil {
		return fmt.Errorf("gps: feed is nil")
	}
	if f.cfg.Device == "" {
		return fmt.Errorf("gps: device is required")
	}
	baud := f.cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	port, err := openSerial(f.cfg.Device, baud)
	if err != nil {
		return fmt.Errorf("gps: open %s baud=%d: %w", f.cfg.Device, baud, err)
	}
	f.closer = port

	childCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer func() { _ = port.Close() }()

		log.Printf("gps: reading device=%s baud=%d", f.cfg.Device, baud)

		scanner := bufio.NewScanner(port)
		// NMEA sentences stay under 82 chars; allow headroom for chatter.
		scanner.Buffer(make([]byte, 0, 256), 4096)

		for {
			select {
			case <-childCtx.Done():
				return
			default:
			}

			if !scanner.Scan() {
				err := scanner.Err()
				if err == nil {
					err = io.EOF
				}
				log.Printf("gps: read stopped: %v", err)
				return
			}
			f.handleLine(scanner.Text())
		}
	}()
	return nil
}

// handleLine parses one raw line and folds recognised sentences into the
// pending fix. Noise and unknown sentence types are dropped silently; the
// receiver interleaves plenty of types this feed does not care about.
func (f *Feed) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return
	}

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		f.mu.Lock()
		if string(m.Validity) == "A" {
			f.pending.Status = sensors.LinkActive
		} else {
			f.pending.Status = sensors.LinkVoid
		}
		f.pending.LatitudeRad = m.Latitude * math.Pi / 180.0
		f.pending.LongitudeRad = m.Longitude * math.Pi / 180.0
		f.pending.SpeedMS = m.Speed * knotsToMS
		f.pending.CourseDeg = m.Course
		f.seen = true
		f.mu.Unlock()
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		f.mu.Lock()
		f.pending.SatellitesInView = int(m.NumSatellites)
		f.seen = true
		f.mu.Unlock()
	default:
		return
	}

	select {
	case f.arrival <- struct{}{}:
	default:
	}
}

// Update copies the most recent parsed values into fix. It implements the
// watchdog's Updater.
func (f *Feed) Update(fix *sensors.GPSFix) {
	f.mu.Lock()
	*fix = f.pending
	f.mu.Unlock()
}

// AwaitFirst blocks until the feed has accepted at least one sentence,
// polling with a doubling delay from 10ms up to 1s. The receiver needs a
// moment after power-up before it starts talking.
func (f *Feed) AwaitFirst(ctx context.Context) {
	delay := 10 * time.Millisecond
	const maxDelay = time.Second
	for {
		f.mu.Lock()
		seen := f.seen
		f.mu.Unlock()
		if seen {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-afterFn(delay):
		}
		if delay < maxDelay {
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		}
	}
}

func (f *Feed) Close() {
	if f == nil {
		return
	}
	f.closeOnce.Do(func() {
		if f.cancel != nil {
			f.cancel()
		}
		if f.closer != nil {
			_ = f.closer.Close()
		}
	})
	f.wg.Wait()
}
