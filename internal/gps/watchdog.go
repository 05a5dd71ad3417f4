package gps

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"pilot-ng/internal/sensors"
)

var afterFn = time.After

// Updater applies the latest parsed reception data to a fix record.
type Updater interface {
	Update(fix *sensors.GPSFix)
}

// Indicator drives the GPS status LED.
type Indicator interface {
	Set(on bool) error
}

// Config wires the reception watchdog.
type Config struct {
	// Arrival signals that new reception data is available from the
	// Updater.
	Arrival <-chan struct{}
	Updater Updater
	State   *sensors.State

	// Indicator is optional; nil means no LED on this board.
	Indicator Indicator

	// ReceiveTimeout is how long the watchdog waits for an arrival
	// before declaring the link dead.
	ReceiveTimeout time.Duration

	// CruisingSpeedMS substitutes the ground speed while airborne with a
	// degraded fix, so downstream consumers keep a plausible value.
	CruisingSpeedMS float64

	// MinSatellites is the fix-quality floor below which the airborne
	// speed substitution kicks in.
	MinSatellites int

	// Airborne reports whether the vehicle is currently flying.
	Airborne func() bool

	// PostProcess is the per-two-ticks scripting hook. Optional.
	PostProcess func()

	// WarmUp runs once before the loop, typically Feed.AwaitFirst.
	// Optional.
	WarmUp func(ctx context.Context)

	// Configure runs once after WarmUp returns, when the receiver is
	// known to be talking; receivers that need sentence selection or a
	// rate change get it pushed here. Optional.
	Configure func()
}

// Watchdog supervises GPS reception. Every loop iteration either consumes
// an arrival or times out; timeouts demote the link to empty and zero the
// satellite count so no consumer trusts a stale fix.
type Watchdog struct {
	cfg Config

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	lastErr string
}

func NewWatchdog(cfg Config) (*Watchdog, error) {
	if cfg.Arrival == nil {
		return nil, fmt.Errorf("gps: arrival channel is required")
	}
	if cfg.Updater == nil {
		return nil, fmt.Errorf("gps: updater is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("gps: state is required")
	}
	if cfg.ReceiveTimeout <= 0 {
		return nil, fmt.Errorf("gps: receive timeout must be positive")
	}
	if cfg.Airborne == nil {
		cfg.Airborne = func() bool { return false }
	}
	return &Watchdog{cfg: cfg, stopCh: make(chan struct{})}, nil
}

func (w *Watchdog) Start(ctx context.Context) error {
	if w == nil {
		return fmt.Errorf("gps: watchdog is nil")
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

func (w *Watchdog) Close() {
	if w == nil {
		return
	}
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	w.wg.Wait()
}

func (w *Watchdog) run(ctx context.Context) {
	if w.cfg.WarmUp != nil {
		w.cfg.WarmUp(ctx)
	}
	if w.cfg.Configure != nil {
		w.cfg.Configure()
	}
	log.Printf("gps: watchdog running timeout=%s", w.cfg.ReceiveTimeout)

	tick := 0
	for {
		fix := w.cfg.State.GPS()

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-w.cfg.Arrival:
			w.cfg.Updater.Update(&fix)
			tick++
		case <-afterFn(w.cfg.ReceiveTimeout):
			fix.Status = sensors.LinkEmpty
			fix.SatellitesInView = 0
			tick = 0
		}

		// A fix too weak to trust while airborne gets the configured
		// cruising speed instead of whatever the receiver reported.
		if fix.SatellitesInView < w.cfg.MinSatellites && w.cfg.Airborne() {
			fix.SpeedMS = w.cfg.CruisingSpeedMS
		}

		w.cfg.State.SetGPS(fix)

		if tick%2 == 0 && w.cfg.PostProcess != nil {
			w.cfg.PostProcess()
		}

		if w.cfg.Indicator != nil {
			if err := w.cfg.Indicator.Set(ledOn(tick, fix)); err != nil {
				w.noteErr(fmt.Sprintf("indicator set failed: %v", err))
			}
		}
	}
}

// ledOn implements the status LED pattern: dark when nothing is arriving,
// solid while acquiring, and blinking (off 3 ticks out of 6) once the fix
// is active with more than 5 satellites.
func ledOn(tick int, fix sensors.GPSFix) bool {
	if fix.Status == sensors.LinkEmpty {
		return false
	}
	blinkOff := tick%6 == 0 || (tick+1)%6 == 0 || (tick+2)%6 == 0
	if blinkOff && fix.Status == sensors.LinkActive && fix.SatellitesInView > 5 {
		return false
	}
	return true
}

func (w *Watchdog) noteErr(msg string) {
	if msg == w.lastErr {
		return
	}
	w.lastErr = msg
	log.Printf("gps: %s", msg)
}
