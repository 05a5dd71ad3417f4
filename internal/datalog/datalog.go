// Package datalog appends periodic flight records to the log store that
// shares its bus with the legacy pressure sensor. Every write claims the
// bus through the arbiter; a claim that cannot be made within the bounded
// wait drops the record rather than stall the writer.
package datalog

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"pilot-ng/internal/bus"
	"pilot-ng/internal/sensors"
)

type Config struct {
	Enable bool
	Path   string

	Interval    time.Duration
	AcquireWait time.Duration
}

// Service samples the sensor state on a fixed interval and appends one CSV
// record per sample.
type Service struct {
	cfg Config
	arb *bus.Arbiter
	st  *sensors.State

	f *os.File

	records uint64
	dropped uint64

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	lastErr string
}

func New(cfg Config, arb *bus.Arbiter, st *sensors.State) *Service {
	return &Service{cfg: cfg, arb: arb, st: st, stopCh: make(chan struct{})}
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("datalog service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if s.arb == nil || s.st == nil {
		return fmt.Errorf("datalog: arbiter and state are required")
	}

	f, err := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("datalog: open %s: %w", s.cfg.Path, err)
	}
	s.f = f

	log.Printf("datalog: writing %s every %s", s.cfg.Path, s.cfg.Interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	return nil
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.writeOnce()
		}
	}
}

func (s *Service) writeOnce() {
	d := s.st.Snapshot()

	if !s.arb.AcquireTimeout(s.cfg.AcquireWait) {
		// The acquisition task has priority on the shared bus; this
		// record is expendable.
		atomic.AddUint64(&s.dropped, 1)
		return
	}
	_, err := fmt.Fprintf(s.f, "%d,%.4f,%.4f,%.4f,%.5f,%.5f,%.5f,%.1f,%.1f,%.2f,%.2f,%s,%.6f,%.6f,%.2f,%.1f,%d\n",
		time.Now().UnixMilli(),
		d.AccX, d.AccY, d.AccZ,
		d.P, d.Q, d.R,
		d.Pressure, d.PressureHeight, d.VerticalSpeed,
		d.BatteryVoltage,
		d.GPS.Status, d.GPS.LatitudeRad, d.GPS.LongitudeRad, d.GPS.SpeedMS, d.GPS.CourseDeg, d.GPS.SatellitesInView)
	s.arb.Release()

	if err != nil {
		atomic.AddUint64(&s.dropped, 1)
		s.noteErr(fmt.Sprintf("write failed: %v", err))
		return
	}
	atomic.AddUint64(&s.records, 1)
}

// Stats reports records written and records dropped (bus busy or write
// error).
func (s *Service) Stats() (records, dropped uint64) {
	return atomic.LoadUint64(&s.records), atomic.LoadUint64(&s.dropped)
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	if s.f != nil {
		_ = s.f.Close()
	}
}

func (s *Service) noteErr(msg string) {
	if msg == s.lastErr {
		return
	}
	s.lastErr = msg
	log.Printf("datalog: %s", msg)
}
