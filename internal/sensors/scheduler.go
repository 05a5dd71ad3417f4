package sensors

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"pilot-ng/internal/bus"
	"pilot-ng/internal/hardware"
)

var (
	timeNowFn = time.Now
	afterFn   = time.After
)

// lowRateWrap keeps the counter modulo-aligned for both the 50-tick (5 Hz)
// and 25-tick (compass) cadences when it wraps.
const lowRateWrap = 65000

// Filter consumes one cycle's converted values at a fixed timestep and
// advances the externally held orientation estimate.
type Filter interface {
	Update(d *Data, dt float64)
}

// Compass reads a raw magnetometer vector. Only some variants carry one.
type Compass interface {
	Read() ([3]int, error)
}

// LegacyPressureSensor is the SCP1000-style sensor on the shared SPI bus:
// it converts continuously and flags when a result is ready.
type LegacyPressureSensor interface {
	DataReady() bool
	Pressure() (float64, error)
	Temperature() (float64, error)
}

// PingPongBaro is the BMP085-style sensor whose temperature and pressure
// conversions are started and consumed as separate non-blocking halves, so
// one conversion's latency hides behind the other's consumption.
type PingPongBaro interface {
	StartTemperature() error
	ReadTemperature() (int, error)
	StartPressure() error
	ReadPressure() (float64, error)
}

// PressurePath is the revision-selected low-rate sensing strategy.
type PressurePath interface {
	// Advance accumulates cycle time for estimators that need it.
	Advance(dt float64)
	// LowRate runs on the 5 Hz tick.
	LowRate(d *Data)
	// Poll runs on every other cycle.
	Poll(d *Data)
}

// Config wires the acquisition scheduler. Period is fixed at startup and
// never changes while the task runs.
type Config struct {
	Period   time.Duration
	Revision hardware.Revision

	Converter Converter
	ADC       ChannelReader
	Path      PressurePath
	Compass   Compass
	Fusion    Filter

	// SimulationMode is polled on the 5 Hz tick; when it reports true the
	// task logs and terminates itself cleanly.
	SimulationMode func() bool

	State *State
}

// Scheduler is the fixed-period acquisition/fusion task. Each wake time is
// derived from the previous scheduled wake time, not from when the cycle
// body actually finished, so timing error never accumulates.
type Scheduler struct {
	cfg Config

	ticksPerCycle int
	lowCounter    int
	data          Data

	lastErr string

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("sensors: period must be positive")
	}
	if cfg.ADC == nil {
		return nil, fmt.Errorf("sensors: channel reader is required")
	}
	if cfg.Path == nil {
		return nil, fmt.Errorf("sensors: pressure path is required")
	}
	if cfg.Fusion == nil {
		return nil, fmt.Errorf("sensors: fusion filter is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("sensors: state is required")
	}
	// The counter advances in 4ms ticks so the %50 (5 Hz) and %25
	// cadences hold for both base rates.
	ticks := int(cfg.Period / (4 * time.Millisecond))
	if ticks < 1 {
		ticks = 1
	}
	return &Scheduler{cfg: cfg, ticksPerCycle: ticks, stopCh: make(chan struct{})}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("sensors: scheduler is nil")
	}

	// Prime the state with one converted generation before the loop, so
	// early readers never see zeroes dressed up as measurements.
	readRaw(s.cfg.ADC, &s.data)
	s.cfg.ADC.Start()
	s.cfg.Converter.Convert(&s.data)
	s.cfg.State.Publish(s.data)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	return nil
}

func (s *Scheduler) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	log.Printf("sensors: acquisition running period=%s revision=%s", s.cfg.Period, s.cfg.Revision)

	next := timeNowFn()
	for {
		next = next.Add(s.cfg.Period)
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-afterFn(time.Until(next)):
		}
		if !s.runCycle() {
			log.Printf("sensors: simulation mode active, acquisition task stopping")
			return
		}
	}
}

// runCycle executes one acquisition cycle. The ordering is load-bearing:
// raw capture precedes re-arming the next sample, which precedes unit
// conversion, which precedes the fusion hand-off.
func (s *Scheduler) runCycle() bool {
	d := &s.data

	// The watchdog owns the GPS sub-record; pick up its latest write so
	// the fusion hand-off sees link validity and the substituted speed.
	d.GPS = s.cfg.State.GPS()

	readRaw(s.cfg.ADC, d)
	s.cfg.ADC.Start()
	s.cfg.Converter.Convert(d)

	dt := s.cfg.Period.Seconds()
	s.cfg.Path.Advance(dt)

	s.lowCounter += s.ticksPerCycle
	if s.lowCounter > lowRateWrap {
		s.lowCounter = 0
	}

	if s.lowCounter%50 == 0 { // 5 Hz
		if s.cfg.SimulationMode != nil && s.cfg.SimulationMode() {
			return false
		}
		d.BatteryVoltage = float64(s.cfg.ADC.Read(chBattery)) * batteryVoltsPerCount
		s.cfg.Path.LowRate(d)
	} else {
		s.cfg.Path.Poll(d)
	}

	if s.cfg.Compass != nil && s.lowCounter%25 == 0 {
		if raw, err := s.cfg.Compass.Read(); err != nil {
			s.noteErr(fmt.Sprintf("compass read failed: %v", err))
		} else {
			d.MagRaw = raw
		}
	}

	s.cfg.Fusion.Update(d, dt)

	s.cfg.State.Publish(*d)
	return true
}

// noteErr logs an error once per distinct message; the loop runs too fast
// to log every occurrence.
func (s *Scheduler) noteErr(msg string) {
	if msg == s.lastErr {
		return
	}
	s.lastErr = msg
	log.Printf("sensors: %s", msg)
}

// modernPath is the v01o low-rate branch: the BMP085 alternates between
// consuming a temperature result while a pressure conversion runs and the
// other way around. Height is derived inline at the same cadence.
type modernPath struct {
	baro PingPongBaro

	primed       bool
	readPressure bool

	noteErr func(string)
}

// NewModernPath builds the pressure path for v01o and later boards.
func NewModernPath(baro PingPongBaro, noteErr func(string)) PressurePath {
	if noteErr == nil {
		noteErr = func(string) {}
	}
	return &modernPath{baro: baro, noteErr: noteErr}
}

func (m *modernPath) Advance(float64) {}

func (m *modernPath) Poll(*Data) {}

func (m *modernPath) LowRate(d *Data) {
	if !m.primed {
		if err := m.baro.StartTemperature(); err != nil {
			m.noteErr(fmt.Sprintf("baro start temperature failed: %v", err))
			return
		}
		m.primed = true
		return
	}

	if !m.readPressure {
		if t10, err := m.baro.ReadTemperature(); err != nil {
			m.noteErr(fmt.Sprintf("baro read temperature failed: %v", err))
		} else {
			d.Temperature10 = t10
			d.Temperature = float64(t10) / 10.0
		}
		if err := m.baro.StartPressure(); err != nil {
			m.noteErr(fmt.Sprintf("baro start pressure failed: %v", err))
		}
		m.readPressure = true
		return
	}

	if p, err := m.baro.ReadPressure(); err != nil {
		m.noteErr(fmt.Sprintf("baro read pressure failed: %v", err))
	} else {
		d.Pressure = p
		d.PressureHeight = HeightFromPressure(d.Pressure, d.Temperature)
	}
	if err := m.baro.StartTemperature(); err != nil {
		m.noteErr(fmt.Sprintf("baro start temperature failed: %v", err))
	}
	m.readPressure = false
}

// legacyPath is the pre-v01o branch: the SCP1000 converts on its own
// schedule (~9 Hz) on the SPI bus it shares with the datalog flash. The
// bus claim is zero-wait; contention just skips the sample this cycle.
type legacyPath struct {
	sensor LegacyPressureSensor
	arb    *bus.Arbiter
	est    *Estimator
	state  *State

	noteErr func(string)
}

// NewLegacyPath builds the pressure path for pre-v01o boards.
func NewLegacyPath(sensor LegacyPressureSensor, arb *bus.Arbiter, est *Estimator, state *State, noteErr func(string)) PressurePath {
	if noteErr == nil {
		noteErr = func(string) {}
	}
	return &legacyPath{sensor: sensor, arb: arb, est: est, state: state, noteErr: noteErr}
}

func (l *legacyPath) Advance(dt float64) {
	l.est.Advance(dt)
}

func (l *legacyPath) LowRate(*Data) {}

func (l *legacyPath) Poll(d *Data) {
	if !l.sensor.DataReady() {
		return
	}
	if !l.arb.TryAcquire() {
		// Bus busy is not an error; the sensor keeps converting and the
		// next ready sample is picked up on a later cycle.
		return
	}
	p, perr := l.sensor.Pressure()
	t, terr := l.sensor.Temperature()
	l.arb.Release()
	if perr != nil {
		l.noteErr(fmt.Sprintf("pressure read failed: %v", perr))
		return
	}
	if terr != nil {
		l.noteErr(fmt.Sprintf("temperature read failed: %v", terr))
		return
	}

	d.Pressure = p
	d.Temperature = t
	d.Temperature10 = int(t * 10)

	l.est.Observe(d, l.state.GPS().SpeedMS)
}
