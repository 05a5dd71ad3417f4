package sensors

import (
	"context"
	"math"
	"testing"
	"time"

	"pilot-ng/internal/bus"
	"pilot-ng/internal/hardware"
)

type fakeADC struct {
	values map[int]int
	events *[]string
}

func (f *fakeADC) Read(channel int) int {
	if f.events != nil {
		*f.events = append(*f.events, "read")
	}
	return f.values[channel]
}

func (f *fakeADC) Start() {
	if f.events != nil {
		*f.events = append(*f.events, "arm")
	}
}

type fakePath struct {
	events  *[]string
	advance int
	lowRate int
	poll    int
}

func (f *fakePath) Advance(float64) {
	f.advance++
	if f.events != nil {
		*f.events = append(*f.events, "advance")
	}
}

func (f *fakePath) LowRate(*Data) {
	f.lowRate++
	if f.events != nil {
		*f.events = append(*f.events, "lowrate")
	}
}

func (f *fakePath) Poll(*Data) {
	f.poll++
	if f.events != nil {
		*f.events = append(*f.events, "poll")
	}
}

type fakeFusion struct {
	events  *[]string
	updates int
	lastDT  float64
	lastGPS GPSFix
}

func (f *fakeFusion) Update(d *Data, dt float64) {
	f.updates++
	f.lastDT = dt
	f.lastGPS = d.GPS
	if f.events != nil {
		*f.events = append(*f.events, "fuse")
	}
}

type fakeCompass struct {
	reads int
	raw   [3]int
	err   error
}

func (f *fakeCompass) Read() ([3]int, error) {
	f.reads++
	return f.raw, f.err
}

func newTestScheduler(t *testing.T, period time.Duration, adc ChannelReader, path PressurePath, fusion Filter, compass Compass, sim func() bool) (*Scheduler, *State) {
	t.Helper()
	st := NewState()
	s, err := NewScheduler(Config{
		Period:         period,
		Revision:       hardware.RevO,
		Converter:      Converter{Polarity: 1, GyroZScale: 1},
		ADC:            adc,
		Path:           path,
		Compass:        compass,
		Fusion:         fusion,
		SimulationMode: sim,
		State:          st,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s, st
}

func TestNewScheduler_Validation(t *testing.T) {
	_, err := NewScheduler(Config{})
	if err == nil {
		t.Fatalf("expected error for empty config")
	}
}

func TestScheduler_CycleOrdering(t *testing.T) {
	var events []string
	adc := &fakeADC{values: map[int]int{}, events: &events}
	path := &fakePath{events: &events}
	fusion := &fakeFusion{events: &events}
	s, _ := newTestScheduler(t, 4*time.Millisecond, adc, path, fusion, nil, nil)

	if !s.runCycle() {
		t.Fatalf("cycle should continue")
	}

	// Seven channel reads, then re-arm, then path advance, then the
	// non-5Hz poll, then fusion.
	want := []string{
		"read", "read", "read", "read", "read", "read", "read",
		"arm", "advance", "poll", "fuse",
	}
	if len(events) != len(want) {
		t.Fatalf("events=%v want=%v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event[%d]=%q want=%q (all: %v)", i, events[i], want[i], events)
		}
	}
}

func TestScheduler_LowRateCadence_Quad(t *testing.T) {
	adc := &fakeADC{values: map[int]int{}}
	path := &fakePath{}
	fusion := &fakeFusion{}
	s, _ := newTestScheduler(t, 4*time.Millisecond, adc, path, fusion, nil, nil)

	for i := 0; i < 100; i++ {
		s.runCycle()
	}
	if path.lowRate != 2 || path.poll != 98 {
		t.Fatalf("lowRate=%d poll=%d want 2/98 at 4ms", path.lowRate, path.poll)
	}
	if path.advance != 100 || fusion.updates != 100 {
		t.Fatalf("advance=%d updates=%d want 100/100", path.advance, fusion.updates)
	}
}

func TestScheduler_LowRateCadence_Plane(t *testing.T) {
	adc := &fakeADC{values: map[int]int{}}
	path := &fakePath{}
	fusion := &fakeFusion{}
	s, _ := newTestScheduler(t, 20*time.Millisecond, adc, path, fusion, nil, nil)

	for i := 0; i < 100; i++ {
		s.runCycle()
	}
	// The counter advances by 5 per cycle, so every tenth cycle lands on
	// the 5 Hz boundary.
	if path.lowRate != 10 || path.poll != 90 {
		t.Fatalf("lowRate=%d poll=%d want 10/90 at 20ms", path.lowRate, path.poll)
	}
	if fusion.lastDT != 0.02 {
		t.Fatalf("dt=%v want 0.02", fusion.lastDT)
	}
}

func TestScheduler_CompassCadence(t *testing.T) {
	adc := &fakeADC{values: map[int]int{}}
	compass := &fakeCompass{raw: [3]int{1, 2, 3}}
	s, st := newTestScheduler(t, 4*time.Millisecond, adc, &fakePath{}, &fakeFusion{}, compass, nil)

	for i := 0; i < 100; i++ {
		s.runCycle()
	}
	if compass.reads != 4 {
		t.Fatalf("compass reads=%d want 4 over 100 cycles", compass.reads)
	}
	if got := st.Snapshot().MagRaw; got != [3]int{1, 2, 3} {
		t.Fatalf("mag=%v want [1 2 3]", got)
	}
}

func TestScheduler_BatteryVoltageOnLowRate(t *testing.T) {
	adc := &fakeADC{values: map[int]int{chBattery: 6550}}
	s, st := newTestScheduler(t, 20*time.Millisecond, adc, &fakePath{}, &fakeFusion{}, nil, nil)

	for i := 0; i < 10; i++ {
		s.runCycle()
	}
	want := 3.3 * 5.1 // 6550 counts cancel the divider denominator
	if got := st.Snapshot().BatteryVoltage; math.Abs(got-want) > 1e-9 {
		t.Fatalf("battery=%v want=%v", got, want)
	}
}

func TestScheduler_SimulationModeStopsOnLowRateTick(t *testing.T) {
	adc := &fakeADC{values: map[int]int{}}
	path := &fakePath{}
	sim := func() bool { return true }
	s, _ := newTestScheduler(t, 20*time.Millisecond, adc, path, &fakeFusion{}, nil, sim)

	// Simulation mode is only polled on the 5 Hz boundary; until then
	// cycles run normally.
	for i := 0; i < 9; i++ {
		if !s.runCycle() {
			t.Fatalf("cycle %d stopped before the 5 Hz tick", i)
		}
	}
	if s.runCycle() {
		t.Fatalf("cycle on the 5 Hz boundary should request stop")
	}
	if path.lowRate != 0 {
		t.Fatalf("low-rate work must not run once simulation mode is seen")
	}
}

func TestScheduler_FusionSeesWatchdogFix(t *testing.T) {
	adc := &fakeADC{values: map[int]int{}}
	fusion := &fakeFusion{}
	s, st := newTestScheduler(t, 20*time.Millisecond, adc, &fakePath{}, fusion, nil, nil)

	st.SetGPS(GPSFix{Status: LinkActive, SpeedMS: 22.0, SatellitesInView: 7})
	s.runCycle()

	if fusion.lastGPS.Status != LinkActive || fusion.lastGPS.SpeedMS != 22.0 {
		t.Fatalf("fusion saw gps=%+v want the watchdog's active fix at 22 m/s", fusion.lastGPS)
	}

	// A later demotion reaches the next cycle too.
	st.SetGPS(GPSFix{Status: LinkEmpty})
	s.runCycle()
	if fusion.lastGPS.Status != LinkEmpty {
		t.Fatalf("fusion saw gps=%+v want the demoted empty link", fusion.lastGPS)
	}
}

func TestScheduler_StartPrimesState(t *testing.T) {
	origAfter := afterFn
	afterFn = func(time.Duration) <-chan time.Time { return make(chan time.Time) }
	t.Cleanup(func() { afterFn = origAfter })

	adc := &fakeADC{values: map[int]int{chAccZ: 6600}}
	s, st := newTestScheduler(t, 4*time.Millisecond, adc, &fakePath{}, &fakeFusion{}, nil, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Close)

	if got := st.Snapshot().AccZ; math.Abs(got-(-1.0)) > 1e-9 {
		t.Fatalf("primed accZ=%v want -1.0", got)
	}
}

type fakePingPong struct {
	calls []string
	t10   int
	p     float64
}

func (f *fakePingPong) StartTemperature() error {
	f.calls = append(f.calls, "startT")
	return nil
}

func (f *fakePingPong) ReadTemperature() (int, error) {
	f.calls = append(f.calls, "readT")
	return f.t10, nil
}

func (f *fakePingPong) StartPressure() error {
	f.calls = append(f.calls, "startP")
	return nil
}

func (f *fakePingPong) ReadPressure() (float64, error) {
	f.calls = append(f.calls, "readP")
	return f.p, nil
}

func TestModernPath_PingPongAlternation(t *testing.T) {
	baro := &fakePingPong{t10: 215, p: 101325}
	path := NewModernPath(baro, nil)
	d := Data{}

	for i := 0; i < 4; i++ {
		path.LowRate(&d)
	}
	// The priming call only starts the first temperature conversion; from
	// then on every call consumes one result and starts the other kind.
	want := []string{"startT", "readT", "startP", "readP", "startT", "readT", "startP"}
	if len(baro.calls) != len(want) {
		t.Fatalf("calls=%v want=%v", baro.calls, want)
	}
	for i := range want {
		if baro.calls[i] != want[i] {
			t.Fatalf("call[%d]=%q want=%q (all: %v)", i, baro.calls[i], want[i], baro.calls)
		}
	}
	if d.Temperature10 != 215 || d.Temperature != 21.5 {
		t.Fatalf("T10=%d T=%v want 215/21.5", d.Temperature10, d.Temperature)
	}
	if d.Pressure != 101325 {
		t.Fatalf("pressure=%v want 101325", d.Pressure)
	}
	if math.Abs(d.PressureHeight) > 1.0 {
		t.Fatalf("height=%v want ~0 at standard pressure", d.PressureHeight)
	}
}

type fakeLegacySensor struct {
	ready    bool
	p, t     float64
	pReads   int
	errPress error
}

func (f *fakeLegacySensor) DataReady() bool { return f.ready }

func (f *fakeLegacySensor) Pressure() (float64, error) {
	f.pReads++
	return f.p, f.errPress
}

func (f *fakeLegacySensor) Temperature() (float64, error) { return f.t, nil }

func TestLegacyPath_SkipsWhenBusBusy(t *testing.T) {
	sensor := &fakeLegacySensor{ready: true, p: 95000, t: 12.5}
	arb := bus.NewArbiter()
	st := NewState()
	path := NewLegacyPath(sensor, arb, NewEstimator(), st, nil)
	d := Data{}

	if !arb.TryAcquire() {
		t.Fatalf("test setup: could not hold the bus")
	}
	path.Advance(0.02)
	path.Poll(&d)
	if sensor.pReads != 0 {
		t.Fatalf("sensor read despite busy bus")
	}
	arb.Release()

	path.Advance(0.02)
	path.Poll(&d)
	if sensor.pReads != 1 {
		t.Fatalf("pReads=%d want 1 after bus freed", sensor.pReads)
	}
	if d.Pressure != 95000 || d.Temperature != 12.5 || d.Temperature10 != 125 {
		t.Fatalf("p=%v t=%v t10=%d", d.Pressure, d.Temperature, d.Temperature10)
	}
	if !arb.TryAcquire() {
		t.Fatalf("bus not released after sample")
	}
	arb.Release()
}

func TestLegacyPath_NotReadyLeavesBusUntouched(t *testing.T) {
	sensor := &fakeLegacySensor{ready: false}
	arb := bus.NewArbiter()
	path := NewLegacyPath(sensor, arb, NewEstimator(), NewState(), nil)
	d := Data{}

	path.Poll(&d)
	if sensor.pReads != 0 {
		t.Fatalf("sensor read without data ready")
	}
}
