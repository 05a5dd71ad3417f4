// Package fusion adapts the goflying AHRS to the acquisition cycle: each
// cycle's converted values are folded into one measurement and run through
// the attitude filter.
package fusion

import (
	"math"
	"sync"

	"github.com/b3nn0/goflying/ahrs"

	"pilot-ng/internal/sensors"
)

const msToKnots = 1.9438445

// Snapshot is the latest attitude solution. Angles in degrees.
type Snapshot struct {
	Valid bool `json:"valid"`

	RollDeg    float64 `json:"roll_deg"`
	PitchDeg   float64 `json:"pitch_deg"`
	HeadingDeg float64 `json:"heading_deg"`

	SlipSkid float64 `json:"slip_skid"`
	TurnRate float64 `json:"turn_rate"`
	GLoad    float64 `json:"g_load"`
}

// Filter owns the AHRS provider. Update is called only by the acquisition
// task; Snapshot may be read from anywhere.
type Filter struct {
	provider ahrs.AHRSProvider
	m        *ahrs.Measurement

	mu   sync.RWMutex
	snap Snapshot
}

func New() *Filter {
	return &Filter{
		provider: ahrs.NewSimpleAHRS(),
		m:        ahrs.NewMeasurement(),
	}
}

// Update folds one cycle into the filter. dt is the fixed cycle period in
// seconds.
func (f *Filter) Update(d *sensors.Data, dt float64) {
	f.fold(d, dt)
	f.provider.Compute(f.m)

	var snap Snapshot
	if f.provider.Valid() {
		roll, pitch, heading := f.provider.RollPitchHeading()
		snap = Snapshot{
			Valid:      true,
			RollDeg:    roll / ahrs.Deg,
			PitchDeg:   pitch / ahrs.Deg,
			HeadingDeg: heading / ahrs.Deg,
			SlipSkid:   f.provider.SlipSkid(),
			TurnRate:   f.provider.RateOfTurn(),
			GLoad:      f.provider.GLoad(),
		}
	} else {
		f.provider.Reset()
	}

	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
}

// fold maps one cycle's values onto the measurement. The filter wants
// accelerations in g, rotation rates in deg/s and wind-frame GPS velocity
// components in knots.
func (f *Filter) fold(d *sensors.Data, dt float64) {
	m := f.m
	m.T += dt

	m.A1 = d.AccX
	m.A2 = d.AccY
	m.A3 = d.AccZ
	m.B1 = d.P / ahrs.Deg
	m.B2 = d.Q / ahrs.Deg
	m.B3 = d.R / ahrs.Deg
	m.SValid = true
	m.MValid = false

	m.WValid = d.GPS.Status == sensors.LinkActive
	if m.WValid {
		speedKt := d.GPS.SpeedMS * msToKnots
		course := d.GPS.CourseDeg * ahrs.Deg
		m.W1 = speedKt * math.Sin(course)
		m.W2 = speedKt * math.Cos(course)
		m.W3 = d.VerticalSpeed * msToKnots
		m.TW = m.T
	}
}

func (f *Filter) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snap
}
