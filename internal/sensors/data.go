// Package sensors drives the fixed-rate acquisition cycle: raw channel
// capture, unit conversion, revision-routed low-rate sensing, barometric
// height/vertical-speed derivation and the attitude fusion hand-off.
package sensors

import "sync"

// LinkState classifies GPS reception quality.
type LinkState int

const (
	// LinkEmpty means no sentences are arriving at all.
	LinkEmpty LinkState = iota
	// LinkVoid means sentences arrive but carry no fix.
	LinkVoid
	// LinkActive means sentences arrive with a valid fix.
	LinkActive
)

func (s LinkState) String() string {
	switch s {
	case LinkEmpty:
		return "empty"
	case LinkVoid:
		return "void"
	case LinkActive:
		return "active"
	default:
		return "unknown"
	}
}

// GPSFix is the GPS sub-record. It is written only by the reception
// watchdog; the acquisition task reads previously published values, which
// may be one cycle stale. That staleness is accepted by design.
type GPSFix struct {
	Status           LinkState `json:"status"`
	LatitudeRad      float64   `json:"latitude_rad"`
	LongitudeRad     float64   `json:"longitude_rad"`
	SpeedMS          float64   `json:"speed_ms"`
	CourseDeg        float64   `json:"course_deg"`
	SatellitesInView int       `json:"satellites_in_view"`
}

// Data holds one published generation of sensor values. Raw and derived
// fields are written only by the acquisition task (and the altitude
// estimator it calls); the GPS sub-record only by the watchdog.
type Data struct {
	AccXRaw  int `json:"-"`
	AccYRaw  int `json:"-"`
	AccZRaw  int `json:"-"`
	GyroXRaw int `json:"-"`
	GyroYRaw int `json:"-"`
	GyroZRaw int `json:"-"`
	VrefRaw  int `json:"-"`

	MagRaw [3]int `json:"mag_raw"`

	// Accelerations in g. Working in g rather than m/s^2 cancels the
	// gravity constant out of the attitude math.
	AccX float64 `json:"acc_x"`
	AccY float64 `json:"acc_y"`
	AccZ float64 `json:"acc_z"`

	// Angular rates in rad/s.
	P float64 `json:"p"`
	Q float64 `json:"q"`
	R float64 `json:"r"`

	BatteryVoltage float64 `json:"battery_voltage"`

	Temperature10 int     `json:"temperature_10"`
	Temperature   float64 `json:"temperature_c"`
	Pressure      float64 `json:"pressure_pa"`

	PressureHeight float64 `json:"pressure_height_m"`
	VerticalSpeed  float64 `json:"vertical_speed_ms"`

	GPS GPSFix `json:"gps"`
}

// State is the process-wide sensor state. The acquisition task works on
// its own copy and publishes whole generations; cross-task readers get a
// consistent-enough snapshot of the previous publication.
type State struct {
	mu  sync.RWMutex
	d   Data
	gps GPSFix
}

func NewState() *State {
	return &State{}
}

// Publish stores a new generation of acquisition-owned values. The GPS
// sub-record keeps whatever the watchdog last wrote.
func (s *State) Publish(d Data) {
	s.mu.Lock()
	d.GPS = s.gps
	s.d = d
	s.mu.Unlock()
}

func (s *State) Snapshot() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.d
	d.GPS = s.gps
	return d
}

// GPS returns the current GPS sub-record.
func (s *State) GPS() GPSFix {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gps
}

// SetGPS replaces the GPS sub-record. Only the reception watchdog calls
// this.
func (s *State) SetGPS(fix GPSFix) {
	s.mu.Lock()
	s.gps = fix
	s.mu.Unlock()
}
