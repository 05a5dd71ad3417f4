package sensors

import "math"

// Height readings far outside physical reality show up as sensor glitches
// around -31000; anything outside this band is discarded without updating
// the stored height.
const (
	heightBandLow  = -30000.0
	heightBandHigh = 30000.0
)

// verticalSpeedFloor is the minimum gate for the vertical speed sanity
// check; the gate widens to the GPS ground speed when that is larger.
const verticalSpeedFloor = 5.0

const seaLevelPa = 101325.0

// HeightFromPressure converts a pressure/temperature pair to a barometric
// height in meters (hypsometric formula). Pure function.
func HeightFromPressure(pressurePa, temperatureC float64) float64 {
	if pressurePa <= 0 {
		return 0
	}
	return (math.Pow(seaLevelPa/pressurePa, 1.0/5.257) - 1.0) * (temperatureC + 273.15) / 0.0065
}

// Estimator derives pressure height and a smoothed, outlier-rejected
// vertical speed on the legacy sensor path. Elapsed time accumulates across
// cycles that produce no accepted sample and resets only after one.
type Estimator struct {
	heightFn   func(pressurePa, temperatureC float64) float64
	lastHeight float64
	elapsed    float64
}

func NewEstimator() *Estimator {
	return &Estimator{heightFn: HeightFromPressure}
}

// Advance accumulates elapsed time. Called once per acquisition cycle.
func (e *Estimator) Advance(dt float64) {
	e.elapsed += dt
}

// Observe folds a fresh pressure/temperature sample into d. The height is
// stored only inside the plausibility band; the vertical-speed filter and
// its elapsed-time reset run either way, using the last stored height.
// A new vertical speed whose magnitude exceeds max(5, GPS ground speed) is
// rejected and forced to zero so a single glitch cannot ride the
// exponential filter for many cycles.
func (e *Estimator) Observe(d *Data, gpsSpeedMS float64) {
	h := e.heightFn(d.Pressure, d.Temperature)
	if h > heightBandLow && h < heightBandHigh {
		d.PressureHeight = h
	}

	if e.elapsed > 0 {
		instant := (d.PressureHeight - e.lastHeight) / e.elapsed
		d.VerticalSpeed = d.VerticalSpeed*0.8 + instant*0.2
	}

	if math.Abs(d.VerticalSpeed) > math.Max(verticalSpeedFloor, gpsSpeedMS) {
		d.VerticalSpeed = 0
	}

	e.lastHeight = d.PressureHeight
	e.elapsed = 0
}
