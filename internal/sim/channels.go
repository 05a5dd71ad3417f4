// Package sim provides deterministic stand-ins for the board's sensors so
// the whole acquisition pipeline runs on a desk.
package sim

import (
	"math"

	"pilot-ng/internal/sensors"
)

// Channels synthesizes raw analog counts: a gentle sinusoidal attitude
// wobble around the configured neutrals with gravity on the z axis. It
// implements the scheduler's channel reader; Start advances the phase one
// cycle, so the output is a pure function of how many cycles have run.
type Channels struct {
	Neutrals sensors.Neutrals

	// PeriodCycles is the wobble period in acquisition cycles. Zero
	// defaults to 1000.
	PeriodCycles int

	// BatteryCounts is the raw battery reading. Zero defaults to a
	// healthy three-cell pack (~11.6V).
	BatteryCounts int

	cycle int
}

const (
	wobbleAccCounts  = 300.0
	wobbleGyroCounts = 80.0
	gravityCounts    = 6600
	defaultBattery   = 4500
)

func (c *Channels) phase() float64 {
	period := c.PeriodCycles
	if period <= 0 {
		period = 1000
	}
	return 2 * math.Pi * float64(c.cycle%period) / float64(period)
}

func (c *Channels) Read(channel int) int {
	w := c.phase()
	switch channel {
	case 0: // acc y
		return c.Neutrals.AccY + int(wobbleAccCounts*math.Sin(w))
	case 1: // acc z
		return c.Neutrals.AccZ + gravityCounts
	case 6: // acc x
		return c.Neutrals.AccX + int(wobbleAccCounts*math.Cos(w))
	case 4: // gyro x
		return c.Neutrals.GyroX + int(wobbleGyroCounts*math.Cos(w))
	case 7: // gyro y
		return c.Neutrals.GyroY - int(wobbleGyroCounts*math.Sin(w))
	case 5: // gyro z
		return c.Neutrals.GyroZ
	case 8: // battery
		if c.BatteryCounts > 0 {
			return c.BatteryCounts
		}
		return defaultBattery
	default:
		return 0
	}
}

func (c *Channels) Start() {
	c.cycle++
}
