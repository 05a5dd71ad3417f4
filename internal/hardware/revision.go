package hardware

import (
	"fmt"
	"math"
	"strings"
)

// Revision identifies the autopilot board revision. The ordering matters:
// later boards carry different gyro and pressure hardware, and the
// acquisition path is selected once at startup based on comparisons.
type Revision int

const (
	// RevJ is the original board: ADXRS-613 z gyro, SCP1000 pressure
	// sensor on the shared SPI bus.
	RevJ Revision = iota + 1
	// RevN swaps the z gyro for an IDZ-500.
	RevN
	// RevO moves pressure/temperature to a BMP085 on I2C.
	RevO
)

func ParseRevision(s string) (Revision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v01j", "j":
		return RevJ, nil
	case "v01n", "n":
		return RevN, nil
	case "v01o", "o":
		return RevO, nil
	default:
		return 0, fmt.Errorf("hardware: unknown revision %q", s)
	}
}

func (r Revision) String() string {
	switch r {
	case RevJ:
		return "v01j"
	case RevN:
		return "v01n"
	case RevO:
		return "v01o"
	default:
		return fmt.Sprintf("revision(%d)", int(r))
	}
}

// AtLeast reports whether r is the same or a later board than o.
func (r Revision) AtLeast(o Revision) bool { return r >= o }

// GyroZScale returns the rad/s-per-count scale of the z gyro fitted to
// this revision. RevN and later carry an IDZ-500; earlier boards an
// ADXRS-613. Signs are part of the board wiring, not a convention knob.
func (r Revision) GyroZScale() float64 {
	if r.AtLeast(RevN) {
		return -0.02538315 * math.Pi / 180.0 * 2.0
	}
	return 0.0062286 * math.Pi / 180.0
}
