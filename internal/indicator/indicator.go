// Package indicator drives the GPS status LED as a digital output on a
// GPIO line.
package indicator

// Output is a single on/off indicator.
type Output interface {
	Set(on bool) error
	Close() error
}

// Noop is the indicator for boards without a status LED.
type Noop struct{}

func (Noop) Set(bool) error { return nil }
func (Noop) Close() error   { return nil }
