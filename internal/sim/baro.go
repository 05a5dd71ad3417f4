package sim

import (
	"fmt"
	"math"
)

// Baro simulates a ping-pong barometer flying a slow altitude sinusoid.
// Reads without a matching start return an error, which keeps the caller's
// sequencing honest.
type Baro struct {
	// AmplitudePa is the pressure swing around sea level. Zero defaults
	// to 1000 Pa (~85m).
	AmplitudePa float64

	// PeriodSamples is the sinusoid period in pressure samples. Zero
	// defaults to 100.
	PeriodSamples int

	sample       int
	tempPending  bool
	pressPending bool
}

const (
	baroSeaLevelPa   = 101325.0
	baroTemperature1 = 215 // 21.5 degC in 0.1 degC units
)

func (b *Baro) StartTemperature() error {
	b.tempPending = true
	return nil
}

func (b *Baro) ReadTemperature() (int, error) {
	if !b.tempPending {
		return 0, fmt.Errorf("sim: temperature read without start")
	}
	b.tempPending = false
	return baroTemperature1, nil
}

func (b *Baro) StartPressure() error {
	b.pressPending = true
	return nil
}

func (b *Baro) ReadPressure() (float64, error) {
	if !b.pressPending {
		return 0, fmt.Errorf("sim: pressure read without start")
	}
	b.pressPending = false

	amp := b.AmplitudePa
	if amp == 0 {
		amp = 1000.0
	}
	period := b.PeriodSamples
	if period <= 0 {
		period = 100
	}
	w := 2 * math.Pi * float64(b.sample%period) / float64(period)
	b.sample++
	return baroSeaLevelPa - amp*math.Sin(w), nil
}

// Pressure simulates the legacy continuous-conversion sensor. A result is
// ready every ReadyEvery polls.
type Pressure struct {
	// ReadyEvery is the poll-to-ready ratio. Zero defaults to 5, which
	// approximates the real chip's ~9 Hz against a 50 Hz poll.
	ReadyEvery int

	// AmplitudePa and PeriodSamples shape the altitude sinusoid as in
	// Baro.
	AmplitudePa   float64
	PeriodSamples int

	polls  int
	sample int
}

func (p *Pressure) DataReady() bool {
	every := p.ReadyEvery
	if every <= 0 {
		every = 5
	}
	p.polls++
	return p.polls%every == 0
}

func (p *Pressure) Pressure() (float64, error) {
	amp := p.AmplitudePa
	if amp == 0 {
		amp = 1000.0
	}
	period := p.PeriodSamples
	if period <= 0 {
		period = 100
	}
	w := 2 * math.Pi * float64(p.sample%period) / float64(period)
	p.sample++
	return baroSeaLevelPa - amp*math.Sin(w), nil
}

func (p *Pressure) Temperature() (float64, error) {
	return 21.5, nil
}
