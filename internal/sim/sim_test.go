package sim

import (
	"testing"

	"pilot-ng/internal/sensors"
)

func TestChannels_Deterministic(t *testing.T) {
	a := &Channels{Neutrals: sensors.Neutrals{AccZ: 100}}
	b := &Channels{Neutrals: sensors.Neutrals{AccZ: 100}}

	for i := 0; i < 10; i++ {
		for _, ch := range []int{0, 1, 4, 5, 6, 7, 8} {
			if a.Read(ch) != b.Read(ch) {
				t.Fatalf("cycle %d channel %d diverged", i, ch)
			}
		}
		a.Start()
		b.Start()
	}
}

func TestChannels_GravityOnZ(t *testing.T) {
	c := &Channels{Neutrals: sensors.Neutrals{AccZ: 50}}
	if got := c.Read(1); got != 50+6600 {
		t.Fatalf("accZ raw=%d want neutral+6600", got)
	}
}

func TestBaro_RequiresStartBeforeRead(t *testing.T) {
	b := &Baro{}
	if _, err := b.ReadTemperature(); err == nil {
		t.Fatalf("expected error for temperature read without start")
	}
	if _, err := b.ReadPressure(); err == nil {
		t.Fatalf("expected error for pressure read without start")
	}

	if err := b.StartTemperature(); err != nil {
		t.Fatalf("StartTemperature: %v", err)
	}
	t10, err := b.ReadTemperature()
	if err != nil {
		t.Fatalf("ReadTemperature: %v", err)
	}
	if t10 != 215 {
		t.Fatalf("t10=%d want 215", t10)
	}

	if err := b.StartPressure(); err != nil {
		t.Fatalf("StartPressure: %v", err)
	}
	p, err := b.ReadPressure()
	if err != nil {
		t.Fatalf("ReadPressure: %v", err)
	}
	if p <= 90000 || p >= 110000 {
		t.Fatalf("p=%v outside plausible band", p)
	}
}

func TestPressure_ReadyCadence(t *testing.T) {
	p := &Pressure{ReadyEvery: 5}
	ready := 0
	for i := 0; i < 50; i++ {
		if p.DataReady() {
			ready++
		}
	}
	if ready != 10 {
		t.Fatalf("ready=%d want 10 over 50 polls", ready)
	}
}
