// Package hmc5983 drives the Honeywell HMC5983 magnetometer over I2C.
//
// The chip free-runs in continuous mode; Read just collects the latest
// sample. Values are raw counts, left for the consumer to calibrate.
package hmc5983

import (
	"fmt"

	"pilot-ng/internal/i2c"
)

const (
	addrDefault = 0x1E

	regConfigA = 0x00
	regConfigB = 0x01
	regMode    = 0x02
	regDataX   = 0x03
	regIDA     = 0x0A

	// 8-sample average, 15 Hz output rate.
	configADefault = 0x70
	// Continuous measurement.
	modeContinuous = 0x00
)

type regIO interface {
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

type Device struct {
	dev regIO
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("hmc5983: dev is nil")
	}
	return newWithIO(dev)
}

func newWithIO(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("hmc5983: dev is nil")
	}
	d := &Device{dev: dev}

	id := make([]byte, 3)
	if err := d.dev.ReadReg(regIDA, id); err != nil {
		return nil, fmt.Errorf("hmc5983: id read failed: %w", err)
	}
	if id[0] != 'H' || id[1] != '4' || id[2] != '3' {
		return nil, fmt.Errorf("hmc5983: id=%q want \"H43\"", id)
	}

	if err := d.dev.WriteReg(regConfigA, configADefault); err != nil {
		return nil, fmt.Errorf("hmc5983: config write failed: %w", err)
	}
	if err := d.dev.WriteReg(regMode, modeContinuous); err != nil {
		return nil, fmt.Errorf("hmc5983: mode write failed: %w", err)
	}
	return d, nil
}

// Read returns the raw field vector as [x, y, z] counts. The data
// registers hold X, Z, Y big-endian in that order.
func (d *Device) Read() ([3]int, error) {
	buf := make([]byte, 6)
	if err := d.dev.ReadReg(regDataX, buf); err != nil {
		return [3]int{}, fmt.Errorf("hmc5983: data read failed: %w", err)
	}
	x := int16(uint16(buf[0])<<8 | uint16(buf[1]))
	z := int16(uint16(buf[2])<<8 | uint16(buf[3]))
	y := int16(uint16(buf[4])<<8 | uint16(buf[5]))
	return [3]int{int(x), int(y), int(z)}, nil
}
