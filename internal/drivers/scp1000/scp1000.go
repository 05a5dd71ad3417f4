// Package scp1000 drives the VTI SCP1000-D01 pressure sensor on the
// shared SPI bus.
//
// The chip converts continuously in high-resolution mode (~9 Hz) and
// raises a data-ready flag when a fresh result can be collected. Frames
// are 8-bit register transfers: the address byte carries the register in
// bits 7..2 and the write flag in bit 1.
package scp1000

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

const (
	regRevID     = 0x00
	regOperation = 0x03
	regStatus    = 0x07
	regDataRd8   = 0x1F
	regDataRd16  = 0x20
	regTempOut   = 0x21

	// High-resolution continuous mode, 17-bit, ~9 Hz.
	opHighResolution = 0x0A

	statusDRDY = 0x20
)

// conn is the SPI transfer surface the driver needs; spi.Conn satisfies
// it.
type conn interface {
	Tx(w, r []byte) error
}

// Device is an SCP1000 in high-resolution continuous mode.
type Device struct {
	c      conn
	closer interface{ Close() error }
}

// Open claims the SPI device and puts the sensor into high-resolution
// mode. The SCP1000 tops out at 500 kHz.
func Open(device string) (*Device, error) {
	port, err := spireg.Open(device)
	if err != nil {
		return nil, fmt.Errorf("scp1000: open %s: %w", device, err)
	}
	c, err := port.Connect(500*physic.KiloHertz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("scp1000: connect %s: %w", device, err)
	}
	d, err := newWithConn(c)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	d.closer = port
	return d, nil
}

func newWithConn(c conn) (*Device, error) {
	if c == nil {
		return nil, fmt.Errorf("scp1000: conn is nil")
	}
	d := &Device{c: c}

	rev, err := d.readReg8(regRevID)
	if err != nil {
		return nil, fmt.Errorf("scp1000: revision read failed: %w", err)
	}
	if rev == 0x00 || rev == 0xFF {
		return nil, fmt.Errorf("scp1000: implausible revision 0x%02X, wiring?", rev)
	}

	if err := d.writeReg(regOperation, opHighResolution); err != nil {
		return nil, fmt.Errorf("scp1000: mode write failed: %w", err)
	}
	return d, nil
}

// DataReady reports whether a fresh conversion result is available.
// Transfer errors read as "not ready"; the caller retries next cycle.
func (d *Device) DataReady() bool {
	st, err := d.readReg8(regStatus)
	if err != nil {
		return false
	}
	return st&statusDRDY != 0
}

// Pressure collects the 19-bit conversion result and returns Pa.
func (d *Device) Pressure() (float64, error) {
	hi, err := d.readReg8(regDataRd8)
	if err != nil {
		return 0, fmt.Errorf("scp1000: pressure msb read failed: %w", err)
	}
	lo, err := d.readReg16(regDataRd16)
	if err != nil {
		return 0, fmt.Errorf("scp1000: pressure lsw read failed: %w", err)
	}
	raw := uint32(hi&0x07)<<16 | uint32(lo)
	return float64(raw) / 4.0, nil
}

// Temperature returns degC. The register holds a 14-bit signed value in
// 0.05 degC steps.
func (d *Device) Temperature() (float64, error) {
	v, err := d.readReg16(regTempOut)
	if err != nil {
		return 0, fmt.Errorf("scp1000: temperature read failed: %w", err)
	}
	v &= 0x3FFF
	if v&0x2000 != 0 {
		v |= 0xC000
	}
	return float64(int16(v)) / 20.0, nil
}

func (d *Device) Close() error {
	if d == nil || d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func (d *Device) readReg8(reg byte) (byte, error) {
	w := []byte{reg << 2, 0x00}
	r := make([]byte, 2)
	if err := d.c.Tx(w, r); err != nil {
		return 0, err
	}
	return r[1], nil
}

func (d *Device) readReg16(reg byte) (uint16, error) {
	w := []byte{reg << 2, 0x00, 0x00}
	r := make([]byte, 3)
	if err := d.c.Tx(w, r); err != nil {
		return 0, err
	}
	return uint16(r[1])<<8 | uint16(r[2]), nil
}

func (d *Device) writeReg(reg, value byte) error {
	return d.c.Tx([]byte{reg<<2 | 0x02, value}, nil)
}
