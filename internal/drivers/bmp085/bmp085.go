// Package bmp085 drives the Bosch BMP085 barometer over I2C.
//
// The chip runs one conversion at a time: a control write starts either a
// temperature or a pressure conversion and the result is collected after
// the conversion delay. The driver exposes those halves separately so the
// caller can hide one conversion's latency behind the other's consumption
// instead of sleeping.
package bmp085

import (
	"fmt"

	"pilot-ng/internal/i2c"
)

const (
	addrDefault = 0x77

	regCalib = 0xAA
	calibLen = 22

	regCtrl   = 0xF4
	regResult = 0xF6

	cmdTemperature = 0x2E
	cmdPressure    = 0x34
)

type regIO interface {
	ReadReg(reg byte, dst []byte) error
	ReadRegU16BE(reg byte) (uint16, error)
	WriteReg(reg, value byte) error
}

// Device is a BMP085 with its calibration loaded.
type Device struct {
	dev regIO
	oss uint

	ac1, ac2, ac3 int16
	ac4, ac5, ac6 uint16
	b1, b2        int16
	mb, mc, md    int16

	// b5 carries temperature compensation into the pressure math, so a
	// pressure read needs a preceding temperature read.
	b5 int32
}

func DefaultAddress() uint16 { return addrDefault }

// New opens the barometer on dev. oss is the pressure oversampling
// setting, 0..3.
func New(dev *i2c.Dev, oss uint) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("bmp085: dev is nil")
	}
	return newWithIO(dev, oss)
}

func newWithIO(dev regIO, oss uint) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("bmp085: dev is nil")
	}
	if oss > 3 {
		return nil, fmt.Errorf("bmp085: oversampling %d out of range 0..3", oss)
	}
	d := &Device{dev: dev, oss: oss}
	if err := d.readCalibration(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) readCalibration() error {
	buf := make([]byte, calibLen)
	if err := d.dev.ReadReg(regCalib, buf); err != nil {
		return fmt.Errorf("bmp085: read calib failed: %w", err)
	}
	// Per datasheet, 0x0000 and 0xFFFF in any word mean a broken EEPROM
	// or a bad bus.
	for i := 0; i < calibLen; i += 2 {
		w := uint16(buf[i])<<8 | uint16(buf[i+1])
		if w == 0x0000 || w == 0xFFFF {
			return fmt.Errorf("bmp085: calibration word %d invalid (0x%04X)", i/2, w)
		}
	}
	u16 := func(i int) uint16 { return uint16(buf[i])<<8 | uint16(buf[i+1]) }
	d.ac1 = int16(u16(0))
	d.ac2 = int16(u16(2))
	d.ac3 = int16(u16(4))
	d.ac4 = u16(6)
	d.ac5 = u16(8)
	d.ac6 = u16(10)
	d.b1 = int16(u16(12))
	d.b2 = int16(u16(14))
	d.mb = int16(u16(16))
	d.mc = int16(u16(18))
	d.md = int16(u16(20))
	return nil
}

// StartTemperature begins a temperature conversion (4.5ms).
func (d *Device) StartTemperature() error {
	if err := d.dev.WriteReg(regCtrl, cmdTemperature); err != nil {
		return fmt.Errorf("bmp085: start temperature failed: %w", err)
	}
	return nil
}

// ReadTemperature collects a finished temperature conversion and returns
// it in 0.1 degC units.
func (d *Device) ReadTemperature() (int, error) {
	ut, err := d.dev.ReadRegU16BE(regResult)
	if err != nil {
		return 0, fmt.Errorf("bmp085: read temperature failed: %w", err)
	}

	// Datasheet integer compensation.
	x1 := (int32(ut) - int32(d.ac6)) * int32(d.ac5) >> 15
	x2 := int32(d.mc) << 11 / (x1 + int32(d.md))
	d.b5 = x1 + x2
	t := (d.b5 + 8) >> 4
	return int(t), nil
}

// StartPressure begins a pressure conversion. The conversion time depends
// on the oversampling setting (4.5ms at oss=0 up to 25.5ms at oss=3).
func (d *Device) StartPressure() error {
	if err := d.dev.WriteReg(regCtrl, cmdPressure|byte(d.oss)<<6); err != nil {
		return fmt.Errorf("bmp085: start pressure failed: %w", err)
	}
	return nil
}

// ReadPressure collects a finished pressure conversion and returns Pa. It
// uses the b5 value from the most recent ReadTemperature.
func (d *Device) ReadPressure() (float64, error) {
	buf := make([]byte, 3)
	if err := d.dev.ReadReg(regResult, buf); err != nil {
		return 0, fmt.Errorf("bmp085: read pressure failed: %w", err)
	}
	up := (int32(buf[0])<<16 | int32(buf[1])<<8 | int32(buf[2])) >> (8 - d.oss)

	b6 := d.b5 - 4000
	x1 := (int32(d.b2) * (b6 * b6 >> 12)) >> 11
	x2 := int32(d.ac2) * b6 >> 11
	x3 := x1 + x2
	b3 := (((int32(d.ac1)*4 + x3) << d.oss) + 2) / 4
	x1 = int32(d.ac3) * b6 >> 13
	x2 = (int32(d.b1) * (b6 * b6 >> 12)) >> 16
	x3 = (x1 + x2 + 2) >> 2
	b4 := uint32(d.ac4) * uint32(x3+32768) >> 15
	b7 := uint32(up-b3) * (50000 >> d.oss)

	var p int32
	if b7 < 0x80000000 {
		p = int32(b7 * 2 / b4)
	} else {
		p = int32(b7/b4) * 2
	}
	x1 = (p >> 8) * (p >> 8)
	x1 = (x1 * 3038) >> 16
	x2 = (-7357 * p) >> 16
	p += (x1 + x2 + 3791) >> 4

	return float64(p), nil
}
