// Package mcp3008 drives the MCP3008 8-channel SAR ADC chips of the
// analog front end over SPI.
package mcp3008

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

const chipChannels = 8

type conn interface {
	Tx(w, r []byte) error
}

// Device is one MCP3008.
type Device struct {
	c      conn
	closer interface{ Close() error }
}

// Open claims the SPI device. 1 MHz keeps the chip within spec at 3.3V.
func Open(device string) (*Device, error) {
	port, err := spireg.Open(device)
	if err != nil {
		return nil, fmt.Errorf("mcp3008: open %s: %w", device, err)
	}
	c, err := port.Connect(physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("mcp3008: connect %s: %w", device, err)
	}
	return &Device{c: c, closer: port}, nil
}

// Read performs one single-ended conversion on channel 0..7.
func (d *Device) Read(channel int) (int, error) {
	if channel < 0 || channel >= chipChannels {
		return 0, fmt.Errorf("mcp3008: channel %d out of range 0..7", channel)
	}
	// Start bit, then single-ended mode + channel in the top nibble.
	w := []byte{0x01, byte(0x80 | channel<<4), 0x00}
	r := make([]byte, 3)
	if err := d.c.Tx(w, r); err != nil {
		return 0, fmt.Errorf("mcp3008: tx failed: %w", err)
	}
	return int(r[1]&0x03)<<8 | int(r[2]), nil
}

func (d *Device) Close() error {
	if d == nil || d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// reader lets the bank hold fakes in tests.
type reader interface {
	Read(channel int) (int, error)
}

// Bank gangs chips into one logical channel space: logical channel n maps
// to chip n/8, channel n%8. It satisfies the acquisition scheduler's
// channel reader. A SAR ADC converts on demand, so Start is a no-op; a
// failed conversion repeats the previous value rather than injecting a
// zero into the filters.
type Bank struct {
	chips []reader
	last  map[int]int
}

func NewBank(chips ...reader) (*Bank, error) {
	if len(chips) == 0 {
		return nil, fmt.Errorf("mcp3008: at least one chip is required")
	}
	return &Bank{chips: chips, last: make(map[int]int)}, nil
}

// OpenBank opens one Device per spidev path and gangs them.
func OpenBank(devices []string) (*Bank, error) {
	chips := make([]reader, 0, len(devices))
	for _, dev := range devices {
		d, err := Open(dev)
		if err != nil {
			return nil, err
		}
		chips = append(chips, d)
	}
	return NewBank(chips...)
}

func (b *Bank) Read(channel int) int {
	chip := channel / chipChannels
	if channel < 0 || chip >= len(b.chips) {
		return 0
	}
	v, err := b.chips[chip].Read(channel % chipChannels)
	if err != nil {
		return b.last[channel]
	}
	b.last[channel] = v
	return v
}

func (b *Bank) Start() {}
