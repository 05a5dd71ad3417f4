//go:build linux && (arm || arm64)

package indicator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// OpenGPIO requests the given BCM GPIO as a digital output via the Linux
// GPIO character device. The LED sits behind a transistor on the carrier
// board; on is line high.
func OpenGPIO(pin int) (Output, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("indicator: invalid gpio pin %d", pin)
	}

	// On Pi, line names are commonly "GPIO18", etc.
	lineName := fmt.Sprintf("GPIO%d", pin)

	// Header GPIOs moved between gpiochip0 and gpiochip4 across Pi kernel
	// variants; scan the likely ones first, then everything else.
	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("pilot-ng-gps"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodOutput{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("indicator: gpio line %q not found (or busy)", lineName)
}

type gpiodOutput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodOutput) Set(on bool) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("indicator: gpio not initialized")
	}
	v := 0
	if on {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *gpiodOutput) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	// Leave the LED dark on shutdown.
	_ = g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
