package hmc5983

import (
	"fmt"
	"testing"
)

type fakeIO struct {
	id     [3]byte
	data   [6]byte
	writes [][2]byte
}

func newFakeIO() *fakeIO {
	return &fakeIO{id: [3]byte{'H', '4', '3'}}
}

func (f *fakeIO) ReadReg(reg byte, dst []byte) error {
	switch reg {
	case regIDA:
		copy(dst, f.id[:])
	case regDataX:
		copy(dst, f.data[:])
	default:
		return fmt.Errorf("unexpected read reg=0x%02X", reg)
	}
	return nil
}

func (f *fakeIO) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, [2]byte{reg, value})
	return nil
}

func TestNew_ConfiguresContinuousMode(t *testing.T) {
	io := newFakeIO()
	if _, err := newWithIO(io); err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	want := [][2]byte{{regConfigA, configADefault}, {regMode, modeContinuous}}
	if len(io.writes) != 2 || io.writes[0] != want[0] || io.writes[1] != want[1] {
		t.Fatalf("writes=%v want=%v", io.writes, want)
	}
}

func TestNew_RejectsWrongID(t *testing.T) {
	io := newFakeIO()
	io.id = [3]byte{0, 0, 0}
	if _, err := newWithIO(io); err == nil {
		t.Fatalf("expected error for wrong chip id")
	}
}

func TestRead_ReordersXZYToXYZ(t *testing.T) {
	io := newFakeIO()
	d, err := newWithIO(io)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}

	// X=100, Z=-50, Y=300 on the wire.
	io.data = [6]byte{0x00, 0x64, 0xFF, 0xCE, 0x01, 0x2C}
	got, err := d.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != [3]int{100, 300, -50} {
		t.Fatalf("got=%v want [100 300 -50]", got)
	}
}
