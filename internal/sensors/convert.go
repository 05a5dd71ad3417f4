package sensors

import "math"

// Raw analog channel assignments. These follow the board routing and never
// change across revisions.
const (
	chAccY    = 0
	chAccZ    = 1
	chVref    = 3
	chGyroX   = 4
	chGyroZ   = 5
	chAccX    = 6
	chGyroY   = 7
	chBattery = 8
)

// accValueG is the accelerometer sensitivity in counts per g.
const accValueG = 6600.0

// Gyro x/y sensitivities in rad/s per count. The z scale depends on the
// board revision and is injected via Converter.
const (
	gyroXScale = -0.02518315 * math.Pi / 180.0
	gyroYScale = -0.02538315 * math.Pi / 180.0
)

// batteryVoltsPerCount folds the 3.3V reference and the 5.1:1 divider.
const batteryVoltsPerCount = 3.3 * 5.1 / 6550.0

// ChannelReader samples raw analog channels. Read must not block; Start
// re-arms the converter so the next cycle's samples are ready when read.
type ChannelReader interface {
	Read(channel int) int
	Start()
}

// Neutrals are the at-rest calibration counts subtracted from every raw
// reading.
type Neutrals struct {
	AccX, AccY, AccZ    int
	GyroX, GyroY, GyroZ int
}

// Converter turns raw counts into engineering units. Polarity is the
// global front-to-back sign flag; the z accelerometer axis ignores it by
// the gravity-axis convention. GyroZScale comes from the board revision.
type Converter struct {
	Neutrals   Neutrals
	Polarity   float64
	GyroZScale float64
}

func (c Converter) Convert(d *Data) {
	d.AccX = (float64(d.AccXRaw) - float64(c.Neutrals.AccX)) / (-accValueG * c.Polarity)
	d.AccY = (float64(d.AccYRaw) - float64(c.Neutrals.AccY)) / (-accValueG * c.Polarity)
	d.AccZ = (float64(d.AccZRaw) - float64(c.Neutrals.AccZ)) / (-accValueG)

	d.P = (float64(d.GyroXRaw) - float64(c.Neutrals.GyroX)) * (gyroXScale * c.Polarity)
	d.Q = (float64(d.GyroYRaw) - float64(c.Neutrals.GyroY)) * (gyroYScale * c.Polarity)
	d.R = (float64(d.GyroZRaw) - float64(c.Neutrals.GyroZ)) * c.GyroZScale
}

func readRaw(adc ChannelReader, d *Data) {
	d.AccXRaw = adc.Read(chAccX)
	d.AccZRaw = adc.Read(chAccZ)
	d.AccYRaw = adc.Read(chAccY)

	d.GyroXRaw = adc.Read(chGyroX)
	d.GyroYRaw = adc.Read(chGyroY)
	d.GyroZRaw = adc.Read(chGyroZ)

	d.VrefRaw = adc.Read(chVref)
}
