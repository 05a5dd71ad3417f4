package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pilot-ng/internal/hardware"
)

type Config struct {
	Loop      LoopConfig      `yaml:"loop"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Sensors   SensorConfig    `yaml:"sensors"`
	Control   ControlConfig   `yaml:"control"`
	GPS       GPSConfig       `yaml:"gps"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Datalog   DatalogConfig   `yaml:"datalog"`
	Sim       SimConfig       `yaml:"sim"`
}

// LoopConfig selects the base acquisition rate. The profile is fixed at
// startup; the loop body never branches on it.
type LoopConfig struct {
	// Profile is "plane" (20ms cycle) or "quad" (4ms cycle).
	Profile string `yaml:"profile"`
}

func (l LoopConfig) Period() time.Duration {
	if l.Profile == "quad" {
		return 4 * time.Millisecond
	}
	return 20 * time.Millisecond
}

type HardwareConfig struct {
	Revision string `yaml:"revision"`
	// InvertX flips the x polarity of the accelerometer and gyro axes when
	// the board is mounted front-to-back. The z accelerometer axis keeps the
	// gravity convention and is never flipped.
	InvertX bool `yaml:"invert_x"`
	Compass bool `yaml:"compass"`

	// SPIDevice is the spidev port of the SCP1000 on pre-v01o boards
	// (e.g. "/dev/spidev0.0"). Empty selects the simulated sensor.
	SPIDevice string `yaml:"spi_device"`
	// I2CDevice is the bus of the BMP085 on v01o boards (e.g. "/dev/i2c-1").
	I2CDevice string `yaml:"i2c_device"`
	BaroAddr  uint16 `yaml:"baro_addr"`

	// ADCSPIDevices are the spidev ports of the analog front end, one per
	// ADC chip in channel order (logical channel = index*8 + chip channel).
	// Empty selects the simulated channel source.
	ADCSPIDevices []string `yaml:"adc_spi_devices"`
}

func (h HardwareConfig) ParsedRevision() (hardware.Revision, error) {
	return hardware.ParseRevision(h.Revision)
}

// Polarity returns the global sign flag applied to the x/y axes.
func (h HardwareConfig) Polarity() float64 {
	if h.InvertX {
		return -1.0
	}
	return 1.0
}

// SensorConfig holds the per-axis neutral (zero-offset) calibration counts,
// measured with the airframe at rest.
type SensorConfig struct {
	AccXNeutral  int `yaml:"acc_x_neutral"`
	AccYNeutral  int `yaml:"acc_y_neutral"`
	AccZNeutral  int `yaml:"acc_z_neutral"`
	GyroXNeutral int `yaml:"gyro_x_neutral"`
	GyroYNeutral int `yaml:"gyro_y_neutral"`
	GyroZNeutral int `yaml:"gyro_z_neutral"`
}

type ControlConfig struct {
	// CruisingSpeedMS substitutes for measured ground speed when the GPS
	// has no usable lock while airborne.
	CruisingSpeedMS float64 `yaml:"cruising_speed_ms"`
}

type GPSConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// ReceiveTimeout bounds the wait for the next sentence before the
	// reception watchdog declares the link lost.
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
}

type IndicatorConfig struct {
	Enable bool `yaml:"enable"`
	// Pin is the BCM GPIO of the status LED.
	Pin int `yaml:"pin"`
}

type TelemetryConfig struct {
	Enable   bool          `yaml:"enable"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	Interval time.Duration `yaml:"interval"`
}

type DatalogConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
	// Interval is the record cadence; AcquireWait bounds how long the
	// logger may wait for the shared bus before dropping a record.
	Interval    time.Duration `yaml:"interval"`
	AcquireWait time.Duration `yaml:"acquire_wait"`
}

type SimConfig struct {
	// Enable replaces the raw channel source and the pressure sensors with
	// simulated ones so the pipeline runs without the board.
	Enable bool `yaml:"enable"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Loop.Profile == "" {
		cfg.Loop.Profile = "plane"
	}
	if cfg.Loop.Profile != "plane" && cfg.Loop.Profile != "quad" {
		return Config{}, fmt.Errorf("loop.profile must be 'plane' or 'quad'")
	}

	if cfg.Hardware.Revision == "" {
		return Config{}, fmt.Errorf("hardware.revision is required")
	}
	if _, err := cfg.Hardware.ParsedRevision(); err != nil {
		return Config{}, err
	}
	if cfg.Hardware.BaroAddr == 0 {
		cfg.Hardware.BaroAddr = 0x77
	}

	if cfg.Control.CruisingSpeedMS <= 0 {
		cfg.Control.CruisingSpeedMS = 15.0
	}

	if cfg.GPS.Baud == 0 {
		cfg.GPS.Baud = 9600
	}
	if cfg.GPS.ReceiveTimeout <= 0 {
		cfg.GPS.ReceiveTimeout = 205 * time.Millisecond
	}

	if cfg.Telemetry.Enable {
		if cfg.Telemetry.Broker == "" {
			return Config{}, fmt.Errorf("telemetry.broker is required when telemetry.enable is true")
		}
		if cfg.Telemetry.ClientID == "" {
			cfg.Telemetry.ClientID = "pilot-ng"
		}
		if cfg.Telemetry.Topic == "" {
			cfg.Telemetry.Topic = "pilot/sensors"
		}
		if cfg.Telemetry.Interval <= 0 {
			cfg.Telemetry.Interval = 1 * time.Second
		}
	}

	if cfg.Datalog.Enable {
		if cfg.Datalog.Path == "" {
			return Config{}, fmt.Errorf("datalog.path is required when datalog.enable is true")
		}
		if cfg.Datalog.Interval <= 0 {
			cfg.Datalog.Interval = 200 * time.Millisecond
		}
		if cfg.Datalog.AcquireWait < 0 {
			return Config{}, fmt.Errorf("datalog.acquire_wait must be >= 0")
		}
		if cfg.Datalog.AcquireWait == 0 {
			cfg.Datalog.AcquireWait = 5 * time.Millisecond
		}
	}

	if cfg.Indicator.Enable && cfg.Indicator.Pin <= 0 {
		return Config{}, fmt.Errorf("indicator.pin is required when indicator.enable is true")
	}

	return cfg, nil
}
