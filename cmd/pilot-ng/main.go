package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"periph.io/x/host/v3"

	"pilot-ng/internal/bus"
	"pilot-ng/internal/config"
	"pilot-ng/internal/datalog"
	"pilot-ng/internal/drivers/bmp085"
	"pilot-ng/internal/drivers/hmc5983"
	"pilot-ng/internal/drivers/mcp3008"
	"pilot-ng/internal/drivers/scp1000"
	"pilot-ng/internal/fusion"
	"pilot-ng/internal/gps"
	"pilot-ng/internal/hardware"
	"pilot-ng/internal/i2c"
	"pilot-ng/internal/indicator"
	"pilot-ng/internal/sensors"
	"pilot-ng/internal/sim"
	"pilot-ng/internal/telemetry"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./pilot.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	rev, err := cfg.Hardware.ParsedRevision()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("pilot-ng starting revision=%s profile=%s period=%s", rev, cfg.Loop.Profile, cfg.Loop.Period())

	needSPI := !cfg.Sim.Enable && (len(cfg.Hardware.ADCSPIDevices) > 0 || cfg.Hardware.SPIDevice != "")
	if needSPI {
		if _, err := host.Init(); err != nil {
			log.Fatalf("periph host init failed: %v", err)
		}
	}

	state := sensors.NewState()
	arb := bus.NewArbiter()

	neutrals := sensors.Neutrals{
		AccX:  cfg.Sensors.AccXNeutral,
		AccY:  cfg.Sensors.AccYNeutral,
		AccZ:  cfg.Sensors.AccZNeutral,
		GyroX: cfg.Sensors.GyroXNeutral,
		GyroY: cfg.Sensors.GyroYNeutral,
		GyroZ: cfg.Sensors.GyroZNeutral,
	}
	conv := sensors.Converter{
		Neutrals:   neutrals,
		Polarity:   cfg.Hardware.Polarity(),
		GyroZScale: rev.GyroZScale(),
	}

	var adc sensors.ChannelReader
	if !cfg.Sim.Enable && len(cfg.Hardware.ADCSPIDevices) > 0 {
		bank, err := mcp3008.OpenBank(cfg.Hardware.ADCSPIDevices)
		if err != nil {
			log.Fatalf("adc init failed: %v", err)
		}
		adc = bank
	} else {
		log.Printf("analog front end: simulated")
		adc = &sim.Channels{Neutrals: neutrals}
	}

	noteSensors := func(msg string) { log.Printf("sensors: %s", msg) }

	// The baro and the compass share the I2C bus on v01o boards.
	var i2cBus *i2c.Bus
	openI2C := func() *i2c.Bus {
		if i2cBus != nil {
			return i2cBus
		}
		b, err := i2c.Open(cfg.Hardware.I2CDevice)
		if err != nil {
			log.Fatalf("i2c open %s failed: %v", cfg.Hardware.I2CDevice, err)
		}
		i2cBus = b
		return b
	}
	defer func() {
		if i2cBus != nil {
			_ = i2cBus.Close()
		}
	}()

	var path sensors.PressurePath
	if rev.AtLeast(hardware.RevO) {
		var baro sensors.PingPongBaro
		if !cfg.Sim.Enable && cfg.Hardware.I2CDevice != "" {
			b, err := bmp085.New(openI2C().Dev(cfg.Hardware.BaroAddr), 0)
			if err != nil {
				log.Fatalf("baro init failed: %v", err)
			}
			baro = b
		} else {
			log.Printf("baro: simulated")
			baro = &sim.Baro{}
		}
		path = sensors.NewModernPath(baro, noteSensors)
	} else {
		var sensor sensors.LegacyPressureSensor
		if !cfg.Sim.Enable && cfg.Hardware.SPIDevice != "" {
			d, err := scp1000.Open(cfg.Hardware.SPIDevice)
			if err != nil {
				log.Fatalf("pressure sensor init failed: %v", err)
			}
			defer func() { _ = d.Close() }()
			sensor = d
		} else {
			log.Printf("pressure sensor: simulated")
			sensor = &sim.Pressure{}
		}
		path = sensors.NewLegacyPath(sensor, arb, sensors.NewEstimator(), state, noteSensors)
	}

	var compass sensors.Compass
	if cfg.Hardware.Compass && !cfg.Sim.Enable && cfg.Hardware.I2CDevice != "" {
		c, err := hmc5983.New(openI2C().Dev(hmc5983.DefaultAddress()))
		if err != nil {
			log.Fatalf("compass init failed: %v", err)
		}
		compass = c
	}

	filt := fusion.New()

	sched, err := sensors.NewScheduler(sensors.Config{
		Period:    cfg.Loop.Period(),
		Revision:  rev,
		Converter: conv,
		ADC:       adc,
		Path:      path,
		Compass:   compass,
		Fusion:    filt,
		State:     state,
	})
	if err != nil {
		log.Fatalf("scheduler init failed: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("scheduler start failed: %v", err)
	}
	defer sched.Close()

	if cfg.GPS.Device != "" {
		var led gps.Indicator
		if cfg.Indicator.Enable {
			out, err := indicator.OpenGPIO(cfg.Indicator.Pin)
			if err != nil {
				log.Printf("indicator init failed, continuing without: %v", err)
			} else {
				defer func() { _ = out.Close() }()
				led = out
			}
		}

		feed := gps.NewFeed(gps.FeedConfig{Device: cfg.GPS.Device, Baud: cfg.GPS.Baud})
		if err := feed.Start(ctx); err != nil {
			log.Fatalf("gps feed start failed: %v", err)
		}
		defer feed.Close()

		wd, err := gps.NewWatchdog(gps.Config{
			Arrival:         feed.Arrival(),
			Updater:         feed,
			State:           state,
			Indicator:       led,
			ReceiveTimeout:  cfg.GPS.ReceiveTimeout,
			CruisingSpeedMS: cfg.Control.CruisingSpeedMS,
			MinSatellites:   4,
			Airborne:        airborneDetector(state, cfg.Control.CruisingSpeedMS),
			WarmUp:          feed.AwaitFirst,
		})
		if err != nil {
			log.Fatalf("gps watchdog init failed: %v", err)
		}
		if err := wd.Start(ctx); err != nil {
			log.Fatalf("gps watchdog start failed: %v", err)
		}
		defer wd.Close()
	} else {
		log.Printf("gps: no device configured, reception disabled")
	}

	tele := telemetry.New(telemetry.Config{
		Enable:   cfg.Telemetry.Enable,
		Broker:   cfg.Telemetry.Broker,
		ClientID: cfg.Telemetry.ClientID,
		Topic:    cfg.Telemetry.Topic,
		Interval: cfg.Telemetry.Interval,
	}, func() interface{} {
		return struct {
			Sensors  sensors.Data    `json:"sensors"`
			Attitude fusion.Snapshot `json:"attitude"`
		}{state.Snapshot(), filt.Snapshot()}
	})
	if err := tele.Start(ctx); err != nil {
		log.Fatalf("telemetry start failed: %v", err)
	}
	defer tele.Close()

	dlog := datalog.New(datalog.Config{
		Enable:      cfg.Datalog.Enable,
		Path:        cfg.Datalog.Path,
		Interval:    cfg.Datalog.Interval,
		AcquireWait: cfg.Datalog.AcquireWait,
	}, arb, state)
	if err := dlog.Start(ctx); err != nil {
		log.Fatalf("datalog start failed: %v", err)
	}
	defer dlog.Close()

	<-ctx.Done()
	log.Printf("pilot-ng stopping")
}

// airborneDetector latches "flying" once an active fix reports a ground
// speed near cruising, and unlatches only when the speed drops to taxi
// levels with the fix still active. The latch is what lets the speed
// substitution hold through a mid-flight GPS dropout. Called only from the
// watchdog goroutine.
func airborneDetector(state *sensors.State, cruisingMS float64) func() bool {
	airborne := false
	return func() bool {
		fix := state.GPS()
		if fix.Status != sensors.LinkActive {
			return airborne
		}
		if fix.SpeedMS > cruisingMS*0.5 {
			airborne = true
		} else if fix.SpeedMS < 2.0 {
			airborne = false
		}
		return airborne
	}
}
