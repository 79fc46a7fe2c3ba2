// Package providers contains the dependency injection providers for the
// device daemon.
package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/readtrack/readtrack-device/internal/bus"
	"github.com/readtrack/readtrack-device/internal/clock"
	"github.com/readtrack/readtrack-device/internal/config"
	"github.com/readtrack/readtrack-device/internal/device"
	"github.com/readtrack/readtrack-device/internal/driver"
	"github.com/readtrack/readtrack-device/internal/driver/sim"
	"github.com/readtrack/readtrack-device/internal/errors"
	"github.com/readtrack/readtrack-device/internal/focustimer"
	"github.com/readtrack/readtrack-device/internal/id"
	"github.com/readtrack/readtrack-device/internal/kv"
	"github.com/readtrack/readtrack-device/internal/library"
	"github.com/readtrack/readtrack-device/internal/logger"
	"github.com/readtrack/readtrack-device/internal/power"
	"github.com/readtrack/readtrack-device/internal/session"
	"github.com/readtrack/readtrack-device/internal/trend"
)

// ProvideConfig loads the daemon configuration.
func ProvideConfig(_ do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideTunables loads the device tunables file.
func ProvideTunables(i do.Injector) (config.Tunables, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return config.LoadTunables(cfg.Device.TunablesPath)
}

// ProvideLogger builds the structured logger from configuration.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return logger.New(logger.Config{
		Environment: cfg.App.Environment,
		Level:       logger.ParseLevel(cfg.Logger.Level),
	}), nil
}

// ProvideClock provides the system clock.
func ProvideClock(_ do.Injector) (clock.Clock, error) {
	return clock.New(), nil
}

// StoreHandle wraps the key-value store for explicit shutdown ordering.
type StoreHandle struct {
	Store *kv.Store
}

// Shutdown closes the database.
func (h *StoreHandle) Shutdown() error {
	return h.Store.Close()
}

// ProvideStore opens the device database.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	store, err := kv.Open(cfg.Storage.DataPath, log.Logger)
	if err != nil {
		return nil, err
	}

	// First boot stamps a device instance ID for log correlation.
	var instanceID string
	switch err := store.Get(kv.GlobalKey(kv.FieldDeviceInstanceID), &instanceID); {
	case errors.Is(err, errors.ErrNotFound):
		instanceID = id.MustGenerate("dev")
		if err := store.Put(kv.GlobalKey(kv.FieldDeviceInstanceID), instanceID); err != nil {
			log.Error("failed to persist device instance id", "error", err)
		}
		log.Info("device instance registered", "instance_id", instanceID)
	case err != nil:
		store.Close()
		return nil, err
	default:
		log.Info("device instance", "instance_id", instanceID)
	}

	return &StoreHandle{Store: store}, nil
}

// ProvideLibrary loads the book library.
func ProvideLibrary(i do.Injector) (*library.Store, error) {
	handle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)
	clk := do.MustInvoke[clock.Clock](i)
	tun := do.MustInvoke[config.Tunables](i)

	return library.NewStore(handle.Store, log.Logger, clk, tun.Library.Capacity)
}

// ProvideTimer restores the adaptive timer model.
func ProvideTimer(i do.Injector) (*focustimer.Model, error) {
	handle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)
	tun := do.MustInvoke[config.Tunables](i)

	return focustimer.Load(handle.Store, log.Logger, focustimer.Config{
		MinTarget:         tun.Timer.MinTarget(),
		MaxTarget:         tun.Timer.MaxTarget(),
		InitialTarget:     tun.Timer.InitialTarget(),
		SignificanceFloor: tun.Timer.SignificanceFloor(),
		SuccessGrowth:     tun.Timer.SuccessGrowth,
		ModestGrowth:      tun.Timer.ModestGrowth,
		BlendRate:         tun.Timer.BlendRate,
	})
}

// ProvideBus provides the shared-bus lease.
func ProvideBus(_ do.Injector) (*bus.Lease, error) {
	return bus.New(), nil
}

// ProvideMachine builds the session state machine.
func ProvideMachine(i do.Injector) (*session.Machine, error) {
	lib := do.MustInvoke[*library.Store](i)
	timer := do.MustInvoke[*focustimer.Model](i)
	clk := do.MustInvoke[clock.Clock](i)
	log := do.MustInvoke[*logger.Logger](i)
	tun := do.MustInvoke[config.Tunables](i)

	return session.New(lib, timer, clk, log.Logger, session.Config{
		PauseThreshold: tun.Session.PauseThreshold,
		RestDuration:   tun.Session.RestDuration(),
	}), nil
}

// ProvidePeripherals provides the driver set. This is the bench build:
// scripted sensors and a terminal display. Hardware variants register their
// own driver providers in place of this one.
func ProvidePeripherals(i do.Injector) (device.Peripherals, error) {
	log := do.MustInvoke[*logger.Logger](i)

	return device.Peripherals{
		Display: sim.NewTerminalDisplay(os.Stdout),
		Tags:    sim.NewTagScript(nil),
		Light:   sim.NewLightScript([]int{800}),
		Audio:   sim.ConsoleAudio{Logger: log.Logger},
		Power:   sim.NewPowerSim(log.Logger, driver.WakeSourceNone),
	}, nil
}

// ProvidePower builds the power/wake orchestrator.
func ProvidePower(i do.Injector) (*power.Orchestrator, error) {
	periph := do.MustInvoke[device.Peripherals](i)
	lease := do.MustInvoke[*bus.Lease](i)
	handle := do.MustInvoke[*StoreHandle](i)
	machine := do.MustInvoke[*session.Machine](i)
	clk := do.MustInvoke[clock.Clock](i)
	log := do.MustInvoke[*logger.Logger](i)
	tun := do.MustInvoke[config.Tunables](i)

	return power.New(periph.Power, lease, handle.Store, machine, clk, log.Logger, power.Config{
		SleepThreshold: tun.Power.SleepThreshold,
		DarkDebounce:   tun.Power.DarkDebounce,
		IdleTimeout:    tun.Power.IdleTimeout(),
		WakeLightLevel: tun.Power.WakeLightLevel,
		SafetyTimer:    tun.Power.SafetyTimer(),
	}), nil
}

// ProvideLoop assembles the device context and loop.
func ProvideLoop(i do.Injector) (*device.Loop, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	tun := do.MustInvoke[config.Tunables](i)

	dctx := &device.Context{
		Logger:      log.Logger,
		Clock:       do.MustInvoke[clock.Clock](i),
		Trend:       trend.New(tun.Trend.Alpha, tun.Trend.Window),
		Library:     do.MustInvoke[*library.Store](i),
		Timer:       do.MustInvoke[*focustimer.Model](i),
		Machine:     do.MustInvoke[*session.Machine](i),
		Power:       do.MustInvoke[*power.Orchestrator](i),
		Bus:         do.MustInvoke[*bus.Lease](i),
		Peripherals: do.MustInvoke[device.Peripherals](i),
	}
	return device.NewLoop(dctx, cfg.Device.TagPollsPerSecond), nil
}
