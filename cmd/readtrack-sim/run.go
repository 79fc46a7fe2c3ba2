package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/readtrack/readtrack-device/internal/bus"
	"github.com/readtrack/readtrack-device/internal/clock"
	"github.com/readtrack/readtrack-device/internal/config"
	"github.com/readtrack/readtrack-device/internal/device"
	"github.com/readtrack/readtrack-device/internal/driver"
	"github.com/readtrack/readtrack-device/internal/driver/sim"
	"github.com/readtrack/readtrack-device/internal/focustimer"
	"github.com/readtrack/readtrack-device/internal/kv"
	"github.com/readtrack/readtrack-device/internal/library"
	"github.com/readtrack/readtrack-device/internal/logger"
	"github.com/readtrack/readtrack-device/internal/power"
	"github.com/readtrack/readtrack-device/internal/session"
	"github.com/readtrack/readtrack-device/internal/trend"
)

var runFlags struct {
	dataPath string
	tunables string
	logLevel string
	duration time.Duration
	interval time.Duration
	pollRate float64
	light    string
	tag      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the device loop against scripted inputs",
	Long: `Run drives the real device loop with a scripted light sensor and tag
reader. The light script is a comma-separated list of raw samples (0-4095);
the last sample holds once the script is exhausted, so ending the script with
a dark value walks the device into deep sleep. If --tag is given, that tag
reads as present for the whole run.

Without --data the run uses an in-memory store and leaves nothing behind.`,
	RunE: runScenario,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.dataPath, "data", "", "database directory (empty for in-memory)")
	runCmd.Flags().StringVar(&runFlags.tunables, "tunables", "", "tunables YAML file")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().DurationVar(&runFlags.duration, "duration", 10*time.Second, "how long to run")
	runCmd.Flags().DurationVar(&runFlags.interval, "interval", 250*time.Millisecond, "tick interval")
	runCmd.Flags().Float64Var(&runFlags.pollRate, "poll-rate", 1.0, "tag polls per second")
	runCmd.Flags().StringVar(&runFlags.light, "light", "900,850,880,860,840", "comma-separated raw light samples")
	runCmd.Flags().StringVar(&runFlags.tag, "tag", "04a1b2c3", "hex tag UID present for the run (empty for none)")

	rootCmd.AddCommand(runCmd)
}

func runScenario(_ *cobra.Command, _ []string) error {
	log := logger.New(logger.Config{
		Environment: "development",
		Level:       logger.ParseLevel(runFlags.logLevel),
	})

	tun, err := config.LoadTunables(runFlags.tunables)
	if err != nil {
		return fmt.Errorf("loading tunables: %w", err)
	}

	var store *kv.Store
	if runFlags.dataPath == "" {
		store, err = kv.OpenInMemory(log.Logger)
	} else {
		store, err = kv.Open(runFlags.dataPath, log.Logger)
	}
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	samples, err := parseLightScript(runFlags.light)
	if err != nil {
		return err
	}

	var tagSteps []driver.TagID
	if runFlags.tag != "" {
		uid, err := hex.DecodeString(runFlags.tag)
		if err != nil {
			return fmt.Errorf("invalid --tag %q: %w", runFlags.tag, err)
		}
		tagSteps = []driver.TagID{driver.TagID(uid)}
	}

	clk := clock.New()

	lib, err := library.NewStore(store, log.Logger, clk, tun.Library.Capacity)
	if err != nil {
		return fmt.Errorf("loading library: %w", err)
	}

	timer, err := focustimer.Load(store, log.Logger, focustimer.Config{
		MinTarget:         tun.Timer.MinTarget(),
		MaxTarget:         tun.Timer.MaxTarget(),
		InitialTarget:     tun.Timer.InitialTarget(),
		SignificanceFloor: tun.Timer.SignificanceFloor(),
		SuccessGrowth:     tun.Timer.SuccessGrowth,
		ModestGrowth:      tun.Timer.ModestGrowth,
		BlendRate:         tun.Timer.BlendRate,
	})
	if err != nil {
		return fmt.Errorf("loading timer model: %w", err)
	}

	lease := bus.New()
	machine := session.New(lib, timer, clk, log.Logger, session.Config{
		PauseThreshold: tun.Session.PauseThreshold,
		RestDuration:   tun.Session.RestDuration(),
	})

	powerSim := sim.NewPowerSim(log.Logger, driver.WakeSourceNone)
	periph := device.Peripherals{
		Display: sim.NewTerminalDisplay(os.Stdout),
		Tags:    sim.NewTagScript(tagSteps),
		Light:   sim.NewLightScript(samples),
		Audio:   sim.ConsoleAudio{Logger: log.Logger},
		Power:   powerSim,
	}

	orch := power.New(powerSim, lease, store, machine, clk, log.Logger, power.Config{
		SleepThreshold: tun.Power.SleepThreshold,
		DarkDebounce:   tun.Power.DarkDebounce,
		IdleTimeout:    tun.Power.IdleTimeout(),
		WakeLightLevel: tun.Power.WakeLightLevel,
		SafetyTimer:    tun.Power.SafetyTimer(),
	})

	loop := device.NewLoop(&device.Context{
		Logger:      log.Logger,
		Clock:       clk,
		Trend:       trend.New(tun.Trend.Alpha, tun.Trend.Window),
		Library:     lib,
		Timer:       timer,
		Machine:     machine,
		Power:       orch,
		Bus:         lease,
		Peripherals: periph,
	}, runFlags.pollRate)

	reason := loop.Resume()
	log.Info("simulation starting",
		"wake_reason", reason.String(),
		"duration", runFlags.duration,
		"interval", runFlags.interval)

	done := make(chan struct{})
	go func() {
		time.Sleep(runFlags.duration)
		close(done)
	}()
	loop.Run(done, runFlags.interval)

	printSummary(lib, machine, powerSim)
	return nil
}

func parseLightScript(s string) ([]int, error) {
	var samples []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid light sample %q: %w", part, err)
		}
		if v < trend.RawMin || v > trend.RawMax {
			return nil, fmt.Errorf("light sample %d out of range %d-%d", v, trend.RawMin, trend.RawMax)
		}
		samples = append(samples, v)
	}
	return samples, nil
}

func printSummary(lib *library.Store, machine *session.Machine, powerSim *sim.PowerSim) {
	fmt.Println()
	fmt.Printf("final state: %s\n", machine.State())
	if powerSim.Suspended() {
		cfg := powerSim.WakeConfigured()
		fmt.Printf("suspended: wake at light>=%d or after %s\n", cfg.LightLevel, cfg.SafetyTimer)
	}
	fmt.Printf("library: %d/%d slots, %ds total reading\n",
		lib.ActiveCount(), lib.Capacity(), lib.TotalReadingSeconds())
	for _, rec := range lib.Records() {
		fmt.Printf("  slot %d  %-12s tag=%s total=%ds sessions=%d cycles=%d\n",
			rec.Slot, rec.Name, rec.TagUID, rec.TotalSeconds, rec.SessionCount, rec.FocusCycles)
	}
}
