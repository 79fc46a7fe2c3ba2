// Package main provides the entry point for the ReadTrack device daemon.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/readtrack/readtrack-device/internal/config"
	"github.com/readtrack/readtrack-device/internal/device"
	"github.com/readtrack/readtrack-device/internal/di"
	"github.com/readtrack/readtrack-device/internal/di/providers"
	"github.com/readtrack/readtrack-device/internal/logger"
)

func main() {
	injector := di.NewContainer()

	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap device: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)
	cfg := do.MustInvoke[*config.Config](injector)
	loop := do.MustInvoke[*device.Loop](injector)

	// Hot-reload the tunables file while the device is awake.
	if cfg.Device.HotReload && cfg.Device.TunablesPath != "" {
		stop, err := config.WatchTunables(cfg.Device.TunablesPath, log.Logger, loop.ApplyTunables)
		if err != nil {
			log.Warn("tunables watcher unavailable", "error", err)
		} else {
			defer stop()
		}
	}

	// Wake classification must run before anything else touches the state.
	reason := loop.Resume()
	log.Info("device up",
		"wake_reason", reason.String(),
		"tick_interval", cfg.Device.TickInterval)

	done := make(chan struct{})
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		close(done)
	}()

	// Runs until a signal arrives or the device suspends itself.
	loop.Run(done, cfg.Device.TickInterval)

	log.Info("shutting down")

	if storeHandle, err := do.Invoke[*providers.StoreHandle](injector); err == nil {
		if err := storeHandle.Shutdown(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}

	if err := injector.Shutdown(); err != nil {
		log.Error("shutdown error", "error", err)
	}
}
