// Package di provides dependency injection configuration for the device
// daemon.
package di

import (
	"github.com/samber/do/v2"

	"github.com/readtrack/readtrack-device/internal/config"
	"github.com/readtrack/readtrack-device/internal/device"
	"github.com/readtrack/readtrack-device/internal/di/providers"
	"github.com/readtrack/readtrack-device/internal/logger"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideTunables)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideClock)

	// Persistence layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideLibrary)
	do.Provide(injector, providers.ProvideTimer)

	// Hardware layer
	do.Provide(injector, providers.ProvideBus)
	do.Provide(injector, providers.ProvidePeripherals)

	// Core logic
	do.Provide(injector, providers.ProvideMachine)
	do.Provide(injector, providers.ProvidePower)
	do.Provide(injector, providers.ProvideLoop)

	return injector
}

// Bootstrap initializes the device services. This triggers lazy
// initialization in dependency order.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[config.Tunables](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*device.Loop](injector); err != nil {
		return err
	}
	return nil
}
