//go:build linux

package icm42600

import (
	"context"

	"go.viam.com/rdk/components/board/genericlinux/buses"
	"go.viam.com/rdk/components/movementsensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

// newIcm42600 wires the configured bus, supply rails and interrupt line into the driver.
func newIcm42600(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
	variant ChipVariant,
) (movementsensor.MovementSensor, error) {
	newConf, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}

	var hw hardware
	if newConf.I2cBus != "" {
		bus, err := buses.NewI2cBus(newConf.I2cBus)
		if err != nil {
			return nil, err
		}
		address := byte(defaultI2CAddress)
		if newConf.UseAlternateI2CAddress {
			address = alternateI2CAddress
		}
		logger.CDebugf(ctx, "Using address %#02x for %s sensor", address, variant)
		hw.tr = &i2cTransport{bus: bus, address: address, logger: logger}
	} else {
		bus := buses.NewSpiBus(newConf.SpiBus)
		hw.tr = &spiTransport{bus: bus, chipSelect: newConf.SpiChipSelect, logger: logger}
	}

	// Anything claimed below belongs to the driver once makeIcm42600 runs; until then,
	// release it ourselves on failure.
	handoff := false
	defer func() {
		if !handoff {
			for _, f := range hw.cleanup {
				f(ctx)
			}
		}
	}()

	chip := defaultGpioChip(newConf.GpioChip)

	hw.vdd = fixedRail{}
	if newConf.VddEnableLine != nil {
		rail, err := newGpioRegulator(chip, *newConf.VddEnableLine)
		if err != nil {
			return nil, err
		}
		hw.vdd = rail
		hw.cleanup = append(hw.cleanup, closeRail(rail, logger))
	}

	hw.vddio = fixedRail{}
	if newConf.VddioEnableLine != nil {
		rail, err := newGpioRegulator(chip, *newConf.VddioEnableLine)
		if err != nil {
			return nil, err
		}
		hw.vddio = rail
		hw.cleanup = append(hw.cleanup, closeRail(rail, logger))
	}

	if newConf.InterruptLine != nil {
		offset := *newConf.InterruptLine
		polarity := newConf.InterruptPolarity
		if polarity == "" {
			polarity = polarityFalling
		}
		hw.requestInterrupt = func(handler func()) (interruptLine, error) {
			return requestGpioInterrupt(chip, offset, polarity, handler)
		}
	}

	handoff = true
	return makeIcm42600(ctx, deps, conf, logger, variant, hw)
}

func closeRail(rail *gpioRegulator, logger logging.Logger) func(context.Context) {
	return func(ctx context.Context) {
		if err := rail.close(); err != nil {
			logger.CError(ctx, err)
		}
	}
}

// NewICM42600 constructs the sensor over I2C outside of a robot, for bench checks.
func NewICM42600(
	ctx context.Context,
	logger logging.Logger,
	name string,
	busName string,
	useAlternateI2CAddress bool,
	variant ChipVariant,
) (movementsensor.MovementSensor, error) {
	cfg := resource.Config{
		Name: name,
		API:  movementsensor.API,
		ConvertedAttributes: &Config{
			I2cBus:                 busName,
			UseAlternateI2CAddress: useAlternateI2CAddress,
		},
	}
	return newIcm42600(ctx, nil, cfg, logger, variant)
}
