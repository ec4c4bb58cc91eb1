// Package icm42600 implements the movementsensor interface for the TDK InvenSense ICM-426xx
// family of 6-axis IMUs (3-axis accelerometer + 3-axis gyroscope, plus a die thermometer). A
// datasheet for the ICM-42605 is at
// https://invensense.tdk.com/wp-content/uploads/2020/03/DS-000292-ICM-42605-v1.4.pdf and the
// other family members (ICM-42600, -42602, -42622, -42631, -42670) share the same register
// interface. Each supported chip is registered as its own model so the identity check at
// startup can be exact.
//
// The chip speaks I2C or SPI. On I2C it has two possible addresses, selected by wiring the
// AP_AD0 pin to either hot or ground:
//   - if AP_AD0 is wired to ground, it uses the default I2C address of 0x68
//   - if AP_AD0 is wired to hot, it uses the alternate I2C address of 0x69
//
// If you use the alternate address, your config file for this component must set its
// "use_alt_i2c_address" boolean to true.
//
// Samples are drained from the data registers when the INT1 line fires, so wiring INT1 to a
// GPIO and setting "interrupt_line" is recommended. Without it the driver falls back to
// polling at the configured output data rate. Boards that switch the chip's supply rails
// through GPIOs can name those lines too; unnamed rails are assumed hard-wired.
package icm42600

import (
	"context"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/movementsensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

// Models for viam supported tdk-invensense ICM-426xx movement sensors, one per chip.
var (
	Model42600 = resource.NewModel("viam", "inv-icm42600", "icm42600")
	Model42602 = resource.NewModel("viam", "inv-icm42600", "icm42602")
	Model42605 = resource.NewModel("viam", "inv-icm42600", "icm42605")
	Model42622 = resource.NewModel("viam", "inv-icm42600", "icm42622")
	Model42631 = resource.NewModel("viam", "inv-icm42600", "icm42631")
	Model42670 = resource.NewModel("viam", "inv-icm42600", "icm42670")
)

// Errors the driver hands back for the failure classes callers are expected to tell apart.
// They come wrapped with context; match with errors.Is.
var (
	// ErrIdentityMismatch means the identity register did not contain the value expected
	// for the configured chip model. Nothing is written to a chip we cannot identify.
	ErrIdentityMismatch = errors.New("unexpected chip identity")
	// ErrResetTimeout means the reset-done flag never appeared after a soft reset.
	ErrResetTimeout = errors.New("soft reset did not complete")
	// ErrInvalidChipVariant means the requested chip is not in the supported table.
	ErrInvalidChipVariant = errors.New("unsupported chip variant")
	// ErrRegulator wraps supply rail switching failures.
	ErrRegulator = errors.New("supply rail failure")
)

// Config is used to configure the attributes of the chip.
type Config struct {
	I2cBus                 string `json:"i2c_bus,omitempty"`
	UseAlternateI2CAddress bool   `json:"use_alt_i2c_address,omitempty"`
	SpiBus                 string `json:"spi_bus,omitempty"`
	SpiChipSelect          string `json:"spi_chip_select,omitempty"`

	// GPIO wiring. All line offsets are on GpioChip ("gpiochip0" when empty).
	GpioChip          string `json:"gpio_chip,omitempty"`
	InterruptLine     *int   `json:"interrupt_line,omitempty"`
	InterruptPolarity string `json:"interrupt_polarity,omitempty"`
	OpenDrain         bool   `json:"open_drain,omitempty"`
	VddEnableLine     *int   `json:"vdd_enable_line,omitempty"`
	VddioEnableLine   *int   `json:"vddio_enable_line,omitempty"`

	// Row-major 3x3 matrix mapping sensor axes to the mount frame. Identity when empty.
	MountMatrix []float64 `json:"mount_matrix,omitempty"`
}

// Valid values for the "interrupt_polarity" attribute. The default is falling-edge, which
// matches the chip's reset-default INT1 drive.
const (
	polarityFalling = "falling"
	polarityRising  = "rising"
	polarityHigh    = "high"
	polarityLow     = "low"
)

// Validate ensures all parts of the config are valid, and then returns the list of things we
// depend on.
func (conf *Config) Validate(path string) ([]string, error) {
	if conf.I2cBus == "" && conf.SpiBus == "" {
		return nil, resource.NewConfigValidationFieldRequiredError(path, "i2c_bus")
	}
	if conf.I2cBus != "" && conf.SpiBus != "" {
		return nil, errors.New("cannot set both i2c_bus and spi_bus")
	}
	if conf.SpiBus != "" && conf.SpiChipSelect == "" {
		return nil, resource.NewConfigValidationFieldRequiredError(path, "spi_chip_select")
	}

	switch conf.InterruptPolarity {
	case "", polarityFalling, polarityRising, polarityHigh, polarityLow:
	default:
		return nil, errors.Errorf("interrupt_polarity must be one of %q, %q, %q, %q",
			polarityFalling, polarityRising, polarityHigh, polarityLow)
	}

	if len(conf.MountMatrix) != 0 && len(conf.MountMatrix) != 9 {
		return nil, errors.Errorf("mount_matrix must have 9 entries, got %d", len(conf.MountMatrix))
	}

	var deps []string
	return deps, nil
}

func init() {
	for variant, model := range map[ChipVariant]resource.Model{
		ICM42600: Model42600,
		ICM42602: Model42602,
		ICM42605: Model42605,
		ICM42622: Model42622,
		ICM42631: Model42631,
		ICM42670: Model42670,
	} {
		resource.RegisterComponent(movementsensor.API, model,
			resource.Registration[movementsensor.MovementSensor, *Config]{
				Constructor: func(
					ctx context.Context,
					deps resource.Dependencies,
					conf resource.Config,
					logger logging.Logger,
				) (movementsensor.MovementSensor, error) {
					return newIcm42600(ctx, deps, conf, logger, variant)
				},
			})
	}
}
