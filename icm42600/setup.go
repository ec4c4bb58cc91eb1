package icm42600

import (
	"context"

	"github.com/pkg/errors"
)

// busSetupFunc performs bus-specific interface configuration during bring-up, between the
// reset and the common register programming. The serial-interface defaults are fine for
// plain I2C and 4-wire SPI, so nothing installs one today; the seam exists for hosts that
// need it (I3C, 3-wire SPI).
type busSetupFunc func(ctx context.Context, regs *bankedRegmap) error

// setup runs the one-shot bring-up protocol: identity check, soft reset, byte-order fix,
// default configuration. It is terminal on first failure, and a chip that fails the
// identity check is never written to at all.
func (imu *icm42600) setup(ctx context.Context) error {
	ci, err := imu.variant.info()
	if err != nil {
		return err
	}

	whoami, err := imu.regs.ReadReg(ctx, regWhoAmI)
	if err != nil {
		return errors.Wrap(err, "reading chip identity")
	}
	if whoami != ci.whoami {
		return errors.Wrapf(ErrIdentityMismatch, "got %#02x, want %#02x for %s",
			whoami, ci.whoami, ci.name)
	}

	if err := imu.regs.WriteReg(ctx, regDeviceConfig, deviceConfigSoftReset); err != nil {
		return errors.Wrap(err, "issuing soft reset")
	}
	imu.sleep(softResetTime)
	status, err := imu.regs.ReadReg(ctx, regIntStatus)
	if err != nil {
		return errors.Wrap(err, "reading reset status")
	}
	if status&intStatusResetDone == 0 {
		return errors.Wrapf(ErrResetTimeout, "status %#02x", status)
	}

	if imu.busSetup != nil {
		if err := imu.busSetup(ctx, imu.regs); err != nil {
			return errors.Wrap(err, "bus-specific setup")
		}
	}

	// Sensor data is consumed in multi-byte bursts, so pin its byte order down.
	if err := imu.regs.UpdateBits(ctx, regIntfConfig0, intfConfig0DataEndian, 0); err != nil {
		return errors.Wrap(err, "forcing little-endian sensor data")
	}

	return imu.applyConf(ctx, ci.defaults)
}

// setupTimestamps switches the timestamp engine on and mirrors its counter into readable
// registers.
func (imu *icm42600) setupTimestamps(ctx context.Context) error {
	return imu.regs.UpdateBits(ctx, regTmstConfig, tmstConfigMask,
		tmstConfigToRegs|tmstConfigEnable)
}

// setupIntPin programs the INT1 drive to match how the line is wired and observed.
func (imu *icm42600) setupIntPin(ctx context.Context, polarity string, openDrain bool) error {
	var val byte
	switch polarity {
	case polarityRising, polarityHigh:
		val |= intConfigInt1ActiveHigh
	}
	// Level observers need latched mode so the pin holds until the drain services it.
	switch polarity {
	case polarityHigh, polarityLow:
		val |= intConfigInt1Latched
	}
	if !openDrain {
		val |= intConfigInt1PushPull
	}
	if err := imu.regs.WriteReg(ctx, regIntConfig, val); err != nil {
		return errors.Wrap(err, "programming interrupt pin")
	}

	// The async-reset bit powers on set and must be cleared for proper INT1 operation.
	if err := imu.regs.UpdateBits(ctx, regIntConfig1, intConfig1AsyncReset, 0); err != nil {
		return errors.Wrap(err, "clearing interrupt async reset")
	}
	return nil
}
