package icm42600

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Regulator switches one supply rail on or off.
type Regulator interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// fixedRail is the Regulator for rails the board hard-wires on.
type fixedRail struct{}

func (fixedRail) Enable(ctx context.Context) error  { return nil }
func (fixedRail) Disable(ctx context.Context) error { return nil }

// powerState tracks where the device sits in the power lifecycle.
type powerState int

const (
	powerActive powerState = iota
	powerRuntimeSuspended
	powerSystemSuspended
)

// suspendedModes is the snapshot taken at system-suspend entry and replayed on resume.
// Only meaningful between the two.
type suspendedModes struct {
	gyro  SensorMode
	accel SensorMode
	temp  bool
}

func regulatorError(err error, rail string) error {
	return errors.Wrapf(ErrRegulator, "%s rail: %s", rail, err)
}

func (imu *icm42600) addTeardown(f func(context.Context)) {
	imu.teardown = append(imu.teardown, f)
}

// runTeardown unwinds registered teardown actions in reverse acquisition order.
func (imu *icm42600) runTeardown(ctx context.Context) {
	for i := len(imu.teardown) - 1; i >= 0; i-- {
		imu.teardown[i](ctx)
	}
	imu.teardown = nil
}

// powerUp brings the supply rails online: core rail first with its long power-up wait,
// then the I/O rail with its short ramp. Each rail registers its symmetric teardown as
// soon as it is on, so a failure anywhere leaves nothing enabled once the caller unwinds.
func (imu *icm42600) powerUp(ctx context.Context) error {
	if err := imu.vdd.Enable(ctx); err != nil {
		return regulatorError(err, "vdd")
	}
	imu.addTeardown(func(ctx context.Context) {
		if err := imu.vdd.Disable(ctx); err != nil {
			imu.logger.CErrorf(ctx, "disabling vdd: %s", err)
		}
	})
	imu.sleep(powerUpTime)

	if err := imu.vddio.Enable(ctx); err != nil {
		return regulatorError(err, "vddio")
	}
	imu.addTeardown(func(ctx context.Context) {
		if err := imu.vddio.Disable(ctx); err != nil {
			imu.logger.CErrorf(ctx, "disabling vddio: %s", err)
		}
	})
	imu.sleep(vddioRampTime)

	return nil
}

// runtimeSuspend powers the sensing elements off and cuts the I/O rail, keeping the core
// rail up so register contents survive. The device lock must be held.
func (imu *icm42600) runtimeSuspend(ctx context.Context) error {
	settle, err := imu.setPowerModes(ctx, ModeOff, ModeOff, false)
	if err != nil {
		return err
	}
	if settle > 0 {
		imu.sleep(settle)
	}
	if err := imu.vddio.Disable(ctx); err != nil {
		imu.logger.CErrorf(ctx, "disabling vddio: %s", err)
	}
	imu.power = powerRuntimeSuspended
	return nil
}

// runtimeResume re-enables the I/O rail only. Sensors stay off until a configuration
// request turns them back on. The device lock must be held.
func (imu *icm42600) runtimeResume(ctx context.Context) error {
	if err := imu.vddio.Enable(ctx); err != nil {
		return regulatorError(err, "vddio")
	}
	imu.sleep(vddioRampTime)
	imu.power = powerActive
	return nil
}

// holdPower readies the chip for register traffic: cancel any pending idle suspend and, if
// the idle timer already cut the I/O rail, bring it back. The device lock must be held.
func (imu *icm42600) holdPower(ctx context.Context) error {
	if imu.idleTimer != nil {
		imu.idleTimer.Stop()
		imu.idleTimer = nil
	}
	if imu.power == powerRuntimeSuspended {
		return imu.runtimeResume(ctx)
	}
	return nil
}

// releasePower arms the idle timer when every sensing element is off; with anything still
// running the chip has to stay powered. The device lock must be held.
func (imu *icm42600) releasePower() {
	if imu.power != powerActive {
		return
	}
	if imu.conf.gyro.mode != ModeOff || imu.conf.accel.mode != ModeOff || imu.conf.tempEn {
		return
	}
	if imu.idleTimer != nil {
		imu.idleTimer.Stop()
	}
	imu.idleTimer = time.AfterFunc(autosuspendDelay, imu.idleSuspend)
}

// idleSuspend fires from the idle timer once the chip has sat fully off for the
// autosuspend delay.
func (imu *icm42600) idleSuspend() {
	ctx := context.Background()

	imu.mu.Lock()
	defer imu.mu.Unlock()

	// A timer shot that lost the race with Close finds the rails already torn down.
	if imu.closed || imu.power != powerActive {
		return
	}
	if imu.conf.gyro.mode != ModeOff || imu.conf.accel.mode != ModeOff || imu.conf.tempEn {
		return
	}
	if err := imu.runtimeSuspend(ctx); err != nil {
		imu.logger.Errorf("idle suspend: %s", err)
	}
}

// Suspend prepares the chip for system sleep: snapshot what is running, then, unless the
// idle path already powered things down, stop FIFO streaming, switch the sensors off and
// cut the I/O rail. Calling it again before a resume is a no-op.
func (imu *icm42600) Suspend(ctx context.Context) error {
	imu.mu.Lock()
	defer imu.mu.Unlock()

	// A repeated suspend keeps the first snapshot; re-reading the modes here would
	// capture the already-stopped state.
	if imu.power == powerSystemSuspended {
		return nil
	}

	imu.suspended.gyro = imu.conf.gyro.mode
	imu.suspended.accel = imu.conf.accel.mode
	imu.suspended.temp = imu.conf.tempEn

	if imu.power == powerRuntimeSuspended {
		imu.power = powerSystemSuspended
		return nil
	}

	if imu.idleTimer != nil {
		imu.idleTimer.Stop()
		imu.idleTimer = nil
	}

	// The streaming flag survives; resume consults it.
	if imu.fifoOn {
		if err := imu.regs.UpdateBits(ctx, regFifoConfig, fifoConfigMask, fifoConfigBypass); err != nil {
			return err
		}
	}

	settle, err := imu.setPowerModes(ctx, ModeOff, ModeOff, false)
	if err != nil {
		return err
	}
	if settle > 0 {
		imu.sleep(settle)
	}

	// The sensors are already stopped; a rail stuck on is logged and the suspend still
	// completes, the same as the teardown path.
	if err := imu.vddio.Disable(ctx); err != nil {
		imu.logger.CErrorf(ctx, "disabling vddio: %s", err)
	}
	imu.power = powerSystemSuspended
	return nil
}

// Resume undoes Suspend: I/O rail back on, bookkeeping forced to active, the sensor modes
// that were running before suspend restored, and FIFO streaming re-enabled if it was on.
// Without a preceding suspend there is no snapshot to replay, so it does nothing.
func (imu *icm42600) Resume(ctx context.Context) error {
	imu.mu.Lock()
	defer imu.mu.Unlock()

	if imu.power != powerSystemSuspended {
		return nil
	}

	if err := imu.vddio.Enable(ctx); err != nil {
		return regulatorError(err, "vddio")
	}
	imu.sleep(vddioRampTime)
	imu.power = powerActive

	settle, err := imu.setPowerModes(ctx, imu.suspended.gyro, imu.suspended.accel, imu.suspended.temp)
	if err != nil {
		return err
	}
	if settle > 0 {
		imu.sleep(settle)
	}

	if imu.fifoOn {
		if err := imu.regs.UpdateBits(ctx, regFifoConfig, fifoConfigMask, fifoConfigStream); err != nil {
			return err
		}
	}

	imu.releasePower()
	return nil
}
