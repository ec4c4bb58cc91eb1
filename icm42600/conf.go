package icm42600

import (
	"context"
	"time"
)

// SensorMode selects the power/operating mode of one sensing element.
type SensorMode uint8

// Sensor modes. Standby only exists for the gyro (drive stays on, signal path off) and
// LowPower only for the accel; Off and LowNoise apply to both.
const (
	ModeOff      SensorMode = 0
	ModeStandby  SensorMode = 1
	ModeLowPower SensorMode = 2
	ModeLowNoise SensorMode = 3
)

// GyroFullScale selects the gyroscope measurement range. The zero value is the widest
// range, matching the chip's power-on default.
type GyroFullScale uint8

const (
	GyroFS2000DPS GyroFullScale = iota
	GyroFS1000DPS
	GyroFS500DPS
	GyroFS250DPS
	GyroFS125DPS
	GyroFS62_5DPS
	GyroFS31_25DPS
	GyroFS15_625DPS
)

// AccelFullScale selects the accelerometer measurement range.
type AccelFullScale uint8

const (
	AccelFS16G AccelFullScale = iota
	AccelFS8G
	AccelFS4G
	AccelFS2G
)

// ODR selects the output data rate shared by a sensor's signal path. Register values below
// 3 are reserved by the chip, so the enumeration starts there.
type ODR uint8

const (
	ODR8kHz ODR = iota + 3
	ODR4kHz
	ODR2kHz
	ODR1kHz
	ODR200Hz
	ODR100Hz
	ODR50Hz
	ODR25Hz
	ODR12_5Hz
	ODR6_25Hz
	ODR3_125Hz
	ODR1_5625Hz
	ODR500Hz
)

// Filter selects the signal-path filtering. In low-noise mode the value is a bandwidth
// divider and in low-power mode an averaging count; both live in the same register nibble.
type Filter uint8

const (
	FilterBWODRDiv2 Filter = 1
	FilterAvg1x     Filter = 1
	FilterAvg16x    Filter = 6
)

// Full measurement ranges, indexed by the full-scale register values above. Degrees per
// second for the gyro, g for the accel; one LSB is range/32768.
var (
	gyroRanges  = [...]float64{2000, 1000, 500, 250, 125, 62.5, 31.25, 15.625}
	accelRanges = [...]float64{16, 8, 4, 2}
)

// sensorConf is the resolved configuration of one sensing element. Past bring-up every
// field always holds a concrete value; partial updates are merged before anything is
// compared or written.
type sensorConf struct {
	mode      SensorMode
	fullScale byte
	odr       ODR
	filter    Filter
}

// deviceConf mirrors what the configuration registers currently hold.
type deviceConf struct {
	gyro   sensorConf
	accel  sensorConf
	tempEn bool
}

// GyroConfUpdate describes a partial gyroscope reconfiguration. Nil fields keep their
// current values.
type GyroConfUpdate struct {
	Mode      *SensorMode
	FullScale *GyroFullScale
	ODR       *ODR
	Filter    *Filter
}

// AccelConfUpdate describes a partial accelerometer reconfiguration. Nil fields keep their
// current values.
type AccelConfUpdate struct {
	Mode      *SensorMode
	FullScale *AccelFullScale
	ODR       *ODR
	Filter    *Filter
}

// setPowerModes moves the gyro, accel and thermometer to the requested modes with at most
// one mode-register write, and reports how long the sensors need before their output can be
// trusted. The device lock must be held. Callers decide whether to wait out the settle time
// inline or after releasing the lock; the short bus-quiet window after waking a sensor is
// always taken here, with the lock held, because no register access may happen during it.
func (imu *icm42600) setPowerModes(ctx context.Context, gyro, accel SensorMode, temp bool) (time.Duration, error) {
	oldGyro := imu.conf.gyro.mode
	oldAccel := imu.conf.accel.mode
	oldTemp := imu.conf.tempEn

	// If nothing changed, exit. Rewriting the same modes would restart startup delays.
	if gyro == oldGyro && accel == oldAccel && temp == oldTemp {
		return 0, nil
	}

	val := byte(gyro)<<pwrMgmt0GyroShift | byte(accel)
	if err := imu.regs.WriteReg(ctx, regPwrMgmt0, val); err != nil {
		return 0, err
	}

	imu.conf.gyro.mode = gyro
	imu.conf.accel.mode = accel
	imu.conf.tempEn = temp

	// Compute the wait each transition mandates; overlapping transitions settle
	// concurrently, so floors combine by max.
	var settle time.Duration
	if temp && !oldTemp {
		settle = max(settle, tempStartupTime)
	}
	if accel != ModeOff && oldAccel == ModeOff {
		imu.sleep(modeWakeQuietTime)
		settle = max(settle, accelStartupTime)
	}
	if gyro != ModeOff && oldGyro == ModeOff {
		imu.sleep(modeWakeQuietTime)
		settle = max(settle, gyroStartupTime)
	} else if gyro == ModeOff && oldGyro != ModeOff {
		// The gyro drive takes much longer to spin down than up.
		settle = max(settle, gyroStopTime)
	}

	return settle, nil
}

// setGyroConf merges a partial gyro reconfiguration against current state and writes only
// the registers whose packed values change. The device lock must be held.
func (imu *icm42600) setGyroConf(ctx context.Context, upd GyroConfUpdate) (time.Duration, error) {
	old := &imu.conf.gyro

	// Resolve unspecified fields to their current values.
	mode := old.mode
	if upd.Mode != nil {
		mode = *upd.Mode
	}
	fs := old.fullScale
	if upd.FullScale != nil {
		fs = byte(*upd.FullScale)
	}
	odr := old.odr
	if upd.ODR != nil {
		odr = *upd.ODR
	}
	filter := old.filter
	if upd.Filter != nil {
		filter = *upd.Filter
	}

	if fs != old.fullScale || odr != old.odr {
		val := fs<<sensorConfig0FSShift | byte(odr)&sensorConfig0ODRMask
		if err := imu.regs.WriteReg(ctx, regGyroConfig0, val); err != nil {
			return 0, err
		}
		old.fullScale = fs
		old.odr = odr
	}

	// The filter register is shared with the accel, so its nibble is re-packed from
	// stored state.
	if filter != old.filter {
		val := byte(imu.conf.accel.filter)<<filterAccelShift | byte(filter)&filterNibbleMask
		if err := imu.regs.WriteReg(ctx, regGyroAccelConfig0, val); err != nil {
			return 0, err
		}
		old.filter = filter
	}

	return imu.setPowerModes(ctx, mode, imu.conf.accel.mode, imu.conf.tempEn)
}

// setAccelConf is the accelerometer counterpart of setGyroConf.
func (imu *icm42600) setAccelConf(ctx context.Context, upd AccelConfUpdate) (time.Duration, error) {
	old := &imu.conf.accel

	mode := old.mode
	if upd.Mode != nil {
		mode = *upd.Mode
	}
	fs := old.fullScale
	if upd.FullScale != nil {
		fs = byte(*upd.FullScale)
	}
	odr := old.odr
	if upd.ODR != nil {
		odr = *upd.ODR
	}
	filter := old.filter
	if upd.Filter != nil {
		filter = *upd.Filter
	}

	if fs != old.fullScale || odr != old.odr {
		val := fs<<sensorConfig0FSShift | byte(odr)&sensorConfig0ODRMask
		if err := imu.regs.WriteReg(ctx, regAccelConfig0, val); err != nil {
			return 0, err
		}
		old.fullScale = fs
		old.odr = odr
	}

	if filter != old.filter {
		val := byte(filter)<<filterAccelShift | byte(imu.conf.gyro.filter)&filterNibbleMask
		if err := imu.regs.WriteReg(ctx, regGyroAccelConfig0, val); err != nil {
			return 0, err
		}
		old.filter = filter
	}

	return imu.setPowerModes(ctx, imu.conf.gyro.mode, mode, imu.conf.tempEn)
}

// setTempEnabled switches the thermometer; everything else stays as it is.
func (imu *icm42600) setTempEnabled(ctx context.Context, enable bool) (time.Duration, error) {
	return imu.setPowerModes(ctx, imu.conf.gyro.mode, imu.conf.accel.mode, enable)
}

// applyConf programs a complete configuration in one batch: the mode register and both
// sensors' scale/rate registers. Used at bring-up and resume, where every value is known,
// so no delta logic applies. The device lock must be held.
func (imu *icm42600) applyConf(ctx context.Context, conf deviceConf) error {
	val := byte(conf.gyro.mode)<<pwrMgmt0GyroShift | byte(conf.accel.mode)
	if err := imu.regs.WriteReg(ctx, regPwrMgmt0, val); err != nil {
		return err
	}

	val = conf.gyro.fullScale<<sensorConfig0FSShift | byte(conf.gyro.odr)&sensorConfig0ODRMask
	if err := imu.regs.WriteReg(ctx, regGyroConfig0, val); err != nil {
		return err
	}

	val = conf.accel.fullScale<<sensorConfig0FSShift | byte(conf.accel.odr)&sensorConfig0ODRMask
	if err := imu.regs.WriteReg(ctx, regAccelConfig0, val); err != nil {
		return err
	}

	imu.conf = conf
	return nil
}

// SetGyroConfig applies a partial gyroscope reconfiguration and blocks until the sensor
// output is valid again.
func (imu *icm42600) SetGyroConfig(ctx context.Context, upd GyroConfUpdate) error {
	imu.mu.Lock()
	if err := imu.holdPower(ctx); err != nil {
		imu.mu.Unlock()
		return err
	}
	settle, err := imu.setGyroConf(ctx, upd)
	imu.releasePower()
	imu.mu.Unlock()

	if err != nil {
		return err
	}
	if settle > 0 {
		imu.sleep(settle)
	}
	return nil
}

// SetAccelConfig applies a partial accelerometer reconfiguration and blocks until the
// sensor output is valid again.
func (imu *icm42600) SetAccelConfig(ctx context.Context, upd AccelConfUpdate) error {
	imu.mu.Lock()
	if err := imu.holdPower(ctx); err != nil {
		imu.mu.Unlock()
		return err
	}
	settle, err := imu.setAccelConf(ctx, upd)
	imu.releasePower()
	imu.mu.Unlock()

	if err != nil {
		return err
	}
	if settle > 0 {
		imu.sleep(settle)
	}
	return nil
}

// SetTempEnabled switches the thermometer on or off and blocks through its startup time.
func (imu *icm42600) SetTempEnabled(ctx context.Context, enable bool) error {
	imu.mu.Lock()
	if err := imu.holdPower(ctx); err != nil {
		imu.mu.Unlock()
		return err
	}
	settle, err := imu.setTempEnabled(ctx, enable)
	imu.releasePower()
	imu.mu.Unlock()

	if err != nil {
		return err
	}
	if settle > 0 {
		imu.sleep(settle)
	}
	return nil
}
