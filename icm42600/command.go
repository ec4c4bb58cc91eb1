package icm42600

import (
	"context"

	"github.com/pkg/errors"
)

// DoCommand exposes maintenance verbs that have no slot in the movement sensor API. The
// "command" field selects the verb:
//
//	read_register   {"register": n}               -> {"value": n}
//	write_register  {"register": n, "value": n}
//	set_gyro_config  optional "mode", "range_dps", "data_rate_hz", "filter"
//	set_accel_config optional "mode", "range_g", "data_rate_hz", "filter"
//	set_temp_enabled {"enable": bool}
//	start_streaming / stop_streaming
//	suspend / resume
//
// Register numbers use the banked encoding, bank<<12 plus the offset within the bank.
// Absent configuration fields keep their current values.
func (imu *icm42600) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	name, ok := cmd["command"].(string)
	if !ok {
		return nil, errors.New("missing string field 'command'")
	}

	switch name {
	case "read_register":
		reg, err := regArg(cmd, "register")
		if err != nil {
			return nil, err
		}
		val, err := imu.pokeRegister(ctx, func(ctx context.Context) (byte, error) {
			return imu.regs.ReadReg(ctx, reg)
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"value": int(val)}, nil

	case "write_register":
		reg, err := regArg(cmd, "register")
		if err != nil {
			return nil, err
		}
		val, err := byteArg(cmd, "value")
		if err != nil {
			return nil, err
		}
		_, err = imu.pokeRegister(ctx, func(ctx context.Context) (byte, error) {
			return 0, imu.regs.WriteReg(ctx, reg, val)
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{}, nil

	case "set_gyro_config":
		upd, err := gyroUpdateFromArgs(cmd)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{}, imu.SetGyroConfig(ctx, upd)

	case "set_accel_config":
		upd, err := accelUpdateFromArgs(cmd)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{}, imu.SetAccelConfig(ctx, upd)

	case "set_temp_enabled":
		enable, ok := cmd["enable"].(bool)
		if !ok {
			return nil, errors.New("missing boolean field 'enable'")
		}
		return map[string]interface{}{}, imu.SetTempEnabled(ctx, enable)

	case "start_streaming":
		return map[string]interface{}{}, imu.setStreaming(ctx, true)

	case "stop_streaming":
		return map[string]interface{}{}, imu.setStreaming(ctx, false)

	case "suspend":
		return map[string]interface{}{}, imu.Suspend(ctx)

	case "resume":
		return map[string]interface{}{}, imu.Resume(ctx)
	}

	return nil, errors.Errorf("unknown command %q", name)
}

// pokeRegister runs a raw register access with the device awake and the lock held.
func (imu *icm42600) pokeRegister(ctx context.Context, access func(context.Context) (byte, error)) (byte, error) {
	imu.mu.Lock()
	defer imu.mu.Unlock()
	if err := imu.holdPower(ctx); err != nil {
		return 0, err
	}
	val, err := access(ctx)
	imu.releasePower()
	return val, err
}

func (imu *icm42600) setStreaming(ctx context.Context, on bool) error {
	imu.mu.Lock()
	defer imu.mu.Unlock()
	if err := imu.holdPower(ctx); err != nil {
		return err
	}
	var err error
	if on {
		err = imu.startStreaming(ctx)
	} else {
		err = imu.stopStreaming(ctx)
	}
	imu.releasePower()
	return err
}

func regArg(cmd map[string]interface{}, key string) (uint16, error) {
	v, ok := cmd[key].(float64)
	if !ok {
		return 0, errors.Errorf("missing numeric field %q", key)
	}
	n := int(v)
	if n < 0 || n&^(bankMask<<bankShift|0xFF) != 0 {
		return 0, errors.Errorf("register %v out of range", v)
	}
	return uint16(n), nil
}

func byteArg(cmd map[string]interface{}, key string) (byte, error) {
	v, ok := cmd[key].(float64)
	if !ok {
		return 0, errors.Errorf("missing numeric field %q", key)
	}
	n := int(v)
	if n < 0 || n > 0xFF {
		return 0, errors.Errorf("field %q out of range: %v", key, v)
	}
	return byte(n), nil
}

func parseSensorMode(s string) (SensorMode, error) {
	switch s {
	case "off":
		return ModeOff, nil
	case "standby":
		return ModeStandby, nil
	case "low_power":
		return ModeLowPower, nil
	case "low_noise":
		return ModeLowNoise, nil
	}
	return 0, errors.Errorf("unknown sensor mode %q", s)
}

// Data rates by their nominal frequency. JSON only carries floats, so lookups key on the
// exact float value the caller sent.
var odrByHz = map[float64]ODR{
	8000:   ODR8kHz,
	4000:   ODR4kHz,
	2000:   ODR2kHz,
	1000:   ODR1kHz,
	500:    ODR500Hz,
	200:    ODR200Hz,
	100:    ODR100Hz,
	50:     ODR50Hz,
	25:     ODR25Hz,
	12.5:   ODR12_5Hz,
	6.25:   ODR6_25Hz,
	3.125:  ODR3_125Hz,
	1.5625: ODR1_5625Hz,
}

func parseODR(hz float64) (ODR, error) {
	odr, ok := odrByHz[hz]
	if !ok {
		return 0, errors.Errorf("unsupported data rate %v Hz", hz)
	}
	return odr, nil
}

func gyroUpdateFromArgs(cmd map[string]interface{}) (GyroConfUpdate, error) {
	var upd GyroConfUpdate
	if v, ok := cmd["mode"].(string); ok {
		mode, err := parseSensorMode(v)
		if err != nil {
			return upd, err
		}
		upd.Mode = &mode
	}
	if v, ok := cmd["range_dps"].(float64); ok {
		found := false
		for i, dps := range gyroRanges {
			if dps == v {
				fs := GyroFullScale(i)
				upd.FullScale = &fs
				found = true
				break
			}
		}
		if !found {
			return upd, errors.Errorf("unsupported gyroscope range %v dps", v)
		}
	}
	if v, ok := cmd["data_rate_hz"].(float64); ok {
		odr, err := parseODR(v)
		if err != nil {
			return upd, err
		}
		upd.ODR = &odr
	}
	if v, ok := cmd["filter"].(float64); ok {
		n := int(v)
		if n < 0 || n > int(filterNibbleMask) {
			return upd, errors.Errorf("filter setting %v out of range", v)
		}
		f := Filter(n)
		upd.Filter = &f
	}
	return upd, nil
}

func accelUpdateFromArgs(cmd map[string]interface{}) (AccelConfUpdate, error) {
	var upd AccelConfUpdate
	if v, ok := cmd["mode"].(string); ok {
		mode, err := parseSensorMode(v)
		if err != nil {
			return upd, err
		}
		upd.Mode = &mode
	}
	if v, ok := cmd["range_g"].(float64); ok {
		found := false
		for i, g := range accelRanges {
			if g == v {
				fs := AccelFullScale(i)
				upd.FullScale = &fs
				found = true
				break
			}
		}
		if !found {
			return upd, errors.Errorf("unsupported accelerometer range %v g", v)
		}
	}
	if v, ok := cmd["data_rate_hz"].(float64); ok {
		odr, err := parseODR(v)
		if err != nil {
			return upd, err
		}
		upd.ODR = &odr
	}
	if v, ok := cmd["filter"].(float64); ok {
		n := int(v)
		if n < 0 || n > int(filterNibbleMask) {
			return upd, errors.Errorf("filter setting %v out of range", v)
		}
		f := Filter(n)
		upd.Filter = &f
	}
	return upd, nil
}
