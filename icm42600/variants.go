package icm42600

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ChipVariant identifies which family member the component expects on the bus.
type ChipVariant int

// Supported chips. Each gets its own resource model so identity checking is exact.
const (
	ICM42600 ChipVariant = iota
	ICM42602
	ICM42605
	ICM42622
	ICM42631
	ICM42670
)

type chipInfo struct {
	whoami   byte
	name     string
	defaults deviceConf
}

// Most of the family starts with both sensors off at modest rates; turning things on is an
// explicit configuration step.
var defaultConf = deviceConf{
	gyro:   sensorConf{mode: ModeOff, fullScale: byte(GyroFS2000DPS), odr: ODR50Hz, filter: FilterBWODRDiv2},
	accel:  sensorConf{mode: ModeOff, fullScale: byte(AccelFS16G), odr: ODR50Hz, filter: FilterBWODRDiv2},
	tempEn: false,
}

var chipInfos = map[ChipVariant]chipInfo{
	ICM42600: {whoami: 0x40, name: "icm42600", defaults: defaultConf},
	ICM42602: {whoami: 0x41, name: "icm42602", defaults: defaultConf},
	ICM42605: {whoami: 0x42, name: "icm42605", defaults: defaultConf},
	ICM42622: {whoami: 0x46, name: "icm42622", defaults: defaultConf},
	ICM42631: {whoami: 0x5C, name: "icm42631", defaults: defaultConf},
	ICM42670: {whoami: 0x67, name: "icm42670", defaults: deviceConf{
		gyro:   sensorConf{mode: ModeLowNoise, fullScale: byte(GyroFS2000DPS), odr: ODR200Hz, filter: FilterBWODRDiv2},
		accel:  sensorConf{mode: ModeLowNoise, fullScale: byte(AccelFS16G), odr: ODR200Hz, filter: FilterBWODRDiv2},
		tempEn: false,
	}},
}

// info returns the hardware table entry, rejecting unknown variants before any bus access.
func (v ChipVariant) info() (chipInfo, error) {
	ci, ok := chipInfos[v]
	if !ok {
		return chipInfo{}, errors.Wrapf(ErrInvalidChipVariant, "variant %d", int(v))
	}
	return ci, nil
}

func (v ChipVariant) String() string {
	if ci, ok := chipInfos[v]; ok {
		return ci.name
	}
	return fmt.Sprintf("icm426xx(%d)", int(v))
}

var odrPeriods = map[ODR]time.Duration{
	ODR8kHz:     125 * time.Microsecond,
	ODR4kHz:     250 * time.Microsecond,
	ODR2kHz:     500 * time.Microsecond,
	ODR1kHz:     time.Millisecond,
	ODR200Hz:    5 * time.Millisecond,
	ODR100Hz:    10 * time.Millisecond,
	ODR50Hz:     20 * time.Millisecond,
	ODR25Hz:     40 * time.Millisecond,
	ODR12_5Hz:   80 * time.Millisecond,
	ODR6_25Hz:   160 * time.Millisecond,
	ODR3_125Hz:  320 * time.Millisecond,
	ODR1_5625Hz: 640 * time.Millisecond,
	ODR500Hz:    2 * time.Millisecond,
}

// odrPeriod converts an output-data-rate setting into its sample period. The polled
// fallback ticks at this rate when no interrupt line is wired.
func odrPeriod(odr ODR) time.Duration {
	if p, ok := odrPeriods[odr]; ok {
		return p
	}
	return 20 * time.Millisecond
}
