package icm42600

import "time"

// Register addresses are 16-bit logical values: the high nibble selects the register bank and
// the low byte is the offset inside it. The bank select register itself is reachable from
// every bank.
const (
	bankShift   = 12
	bankMask    = 0x07
	regBankSel  = 0x76
	dataLength  = 12 // accel X/Y/Z then gyro X/Y/Z, 2 bytes each
	wordLength  = 2
	axisCount   = 3
	readFlagSpi = 0x80 // MSB of the register byte marks a read on SPI
)

// Register bank 0.
const (
	regDeviceConfig     uint16 = 0x0011
	regIntConfig        uint16 = 0x0014
	regFifoConfig       uint16 = 0x0016
	regTempData         uint16 = 0x001D
	regAccelDataX       uint16 = 0x001F
	regGyroDataX        uint16 = 0x0025
	regIntStatus        uint16 = 0x002D
	regSignalPathReset  uint16 = 0x004B
	regIntfConfig0      uint16 = 0x004C
	regPwrMgmt0         uint16 = 0x004E
	regGyroConfig0      uint16 = 0x004F
	regAccelConfig0     uint16 = 0x0050
	regGyroAccelConfig0 uint16 = 0x0052
	regTmstConfig       uint16 = 0x0054
	regIntConfig1       uint16 = 0x0064
	regIntSource0       uint16 = 0x0065
	regWhoAmI           uint16 = 0x0075
)

// Register bank 1. Only touched by bus-specific setup, which this driver leaves alone.
const (
	regSensorConfig0 uint16 = 0x1003
	regIntfConfig4   uint16 = 0x107A
	regIntfConfig6   uint16 = 0x107C
)

// DEVICE_CONFIG bits.
const (
	deviceConfigSoftReset = 0x01
)

// INT_CONFIG bits for the INT1 pin.
const (
	intConfigInt1ActiveHigh = 0x01
	intConfigInt1PushPull   = 0x02
	intConfigInt1Latched    = 0x04
)

// FIFO_CONFIG modes.
const (
	fifoConfigMask   = 0xC0
	fifoConfigBypass = 0x00 << 6
	fifoConfigStream = 0x01 << 6
)

// INT_STATUS bits.
const (
	intStatusResetDone = 0x10
	intStatusDataReady = 0x08
)

// INTF_CONFIG0 bits.
const (
	intfConfig0DataEndian = 0x10 // set = big-endian sensor data, cleared at setup
)

// PWR_MGMT0 layout: gyro mode in bits 3:2, accel mode in bits 1:0. Temperature enablement
// does not participate in the register value on these parts.
const (
	pwrMgmt0GyroShift = 2
	pwrMgmt0ModeMask  = 0x03
)

// GYRO_CONFIG0 / ACCEL_CONFIG0 layout: full-scale in bits 7:5, ODR in bits 3:0.
const (
	sensorConfig0FSShift = 5
	sensorConfig0ODRMask = 0x0F
)

// GYRO_ACCEL_CONFIG0 layout: accel filter in the high nibble, gyro filter in the low one.
const (
	filterAccelShift = 4
	filterNibbleMask = 0x0F
)

// TMST_CONFIG bits.
const (
	tmstConfigMask   = 0x1F
	tmstConfigToRegs = 0x10
	tmstConfigEnable = 0x01
)

// INT_CONFIG1 bits.
const (
	intConfig1AsyncReset = 0x10 // must be cleared for proper INT1 operation
)

// INT_SOURCE0 bits.
const (
	intSource0DataReady = 0x08
)

// Hardware delays from the family datasheets.
const (
	powerUpTime      = 100 * time.Millisecond
	softResetTime    = 1 * time.Millisecond
	vddioRampTime    = 3 * time.Millisecond
	accelStartupTime = 20 * time.Millisecond
	gyroStartupTime  = 60 * time.Millisecond
	gyroStopTime     = 150 * time.Millisecond
	tempStartupTime  = 14 * time.Millisecond

	// Quiet window the bus must observe after a mode register write wakes a sensor.
	modeWakeQuietTime = 200 * time.Microsecond
)

// How long the chip stays powered with everything off before the idle timer cuts VDDIO.
const autosuspendDelay = 2 * time.Second

func regBank(reg uint16) byte   { return byte(reg>>bankShift) & bankMask }
func regOffset(reg uint16) byte { return byte(reg) }
