package icm42600

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"go.viam.com/rdk/components/movementsensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
	goutils "go.viam.com/utils"
)

// hardware bundles the host resources the driver drives: the bus transport, the two supply
// rails and an optional interrupt registrar. The linux constructor fills it from the
// resource config; tests fill it with fakes.
type hardware struct {
	tr    transport
	vdd   Regulator
	vddio Regulator

	// requestInterrupt installs the fast-phase handler on the wired INT1 line and returns
	// a handle that releases it. Nil selects the polling fallback.
	requestInterrupt func(handler func()) (interruptLine, error)

	// cleanup releases host resources (GPIO lines) at detach, after the rails are down.
	cleanup []func(context.Context)
}

type icm42600 struct {
	resource.Named
	resource.AlwaysRebuild

	variant ChipVariant
	regs    *bankedRegmap
	logger  logging.Logger

	// One lock serializes configuration changes, deferred interrupt drains and power
	// transitions against each other.
	mu        sync.Mutex
	conf      deviceConf
	suspended suspendedModes
	fifoOn    bool
	power     powerState
	closed    bool
	idleTimer *time.Timer
	teardown  []func(context.Context)
	sink      Sink
	busSetup  busSetupFunc

	// Interrupt-arrival times, latched by the fast phase without the lock.
	tsGyro  atomic.Int64
	tsAccel atomic.Int64

	drainWake chan struct{}
	workers   *goutils.StoppableWorkers

	vdd   Regulator
	vddio Regulator

	// Sensor-to-mount rotation, read once from config, immutable afterwards.
	orientation mountMatrix

	// The things we report: lock the mutex before reading or writing these.
	angularVelocity    spatialmath.AngularVelocity
	linearAcceleration r3.Vector
	lastRecord         SampleRecord
	// Stores the most recent errors from the drain worker.
	err movementsensor.LastError

	// Swapped out in tests so settle waits and timestamps are deterministic.
	sleep func(time.Duration)
	now   func() time.Time
}

// This function is separated from newIcm42600 solely so tests can inject a fake bus
// transport and GPIO-free power wiring.
func makeIcm42600(
	ctx context.Context,
	_ resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
	variant ChipVariant,
	hw hardware,
) (movementsensor.MovementSensor, error) {
	newConf, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}
	if _, err := variant.info(); err != nil {
		return nil, err
	}

	// Rails nobody switches are treated as hard-wired.
	if hw.vdd == nil {
		hw.vdd = fixedRail{}
	}
	if hw.vddio == nil {
		hw.vddio = fixedRail{}
	}

	imu := &icm42600{
		Named:       conf.ResourceName().AsNamed(),
		variant:     variant,
		regs:        newBankedRegmap(hw.tr),
		logger:      logger,
		drainWake:   make(chan struct{}, 1),
		vdd:         hw.vdd,
		vddio:       hw.vddio,
		orientation: orientationFromConfig(newConf.MountMatrix),
		// On overloaded boards the bus can become flaky. Only report errors if at least
		// 5 of the last 10 attempts to talk to the device have failed.
		err:   movementsensor.NewLastError(10, 5),
		sleep: time.Sleep,
		now:   time.Now,
	}
	for _, f := range hw.cleanup {
		imu.addTeardown(f)
	}

	success := false
	defer func() {
		if !success {
			imu.runTeardown(ctx)
		}
	}()

	if err := imu.powerUp(ctx); err != nil {
		return nil, err
	}
	if err := imu.setup(ctx); err != nil {
		return nil, err
	}
	if err := imu.setupTimestamps(ctx); err != nil {
		return nil, err
	}

	polarity := newConf.InterruptPolarity
	if polarity == "" {
		polarity = polarityFalling
	}
	if err := imu.setupIntPin(ctx, polarity, newConf.OpenDrain); err != nil {
		return nil, err
	}

	if hw.requestInterrupt != nil {
		line, err := hw.requestInterrupt(imu.interruptTimestamp)
		if err != nil {
			return nil, err
		}
		imu.addTeardown(func(ctx context.Context) {
			if err := line.Close(); err != nil {
				imu.logger.CError(ctx, err)
			}
		})
		imu.workers = goutils.NewBackgroundStoppableWorkers(imu.drainWorker)
	} else {
		logger.CDebugf(ctx, "no interrupt line wired for %s, polling for samples instead", variant)
		imu.workers = goutils.NewBackgroundStoppableWorkers(imu.drainWorker, imu.pollWorker)
	}

	imu.mu.Lock()
	imu.releasePower()
	imu.mu.Unlock()

	success = true
	return imu, nil
}

type mountMatrix [3][3]float64

var identityMatrix = mountMatrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

func orientationFromConfig(vals []float64) mountMatrix {
	if len(vals) != 9 {
		return identityMatrix
	}
	var m mountMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = vals[3*i+j]
		}
	}
	return m
}

// MountMatrix returns the sensor-to-mount-frame rotation fixed at attach time.
func (imu *icm42600) MountMatrix() [3][3]float64 {
	return imu.orientation
}

// apply rotates a sensor-frame vector into the mount frame.
func (m mountMatrix) apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// updateReadings converts a raw record through the current full-scale settings and the
// mount matrix into reportable values. Called by the drain with the device lock held.
func (imu *icm42600) updateReadings(rec SampleRecord) {
	gyroScale := gyroRanges[imu.conf.gyro.fullScale] / 32768.0
	accelScale := accelRanges[imu.conf.accel.fullScale] / 32768.0 * 9.81

	av := r3.Vector{
		X: float64(rec.Gyro[0]) * gyroScale,
		Y: float64(rec.Gyro[1]) * gyroScale,
		Z: float64(rec.Gyro[2]) * gyroScale,
	}
	la := r3.Vector{
		X: float64(rec.Accel[0]) * accelScale,
		Y: float64(rec.Accel[1]) * accelScale,
		Z: float64(rec.Accel[2]) * accelScale,
	}

	imu.angularVelocity = spatialmath.AngularVelocity(imu.orientation.apply(av))
	imu.linearAcceleration = imu.orientation.apply(la)
	imu.lastRecord = rec
}

// readTemperature pulls the die thermometer registers. The device lock must be held and
// the thermometer enabled for the value to mean anything.
func (imu *icm42600) readTemperature(ctx context.Context) (float64, error) {
	data, err := imu.regs.ReadBurst(ctx, regTempData, wordLength)
	if err != nil {
		return 0, err
	}
	raw := int16(binary.LittleEndian.Uint16(data))
	// 132.48 LSB per degree, offset 25 degrees.
	return float64(raw)/132.48 + 25.0, nil
}

func (imu *icm42600) AngularVelocity(ctx context.Context, extra map[string]interface{}) (spatialmath.AngularVelocity, error) {
	imu.mu.Lock()
	defer imu.mu.Unlock()
	return imu.angularVelocity, imu.err.Get()
}

func (imu *icm42600) LinearAcceleration(ctx context.Context, extra map[string]interface{}) (r3.Vector, error) {
	imu.mu.Lock()
	defer imu.mu.Unlock()
	return imu.linearAcceleration, imu.err.Get()
}

func (imu *icm42600) LinearVelocity(ctx context.Context, extra map[string]interface{}) (r3.Vector, error) {
	return r3.Vector{}, movementsensor.ErrMethodUnimplementedLinearVelocity
}

func (imu *icm42600) Orientation(ctx context.Context, extra map[string]interface{}) (spatialmath.Orientation, error) {
	return spatialmath.NewOrientationVector(), movementsensor.ErrMethodUnimplementedOrientation
}

func (imu *icm42600) CompassHeading(ctx context.Context, extra map[string]interface{}) (float64, error) {
	return 0, movementsensor.ErrMethodUnimplementedCompassHeading
}

func (imu *icm42600) Position(ctx context.Context, extra map[string]interface{}) (*geo.Point, float64, error) {
	return geo.NewPoint(0, 0), 0, movementsensor.ErrMethodUnimplementedPosition
}

func (imu *icm42600) Accuracy(ctx context.Context, extra map[string]interface{}) (*movementsensor.Accuracy, error) {
	return movementsensor.UnimplementedOptionalAccuracies(), nil
}

func (imu *icm42600) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	imu.mu.Lock()
	defer imu.mu.Unlock()

	readings := make(map[string]interface{})
	readings["angular_velocity"] = imu.angularVelocity
	readings["linear_acceleration"] = imu.linearAcceleration
	readings["sample_timestamp"] = imu.lastRecord.Timestamp
	if imu.conf.tempEn {
		temp, err := imu.readTemperature(ctx)
		if err != nil {
			return nil, err
		}
		readings["temperature_celsius"] = temp
	}

	return readings, imu.err.Get()
}

func (imu *icm42600) Properties(ctx context.Context, extra map[string]interface{}) (*movementsensor.Properties, error) {
	return &movementsensor.Properties{
		AngularVelocitySupported:    true,
		LinearAccelerationSupported: true,
	}, nil
}

func (imu *icm42600) Close(ctx context.Context) error {
	imu.workers.Stop()

	imu.mu.Lock()
	defer imu.mu.Unlock()

	imu.closed = true
	if imu.idleTimer != nil {
		imu.idleTimer.Stop()
		imu.idleTimer = nil
	}

	// Leave the chip off, then release lines and rails in reverse acquisition order.
	settle, err := imu.setPowerModes(ctx, ModeOff, ModeOff, false)
	if err != nil {
		imu.logger.CError(ctx, err)
	} else if settle > 0 {
		imu.sleep(settle)
	}
	imu.runTeardown(ctx)
	return err
}
