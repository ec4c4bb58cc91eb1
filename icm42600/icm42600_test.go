package icm42600

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/movementsensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/test"
)

type regWrite struct {
	reg   uint16
	value byte
}

// fakeTransport emulates the chip's banked register file in memory, recording all traffic
// so tests can assert on exact access sequences. Bank-select writes are tracked separately
// from data writes.
type fakeTransport struct {
	mu      sync.Mutex
	regs    map[uint16]byte
	curBank byte

	writes      []regWrite
	bankSelects []byte
	reads       []uint16

	readErr  func(reg uint16) error
	writeErr func(reg uint16) error
}

// newFakeTransport seeds the register file with the chip's reset-state values for the
// registers bring-up touches. The identity register holds the ICM-42605 answer.
func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		regs: map[uint16]byte{
			regWhoAmI:           0x42,
			regIntStatus:        intStatusResetDone | intStatusDataReady,
			regIntfConfig0:      0x30,
			regIntConfig1:       intConfig1AsyncReset,
			regTmstConfig:       0x23,
			regGyroAccelConfig0: 0x11,
			regIntSource0:       0x10,
		},
	}
}

func (f *fakeTransport) readBlock(_ context.Context, reg byte, length uint8) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	logical := uint16(f.curBank)<<bankShift | uint16(reg)
	f.reads = append(f.reads, logical)
	if f.readErr != nil {
		if err := f.readErr(logical); err != nil {
			return nil, err
		}
	}
	data := make([]byte, length)
	for i := range data {
		data[i] = f.regs[logical+uint16(i)]
	}
	return data, nil
}

func (f *fakeTransport) writeByte(_ context.Context, reg, value byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reg == regBankSel {
		f.bankSelects = append(f.bankSelects, value)
		f.curBank = value
		return nil
	}
	logical := uint16(f.curBank)<<bankShift | uint16(reg)
	if f.writeErr != nil {
		if err := f.writeErr(logical); err != nil {
			return err
		}
	}
	f.writes = append(f.writes, regWrite{reg: logical, value: value})
	f.regs[logical] = value
	return nil
}

func (f *fakeTransport) set(reg uint16, value byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[reg] = value
}

func (f *fakeTransport) get(reg uint16) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[reg]
}

// setWords lays down little-endian sample words starting at reg.
func (f *fakeTransport) setWords(reg uint16, words ...int16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range words {
		f.regs[reg+uint16(2*i)] = byte(w)
		f.regs[reg+uint16(2*i)+1] = byte(uint16(w) >> 8)
	}
}

func (f *fakeTransport) writeLog() []regWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]regWrite(nil), f.writes...)
}

// writesTo returns every value written to one logical register, in order.
func (f *fakeTransport) writesTo(reg uint16) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var vals []byte
	for _, w := range f.writes {
		if w.reg == reg {
			vals = append(vals, w.value)
		}
	}
	return vals
}

func (f *fakeTransport) clearLog() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
	f.bankSelects = nil
	f.reads = nil
}

// fakeRail records switching events into a shared log so tests can assert ordering across
// rails.
type fakeRail struct {
	name    string
	log     *[]string
	enabled bool
	failOn  string
}

func (r *fakeRail) Enable(ctx context.Context) error {
	if r.failOn == "enable" {
		return errors.Errorf("%s stuck", r.name)
	}
	r.enabled = true
	*r.log = append(*r.log, r.name+" on")
	return nil
}

func (r *fakeRail) Disable(ctx context.Context) error {
	if r.failOn == "disable" {
		return errors.Errorf("%s stuck", r.name)
	}
	r.enabled = false
	*r.log = append(*r.log, r.name+" off")
	return nil
}

type fakeLine struct{ closed bool }

func (l *fakeLine) Close() error {
	l.closed = true
	return nil
}

type fakeSink struct {
	accepting bool
	records   []SampleRecord
}

func (s *fakeSink) Accepting() bool       { return s.accepting }
func (s *fakeSink) Push(rec SampleRecord) { s.records = append(s.records, rec) }

// newTestDevice builds a driver over a fake transport in the state bring-up leaves behind:
// defaults stored, sensors off, hardware waits stubbed out.
func newTestDevice(t *testing.T, ft *fakeTransport) *icm42600 {
	t.Helper()
	imu := &icm42600{
		variant:     ICM42605,
		regs:        newBankedRegmap(ft),
		logger:      logging.NewTestLogger(t),
		drainWake:   make(chan struct{}, 1),
		vdd:         fixedRail{},
		vddio:       fixedRail{},
		orientation: identityMatrix,
		err:         movementsensor.NewLastError(10, 5),
		sleep:       func(time.Duration) {},
		now:         time.Now,
	}
	imu.conf = defaultConf
	t.Cleanup(func() {
		imu.mu.Lock()
		if imu.idleTimer != nil {
			imu.idleTimer.Stop()
		}
		imu.mu.Unlock()
	})
	return imu
}

func makeTestConfig(attrs *Config) resource.Config {
	return resource.Config{
		Name:                "sensor1",
		API:                 movementsensor.API,
		Model:               Model42605,
		ConvertedAttributes: attrs,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestMakeSensorBringUp(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	ft := newFakeTransport()
	ft.setWords(regAccelDataX, 2048, 0, 0, 16384, 0, 0)

	line := &fakeLine{}
	var handler func()
	hw := hardware{
		tr: ft,
		requestInterrupt: func(h func()) (interruptLine, error) {
			handler = h
			return line, nil
		},
	}

	ms, err := makeIcm42600(ctx, nil, makeTestConfig(&Config{I2cBus: "1"}), logger, ICM42605, hw)
	test.That(t, err, test.ShouldBeNil)

	// Bring-up must have reset the chip and programmed the defaults batch.
	test.That(t, ft.writesTo(regDeviceConfig), test.ShouldResemble, []byte{deviceConfigSoftReset})
	test.That(t, ft.writesTo(regPwrMgmt0), test.ShouldResemble, []byte{0x00})
	test.That(t, ft.writesTo(regGyroConfig0), test.ShouldResemble, []byte{0x09})
	test.That(t, ft.writesTo(regAccelConfig0), test.ShouldResemble, []byte{0x09})
	// Byte order forced little-endian, preserving the unrelated bits.
	test.That(t, ft.writesTo(regIntfConfig0), test.ShouldResemble, []byte{0x20})

	props, err := ms.Properties(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, props.AngularVelocitySupported, test.ShouldBeTrue)
	test.That(t, props.LinearAccelerationSupported, test.ShouldBeTrue)

	// An interrupt pushes a sample through to the reported readings.
	handler()
	imu := ms.(*icm42600)
	waitFor(t, func() bool {
		imu.mu.Lock()
		defer imu.mu.Unlock()
		return imu.lastRecord.Timestamp != 0
	})
	av, err := ms.AngularVelocity(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, av.X, test.ShouldAlmostEqual, 1000.0)
	la, err := ms.LinearAcceleration(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, la.X, test.ShouldAlmostEqual, 9.81)

	test.That(t, ms.Close(ctx), test.ShouldBeNil)
	test.That(t, line.closed, test.ShouldBeTrue)
}

func TestMakeSensorIdentityMismatch(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	ft := newFakeTransport()
	ft.set(regWhoAmI, 0x41)

	var log []string
	hw := hardware{
		tr:    ft,
		vdd:   &fakeRail{name: "vdd", log: &log},
		vddio: &fakeRail{name: "vddio", log: &log},
	}

	_, err := makeIcm42600(ctx, nil, makeTestConfig(&Config{I2cBus: "1"}), logger, ICM42605, hw)
	test.That(t, errors.Is(err, ErrIdentityMismatch), test.ShouldBeTrue)
	// Nothing was configured on the unidentified chip, and the rails were unwound.
	test.That(t, ft.writeLog(), test.ShouldBeEmpty)
	test.That(t, log, test.ShouldResemble, []string{"vdd on", "vddio on", "vddio off", "vdd off"})
}

func TestUpdateReadingsScaling(t *testing.T) {
	ft := newFakeTransport()
	imu := newTestDevice(t, ft)

	imu.updateReadings(SampleRecord{
		Accel:     [3]int16{2048, -2048, 0},
		Gyro:      [3]int16{16384, 0, -16384},
		Timestamp: 77,
	})

	test.That(t, imu.linearAcceleration.X, test.ShouldAlmostEqual, 9.81)
	test.That(t, imu.linearAcceleration.Y, test.ShouldAlmostEqual, -9.81)
	test.That(t, imu.linearAcceleration.Z, test.ShouldAlmostEqual, 0)
	test.That(t, imu.angularVelocity.X, test.ShouldAlmostEqual, 1000.0)
	test.That(t, imu.angularVelocity.Z, test.ShouldAlmostEqual, -1000.0)
	test.That(t, imu.lastRecord.Timestamp, test.ShouldEqual, 77)
}

func TestUpdateReadingsUsesStoredScales(t *testing.T) {
	ft := newFakeTransport()
	imu := newTestDevice(t, ft)
	imu.conf.gyro.fullScale = byte(GyroFS250DPS)
	imu.conf.accel.fullScale = byte(AccelFS2G)

	imu.updateReadings(SampleRecord{
		Accel: [3]int16{16384, 0, 0},
		Gyro:  [3]int16{16384, 0, 0},
	})

	// 16384 counts are half of full scale: 125 dps at 250 dps, 1 g at 2 g.
	test.That(t, imu.angularVelocity.X, test.ShouldAlmostEqual, 125.0)
	test.That(t, imu.linearAcceleration.X, test.ShouldAlmostEqual, 9.81)
}

func TestMountMatrixRotation(t *testing.T) {
	ft := newFakeTransport()
	imu := newTestDevice(t, ft)
	// Swap X and Y, negate Z.
	imu.orientation = orientationFromConfig([]float64{0, 1, 0, 1, 0, 0, 0, 0, -1})

	imu.updateReadings(SampleRecord{Accel: [3]int16{2048, 0, 2048}})

	test.That(t, imu.linearAcceleration.X, test.ShouldAlmostEqual, 0)
	test.That(t, imu.linearAcceleration.Y, test.ShouldAlmostEqual, 9.81)
	test.That(t, imu.linearAcceleration.Z, test.ShouldAlmostEqual, -9.81)
}

func TestOrientationFromConfig(t *testing.T) {
	test.That(t, orientationFromConfig(nil), test.ShouldResemble, identityMatrix)
	test.That(t, orientationFromConfig([]float64{1, 2, 3}), test.ShouldResemble, identityMatrix)
	m := orientationFromConfig([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	test.That(t, m, test.ShouldResemble, mountMatrix{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})

	imu := &icm42600{orientation: m}
	test.That(t, imu.MountMatrix(), test.ShouldResemble, [3][3]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
}

func TestReadTemperature(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	imu := newTestDevice(t, ft)

	ft.setWords(regTempData, 0)
	temp, err := imu.readTemperature(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, temp, test.ShouldAlmostEqual, 25.0)

	ft.setWords(regTempData, 13248)
	temp, err = imu.readTemperature(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, temp, test.ShouldAlmostEqual, 125.0)

	ft.setWords(regTempData, -6624)
	temp, err = imu.readTemperature(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, temp, test.ShouldAlmostEqual, -25.0)
}

func TestReadingsIncludeTemperatureWhenEnabled(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	imu := newTestDevice(t, ft)
	ft.setWords(regTempData, 0)

	readings, err := imu.Readings(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readings, test.ShouldNotContainKey, "temperature_celsius")

	imu.conf.tempEn = true
	readings, err = imu.Readings(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readings["temperature_celsius"], test.ShouldAlmostEqual, 25.0)
}
