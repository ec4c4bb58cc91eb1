package icm42600

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestInterruptTimestampLatchesAndWakes(t *testing.T) {
	ft := newFakeTransport()
	imu := newTestDevice(t, ft)

	imu.now = func() time.Time { return time.Unix(0, 500) }
	imu.interruptTimestamp()
	test.That(t, imu.tsAccel.Load(), test.ShouldEqual, int64(500))
	test.That(t, imu.tsGyro.Load(), test.ShouldEqual, int64(500))

	// A second interrupt before the drain runs must not block, and overwrites the latch.
	imu.now = func() time.Time { return time.Unix(0, 600) }
	imu.interruptTimestamp()
	test.That(t, imu.tsAccel.Load(), test.ShouldEqual, int64(600))

	select {
	case <-imu.drainWake:
	default:
		t.Fatal("expected a wake token")
	}
	select {
	case <-imu.drainWake:
		t.Fatal("expected a single coalesced wake token")
	default:
	}
}

func TestDrainAttachesLatchedTimestamp(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	ft.setWords(regAccelDataX, 100, -200, 300, 1000, -2000, 3000)
	imu := newTestDevice(t, ft)

	imu.now = func() time.Time { return time.Unix(0, 500) }
	imu.interruptTimestamp()
	// However late the drain runs, the record carries the arrival time, not the read time.
	imu.now = func() time.Time { return time.Unix(0, 999) }
	imu.drainInterrupt(ctx)

	test.That(t, imu.lastRecord, test.ShouldResemble, SampleRecord{
		Accel:     [3]int16{100, -200, 300},
		Gyro:      [3]int16{1000, -2000, 3000},
		Timestamp: 500,
	})
}

func TestDrainSkipsWithoutDataReady(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	ft.set(regIntStatus, intStatusResetDone)
	imu := newTestDevice(t, ft)

	imu.drainInterrupt(ctx)

	test.That(t, imu.lastRecord, test.ShouldResemble, SampleRecord{})
	for _, r := range ft.reads {
		test.That(t, r, test.ShouldNotEqual, regAccelDataX)
	}
}

func TestDrainRecordsReadErrors(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	imu := newTestDevice(t, ft)

	busErr := errors.New("bus glitch")
	ft.readErr = func(reg uint16) error {
		if reg == regAccelDataX {
			return busErr
		}
		return nil
	}
	for i := 0; i < 5; i++ {
		imu.drainInterrupt(ctx)
	}
	test.That(t, imu.err.Get(), test.ShouldNotBeNil)
	test.That(t, imu.lastRecord, test.ShouldResemble, SampleRecord{})

	// Once the bus recovers, drains work again and the error ages out.
	ft.readErr = nil
	ft.setWords(regAccelDataX, 1, 2, 3, 4, 5, 6)
	for i := 0; i < 6; i++ {
		imu.drainInterrupt(ctx)
	}
	test.That(t, imu.err.Get(), test.ShouldBeNil)
	test.That(t, imu.lastRecord.Accel, test.ShouldResemble, [3]int16{1, 2, 3})
}

func TestDrainSkipsWhileSuspended(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	imu := newTestDevice(t, ft)
	imu.power = powerRuntimeSuspended

	ft.readErr = func(uint16) error { return errors.New("no ack") }

	// Poll ticks keep coming after an autosuspend; none of them may touch the dead bus or
	// trip the damped error.
	for i := 0; i < 5; i++ {
		imu.interruptTimestamp()
		imu.drainInterrupt(ctx)
	}
	test.That(t, ft.reads, test.ShouldBeEmpty)
	test.That(t, imu.err.Get(), test.ShouldBeNil)

	imu.power = powerActive
	ft.readErr = nil
	imu.drainInterrupt(ctx)
	test.That(t, ft.reads, test.ShouldNotBeEmpty)
}

func TestSinkReceivesRecords(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	ft.setWords(regAccelDataX, 10, 20, 30, 40, 50, 60)
	imu := newTestDevice(t, ft)
	imu.now = func() time.Time { return time.Unix(0, 42) }

	sink := &fakeSink{accepting: true}
	imu.SetSink(sink)

	imu.interruptTimestamp()
	imu.drainInterrupt(ctx)
	test.That(t, sink.records, test.ShouldHaveLength, 1)
	test.That(t, sink.records[0], test.ShouldResemble, SampleRecord{
		Accel:     [3]int16{10, 20, 30},
		Gyro:      [3]int16{40, 50, 60},
		Timestamp: 42,
	})

	// A sink that is not accepting gets nothing; records are dropped, not queued.
	sink.accepting = false
	imu.interruptTimestamp()
	imu.drainInterrupt(ctx)
	test.That(t, sink.records, test.ShouldHaveLength, 1)

	// Detaching the sink keeps the drain itself working.
	imu.SetSink(nil)
	imu.interruptTimestamp()
	imu.drainInterrupt(ctx)
	test.That(t, sink.records, test.ShouldHaveLength, 1)
}

func TestStartStopStreaming(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	imu := newTestDevice(t, ft)

	err := imu.startStreaming(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, imu.fifoOn, test.ShouldBeTrue)
	test.That(t, ft.get(regFifoConfig)&fifoConfigMask, test.ShouldEqual, byte(fifoConfigStream))
	test.That(t, ft.get(regIntSource0)&intSource0DataReady, test.ShouldEqual, byte(intSource0DataReady))

	err = imu.stopStreaming(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, imu.fifoOn, test.ShouldBeFalse)
	test.That(t, ft.get(regFifoConfig)&fifoConfigMask, test.ShouldEqual, byte(fifoConfigBypass))
	test.That(t, ft.get(regIntSource0)&intSource0DataReady, test.ShouldEqual, byte(0))
}

func TestDrainWorkerServicesWakes(t *testing.T) {
	ft := newFakeTransport()
	ft.setWords(regAccelDataX, 7, 8, 9, 10, 11, 12)
	imu := newTestDevice(t, ft)
	imu.now = func() time.Time { return time.Unix(0, 77) }

	cancelCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		imu.drainWorker(cancelCtx)
		close(done)
	}()

	imu.interruptTimestamp()
	waitFor(t, func() bool {
		imu.mu.Lock()
		defer imu.mu.Unlock()
		return imu.lastRecord.Timestamp == 77
	})

	cancel()
	<-done
}

func TestPollWorkerFallback(t *testing.T) {
	ft := newFakeTransport()
	ft.setWords(regAccelDataX, 1, 1, 1, 2, 2, 2)
	imu := newTestDevice(t, ft)
	imu.conf.accel.odr = ODR8kHz

	cancelCtx, cancel := context.WithCancel(context.Background())
	drainDone := make(chan struct{})
	pollDone := make(chan struct{})
	go func() {
		imu.drainWorker(cancelCtx)
		close(drainDone)
	}()
	go func() {
		imu.pollWorker(cancelCtx)
		close(pollDone)
	}()

	// With no interrupt line, samples still arrive at the configured rate.
	waitFor(t, func() bool {
		imu.mu.Lock()
		defer imu.mu.Unlock()
		return imu.lastRecord.Timestamp != 0
	})

	cancel()
	<-drainDone
	<-pollDone
}
