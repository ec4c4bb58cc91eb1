package icm42600

import (
	"context"
	"encoding/binary"
	"time"
)

// SampleRecord is one drained interrupt's worth of raw data: accelerometer and gyroscope
// axis words plus the timestamp latched when the interrupt fired, in Unix nanoseconds.
// Records are immutable once assembled.
type SampleRecord struct {
	Accel     [3]int16
	Gyro      [3]int16
	Timestamp int64
}

// Sink receives finished sample records, typically a streaming pipeline. Push runs with
// the device lock held and must not call back into the sensor. Records offered while the
// sink reports it is not accepting are dropped, never queued.
type Sink interface {
	Accepting() bool
	Push(SampleRecord)
}

// interruptLine is the host edge-event source feeding the fast phase; released at detach.
type interruptLine interface {
	Close() error
}

// SetSink attaches a consumer for raw sample records. Passing nil detaches it.
func (imu *icm42600) SetSink(s Sink) {
	imu.mu.Lock()
	imu.sink = s
	imu.mu.Unlock()
}

// interruptTimestamp is the fast interrupt phase: latch the arrival time for both sensor
// groups and wake the drain worker. It runs on the GPIO event goroutine (or the poll
// ticker) and must never block or take the device lock. Both groups get the same instant
// since the hardware samples them simultaneously.
func (imu *icm42600) interruptTimestamp() {
	now := imu.now().UnixNano()
	imu.tsGyro.Store(now)
	imu.tsAccel.Store(now)
	select {
	case imu.drainWake <- struct{}{}:
	default:
	}
}

// drainWorker runs deferred interrupt work whenever the fast phase signals.
func (imu *icm42600) drainWorker(cancelCtx context.Context) {
	for {
		select {
		case <-cancelCtx.Done():
			return
		case <-imu.drainWake:
			imu.drainInterrupt(cancelCtx)
		}
	}
}

// drainInterrupt is the deferred interrupt phase: under the device lock, check data-ready,
// burst-read both sensor groups and hand the assembled record on. Bus failures here are
// recorded and logged, then dropped; the next interrupt starts clean.
func (imu *icm42600) drainInterrupt(ctx context.Context) {
	ts := imu.tsAccel.Load()

	imu.mu.Lock()
	defer imu.mu.Unlock()

	// The I/O rail is down while suspended but the poll ticker keeps firing; no register
	// traffic until something wakes the chip.
	if imu.power != powerActive {
		return
	}

	status, err := imu.regs.ReadReg(ctx, regIntStatus)
	if err != nil {
		imu.err.Set(err)
		imu.logger.CErrorf(ctx, "reading interrupt status: %s", err)
		return
	}
	if status&intStatusDataReady == 0 {
		return
	}

	data, err := imu.regs.ReadBurst(ctx, regAccelDataX, dataLength)
	// Record `err` no matter what: even a nil is useful, it ages out old failures.
	imu.err.Set(err)
	if err != nil {
		imu.logger.CErrorf(ctx, "reading sensor data: %s", err)
		return
	}

	rec := SampleRecord{Timestamp: ts}
	for i := 0; i < axisCount; i++ {
		rec.Accel[i] = int16(binary.LittleEndian.Uint16(data[wordLength*i:]))
		rec.Gyro[i] = int16(binary.LittleEndian.Uint16(data[wordLength*(axisCount+i):]))
	}

	imu.updateReadings(rec)

	if imu.sink != nil && imu.sink.Accepting() {
		imu.sink.Push(rec)
	}
}

// pollWorker substitutes for a missing interrupt line: tick at the accel sample period and
// run the same two-phase sequence the GPIO event path uses, so timestamp semantics match.
func (imu *icm42600) pollWorker(cancelCtx context.Context) {
	imu.mu.Lock()
	period := odrPeriod(imu.conf.accel.odr)
	imu.mu.Unlock()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-cancelCtx.Done():
			return
		case <-ticker.C:
			imu.interruptTimestamp()

			imu.mu.Lock()
			p := odrPeriod(imu.conf.accel.odr)
			imu.mu.Unlock()
			if p != period {
				period = p
				ticker.Reset(period)
			}
		}
	}
}

// startStreaming points the FIFO at the sensor data path and routes the data-ready signal
// to INT1. The device lock must be held.
func (imu *icm42600) startStreaming(ctx context.Context) error {
	if err := imu.regs.UpdateBits(ctx, regFifoConfig, fifoConfigMask, fifoConfigStream); err != nil {
		return err
	}
	if err := imu.regs.UpdateBits(ctx, regIntSource0, intSource0DataReady, intSource0DataReady); err != nil {
		return err
	}
	imu.fifoOn = true
	return nil
}

// stopStreaming reverses startStreaming. The device lock must be held.
func (imu *icm42600) stopStreaming(ctx context.Context) error {
	if err := imu.regs.UpdateBits(ctx, regIntSource0, intSource0DataReady, 0); err != nil {
		return err
	}
	if err := imu.regs.UpdateBits(ctx, regFifoConfig, fifoConfigMask, fifoConfigBypass); err != nil {
		return err
	}
	imu.fifoOn = false
	return nil
}
