//go:build linux

package icm42600

import (
	"context"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/board/genericlinux/buses"
	"go.viam.com/rdk/logging"
)

// The two I2C addresses, selected by wiring the AP_AD0 pin to ground or hot.
const (
	defaultI2CAddress   = 0x68
	alternateI2CAddress = 0x69
)

// SPI transfer parameters. The chip speaks mode 0 or 3 at up to 24 MHz; 1 MHz is plenty
// for register work.
const (
	spiBaud uint = 1000000
	spiMode uint = 3
)

// i2cTransport moves register transactions over a shared I2C bus. Each transaction opens
// its own handle so other devices on the bus can interleave.
type i2cTransport struct {
	bus     buses.I2C
	address byte
	logger  logging.Logger
}

func (t *i2cTransport) readBlock(ctx context.Context, reg byte, length uint8) ([]byte, error) {
	handle, err := t.bus.OpenHandle(t.address)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			t.logger.CError(ctx, err)
		}
	}()

	return handle.ReadBlockData(ctx, reg, length)
}

func (t *i2cTransport) writeByte(ctx context.Context, reg, value byte) error {
	handle, err := t.bus.OpenHandle(t.address)
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			t.logger.CError(ctx, err)
		}
	}()

	return handle.WriteByteData(ctx, reg, value)
}

// spiTransport moves register transactions over SPI. Reads send the register byte with
// the read flag set, then clock out null bytes to pull the data back.
type spiTransport struct {
	bus        buses.SPI
	chipSelect string
	logger     logging.Logger
}

func (t *spiTransport) readBlock(ctx context.Context, reg byte, length uint8) ([]byte, error) {
	handle, err := t.bus.OpenHandle()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			t.logger.CError(ctx, err)
		}
	}()

	tx := make([]byte, int(length)+1)
	tx[0] = reg | readFlagSpi
	rx, err := handle.Xfer(ctx, spiBaud, t.chipSelect, spiMode, tx)
	if err != nil {
		return nil, err
	}
	if len(rx) != len(tx) {
		return nil, errors.Errorf("SPI read returned %d bytes, want %d", len(rx), len(tx))
	}
	return rx[1:], nil
}

func (t *spiTransport) writeByte(ctx context.Context, reg, value byte) error {
	handle, err := t.bus.OpenHandle()
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			t.logger.CError(ctx, err)
		}
	}()

	_, err = handle.Xfer(ctx, spiBaud, t.chipSelect, spiMode, []byte{reg, value})
	return err
}
