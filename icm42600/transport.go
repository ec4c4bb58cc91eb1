package icm42600

import (
	"context"

	"github.com/pkg/errors"
)

// transport is the byte-level register access a bus front-end provides. The real
// implementations talk I2C or SPI; tests substitute a fake.
type transport interface {
	readBlock(ctx context.Context, reg byte, length uint8) ([]byte, error)
	writeByte(ctx context.Context, reg, value byte) error
}

// bankedRegmap adapts a flat byte transport to the chip's banked register space. Logical
// addresses carry the bank in their high nibble and the in-bank offset in the low byte.
// The selector register is written only when the target bank differs from the cached one,
// since nearly all traffic stays in bank 0.
type bankedRegmap struct {
	tr      transport
	curBank byte
}

func newBankedRegmap(tr transport) *bankedRegmap {
	// An out-of-range cached bank forces a selector write on first access.
	return &bankedRegmap{tr: tr, curBank: 0xFF}
}

func (r *bankedRegmap) setBank(ctx context.Context, bank byte) error {
	if bank == r.curBank {
		return nil
	}
	if err := r.tr.writeByte(ctx, regBankSel, bank&bankMask); err != nil {
		return errors.Wrapf(err, "selecting register bank %d", bank)
	}
	r.curBank = bank
	return nil
}

// ReadReg reads one register.
func (r *bankedRegmap) ReadReg(ctx context.Context, reg uint16) (byte, error) {
	data, err := r.ReadBurst(ctx, reg, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// ReadBurst reads length consecutive registers starting at reg.
func (r *bankedRegmap) ReadBurst(ctx context.Context, reg uint16, length uint8) ([]byte, error) {
	if err := r.setBank(ctx, regBank(reg)); err != nil {
		return nil, err
	}
	data, err := r.tr.readBlock(ctx, regOffset(reg), length)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %d bytes at %#02x", length, regOffset(reg))
	}
	if len(data) < int(length) {
		return nil, errors.Errorf("short read at %#02x: %d of %d bytes", regOffset(reg), len(data), length)
	}
	return data, nil
}

// WriteReg writes one register.
func (r *bankedRegmap) WriteReg(ctx context.Context, reg uint16, value byte) error {
	if err := r.setBank(ctx, regBank(reg)); err != nil {
		return err
	}
	if err := r.tr.writeByte(ctx, regOffset(reg), value); err != nil {
		return errors.Wrapf(err, "writing %#02x to %#02x", value, regOffset(reg))
	}
	return nil
}

// UpdateBits rewrites the masked part of a register, skipping the write when the stored
// value already matches.
func (r *bankedRegmap) UpdateBits(ctx context.Context, reg uint16, mask, value byte) error {
	old, err := r.ReadReg(ctx, reg)
	if err != nil {
		return err
	}
	updated := old&^mask | value&mask
	if updated == old {
		return nil
	}
	return r.WriteReg(ctx, reg, updated)
}
