//go:build linux

package icm42600

import (
	"context"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const gpioConsumer = "icm42600"

func defaultGpioChip(name string) string {
	if name == "" {
		return "gpiochip0"
	}
	return name
}

// requestGpioInterrupt claims the line INT1 is wired to and invokes handler from the
// kernel's edge event stream. The handler runs on the event goroutine and must return
// quickly.
func requestGpioInterrupt(chip string, offset int, polarity string, handler func()) (interruptLine, error) {
	edge := gpiocdev.WithFallingEdge
	switch polarity {
	case polarityRising, polarityHigh:
		edge = gpiocdev.WithRisingEdge
	}

	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		edge,
		gpiocdev.WithConsumer(gpioConsumer),
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { handler() }),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "requesting interrupt line %d on %s", offset, chip)
	}
	return line, nil
}

// gpioRegulator switches a supply rail through an enable line. The line is claimed low so
// the rail stays down until the power-up sequence raises it.
type gpioRegulator struct {
	line *gpiocdev.Line
}

func newGpioRegulator(chip string, offset int) (*gpioRegulator, error) {
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(gpioConsumer),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "requesting enable line %d on %s", offset, chip)
	}
	return &gpioRegulator{line: line}, nil
}

func (r *gpioRegulator) Enable(ctx context.Context) error  { return r.line.SetValue(1) }
func (r *gpioRegulator) Disable(ctx context.Context) error { return r.line.SetValue(0) }

func (r *gpioRegulator) close() error { return r.line.Close() }
