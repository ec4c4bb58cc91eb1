//go:build !linux
// +build !linux

package icm42600

import (
	"context"
	"errors"

	"go.viam.com/rdk/components/movementsensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

func NewICM42600(
	ctx context.Context,
	logger logging.Logger,
	name string,
	busName string,
	useAlternateI2CAddress bool,
	variant ChipVariant,
) (movementsensor.MovementSensor, error) {
	return nil, errors.New("icm42600 only supported on linux")
}

func newIcm42600(
	ctx context.Context,
	_ resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
	variant ChipVariant,
) (movementsensor.MovementSensor, error) {
	return nil, errors.New("icm42600 only supported on linux")
}
