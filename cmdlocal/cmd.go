// Package main for testing an icm42600 family sensor locally
package main

import (
	"context"
	"time"

	"go.viam.com/rdk/logging"

	"inv-icm42600/icm42600"
)

func main() {
	err := realMain()
	if err != nil {
		panic(err)
	}
}

func realMain() error {
	ctx := context.Background()
	logger := logging.NewLogger("icm42600-local")

	ms, err := icm42600.NewICM42600(ctx, logger, "foo", "1", false, icm42600.ICM42605)
	if err != nil {
		return err
	}
	defer func() {
		if err := ms.Close(ctx); err != nil {
			logger.Error(err)
		}
	}()

	// The sensors come up powered off; switch both on before polling.
	if _, err := ms.DoCommand(ctx, map[string]interface{}{
		"command": "set_gyro_config", "mode": "low_noise", "data_rate_hz": 50.0,
	}); err != nil {
		return err
	}
	if _, err := ms.DoCommand(ctx, map[string]interface{}{
		"command": "set_accel_config", "mode": "low_noise", "data_rate_hz": 50.0,
	}); err != nil {
		return err
	}

	for range 30 {
		av, err := ms.AngularVelocity(ctx, nil)
		if err != nil {
			return err
		}
		la, err := ms.LinearAcceleration(ctx, nil)
		if err != nil {
			return err
		}

		logger.Infof("angular velocity: %0.2f %0.2f %0.2f linear acceleration: %0.2f %0.2f %0.2f", av.X, av.Y, av.Z, la.X, la.Y, la.Z)
		time.Sleep(time.Second)
	}
	return nil
}
