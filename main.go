// package main is a module with TDK InvenSense ICM-426xx movement sensor components.
package main

import (
	"context"

	"inv-icm42600/icm42600"

	"go.viam.com/rdk/components/movementsensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/utils"
)

func main() {
	utils.ContextualMain(mainWithArgs, module.NewLoggerFromArgs("inv-icm42600"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	module, err := module.NewModuleFromArgs(ctx)
	if err != nil {
		return err
	}

	models := []resource.Model{
		icm42600.Model42600,
		icm42600.Model42602,
		icm42600.Model42605,
		icm42600.Model42622,
		icm42600.Model42631,
		icm42600.Model42670,
	}
	for _, model := range models {
		if err = module.AddModelFromRegistry(ctx, movementsensor.API, model); err != nil {
			return err
		}
	}

	err = module.Start(ctx)
	defer module.Close(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
