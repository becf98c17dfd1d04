package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"github.com/armadaproject/batchsched/internal/common/app"
	"github.com/armadaproject/batchsched/internal/scheduler"
	"github.com/armadaproject/batchsched/internal/scheduler/natsapi"
)

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Serves a simulated world over nats, for schedulers configured with the nats backend",
		RunE:  runSimulation,
	}
	cmd.Flags().String("world", "", "Yaml file describing the simulated world. Overrides backend.simulator.worldFile")
	return cmd
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	worldFile, err := cmd.Flags().GetString("world")
	if err != nil {
		return errors.WithStack(err)
	}
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if config.Backend.Nats == nil {
		return errors.New("simulate requires nats configuration under backend.nats")
	}
	if worldFile != "" {
		config.Backend.Simulator.WorldFile = worldFile
	}

	world, err := scheduler.NewSimulatedWorld(config.Backend.Simulator, clock.RealClock{})
	if err != nil {
		return err
	}
	conn, err := config.Backend.Nats.Connect()
	if err != nil {
		return errors.Wrapf(err, "error connecting to nats at %s", config.Backend.Nats.Url)
	}
	defer conn.Close()

	ctx := app.CreateContextWithShutdown()
	ctx.Log.Infof("Serving simulated world on %s.*", config.Backend.Nats.SubjectPrefix)
	server := natsapi.NewServer(conn, config.Backend.Nats.SubjectPrefix, config.Backend.Nats.RequestTimeout, world, world)
	return server.Run(ctx)
}
