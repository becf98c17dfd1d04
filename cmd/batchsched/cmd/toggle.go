package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/scheduler"
	"github.com/armadaproject/batchsched/internal/scheduler/database"
)

func enableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Turns scheduling on",
		RunE: func(_ *cobra.Command, _ []string) error {
			return setEnabled(true)
		},
	}
}

func disableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Turns scheduling off. Operations already dispatched run to completion",
		RunE: func(_ *cobra.Command, _ []string) error {
			return setEnabled(false)
		},
	}
}

func setEnabled(enabled bool) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := batchcontext.Background()
	store, closeStore, err := scheduler.NewStateStore(ctx, config.StateStore)
	if err != nil {
		return err
	}
	defer closeStore()

	flags := database.NewFlagRepository(store, config.StateStore.FlagsKey, config.Scheduling.EnabledByDefault)
	if err := flags.SetEnabled(ctx, enabled); err != nil {
		return err
	}
	log.Infof("Scheduling enabled: %t", enabled)
	return nil
}
