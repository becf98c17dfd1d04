package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/armadaproject/batchsched/internal/common"
	commonconfig "github.com/armadaproject/batchsched/internal/common/config"
	"github.com/armadaproject/batchsched/internal/common/logging"
	schedulerconfig "github.com/armadaproject/batchsched/internal/scheduler/configuration"
)

const (
	CustomConfigLocation string = "config"
	DefaultConfigPath    string = "./config/batchsched"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "batchsched",
		SilenceUsage: true,
		Short:        "Schedules time-phased operation batches against targets",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindFlags(cmd.Flags())
		},
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")

	cmd.AddCommand(
		runCmd(),
		enableCmd(),
		disableCmd(),
		statusCmd(),
		planCmd(),
		simulateCmd(),
	)

	return cmd
}

func bindFlags(flags *pflag.FlagSet) error {
	return errors.WithStack(viper.BindPFlags(flags))
}

func loadConfig() (schedulerconfig.Configuration, error) {
	var config schedulerconfig.Configuration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, DefaultConfigPath, userSpecifiedConfigs)

	err := config.Validate()
	if err != nil {
		commonconfig.LogValidationErrors(err)
		return config, err
	}
	if err := logging.ApplyConfig(config.Logging); err != nil {
		return config, errors.WithMessage(err, "invalid logging configuration")
	}
	return config, nil
}
