package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/scheduler"
	"github.com/armadaproject/batchsched/internal/scheduler/database"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Prints the enable flag and the operations in flight",
		RunE:  printStatus,
	}
}

func printStatus(_ *cobra.Command, _ []string) error {
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

	enabled, err := database.NewFlagRepository(store, config.StateStore.FlagsKey, config.Scheduling.EnabledByDefault).Enabled(ctx)
	if err != nil {
		return err
	}
	registry, err := database.NewInFlightRepository(store, config.StateStore.InFlightKey).Load(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Scheduling enabled: %t\n", enabled)
	w := tabwriter.NewWriter(os.Stdout, 1, 1, 2, ' ', 0)
	fmt.Fprintln(w, "Target\tKind\tHost\tHandle\tDue")
	targets := maps.Keys(registry)
	slices.Sort(targets)
	for _, target := range targets {
		entries := maps.Values(registry[target])
		slices.SortFunc(entries, func(a, b *database.InFlightEntry) int {
			return a.DueTime.Compare(b.DueTime)
		})
		for _, entry := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", target, entry.Kind, entry.Host, entry.Handle, entry.DueTime.Format(schedulerobjects.RFC3339Milli))
		}
	}
	return w.Flush()
}
