package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/scheduler"
	"github.com/armadaproject/batchsched/internal/scheduler/database"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Plans a single cycle against the configured backend and prints it without dispatching anything",
		RunE:  printPlan,
	}
}

func printPlan(_ *cobra.Command, _ []string) error {
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
	directory, _, closeBackend, err := scheduler.NewBackend(config.Backend, clock.RealClock{})
	if err != nil {
		return err
	}
	defer closeBackend()

	registry, err := database.NewInFlightRepository(store, config.StateStore.InFlightKey).Load(ctx)
	if err != nil {
		return err
	}
	algo, err := scheduler.NewBatchSchedulingAlgo(config.Scheduling, directory, clock.RealClock{})
	if err != nil {
		return err
	}
	plan, err := algo.Schedule(ctx, registry, nil)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 1, 1, 2, ' ', 0)
	fmt.Fprintln(w, "Target\tKind\tHost\tUnits\tCapacity\tStart\tEnd")
	for _, batch := range plan.Batches {
		for _, op := range batch.Operations {
			fmt.Fprintf(
				w,
				"%s\t%s\t%s\t%d\t%.2f\t%s\t%s\n",
				op.Target,
				op.Kind,
				op.Host,
				op.ExecutionUnits,
				op.Capacity(),
				op.Window.Start.Format(schedulerobjects.RFC3339Milli),
				op.Window.End.Format(schedulerobjects.RFC3339Milli),
			)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf(
		"%d batches over %d targets using %.2f capacity, %d discarded for lack of capacity, planned in %s\n",
		len(plan.Batches), plan.Lengths.Targets, plan.Capacity, plan.Shortfalls, plan.Timings.Scheduled,
	)
	return nil
}
