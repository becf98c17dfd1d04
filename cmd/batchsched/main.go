package main

import (
	"os"

	"github.com/armadaproject/batchsched/cmd/batchsched/cmd"
	"github.com/armadaproject/batchsched/internal/common/logging"
)

func main() {
	logging.ConfigureLogging()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
