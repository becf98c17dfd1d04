package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
)

// CreateContextWithShutdown returns a context that will report done when a SIGINT or SIGTERM is received
func CreateContextWithShutdown() *batchcontext.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
	}()
	return batchcontext.New(ctx, batchcontext.Background().Log)
}
