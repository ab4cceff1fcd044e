package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/target/ldap-user-collection/internal/bootstrap"
)

func main() {
	logger := bootstrap.InitLogger(false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(newInfraEnv(logger))
	if err := root.ExecuteContext(ctx); err != nil {
		logger.ErrorContext(ctx, "command failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command failure to callers
	}
}
