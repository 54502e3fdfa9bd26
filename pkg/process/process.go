// Package process is the common process harness every mantafront binary
// uses to wire logging and metrics before running its Service, and to
// bind its Config from flags and environment variables. No config file
// is read; SaveConfig only writes one.
package process

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"
)

// ErrLogger is the error class a Service's Process method should use for
// failures that deserve a logged stack, as opposed to a plain usage error.
var ErrLogger = errs.Class("process")

// Service is one independently runnable unit a binary's main wires up:
// the HTTP front end, the admin CLI, or (in principle) any future
// mantafront subcommand.
type Service interface {
	InstanceID() string
	Process(ctx context.Context, cmd *cobra.Command, args []string) error
	SetLogger(*zap.Logger) error
	SetMetricHandler(*monkit.Registry) error
}

// Main wires every service's logger and metric registry, then runs each
// Process call in turn, returning the first error encountered.
func Main(loggerFactory func() error, services ...Service) error {
	if loggerFactory != nil {
		if err := loggerFactory(); err != nil {
			return err
		}
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	registry := monkit.Default

	for _, svc := range services {
		if err := svc.SetLogger(log); err != nil {
			return err
		}
		if err := svc.SetMetricHandler(registry); err != nil {
			return err
		}
		if err := svc.Process(context.Background(), &cobra.Command{}, nil); err != nil {
			return err
		}
	}
	return nil
}
