package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avockley/prewarm/internal/printer"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream prefetch activity in real time",
	Long: `Stream the daemon's prefetch lifecycle notices as they happen:
scheduled, completed, and failed, with the confidence that drove each one.

Press Ctrl-C to stop.

Examples:
  # Watch the inferred instance
  prewarm watch

  # Watch a specific instance
  prewarm watch --name prod --redis redis://prod-redis:6379`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newStoreClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	sub, err := client.SubscribePrefetchNotices(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	printer.Info("Watching prefetch activity for instance '%s' (Ctrl-C to stop)...\n", client.InstanceName())

	for {
		select {
		case <-ctx.Done():
			printer.Info("\nStopped.\n")
			return nil
		case notice, ok := <-sub.Notices():
			if !ok {
				return nil
			}
			printer.Notice(notice)
		}
	}
}
