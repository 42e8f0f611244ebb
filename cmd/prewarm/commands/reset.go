package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avockley/prewarm/internal/printer"
	"github.com/avockley/prewarm/pkg/warmstore"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the instance's learned behavior snapshot",
	Long: `Delete the durable behavior snapshot for the target instance.

A running daemon keeps its in-memory statistics until it restarts (or
writes them back on its next observed event). For a full reset, stop the
daemon first, run this command, then start it again: it will come up
cold and relearn from live traffic.

Examples:
  # Reset with confirmation prompt
  prewarm reset

  # Reset without prompting (for scripts)
  prewarm reset --force`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := newStoreClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.SnapshotGet(ctx); err != nil {
		if warmstore.IsNotFound(err) {
			printer.Info("No snapshot to delete; instance is already cold.\n")
			return nil
		}
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	if !resetForce {
		printer.Warning("This deletes all learned behavior for instance '%s'.\n", client.InstanceName())
		printer.Info("Continue? [y/N]: ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			printer.Info("Aborted.\n")
			return nil
		}
	}

	if err := client.SnapshotDelete(ctx); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	printer.Success("Behavior snapshot deleted for instance '%s'.\n", client.InstanceName())
	printer.Warning("A running daemon still holds its in-memory statistics; restart it for a cold start.\n")
	return nil
}
