package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/avockley/prewarm/internal/printer"
	"github.com/avockley/prewarm/pkg/warmstore"
)

var replayDelayMs int64

var replayCmd = &cobra.Command{
	Use:   "replay EVENTS_FILE",
	Short: "Publish recorded behavior events to a running daemon",
	Long: `Publish a recorded stream of behavior events to the target instance,
one JSON object per line. Use this to warm a fresh daemon from captured
traffic or to reproduce a behavior sequence while debugging predictions.

Each line has a kind and an event body:
  {"kind": "route",       "event": {"from_route": "/products", "to_route": "/coverage", "time_spent_ms": 4200}}
  {"kind": "access",      "event": {"category": "products", "identifier": "prod-123"}}
  {"kind": "interaction", "event": {"type": "click", "identifier": "pricing-tab", "prefetch_targets": [...]}}

Missing event IDs are generated. Interaction lines are forwarded as-is so
the daemon applies its own payload validation.

Examples:
  # Replay a captured session at full speed
  prewarm replay session.jsonl --delay 0

  # Replay with 100ms pacing to watch predictions evolve
  prewarm replay session.jsonl --delay 100`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

// replayLine is one line of the events file.
type replayLine struct {
	Kind  string          `json:"kind"`
	Event json.RawMessage `json:"event"`
}

func init() {
	replayCmd.Flags().Int64Var(&replayDelayMs, "delay", 100, "Milliseconds to wait between events (0 for full speed)")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open events file: %w", err)
	}
	defer file.Close()

	client, err := newStoreClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	published := 0
	skipped := 0
	lineNo := 0

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if err := publishReplayLine(ctx, client, line); err != nil {
			printer.Warning("Line %d skipped: %v\n", lineNo, err)
			skipped++
			continue
		}
		published++

		if replayDelayMs > 0 {
			time.Sleep(time.Duration(replayDelayMs) * time.Millisecond)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events file: %w", err)
	}

	printer.Success("Replayed %d events (%d skipped) to instance '%s'.\n", published, skipped, client.InstanceName())
	return nil
}

func publishReplayLine(ctx context.Context, client *warmstore.Client, raw []byte) error {
	var line replayLine
	if err := json.Unmarshal(raw, &line); err != nil {
		return fmt.Errorf("not a valid event line: %w", err)
	}

	switch line.Kind {
	case "route":
		var event warmstore.RouteEvent
		if err := json.Unmarshal(line.Event, &event); err != nil {
			return fmt.Errorf("invalid route event: %w", err)
		}
		if event.ID == "" {
			event.ID = uuid.New().String()
		}
		return client.PublishRouteEvent(ctx, &event)

	case "access":
		var event warmstore.AccessEvent
		if err := json.Unmarshal(line.Event, &event); err != nil {
			return fmt.Errorf("invalid access event: %w", err)
		}
		if event.ID == "" {
			event.ID = uuid.New().String()
		}
		return client.PublishAccessEvent(ctx, &event)

	case "interaction":
		// Forwarded raw; the daemon owns interaction payload validation
		return client.PublishInteractionPayload(ctx, line.Event)

	default:
		return fmt.Errorf("unknown event kind %q", line.Kind)
	}
}
