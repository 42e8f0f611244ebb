package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/avockley/prewarm/internal/config"
	"github.com/avockley/prewarm/internal/persist"
	"github.com/avockley/prewarm/internal/printer"
	"github.com/avockley/prewarm/internal/tracker"
)

var (
	statsOutputFormat string
	statsTopN         int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learned behavior statistics",
	Long: `Show the behavior statistics the daemon has persisted: route
transitions, data-access patterns, and interaction stats, ranked by
observation count.

The command reads the instance's durable snapshot, so it reflects the
state as of the daemon's last write-through, not the live in-memory maps.

Output Formats:
  default - Human-readable tables
  json    - The full snapshot as pretty-printed JSON

Examples:
  # Show the top patterns for the inferred instance
  prewarm stats

  # Full snapshot for scripting
  prewarm stats --output=json | jq '.state.route_transitions'`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVarP(&statsOutputFormat, "output", "o", "default", "Output format: default or json")
	statsCmd.Flags().IntVar(&statsTopN, "top", 10, "Rows to show per table")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := newStoreClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	store := persist.New(client, time.Duration(config.DefaultMaxPatternAgeMs)*time.Millisecond)
	snap, err := store.Inspect(ctx)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if snap == nil || snap.State == nil {
		printer.Warning("No behavior snapshot found for this instance.\n")
		printer.Info("The daemon writes one after its first observed event.\n")
		return nil
	}

	if statsOutputFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(snap)
	}
	if statsOutputFormat != "default" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", statsOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	printSnapshotTables(snap)
	return nil
}

func printSnapshotTables(snap *persist.Snapshot) {
	age := time.Since(snap.SavedAt).Round(time.Second)
	printer.Info("Snapshot saved %s (%s ago)\n", snap.SavedAt.Format(time.RFC3339), age)
	if age > time.Duration(config.DefaultMaxPatternAgeMs)*time.Millisecond {
		printer.Warning("Snapshot is older than the pattern age cutoff; the daemon will start cold from it.\n")
	}
	printer.Println()

	state := snap.State

	if len(state.Transitions) > 0 {
		printer.Println("Route transitions:")
		table := newStatsTable("FROM", "TO", "COUNT", "CONFIDENCE", "AVG TIME")
		for _, tr := range topTransitions(state.Transitions, statsTopN) {
			avg := time.Duration(tr.TotalTimeMs/int64(tr.Count)) * time.Millisecond
			table.Append([]string{
				tr.From,
				tr.To,
				fmt.Sprintf("%d", tr.Count),
				fmt.Sprintf("%.2f", tr.Confidence),
				avg.String(),
			})
		}
		table.Render()
		printer.Println()
	}

	if len(state.Patterns) > 0 {
		printer.Println("Data-access patterns:")
		table := newStatsTable("KEY", "ACCESSES", "RECENT", "RELATED KEYS", "LAST ACCESS")
		for _, p := range topPatterns(state.Patterns, statsTopN) {
			table.Append([]string{
				tracker.PatternKey(p.Category, p.Identifier),
				fmt.Sprintf("%d", p.AccessCount),
				fmt.Sprintf("%d", len(p.AccessTimes)),
				fmt.Sprintf("%d", len(p.RelatedAccesses)),
				p.LastAccess.Format(time.RFC3339),
			})
		}
		table.Render()
		printer.Println()
	}

	if len(state.Interactions) > 0 {
		printer.Println("Interactions:")
		table := newStatsTable("TYPE", "IDENTIFIER", "COUNT", "PREFETCH TARGETS")
		for _, stat := range topInteractions(state.Interactions, statsTopN) {
			table.Append([]string{
				stat.Type,
				stat.Identifier,
				fmt.Sprintf("%d", stat.Count),
				fmt.Sprintf("%d", len(stat.PrefetchTargets)),
			})
		}
		table.Render()
		printer.Println()
	}

	printer.Info("Totals: %d transitions, %d patterns, %d interactions\n",
		len(state.Transitions), len(state.Patterns), len(state.Interactions))
}

func newStatsTable(headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

func topTransitions(m map[string]*tracker.RouteTransition, n int) []*tracker.RouteTransition {
	out := make([]*tracker.RouteTransition, 0, len(m))
	for _, tr := range m {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].From+out[i].To < out[j].From+out[j].To
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func topPatterns(m map[string]*tracker.AccessPattern, n int) []*tracker.AccessPattern {
	out := make([]*tracker.AccessPattern, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccessCount != out[j].AccessCount {
			return out[i].AccessCount > out[j].AccessCount
		}
		return out[i].Category+out[i].Identifier < out[j].Category+out[j].Identifier
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func topInteractions(m map[string]*tracker.InteractionStat, n int) []*tracker.InteractionStat {
	out := make([]*tracker.InteractionStat, 0, len(m))
	for _, stat := range m {
		out = append(out, stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type+out[i].Identifier < out[j].Type+out[j].Identifier
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
