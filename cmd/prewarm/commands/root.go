package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/avockley/prewarm/internal/printer"
	"github.com/avockley/prewarm/pkg/warmstore"
)

var (
	version string
	commit  string
	date    string

	rootRedisURL     string
	rootInstanceName string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "prewarm",
	Short: "Prewarm - predictive cache prefetching operator CLI",
	Long: `Prewarm inspects and drives a running prewarmd instance: the sidecar
daemon that learns navigation and data-access behavior and prefetches
data into the shared cache before it is requested.

All commands talk directly to the instance's Redis store.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootRedisURL, "redis", "r", "", "Redis URL of the target instance (defaults to REDIS_URL)")
	rootCmd.PersistentFlags().StringVarP(&rootInstanceName, "name", "n", "", "Target instance name (defaults to PREWARM_INSTANCE_NAME)")
}

// newStoreClient connects to the target instance's Redis store and verifies
// connectivity. Every subcommand starts here.
func newStoreClient(ctx context.Context) (*warmstore.Client, error) {
	redisURL := rootRedisURL
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	instanceName := rootInstanceName
	if instanceName == "" {
		instanceName = os.Getenv("PREWARM_INSTANCE_NAME")
	}

	if redisURL == "" || instanceName == "" {
		return nil, printer.Error(
			"no target instance",
			"Both a Redis URL and an instance name are required.",
			[]string{
				"Pass them explicitly:\n  prewarm --redis redis://localhost:6379 --name my-app <command>",
				"Or set REDIS_URL and PREWARM_INSTANCE_NAME in the environment.",
			},
		)
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client, err := warmstore.NewClient(redisOpts, instanceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create store client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.Error(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s: %v", redisURL, err),
			[]string{"Check that the instance's Redis container is running."},
		)
	}

	return client, nil
}
