package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/avockley/prewarm/internal/config"
	"github.com/avockley/prewarm/internal/engine"
	"github.com/avockley/prewarm/internal/fetcher"
	"github.com/avockley/prewarm/pkg/warmstore"
)

func main() {
	// 1. Load configuration (path overridable for non-default deployments)
	configPath := os.Getenv("PREWARM_CONFIG")
	if configPath == "" {
		configPath = "prewarm.yml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load %s: %v\n", configPath, err)
		os.Exit(1)
	}

	// 2. Environment overrides for container deployments
	instanceName := os.Getenv("PREWARM_INSTANCE_NAME")
	if instanceName == "" {
		instanceName = cfg.Instance
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = cfg.RedisURL
	}

	if instanceName == "" || redisURL == "" {
		fmt.Fprintf(os.Stderr, "Error: instance name and Redis URL must be set (prewarm.yml or PREWARM_INSTANCE_NAME/REDIS_URL)\n")
		os.Exit(1)
	}

	// 3. Parse Redis URL
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid Redis URL: %v\n", err)
		os.Exit(1)
	}

	// 4. Create store client
	client, err := warmstore.NewClient(redisOpts, instanceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create store client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	// 5. Verify Redis connectivity
	ctx := context.Background()
	if err := client.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Redis not accessible: %v\n", err)
		os.Exit(1)
	}

	// 6. Build the data fetcher from config
	if cfg.Fetcher.BaseURL == "" {
		fmt.Fprintf(os.Stderr, "Error: fetcher.base_url must be set in %s\n", configPath)
		os.Exit(1)
	}
	httpFetcher := fetcher.NewHTTPFetcher(cfg.Fetcher.BaseURL, cfg.FetcherEndpoints(), cfg.FetchTimeout())

	fmt.Printf("prewarmd starting for instance '%s' against %s\n", instanceName, cfg.Fetcher.BaseURL)

	// 7. Create the engine
	eng := engine.New(client, cfg, httpFetcher)

	// 8. Setup graceful shutdown
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	// 9. Start engine in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- eng.Run(runCtx)
	}()

	// 10. Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		fmt.Printf("Received signal %v, shutting down gracefully...\n", sig)
		cancel()
		<-errCh
	case runErr := <-errCh:
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Engine error: %v\n", runErr)
			os.Exit(1)
		}
	}

	fmt.Println("prewarmd stopped")
}
