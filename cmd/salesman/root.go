package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	salesman "github.com/cloudxsgmbh/salesman-go"
	"github.com/cloudxsgmbh/salesman-go/internal/sforce"
)

var (
	envFile       string
	timeout       time.Duration
	verbose       bool
	describeCache string
	describeTTL   time.Duration
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "salesman",
		Short: "Inspect schemas and query Salesforce objects",
		Long: `salesman works with schema files and the Salesforce record API.

Credentials are read from SALESMAN_* variables, optionally loaded from a .env file.

Examples:

  salesman schema lead.yaml
  salesman describe Lead
  salesman find lead.yaml --select "id contact.*" --limit 10
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "Environment file with SALESMAN_* settings")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 60*time.Second, "Timeout for remote calls")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log trace output")
	root.PersistentFlags().StringVar(&describeCache, "describe-cache", "", "Redis URL for caching describes between runs (redis://host:6379/0)")
	root.PersistentFlags().DurationVar(&describeTTL, "describe-ttl", 24*time.Hour, "Lifetime of cached describes, 0 keeps them")

	root.AddCommand(newSchemaCmd())
	root.AddCommand(newDescribeCmd())
	root.AddCommand(newFindCmd())
	return root
}

// Execute runs the CLI
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

// connect loads the configuration and logs in.
func connect(ctx context.Context, opts salesman.Options) (*salesman.Salesman, error) {
	cfg, err := salesman.LoadConfig(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts.Verbose = verbose
	if opts.DescribeStore == nil && describeCache != "" {
		store, err := redisStore(describeCache, describeTTL)
		if err != nil {
			return nil, err
		}
		opts.DescribeStore = store
	}
	sm := salesman.New(opts)
	conn := salesman.NewConnection(sforce.LoginFunc(sforce.FromConnectionConfig(cfg)), cfg.MaxConnectionTime)
	if err := sm.Connect(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return sm, nil
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// redisStore builds a describe store from a redis:// URL.
func redisStore(url string, ttl time.Duration) (*salesman.RedisDescribeStore, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid --describe-cache: %w", err)
	}
	return salesman.NewRedisDescribeStore(redis.NewClient(options), "", ttl), nil
}
