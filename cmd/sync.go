package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/s0up4200/tap-freshdesk/config"
	"github.com/s0up4200/tap-freshdesk/filter"
	"github.com/s0up4200/tap-freshdesk/freshdesk"
	"github.com/s0up4200/tap-freshdesk/tap"
)

var (
	streamNames []string
	statePath   string
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replicate the selected streams to stdout",
	Long: `Sync pages through every selected stream, writing RECORD messages to stdout
followed by a STATE message holding the new bookmarks. Bookmarks are loaded
from and saved to the configured state backend so the next run resumes where
this one stopped.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringSliceVarP(&streamNames, "streams", "s", nil, "streams to sync (default from config, or all)")
	syncCmd.Flags().StringVar(&statePath, "state", "", "state file, overrides state.path")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	names := streamNames
	if len(names) == 0 {
		names = cfg.Streams
	}
	sel, err := tap.Select(names)
	if err != nil {
		return err
	}

	filters, err := compileFilters(cfg.Filters)
	if err != nil {
		return err
	}

	stateCfg := cfg.State
	if statePath != "" {
		stateCfg.Backend = "file"
		stateCfg.Path = statePath
	}
	store, closeStore := openStateStore(stateCfg)
	defer closeStore()

	opts := []tap.RunnerOption{
		tap.WithPageSize(cfg.PageSize),
		tap.WithConcurrency(cfg.Concurrency),
		tap.WithFilters(filters),
	}
	if cfg.StartDate != "" {
		// validated on load
		start, _ := time.Parse(time.RFC3339, cfg.StartDate)
		opts = append(opts, tap.WithStartDate(start))
	}

	fdCfg := clientConfig(cfg.Freshdesk)

	// fail fast on a bad key before any stream starts
	if err := freshdesk.WithSession(ctx, fdCfg, logger, func(*freshdesk.Client) error { return nil }, clientOptions(cfg.RateLimit)...); err != nil {
		return err
	}

	factory := func(ctx context.Context) (tap.Client, error) {
		c, err := freshdesk.NewClient(fdCfg, logger, clientOptions(cfg.RateLimit)...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	runner := tap.NewRunner(factory, store, tap.NewEmitter(os.Stdout), logger, opts...)
	return runner.Run(ctx, sel)
}

// compileFilters compiles the per stream filter expressions
func compileFilters(exprs config.FilterConfig) (map[string]*filter.Filter, error) {
	compiler := filter.NewCompiler(filter.WithCache(len(exprs)))

	filters := make(map[string]*filter.Filter, len(exprs))
	for stream, expression := range exprs {
		if _, ok := tap.Lookup(stream); !ok {
			return nil, fmt.Errorf("filter for unknown stream %q", stream)
		}
		f, err := compiler.Compile(expression)
		if err != nil {
			return nil, fmt.Errorf("invalid filter for %s: %w", stream, err)
		}
		filters[stream] = f
	}
	return filters, nil
}

// openStateStore returns the configured bookmark store and a func releasing it
func openStateStore(sc config.StateConfig) (tap.StateStore, func()) {
	if sc.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		})
		return tap.NewRedisStore(rdb, sc.Redis.Key), func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close redis client")
			}
		}
	}
	return tap.NewFileStore(sc.Path), func() {}
}
