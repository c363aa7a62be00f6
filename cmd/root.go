// Package cmd defines the pagecrawl CLI: one subcommand per supported site,
// sharing the crawler flags bound to Viper.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagecrawl/internal/app"
	"github.com/JakeFAU/pagecrawl/internal/config"
	"github.com/JakeFAU/pagecrawl/internal/logging"
	"github.com/JakeFAU/pagecrawl/internal/sitekit"
)

// crawlFunc is the site-specific body of a subcommand.
type crawlFunc func(ctx context.Context, env *sitekit.Env) error

// runner builds the services and runs a crawl. It is a variable so tests can
// observe the resolved configuration without touching the network.
var runner = func(ctx context.Context, cfg config.Config, site string, crawl crawlFunc) error {
	logger, err := logging.New(logging.Config{
		Development:  cfg.Logging.Development,
		Level:        cfg.Logging.Level,
		Handler:      cfg.Logging.Handler,
		HandlerLevel: cfg.Logging.HandlerLevel,
	})
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	a, err := app.New(ctx, cfg, logger, site)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() { _ = a.Close() }()

	return finishCrawl(ctx, a.Logger(), a.Run(ctx, crawl))
}

// ErrInterrupted is returned when a signal cancelled the crawl. In-flight work
// has drained by the time it is returned.
var ErrInterrupted = errors.New("crawl interrupted")

// finishCrawl maps the result of a crawl to the command error. A cancelled
// crawl becomes ErrInterrupted even when every task finished cleanly.
func finishCrawl(ctx context.Context, logger *zap.Logger, err error) error {
	if errors.Is(err, context.Canceled) || (err == nil && ctx.Err() != nil) {
		logger.Warn("crawl interrupted")
		return ErrInterrupted
	}
	return err
}

// exitCode follows the shell convention of 128+SIGINT for interrupted runs.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInterrupted):
		return 130
	default:
		return 1
	}
}

type rootOptions struct {
	cfgFile string
	v       *viper.Viper
}

// run loads the configuration and hands off to runner.
func (o *rootOptions) run(cmd *cobra.Command, site string, crawl crawlFunc) error {
	cfg, err := config.Load(o.v, o.cfgFile)
	if err != nil {
		return err
	}
	return runner(cmd.Context(), cfg, site, crawl)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.NewViper()}
	cmd := &cobra.Command{
		Use:   "pagecrawl",
		Short: "Polite concurrent scrapers for paged listing sites.",
		Long: `pagecrawl walks numbered listing pages with a bounded number of pages in
flight, spaces requests per host, caches every page it fetches, and downloads
the files it finds in the background.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.StringP("outdir", "o", "", "directory for downloaded files")
	flags.StringP("dir", "d", "", "cache directory")
	flags.StringP("useragent", "u", "", "User-Agent header sent with every request")
	flags.StringSliceP("wait", "w", nil, "interval between requests to a host: `5`, `const 5` or `random 1 2.5`")
	flags.String("waitlist", "", "JSON file of per-host wait policies")
	flags.Int("queue-size", 0, "listing pages in flight at once")
	flags.String("cache", "", "cache backend: fs, memory, gcs or redis")
	flags.String("metrics-addr", "", "serve /metrics and health probes on this address")
	flags.String("log-level", "", "minimum log level")
	flags.String("handler", "", "command run for important log entries")
	bindFlags(opts.v, flags, map[string]string{
		"outdir":       "crawler.out_dir",
		"dir":          "crawler.cache_dir",
		"useragent":    "crawler.user_agent",
		"wait":         "crawler.wait",
		"waitlist":     "crawler.waitlist",
		"queue-size":   "crawler.queue_size",
		"cache":        "cache.backend",
		"metrics-addr": "metrics.addr",
		"log-level":    "logging.level",
		"handler":      "logging.handler",
	})

	cmd.AddCommand(
		newAnicobinCmd(opts),
		newNetkeibaCmd(opts),
		newWearCmd(opts),
	)
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the crawl; it
// stops admitting pages, waits for in-flight work to drain and exits with
// status 130.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pagecrawl: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}
