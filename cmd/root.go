// Package cmd defines the crawlsearch CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawlsearch/internal/app"
	"github.com/JakeFAU/crawlsearch/internal/config"
	"github.com/JakeFAU/crawlsearch/internal/crawler"
	"github.com/JakeFAU/crawlsearch/internal/logging"
	"github.com/JakeFAU/crawlsearch/internal/query"
	"github.com/JakeFAU/crawlsearch/internal/store"
)

// App is the service surface the commands drive. Tests inject their own.
type App interface {
	Close()
	Serve(ctx context.Context) error
	Crawl(ctx context.Context, limit int) map[crawler.Outcome]int
	Migrate(ctx context.Context) (int, error)
	Reindex(ctx context.Context) (app.ReindexReport, error)
	Enqueue(ctx context.Context, rawURL string, tier int) error
	Search(ctx context.Context, text string) (query.Response, error)
	Store() store.Store
}

type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "crawlsearch",
		Short: "A polite web crawler with a built-in search index.",
		Long: `crawlsearch crawls enabled domains from a persistent frontier, indexes
the text it finds, and answers ranked free-text queries over HTTP or the CLI.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(
		newServeCmd(),
		newCrawlCmd(),
		newEnqueueCmd(),
		newDomainCmd(),
		newSearchCmd(),
		newMigrateCmd(),
		newReindexCmd(),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
