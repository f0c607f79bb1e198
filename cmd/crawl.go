package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawlsearch/internal/crawler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the crawl scheduler and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return appInstance.Serve(cmd.Context())
		},
	}
}

func newCrawlCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl until the frontier has nothing claimable",
		Long: `Runs crawl attempts one after another until no frontier entry can be
claimed or --limit attempts have run, then prints a count per outcome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			counts := appInstance.Crawl(cmd.Context(), limit)
			outcomes := make([]crawler.Outcome, 0, len(counts))
			for o := range counts {
				outcomes = append(outcomes, o)
			}
			slices.Sort(outcomes)
			for _, o := range outcomes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", o, counts[o])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum attempts (0 = until idle)")
	return cmd
}

func newEnqueueCmd() *cobra.Command {
	var tier int
	cmd := &cobra.Command{
		Use:   "enqueue URL...",
		Short: "Seed URLs into the frontier",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			for _, raw := range args {
				if err := appInstance.Enqueue(cmd.Context(), raw, tier); err != nil {
					return fmt.Errorf("enqueue %s: %w", raw, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", raw)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&tier, "tier", 0, "tier for domains created by these URLs")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			applied, err := appInstance.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Re-extract and re-index every stored page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.Reindex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d, skipped %d\n", report.Indexed, report.Skipped)
			return nil
		},
	}
}
