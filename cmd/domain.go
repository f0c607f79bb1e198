package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawlsearch/internal/store"
)

func newDomainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domain",
		Short: "Inspect and manage crawlable domains",
	}
	cmd.AddCommand(newDomainListCmd(), newDomainSetCmd())
	return cmd
}

func newDomainListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			domains, err := appInstance.Store().ListDomains(cmd.Context())
			if err != nil {
				return fmt.Errorf("list domains: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HOST\tENABLED\tTIER\tROBOTS")
			for _, d := range domains {
				fmt.Fprintf(tw, "%s\t%t\t%d\t%s\n", d.Hostname, d.Enabled, d.Tier, robotsStatus(d))
			}
			return tw.Flush()
		},
	}
}

func robotsStatus(d store.Domain) string {
	switch {
	case d.RobotsPolicy == nil:
		return "unchecked"
	case *d.RobotsPolicy == store.NoRobotsPolicy:
		return "none"
	default:
		return "found"
	}
}

func newDomainSetCmd() *cobra.Command {
	var (
		enabled bool
		tier    int
	)
	cmd := &cobra.Command{
		Use:   "set HOST",
		Short: "Enable or disable a domain and set its tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			host := strings.ToLower(args[0])
			current, err := appInstance.Store().GetDomainByHost(cmd.Context(), host)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("unknown domain %s; enqueue one of its URLs first", host)
			}
			if err != nil {
				return fmt.Errorf("load domain %s: %w", host, err)
			}
			if cmd.Flags().Changed("enabled") {
				current.Enabled = enabled
			}
			if cmd.Flags().Changed("tier") {
				if tier < 0 {
					return fmt.Errorf("tier must be >= 0")
				}
				current.Tier = tier
			}
			if err := appInstance.Store().UpdateDomain(cmd.Context(), host, current.Enabled, current.Tier); err != nil {
				return fmt.Errorf("update domain %s: %w", host, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%t tier=%d\n", host, current.Enabled, current.Tier)
			return nil
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", false, "allow crawling this domain")
	cmd.Flags().IntVar(&tier, "tier", 0, "crawl tier")
	return cmd
}
