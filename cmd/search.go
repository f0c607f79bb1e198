package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY...",
		Short: "Rank indexed pages against a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := appInstance.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			out := cmd.OutOrStdout()
			for i, r := range resp.Results {
				fmt.Fprintf(out, "%d. %s (%.4f)\n   %s\n", i+1, r.Title, r.Score, r.URL)
				if r.Snippet != "" {
					fmt.Fprintf(out, "   %s\n", r.Snippet)
				}
			}
			fmt.Fprintf(out, "%d result(s) in %s\n", len(resp.Results), resp.Elapsed)
			return nil
		},
	}
}
