package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-play/scraper"
)

func newQueryCmds() []*cobra.Command {
	return []*cobra.Command{
		{
			Use:   "details <app-id>",
			Short: "Print the details record of an application",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd)
				if err != nil {
					return err
				}
				rec, err := a.scraper.Details(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, rec)
			},
		},
		{
			Use:   "permissions <app-id>",
			Short: "Print the permissions of an application grouped by category",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd)
				if err != nil {
					return err
				}
				groups, err := a.scraper.Permissions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, groups)
			},
		},
		{
			Use:   "location",
			Short: "Print the storefront location and language",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(cmd)
				if err != nil {
					return err
				}
				location, language, err := a.scraper.Location(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]string{"location": location, "language": language})
			},
		},
		listCmd("search <term...>", "Search the storefront", cobra.MinimumNArgs(1),
			func(s *scraper.Scraper, cmd *cobra.Command, args []string) (*scraper.Pager, error) {
				return s.Search(strings.Join(args, " "))
			}),
		listCmd("similar <app-id>", "List applications similar to an application", cobra.ExactArgs(1),
			func(s *scraper.Scraper, cmd *cobra.Command, args []string) (*scraper.Pager, error) {
				return s.Similar(cmd.Context(), args[0])
			}),
		listCmd("developer <developer-id>", "List the applications of a developer", cobra.ExactArgs(1),
			func(s *scraper.Scraper, _ *cobra.Command, args []string) (*scraper.Pager, error) {
				return s.Developer(args[0])
			}),
		listCmd("collection <name>", "List a storefront collection", cobra.ExactArgs(1),
			func(s *scraper.Scraper, _ *cobra.Command, args []string) (*scraper.Pager, error) {
				return s.Collection(args[0])
			}),
		listCmd("category <name>", "List the recommended applications of a category", cobra.ExactArgs(1),
			func(s *scraper.Scraper, _ *cobra.Command, args []string) (*scraper.Pager, error) {
				return s.Category(args[0])
			}),
		listCmd("top <category> [collection]", "List a category collection (top by default)", cobra.RangeArgs(1, 2),
			func(s *scraper.Scraper, _ *cobra.Command, args []string) (*scraper.Pager, error) {
				collection := ""
				if len(args) == 2 {
					collection = args[1]
				}
				return s.FilteredCollection(args[0], collection)
			}),
	}
}

type pagerFunc func(s *scraper.Scraper, cmd *cobra.Command, args []string) (*scraper.Pager, error)

// listCmd builds a command that walks every page of a list query and prints
// either the list items or, with --ids, the bare identifiers.
func listCmd(use, short string, args cobra.PositionalArgs, open pagerFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			pager, err := open(a.scraper, cmd, args)
			if err != nil {
				return err
			}

			idsOnly, _ := cmd.Flags().GetBool("ids")
			if idsOnly {
				ids, err := pager.IDs(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			}

			items, err := pager.Items(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, items)
		},
	}
	cmd.Flags().Bool("ids", false, "Print one application identifier per line")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
