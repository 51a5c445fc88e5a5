package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvimport/internal/core"
)

func newTablesCmd() *cobra.Command {
	var (
		jsonOut bool
		group   string
	)

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the importable tables and their CSV columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groups := core.Groups()
			if group != "" {
				groups = []string{group}
			}

			tables := make([]core.TableInfo, 0, core.TableCount())
			for _, g := range groups {
				for _, def := range core.ByGroup(g) {
					tables = append(tables, def.Info)
				}
			}
			if group != "" && len(tables) == 0 {
				return withCode(exitFatal, fmt.Errorf("no tables in group %q", group))
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(tables)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tGROUP\tTABLE\tCOLUMNS")
			for _, t := range tables {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Key, t.Group, t.Table, strings.Join(t.Columns, ","))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	cmd.Flags().StringVar(&group, "group", "", "Only list tables in this group")
	return cmd
}
