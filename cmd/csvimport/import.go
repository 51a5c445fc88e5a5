package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvimport/internal/core"
)

type importOptions struct {
	validateOnly bool
	set          []string
	jsonOut      bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <table> <file>",
		Short: "Import a CSV file into a table",
		Long: `Import a CSV file into a table. Use "-" as the file to read stdin.

Exit status is 0 when every row was imported, 1 when rows were rejected
(nothing is saved), and 2 on any other error.`,
		Example: `  csvimport import contacts contacts.csv
  csvimport import products items.csv --set source=erp --validate-only`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.validateOnly, "validate-only", false, "Validate rows without saving anything")
	cmd.Flags().StringArrayVar(&opts.set, "set", nil, "Constant column value applied to every row (column=value, repeatable)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output the result in JSON format")
	return cmd
}

func runImport(cmd *cobra.Command, table, path string, opts importOptions) error {
	extra, err := parseSet(opts.set)
	if err != nil {
		return withCode(exitFatal, err)
	}
	if _, ok := core.Get(table); !ok {
		return withCode(exitFatal, fmt.Errorf("%w: %q (see 'csvimport tables')", core.ErrUnknownTable, table))
	}

	cfg, err := loadConfig(stderr)
	if err != nil {
		return err
	}

	var (
		in   io.Reader = cmd.InOrStdin()
		size int64
	)
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return withCode(exitFatal, err)
		}
		defer f.Close()
		if st, err := f.Stat(); err == nil {
			size = st.Size()
		}
		in = f
	}

	ctx := cmd.Context()
	svc, closeFn, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	out, err := svc.Import(ctx, table, in, core.ImportRequest{
		Extra:        extra,
		ValidateOnly: opts.validateOnly,
		SizeHint:     size,
	})
	if err != nil {
		if core.IsUserFacing(err) {
			err = fmt.Errorf("%s: %w", core.FormatUserError(err), err)
		}
		return withCode(exitFatal, err)
	}

	if err := printOutcome(cmd.OutOrStdout(), out, opts.jsonOut); err != nil {
		return withCode(exitFatal, err)
	}
	if !out.Result.Succeeded() {
		return withCode(exitRowErrors, errors.New("rows rejected"))
	}
	return nil
}

func printOutcome(w io.Writer, out core.ImportOutcome, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	verb := "imported"
	if out.ValidateOnly {
		verb = "validated"
	}
	if out.Result.Succeeded() {
		_, err := fmt.Fprintf(w, "%s: %s successfully (import %s, %s)\n", out.Table, verb, out.ID, out.Duration.Round(time.Millisecond))
		return err
	}

	fmt.Fprintf(w, "%s: %d error(s), nothing saved (import %s)\n", out.Table, out.Result.ErrorCount(), out.ID)
	for _, e := range out.Result.Errors() {
		fmt.Fprintf(w, "  %s\n", e)
	}
	return nil
}

// parseSet turns column=value flags into extra column values.
func parseSet(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	extra := make(map[string]any, len(pairs))
	for _, p := range pairs {
		col, val, ok := strings.Cut(p, "=")
		col = strings.TrimSpace(col)
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid --set %q: want column=value", p)
		}
		extra[col] = val
	}
	return extra, nil
}
