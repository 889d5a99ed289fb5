package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"

	"github.com/odvcencio/visualdocs-collab/api"
	"github.com/odvcencio/visualdocs-collab/config"
	"github.com/odvcencio/visualdocs-collab/grammars"
	"github.com/odvcencio/visualdocs-collab/logging"
	"github.com/odvcencio/visualdocs-collab/retry"
	"github.com/odvcencio/visualdocs-collab/symbols"
	"github.com/odvcencio/visualdocs-collab/tree"
)

func newTreeCommand(o *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tree [dir]",
		Short: "Print a project tree, from the API or a local directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var records []tree.FileRecord
			switch {
			case len(args) == 1:
				recs, err := tree.CollectRecords(args[0])
				if err != nil {
					return err
				}
				records = recs
			default:
				if o.cfg.ProjectID == "" {
					return errors.New("pass a directory or --project")
				}
				p, err := newAPIClient(o.cfg).GetProject(cmd.Context(), o.cfg.ProjectID)
				if err != nil {
					return err
				}
				records = p.Files
			}

			forest := tree.Build(records)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(forest)
			}
			printTree(cmd.OutOrStdout(), forest)
			return nil
		},
	}
	cmd.Flags().String("project", "", "project id to fetch")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the tree as JSON")
	return cmd
}

func printTree(w io.Writer, forest []*tree.FileNode) {
	for _, n := range tree.Flatten(forest) {
		indent := strings.Repeat("  ", strings.Count(n.Path, "/"))
		if n.IsFolder() {
			fmt.Fprintf(w, "%s%s/\n", indent, n.Name)
			continue
		}
		fmt.Fprintf(w, "%s%s\n", indent, n.Name)
	}
}

func newSymbolsCommand(o *globalOptions) *cobra.Command {
	var (
		language string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "symbols <file>",
		Short: "List the symbols of a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, "read %s", args[0])
			}
			if language == "" {
				language = grammars.LanguageFor(args[0])
			}
			syms := symbols.Extract(string(data), language)
			if asJSON {
				if syms == nil {
					syms = []symbols.Symbol{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(syms)
			}
			printSymbols(cmd.OutOrStdout(), syms)
			return nil
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "language id (default: from the file extension)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print symbols as JSON")
	return cmd
}

func printSymbols(w io.Writer, syms []symbols.Symbol) {
	for _, s := range syms {
		fmt.Fprintf(w, "%5d  %-9s %s\n", s.Line, s.Kind, s.Name)
	}
}

func newAPIClient(cfg *config.Config) *api.Client {
	attempts := cfg.API.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	rc := retry.DefaultConfig()
	rc.MaxAttempts = attempts
	return api.New(api.Config{
		BaseURL: cfg.API.URL,
		Token:   cfg.Token,
		Timeout: cfg.API.Timeout,
		Retry:   rc,
		Logger:  logging.Named("api"),
	})
}
