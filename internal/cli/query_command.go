package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/githubnext/ace/internal/changespec"
	"github.com/githubnext/ace/internal/console"
	"github.com/githubnext/ace/internal/query"
	"github.com/githubnext/ace/internal/savedqueries"
)

// NewQueryCommand builds the standalone query CLI (spec.md §4.8's
// filter DSL exercised outside the TUI, useful for scripting): it
// parses every *.gp file under --projects-dir and prints the name of
// each ChangeSpec the query expression matches, one per line.
func NewQueryCommand() *cobra.Command {
	var (
		projectsDir string
		save        string
	)

	cmd := &cobra.Command{
		Use:   "ace-query <query-expression | @slot>",
		Short: "Evaluate a saved-query DSL expression against project files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queryText, err := resolveQueryArg(args[0])
			if err != nil {
				return err
			}

			expr, err := query.ParseQuery(queryText)
			if err != nil {
				return fmt.Errorf("parsing query: %w", err)
			}

			paths, err := findProjectFiles(projectsDir)
			if err != nil {
				return fmt.Errorf("finding project files: %w", err)
			}

			for _, path := range paths {
				data, err := os.ReadFile(path)
				if err != nil {
					fmt.Fprintln(os.Stderr, console.FormatWarningMessage(fmt.Sprintf("reading %s: %v", path, err)))
					continue
				}
				set := changespec.Parse(path, data)
				for _, cs := range set.Specs {
					if query.Evaluate(expr, cs, set) {
						fmt.Println(cs.Name)
					}
				}
			}

			if save != "" {
				store, err := savedqueries.New()
				if err != nil {
					return fmt.Errorf("resolving saved-queries path: %w", err)
				}
				if err := store.Set(save, query.ToCanonicalString(expr)); err != nil {
					return fmt.Errorf("saving query to slot %s: %w", save, err)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&projectsDir, "projects-dir", defaultProjectsDir(), "Directory containing project (.gp) files")
	cmd.Flags().StringVar(&save, "save", "", "Save the canonical form of this query to the given slot (1-9, 0)")

	return cmd
}

// resolveQueryArg treats a "@slot" argument as a saved-query lookup
// and anything else as a literal query expression.
func resolveQueryArg(arg string) (string, error) {
	if !strings.HasPrefix(arg, "@") {
		return arg, nil
	}
	slot := strings.TrimPrefix(arg, "@")
	store, err := savedqueries.New()
	if err != nil {
		return "", fmt.Errorf("resolving saved-queries path: %w", err)
	}
	saved, ok := store.Get(slot)
	if !ok {
		return "", fmt.Errorf("no saved query in slot %s", slot)
	}
	return saved, nil
}

func findProjectFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".gp") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}
