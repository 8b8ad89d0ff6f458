package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/wisp/internal/loader"
)

var listCmd = &cobra.Command{
	Use:     "list [PATH...]",
	Aliases: []string{"l"},
	Short:   "List component definitions",
	Long: `List the component definitions found under the given paths (the
configured scan paths by default) with their tags, methods and files.

Examples:
  wisp list                    # Table of every definition
  wisp list -o json            # Output as JSON
  wisp list components/forms   # Only one directory`,
	RunE: runList,
}

var listFlags *StandardFlags

func init() {
	rootCmd.AddCommand(listCmd)
	listFlags = AddStandardFlags(listCmd, "output")
}

type listEntry struct {
	Tag      string   `json:"tag"`
	Shadow   bool     `json:"shadow"`
	Methods  []string `json:"methods"`
	Partials []string `json:"partials"`
	File     string   `json:"file"`
}

func runList(cmd *cobra.Command, args []string) error {
	if err := listFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = cfg.Components.ScanPaths
	}
	defs, err := loader.Scan(paths, cfg.Components.ExcludePatterns)
	if err != nil {
		return err
	}

	entries := make([]listEntry, 0, len(defs))
	for _, def := range defs {
		entries = append(entries, listEntry{
			Tag:      strings.ToLower(def.Tag),
			Shadow:   def.Shadow,
			Methods:  sortedKeys(def.Methods),
			Partials: sortedKeys(def.Partials),
			File:     def.Path,
		})
	}

	out := cmd.OutOrStdout()
	if listFlags.OutputFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No components found.")
		return nil
	}
	outputTable(out, entries)
	return nil
}

func outputTable(out io.Writer, entries []listEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tSHADOW\tMETHODS\tFILE")
	for _, e := range entries {
		methods := strings.Join(e.Methods, ",")
		if methods == "" {
			methods = "-"
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", e.Tag, e.Shadow, methods, e.File)
	}
	_ = w.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
