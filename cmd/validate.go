package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/conneroisu/wisp/internal/component"
	"github.com/conneroisu/wisp/internal/config"
	"github.com/conneroisu/wisp/internal/dom"
	"github.com/conneroisu/wisp/internal/errors"
	"github.com/conneroisu/wisp/internal/loader"
)

var validateFlags *StandardFlags

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:   "validate [PATH...]",
	Short: "Validate component definitions and their templates",
	Long: `Validate loads every component definition under the given paths (the
configured scan paths by default) and mounts each one in a scratch document.
This reports:

- YAML and definition errors (unknown keys, bad actions)
- Template syntax errors with line numbers
- Expression and include errors found by the first render

Examples:
  wisp validate                    # Validate the configured scan paths
  wisp validate components/card.wisp.yml
  wisp validate -o json            # Output diagnostics as JSON`,
	RunE: runValidateCommand,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateFlags = AddStandardFlags(validateCmd, "output")
}

func runValidateCommand(cmd *cobra.Command, args []string) error {
	if err := validateFlags.ValidateFlags(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = cfg.Components.ScanPaths
	}
	files, err := definitionFiles(paths, cfg.Components.ExcludePatterns)
	if err != nil {
		return err
	}

	progress := newProgress(cmd.ErrOrStderr(), len(files), validateFlags.Quiet)
	collector := validateFiles(cmd.Context(), cfg, files, progress)

	out := cmd.OutOrStdout()
	if validateFlags.OutputFormat == "json" {
		if err := writeDiagnosticsJSON(out, files, collector); err != nil {
			return err
		}
	} else if !validateFlags.Quiet {
		writeDiagnosticsTable(out, files, collector)
	}

	if n := collector.Len(); n > 0 {
		return fmt.Errorf("%d of %d component files are invalid", len(invalidFiles(collector)), len(files))
	}
	return nil
}

// definitionFiles expands paths into definition files. Directories are
// walked; files are taken as given.
func definitionFiles(paths, excludes []string) ([]string, error) {
	var files []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if loader.IsDefinitionFile(path) && !matchesAny(path, excludes) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func matchesAny(path string, patterns []string) bool {
	slashed := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return true
		}
	}
	return false
}

// validateFiles loads and test-mounts each file, collecting one diagnostic
// per failure.
func validateFiles(ctx context.Context, cfg *config.Config, files []string, progress reporter) *errors.ErrorCollector {
	if ctx == nil {
		ctx = context.Background()
	}
	collector := errors.NewErrorCollector()
	progress.Start(len(files))
	for i, file := range files {
		progress.Update(i+1, file)
		if err := validateFile(ctx, cfg, file); err != nil {
			d := errors.DiagnosticFromError(err, errors.ErrorSeverityError)
			if d.File == "" {
				d.File = file
			}
			collector.Add(d)
		}
	}
	progress.Finish()
	return collector
}

func validateFile(ctx context.Context, cfg *config.Config, file string) error {
	def, err := loader.Load(file)
	if err != nil {
		return err
	}

	reg := component.NewRegistry()
	if err := loader.Register(reg, []*loader.Definition{def}, false); err != nil {
		return err
	}
	doc := dom.NewDocument()
	rt := component.NewRuntime(doc, runtimeOptions(ctx, cfg, reg)...)
	defer rt.Close()

	_, err = rt.Mount(doc.Body(), strings.ToLower(def.Tag), nil)
	return err
}

func invalidFiles(c *errors.ErrorCollector) map[string]bool {
	files := make(map[string]bool)
	for _, d := range c.Diagnostics() {
		files[d.File] = true
	}
	return files
}

func writeDiagnosticsTable(out io.Writer, files []string, c *errors.ErrorCollector) {
	if c.Len() == 0 {
		fmt.Fprintf(out, "All %d component files are valid\n", len(files))
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tLINE\tCODE\tMESSAGE")
	for _, d := range c.Sorted() {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", d.File, d.Line, d.Code, d.Message)
	}
	_ = w.Flush()
}

func writeDiagnosticsJSON(out io.Writer, files []string, c *errors.ErrorCollector) error {
	type diagnostic struct {
		File      string `json:"file"`
		Line      int    `json:"line"`
		Column    int    `json:"column"`
		Component string `json:"component,omitempty"`
		Code      string `json:"code,omitempty"`
		Message   string `json:"message"`
	}
	report := struct {
		Files       int          `json:"files"`
		Valid       bool         `json:"valid"`
		Diagnostics []diagnostic `json:"diagnostics"`
	}{Files: len(files), Valid: c.Len() == 0, Diagnostics: []diagnostic{}}

	for _, d := range c.Sorted() {
		report.Diagnostics = append(report.Diagnostics, diagnostic{
			File: d.File, Line: d.Line, Column: d.Column,
			Component: d.Component, Code: d.Code, Message: d.Message,
		})
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// reporter provides progress feedback while validating.
type reporter interface {
	Start(total int)
	Update(current int, message string)
	Finish()
}

// newProgress shows a progress bar on a terminal and nothing elsewhere.
func newProgress(w io.Writer, total int, quiet bool) reporter {
	f, ok := w.(*os.File)
	if quiet || total < 2 || !ok || !isatty.IsTerminal(f.Fd()) {
		return nopReporter{}
	}
	return &barReporter{out: w}
}

type nopReporter struct{}

func (nopReporter) Start(int)          {}
func (nopReporter) Update(int, string) {}
func (nopReporter) Finish()            {}

type barReporter struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func (r *barReporter) Start(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription("Validating"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *barReporter) Update(current int, message string) {
	if r.bar != nil {
		r.bar.Describe(filepath.Base(message))
		_ = r.bar.Set(current)
	}
}

func (r *barReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}
