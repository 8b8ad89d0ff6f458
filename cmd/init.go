package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/wisp/internal/validation"
)

var initCmd = &cobra.Command{
	Use:     "init [DIR]",
	Aliases: []string{"i"},
	Short:   "Create a wisp configuration and a sample component",
	Long: `Initialize a wisp project: write .wisp.yml, create the component directory
and, unless --minimal is given, a sample click-counter component.

Examples:
  wisp init                 # Initialize the current directory
  wisp init my-project      # Initialize a new directory
  wisp init --wizard        # Answer a few questions first
  wisp init --minimal       # Configuration only`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initMinimal bool
	initWizard  bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initMinimal, "minimal", false, "Configuration only, no sample component")
	initCmd.Flags().BoolVar(&initWizard, "wizard", false, "Run the configuration wizard")
}

// projectOptions are the answers init writes into .wisp.yml.
type projectOptions struct {
	Port      int
	ScanPath  string
	APIBase   string
	LogFormat string
	Example   bool
}

func defaultProjectOptions() projectOptions {
	return projectOptions{
		Port:      8080,
		ScanPath:  "./components",
		LogFormat: "text",
		Example:   true,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) == 1 {
		projectDir = args[0]
	}
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	opts := defaultProjectOptions()
	opts.Example = !initMinimal
	if initWizard {
		var err error
		if opts, err = runWizard(opts); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initializing wisp project in %s\n", projectDir)
	if err := writeProject(out, projectDir, opts); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nNext steps:")
	if projectDir != "." {
		fmt.Fprintln(out, "  cd "+projectDir)
	}
	fmt.Fprintln(out, "  wisp serve")
	fmt.Fprintf(out, "  open http://localhost:%d\n", opts.Port)
	return nil
}

func runWizard(opts projectOptions) (projectOptions, error) {
	portPrompt := promptui.Prompt{
		Label:    "Preview server port",
		Default:  strconv.Itoa(opts.Port),
		Validate: ValidatePort,
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return opts, fmt.Errorf("port: %w", err)
	}
	opts.Port, _ = strconv.Atoi(portStr)

	scanPrompt := promptui.Prompt{
		Label:   "Component directory",
		Default: opts.ScanPath,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("directory cannot be empty")
			}
			return nil
		},
	}
	if opts.ScanPath, err = scanPrompt.Run(); err != nil {
		return opts, fmt.Errorf("component directory: %w", err)
	}

	apiPrompt := promptui.Prompt{
		Label:   "REST API base URL for rest-admin-view (empty to skip)",
		Default: opts.APIBase,
		Validate: func(s string) error {
			if s == "" {
				return nil
			}
			return validation.ValidateURL(s)
		},
	}
	if opts.APIBase, err = apiPrompt.Run(); err != nil {
		return opts, fmt.Errorf("api base url: %w", err)
	}

	formatPrompt := promptui.Select{
		Label: "Log format",
		Items: []string{"text", "json"},
	}
	if _, opts.LogFormat, err = formatPrompt.Run(); err != nil {
		return opts, fmt.Errorf("log format: %w", err)
	}

	examplePrompt := promptui.Prompt{
		Label:     "Create a sample component",
		IsConfirm: true,
		Default:   "y",
	}
	_, err = examplePrompt.Run()
	opts.Example = err == nil

	return opts, nil
}

// writeProject writes the config file and sample component. Existing files
// are left alone.
func writeProject(out io.Writer, dir string, opts projectOptions) error {
	content, err := configYAML(opts)
	if err != nil {
		return err
	}
	if err := writeNew(out, filepath.Join(dir, ".wisp.yml"), content); err != nil {
		return err
	}

	components := filepath.Join(dir, opts.ScanPath)
	if err := os.MkdirAll(components, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", opts.ScanPath, err)
	}
	if err := os.MkdirAll(filepath.Join(dir, ".wisp"), 0o755); err != nil {
		return fmt.Errorf("failed to create .wisp: %w", err)
	}

	if opts.Example {
		return writeNew(out, filepath.Join(components, "click-counter.wisp.yml"), []byte(exampleComponent))
	}
	return nil
}

func writeNew(out io.Writer, path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "  skip   %s (exists)\n", path)
		return nil
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(out, "  create %s\n", path)
	return nil
}

func configYAML(opts projectOptions) ([]byte, error) {
	origins := []string{
		fmt.Sprintf("http://localhost:%d", opts.Port),
		fmt.Sprintf("http://127.0.0.1:%d", opts.Port),
	}
	doc := map[string]any{
		"server": map[string]any{
			"host":            "localhost",
			"port":            opts.Port,
			"allowed_origins": origins,
		},
		"components": map[string]any{
			"scan_paths":       []string{opts.ScanPath},
			"exclude_patterns": []string{"*_test.wisp.yml", "*.bak"},
		},
		"development": map[string]any{
			"hot_reload":    true,
			"error_overlay": true,
		},
		"cache": map[string]any{"path": ".wisp/cache.db"},
		"api": map[string]any{
			"base_url": opts.APIBase,
			"timeout":  "30s",
		},
		"log": map[string]any{
			"level":  "info",
			"format": opts.LogFormat,
		},
	}
	body, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte("# wisp configuration\n"), body...), nil
}

const exampleComponent = `tag: click-counter
data:
  count: 0
props:
  label: Clicks
template: |-
  <button on:click="Inc"><%= props.label %>: <%= data.count %></button>
  <% if data.count > 0 { %><button on:click="Reset">Reset</button><% } %>
styles: "button{font:inherit;margin-right:.5rem}"
methods:
  Inc:
    - set: count
      value: data.count + 1
  Reset:
    - set: count
      value: "0"
`
