package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/wisp/internal/component"
	"github.com/conneroisu/wisp/internal/config"
	"github.com/conneroisu/wisp/internal/dom"
	"github.com/conneroisu/wisp/internal/loader"
)

var renderFlags *StandardFlags

var renderCmd = &cobra.Command{
	Use:   "render FILE",
	Short: "Render a component definition to HTML",
	Long: `Render mounts the component defined in FILE into an empty document and
prints the element's HTML, shadow roots included. Other definitions in the
same directory are registered too, so nested components render.

Examples:
  wisp render components/card.wisp.yml
  wisp render card.wisp.yml --data '{"title":"Hello"}'
  wisp render card.wisp.yml --data @card.json --attr variant=wide`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderFlags = AddStandardFlags(renderCmd, "component")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := renderFlags.ParseData()
	if err != nil {
		return err
	}
	attrs, err := renderFlags.ParseAttrs()
	if err != nil {
		return err
	}

	out, err := renderFile(cmd.Context(), cfg, args[0], renderFlags.Tag, attrs, data)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

type dataSetter interface {
	SetData(v any) error
}

// renderFile mounts the definition at path and returns the element's
// composed HTML. data, when set, replaces the component's initial data.
func renderFile(ctx context.Context, cfg *config.Config, path, tag string, attrs map[string]string, data any) (string, error) {
	def, err := loader.Load(path)
	if err != nil {
		return "", err
	}

	reg := component.NewRegistry()
	if siblings, err := loader.Scan([]string{filepath.Dir(path)}, cfg.Components.ExcludePatterns); err == nil {
		if err := loader.Register(reg, siblings, true); err != nil {
			return "", err
		}
	}
	if err := loader.Register(reg, []*loader.Definition{def}, true); err != nil {
		return "", err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	doc := dom.NewDocument()
	rt := component.NewRuntime(doc, runtimeOptions(ctx, cfg, reg)...)
	defer rt.Close()

	if tag == "" {
		tag = strings.ToLower(def.Tag)
	}
	host, err := rt.Mount(doc.Body(), tag, attrs)
	if err != nil {
		return "", err
	}

	comp, ok := rt.Instance(host)
	if !ok {
		return "", fmt.Errorf("%s is not a defined component", tag)
	}
	if data != nil {
		if setter, ok := comp.(dataSetter); ok {
			if err := setter.SetData(data); err != nil {
				return "", err
			}
		}
	}
	rt.Loop().Drain()

	return doc.OuterHTML(host), nil
}

func runtimeOptions(ctx context.Context, cfg *config.Config, reg *component.Registry) []component.Option {
	return []component.Option{
		component.WithRegistry(reg),
		component.WithContext(ctx),
		component.WithEventPrefix(cfg.Runtime.EventPrefix),
		component.WithMaxIncludeDepth(cfg.Runtime.MaxIncludeDepth),
		component.WithMaxRenderPasses(cfg.Runtime.MaxRenderPasses),
	}
}
