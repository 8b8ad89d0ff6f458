package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/wisp/internal/admin"
	"github.com/conneroisu/wisp/internal/cache"
	"github.com/conneroisu/wisp/internal/component"
	"github.com/conneroisu/wisp/internal/config"
	"github.com/conneroisu/wisp/internal/loader"
	"github.com/conneroisu/wisp/internal/logging"
	"github.com/conneroisu/wisp/internal/rest"
	"github.com/conneroisu/wisp/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the live preview server with hot reload",
	Long: `Start the preview server. Every component found under the scan paths is
listed at / and opens at /components/{tag}; query parameters become element
attributes. Browser events are forwarded to the server, which re-renders
and mirrors the result. Definition changes reload open pages.

The built-in rest-admin-view component talks to the API at api.base_url
and caches schemas and lists in cache.path.

Examples:
  wisp serve
  wisp serve --port 3000
  WISP_API_BASE_URL=http://localhost:8000 wisp serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	AddStandardFlags(serveCmd, "server")
	serveCmd.Flags().Bool("no-reload", false, "Disable hot reload")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noReload, _ := cmd.Flags().GetBool("no-reload"); noReload {
		cfg.Development.HotReload = false
	}
	logger := newLogger(cfg)
	for _, w := range config.ValidateConfigWithDetails(cfg).Warnings {
		logger.Warn(cmd.Context(), nil, "Configuration warning", "field", w.Field, "message", w.Message)
	}

	store, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	reg, err := buildRegistry(cfg, store, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, reg, server.WithLogger(logger))
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, err, "Error during server shutdown")
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Starting wisp server at http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	return srv.Start(ctx)
}

// buildRegistry defines the built-in components and every definition under
// the scan paths.
func buildRegistry(cfg *config.Config, store *cache.Store, logger logging.Logger) (*component.Registry, error) {
	reg := component.NewRegistry()

	client := rest.NewJSONClient(rest.WithBaseURL(cfg.API.BaseURL), rest.WithTimeout(cfg.API.Timeout))
	if err := admin.Define(reg, admin.Options{Client: client, Store: store, Logger: logger}); err != nil {
		return nil, err
	}

	defs, err := loader.Scan(cfg.Components.ScanPaths, cfg.Components.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	if err := loader.Register(reg, defs, true); err != nil {
		return nil, err
	}
	logger.Info(context.Background(), "Components loaded", "count", reg.Count())
	return reg, nil
}
