package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/wisp/internal/cache"
)

var cacheBucket string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear the persistent cache",
	Long: `The cache at cache.path holds the schemas and lists fetched by data-driven
components, stored as JSON under string keys.

Examples:
  wisp cache list
  wisp cache get DocType/Note
  wisp cache rm List/Note
  wisp cache clear`,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached keys",
	Args:  cobra.NoArgs,
	RunE: withCache(func(store *cache.Store, out io.Writer, args []string) error {
		keys, err := store.Keys()
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Fprintln(out, key)
		}
		return nil
	}),
}

var cacheGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print a cached value as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: withCache(func(store *cache.Store, out io.Writer, args []string) error {
		value, ok := store.Get(args[0])
		if !ok {
			return fmt.Errorf("no cached value for %q", args[0])
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	}),
}

var cacheRmCmd = &cobra.Command{
	Use:   "rm KEY...",
	Short: "Remove cached keys",
	Args:  cobra.MinimumNArgs(1),
	RunE: withCache(func(store *cache.Store, out io.Writer, args []string) error {
		for _, key := range args {
			if err := store.Remove(key); err != nil {
				return err
			}
		}
		return nil
	}),
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached key",
	Args:  cobra.NoArgs,
	RunE: withCache(func(store *cache.Store, out io.Writer, args []string) error {
		return store.Clear()
	}),
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.PersistentFlags().StringVar(&cacheBucket, "bucket", "", "bucket to use (default: the main bucket)")
	cacheCmd.AddCommand(cacheListCmd, cacheGetCmd, cacheRmCmd, cacheClearCmd)
}

// withCache opens the configured store, and the --bucket inside it, for
// the duration of fn.
func withCache(fn func(store *cache.Store, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		root, err := cache.Open(cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer root.Close()

		store := root
		if cacheBucket != "" {
			if store, err = root.Bucket(cacheBucket); err != nil {
				return err
			}
		}
		return fn(store, cmd.OutOrStdout(), args)
	}
}
