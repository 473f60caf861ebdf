package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/carbon-cli/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and flush the fast cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached factor and result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd.Context(), func(ctx context.Context, c cache.Cache) error {
			return runCacheClear(ctx, os.Stdout, c)
		})
	},
}

var cachePingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the fast cache is reachable",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd.Context(), func(ctx context.Context, c cache.Cache) error {
			return runCachePing(ctx, os.Stdout, c)
		})
	},
}

func withCache(ctx context.Context, fn func(context.Context, cache.Cache) error) error {
	if err := cfg.Validate("cache"); err != nil {
		return err
	}
	c, err := initCache(ctx)
	if err != nil {
		return err
	}
	defer c.Close() //nolint:errcheck
	return fn(ctx, c)
}

func runCacheClear(ctx context.Context, w io.Writer, c cache.Cache) error {
	if err := c.Flush(ctx); err != nil {
		return eris.Wrap(err, "cache clear")
	}
	zap.L().Info("cache cleared")
	fmt.Fprintln(w, "Cache cleared")
	return nil
}

func runCachePing(ctx context.Context, w io.Writer, c cache.Cache) error {
	if err := c.Ping(ctx); err != nil {
		return eris.Wrap(err, "cache ping")
	}
	fmt.Fprintln(w, "PONG")
	return nil
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cachePingCmd)
	rootCmd.AddCommand(cacheCmd)
}
