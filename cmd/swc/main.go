package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/snowmerak/swc.go/lib/cache"
	"github.com/snowmerak/swc.go/lib/config"
	"github.com/snowmerak/swc.go/lib/logging"
	"github.com/snowmerak/swc.go/lib/server"
	"github.com/snowmerak/swc.go/lib/swc"
)

type globalFlags struct {
	configPath string
	format     string
	dev        bool
	kind       string
	locator    string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:           "swc",
		Short:         "Parse, print and analyze TypeScript through the deno_swc compiler plugin",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Config file path (YAML)")
	pf.StringVar(&g.format, "format", "json", "Output format: json or yaml")
	pf.BoolVar(&g.dev, "dev", false, "Load the plugin from the local development build")
	pf.StringVar(&g.kind, "kind", "", "Plugin kind: shared, process or wasm")
	pf.StringVar(&g.locator, "locator", "", "Import locator carrying the release tag")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		cfg, err := config.Load(g.configPath)
		if err != nil {
			return nil, err
		}
		flags := cmd.Flags()
		if flags.Changed("dev") {
			cfg.Dev = g.dev
		}
		if flags.Changed("kind") {
			cfg.Kind = g.kind
		}
		if flags.Changed("locator") {
			cfg.Locator = g.locator
		}
		if flags.Changed("log-level") {
			cfg.Log.Level = g.logLevel
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	withBridge := func(cmd *cobra.Command, fn func(ctx context.Context, b *swc.Bridge) (any, error)) error {
		cfg, err := load(cmd)
		if err != nil {
			return err
		}
		b, err := swc.Init(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() {
			// An interrupted command does not wait for the plugin to drain.
			if cmd.Context().Err() != nil {
				b.Abort()
				return
			}
			b.Close()
		}()

		out, err := fn(cmd.Context(), b)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), g.format, out)
	}

	var parseOpts swc.ParseOptions
	parseCmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Parse a source file and print its syntax tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readInput(args[0])
			if err != nil {
				return err
			}
			opts := parseOpts
			opts.Source = string(src)
			return withBridge(cmd, func(ctx context.Context, b *swc.Bridge) (any, error) {
				return b.Parse(ctx, opts)
			})
		},
	}
	parseCmd.Flags().StringVar(&parseOpts.Syntax, "syntax", "typescript", "Source syntax: typescript or ecmascript")
	parseCmd.Flags().BoolVar(&parseOpts.TSX, "tsx", false, "Enable TSX")
	parseCmd.Flags().BoolVar(&parseOpts.Decorators, "decorators", false, "Enable decorators")
	parseCmd.Flags().BoolVar(&parseOpts.DynamicImport, "dynamic-import", true, "Enable dynamic import()")
	parseCmd.Flags().StringVar(&parseOpts.Target, "target", "", "Language target, e.g. es2020")

	var minify bool
	printCmd := &cobra.Command{
		Use:   "print FILE",
		Short: "Print source code from a syntax tree produced by parse (JSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			var program swc.Program
			if err := json.Unmarshal(data, &program); err != nil {
				return fmt.Errorf("read program %s: %w", args[0], err)
			}
			return withBridge(cmd, func(ctx context.Context, b *swc.Bridge) (any, error) {
				return b.Print(ctx, swc.PrintOptions{Program: &program, Minify: minify})
			})
		},
	}
	printCmd.Flags().BoolVar(&minify, "minify", false, "Minify the output")

	var dynamic bool
	depsCmd := &cobra.Command{
		Use:   "deps FILE",
		Short: "List the dependencies of a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readInput(args[0])
			if err != nil {
				return err
			}
			return withBridge(cmd, func(ctx context.Context, b *swc.Bridge) (any, error) {
				return b.ExtractDependencies(ctx, swc.AnalyzeOptions{Source: string(src), Dynamic: dynamic})
			})
		},
	}
	depsCmd.Flags().BoolVar(&dynamic, "dynamic", false, "Include dynamic import() calls")

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Locate (and download if needed) the plugin binary without loading it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			res, err := swc.ResolvePlugin(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), g.format, map[string]any{
				"path": res.Path,
				"kind": string(res.Kind),
				"tag":  res.Tag,
				"dev":  res.Dev,
			})
		},
	}

	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve parse, print and dependencies over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			b, err := swc.Init(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			err = server.New(cfg.Server.Addr, b).Start(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), g.format, cfg)
		},
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the downloaded plugin cache",
	}

	openCache := func(cmd *cobra.Command) (*cache.Cache, error) {
		cfg, err := load(cmd)
		if err != nil {
			return nil, err
		}
		return cache.Open(cmd.Context(), cache.Options{Dir: cfg.CacheDir})
	}

	cacheListCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached release assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			entries, err := c.Entries(cmd.Context())
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []cache.Entry{}
			}
			return writeOutput(cmd.OutOrStdout(), g.format, entries)
		},
	}

	cachePruneCmd := &cobra.Command{
		Use:   "prune TAG",
		Short: "Remove every cached asset of a release tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Prune(cmd.Context(), args[0])
		},
	}
	cacheCmd.AddCommand(cacheListCmd, cachePruneCmd)

	rootCmd.AddCommand(parseCmd, printCmd, depsCmd, resolveCmd, serveCmd, configCmd, cacheCmd)
	return rootCmd
}

// readInput reads path, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return readAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
