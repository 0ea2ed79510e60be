package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"zend/internal/app"
)

type rootOptions struct {
	configPath    string
	listenAddress string
	logLevel      string
	logger        *zap.Logger
	// loggerReady is set once the production logger replaced the no-op one.
	loggerReady bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts := &rootOptions{
		configPath: "zend.yaml",
		logLevel:   "info",
		logger:     zap.NewNop(),
	}

	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err == nil {
		return 0
	}
	// Flag, argument and logger setup errors happen before a logger exists.
	if !opts.loggerReady {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	opts.logger.Error("command failed", zap.Error(err))
	_ = opts.logger.Sync()
	return 1
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "zend",
		Short:         "Coordinator gateway for tool microservices",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			applyRootFlagBindings(cmd.Flags(), opts)
			log, err := buildLogger(opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = log
			opts.loggerReady = true
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = opts.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "path to gateway config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newResolveCmd(opts),
		newToolsCmd(opts),
	)
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyServeFlagBindings(cmd.Flags(), opts)
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			return app.New(opts.logger).Serve(ctx, app.ServeConfig{
				ConfigPath:    opts.configPath,
				ListenAddress: opts.listenAddress,
			})
		},
	}
	cmd.Flags().StringVar(&opts.listenAddress, "listen", "", "override the gateway listen address")
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the gateway config without serving",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.New(opts.logger).ValidateConfig(cmd.Context(), app.ValidateConfig{
				ConfigPath: opts.configPath,
			})
		},
	}
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <tool>",
		Short: "Print the service a tool routes to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.New(opts.logger).ResolveTool(cmd.Context(), app.ValidateConfig{
				ConfigPath: opts.configPath,
			}, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), svc)
		},
	}
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List declared tools and their owning services",
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := app.New(opts.logger).ListTools(cmd.Context(), app.ValidateConfig{
				ConfigPath: opts.configPath,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tools)
		},
	}
}

func applyRootFlagBindings(flags *pflag.FlagSet, opts *rootOptions) {
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config":
			opts.configPath, _ = flags.GetString("config")
		case "log-level":
			opts.logLevel, _ = flags.GetString("log-level")
		}
	})
}

func applyServeFlagBindings(flags *pflag.FlagSet, opts *rootOptions) {
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "listen" {
			opts.listenAddress, _ = flags.GetString("listen")
		}
	})
}

func buildLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	return cfg.Build()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
