package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/projector/internal/config"
	"github.com/roach88/projector/internal/telemetry"
)

// RootOptions holds global flags and the settings every command shares.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config and Logger are filled before a subcommand runs. Commands built
	// without the root (tests) fall back to defaults and a discarding logger.
	Config *config.Config
	Logger *slog.Logger

	shutdown func(context.Context) error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func (o *RootOptions) settings() config.Config {
	if o.Config == nil {
		return config.Default()
	}
	return *o.Config
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// dbPath returns the --db flag, or PROJECTOR_DB when the flag is empty.
func (o *RootOptions) dbPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if db := o.settings().DB; db != "" {
		return db, nil
	}
	return "", NewExitError(ExitCommandError, "no database: pass --db or set "+config.Prefix+"DB")
}

// NewRootCommand creates the root command for the projector CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "projector",
		Short: "Projector - synchronized slide decks for whiteboard rooms",
		Long: `Simulate, validate and replay slide-deck synchronization in a
multi-peer whiteboard room.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))

	return cmd, opts
}

// setup loads the environment configuration, installs the stderr logger and
// starts trace export when configured.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.Config = &cfg

	level := cfg.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	shutdown, err := telemetry.Setup(cmd.Context(), telemetry.ServiceName, cfg.Telemetry)
	if err != nil {
		o.Logger.Warn("tracing disabled", "error", err)
		return nil
	}
	o.shutdown = shutdown
	return nil
}

// Execute runs the CLI with args and returns the process exit code.
// Errors not already printed by a command are written to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if opts.shutdown != nil {
		if serr := opts.shutdown(context.WithoutCancel(ctx)); serr != nil {
			opts.logger().Warn("trace shutdown failed", "error", serr)
		}
	}
	if err != nil && !Reported(err) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return GetExitCode(err)
}
