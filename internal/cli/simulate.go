package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/projector/internal/harness"
	"github.com/roach88/projector/internal/store"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database string // record every run into this database
	Filter   string // glob on scenario names inside directories
}

// ScenarioResult is the outcome of one simulated scenario.
type ScenarioResult struct {
	File   string              `json:"file"`
	Name   string              `json:"name"`
	Pass   bool                `json:"pass"`
	RoomID string              `json:"room_id,omitempty"`
	Events int64               `json:"events,omitempty"`
	Errors []string            `json:"errors,omitempty"`
	Room   *harness.RoomState  `json:"room,omitempty"`
	Peers  []harness.PeerState `json:"peers,omitempty"`
}

// SimulateResult summarizes a simulate run.
type SimulateResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario>...",
		Short: "Run multi-peer scenarios against in-memory rooms",
		Long: `Run scenario files against an in-memory room with one coordinator
per peer, then check each scenario's assertions.

Arguments may be files or directories. With --db every scenario is
recorded as a new room that "projector replay" can play back.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing files, unreadable database)

Examples:
  projector simulate ./scenarios
  projector simulate ./scenarios --filter "late_*"
  projector simulate late_joiner.yaml --db ./rooms.db
  projector simulate ./scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record runs into this SQLite database")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios in directories by glob pattern")

	return cmd
}

func runSimulate(ctx context.Context, opts *SimulateOptions, paths []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newPrinter(opts.RootOptions, cmd.OutOrStdout())
	logger := opts.logger()

	files, err := findScenarioFiles(paths, opts.Filter)
	if err != nil {
		return err
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	result := SimulateResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		sr := simulateOne(ctx, file, st, opts)
		logger.Debug("scenario finished", "file", file, "pass", sr.Pass, "room_id", sr.RoomID)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	text := func(w io.Writer) { printSimulateText(w, result, opts.Verbose) }
	if result.Failed > 0 {
		return out.fail(ExitFailure, ErrCodeScenarioFailed, fmt.Sprintf("%d scenario(s) failed", result.Failed), result, text)
	}
	return out.ok(result, func(w io.Writer) {
		text(w)
		if result.Total == 0 {
			fmt.Fprintln(w, "No scenarios found.")
			return
		}
		fmt.Fprintln(w, "✓ All scenarios passed")
	})
}

// simulateOne runs a single scenario file, recording it when st is set.
func simulateOne(ctx context.Context, file string, st *store.Store, opts *SimulateOptions) ScenarioResult {
	sr := ScenarioResult{File: file, Name: filepath.Base(file)}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr
	}
	sr.Name = scenario.Name

	logger := opts.logger().With("scenario", scenario.Name)
	runOpts := []harness.Option{harness.WithLogger(logger)}

	var rec *store.Recorder
	if st != nil {
		rec, err = store.NewRecorder(ctx, st, store.NewRoomID(), logger)
		if err != nil {
			sr.Errors = []string{fmt.Sprintf("failed to start recording: %v", err)}
			return sr
		}
		sr.RoomID = rec.RoomID()
		runOpts = append(runOpts, harness.WithRecorder(rec))
	}

	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}

	sr.Pass = result.Pass
	sr.Errors = result.Errors
	sr.Room = &result.Room
	sr.Peers = result.Peers
	if rec != nil {
		sr.Events = rec.Seq()
		if err := rec.Err(); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("recording failed: %v", err))
		}
	}
	return sr
}

func printSimulateText(w io.Writer, result SimulateResult, verbose bool) {
	for _, sr := range result.Scenarios {
		if sr.Pass {
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
		} else {
			fmt.Fprintf(w, "✗ %s\n", sr.Name)
			for _, e := range sr.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		if sr.RoomID != "" {
			fmt.Fprintf(w, "  recorded room %s (%d events)\n", sr.RoomID, sr.Events)
		}
		if verbose && sr.Room != nil {
			fmt.Fprintf(w, "  room: current %s, scene %s\n", orNone(sr.Room.Current), sr.Room.ScenePath)
			for _, p := range sr.Peers {
				fmt.Fprintf(w, "  %s: %s page %d step %d, scene %s\n", p.Name, orNone(p.Task), p.Page, p.Step, p.ScenePath)
			}
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Simulation Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
