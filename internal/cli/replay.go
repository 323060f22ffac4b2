package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/projector/internal/clock"
	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/engine"
	"github.com/roach88/projector/internal/headless"
	"github.com/roach88/projector/internal/overlay"
	"github.com/roach88/projector/internal/preview"
	"github.com/roach88/projector/internal/replay"
	"github.com/roach88/projector/internal/room"
	"github.com/roach88/projector/internal/store"
	"github.com/roach88/projector/internal/viewport"
)

// replaySettleTimeout bounds how long the coordinator may take to absorb
// one recorded event.
const replaySettleTimeout = 5 * time.Second

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RoomID   string
	Until    int64 // last seq to replay; 0 replays everything
	Previews bool  // probe preview images of the replayed decks
}

// ReplayFrame is what the replaying coordinator shows after one event.
type ReplayFrame struct {
	Seq       int64  `json:"seq"`
	Kind      string `json:"kind"`
	Author    string `json:"author"`
	ScenePath string `json:"scene_path"`
	Task      string `json:"task,omitempty"`
	Page      int    `json:"page,omitempty"`
	Step      int    `json:"step,omitempty"`
}

// ReplayResult is the outcome of replaying one room.
type ReplayResult struct {
	RoomID      string          `json:"room_id"`
	Events      int             `json:"events"`
	Position    int64           `json:"position"`
	ScenePath   string          `json:"scene_path"`
	Task        string          `json:"task,omitempty"`
	Page        int             `json:"page,omitempty"`
	Frames      []ReplayFrame   `json:"frames"`
	Divergences []string        `json:"divergences,omitempty"`
	Errors      []string        `json:"errors,omitempty"`
	Previews    []preview.Entry `json:"previews,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Play a recorded room through a read-only coordinator",
		Long: `Play a recorded room through a read-only coordinator.

Every recorded event is delivered to the coordinator as the matching room
notification. After each navigation the rendered deck and page must match
the recorded scene path; any mismatch is reported as a divergence.

Exit codes:
  0 - Replay followed the recording
  1 - The rendered deck diverged from the recording
  2 - Command error (database not found, room not recorded)

Examples:
  projector replay --db ./rooms.db --room 0190c6c4-...
  projector replay --db ./rooms.db --room 0190c6c4-... --until 12
  projector replay --db ./rooms.db --room 0190c6c4-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $PROJECTOR_DB)")
	cmd.Flags().StringVar(&opts.RoomID, "room", "", "room ID to replay (required)")
	_ = cmd.MarkFlagRequired("room")
	cmd.Flags().Int64Var(&opts.Until, "until", 0, "stop after this seq (0 = whole recording)")
	cmd.Flags().BoolVar(&opts.Previews, "previews", false, "probe preview images of the replayed decks")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newPrinter(opts.RootOptions, cmd.OutOrStdout())

	dbPath, err := opts.dbPath(opts.Database)
	if err != nil {
		return err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var recs []store.Record
	if opts.Until > 0 {
		recs, err = st.ReadEventsUntil(ctx, opts.RoomID, opts.Until)
	} else {
		recs, err = st.ReadEvents(ctx, opts.RoomID)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	if len(recs) == 0 {
		return out.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no events recorded for room %s", opts.RoomID), nil, nil)
	}

	result, err := replayRoom(ctx, opts, recs)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	text := func(w io.Writer) { printReplayText(w, result, opts.Verbose) }
	if len(result.Divergences) > 0 {
		return out.fail(ExitFailure, ErrCodeReplayDiverged,
			fmt.Sprintf("replay diverged from the recording at %d event(s)", len(result.Divergences)), result, text)
	}
	return out.ok(result, func(w io.Writer) {
		text(w)
		fmt.Fprintln(w, "✓ Replay followed the recording")
	})
}

// replayRoom drives a read-only coordinator through recs. Time is simulated:
// after each event the restore debounce elapses so the coordinator reaches
// its resting state before the next one.
func replayRoom(ctx context.Context, opts *ReplayOptions, recs []store.Record) (ReplayResult, error) {
	cfg := opts.settings()
	roomID := recs[0].RoomID
	logger := opts.logger().With("room_id", roomID)

	player, err := replay.NewPlayer(recs)
	if err != nil {
		return ReplayResult{}, err
	}

	clk := clock.Fake(time.Unix(0, 0))
	anchor := overlay.NewAnchor()
	anchor.Mount("replay", viewport.Point{})
	pool := headless.NewPool(replay.Library(recs))

	var reported []error
	engineOpts := []engine.Option{
		engine.WithClock(clk),
		engine.WithLogger(logger),
		engine.WithRestoreDebounce(cfg.RestoreDebounce),
		engine.WithRestoreRetries(cfg.RestoreRetries),
		engine.WithAnchorTimeout(cfg.AnchorTimeout),
		engine.WithClickerAppliance(cfg.ClickerAppliance),
		// The callback runs on the coordinator goroutine; reported is only
		// read after the loop has stopped.
		engine.WithErrorCallback(func(err error) { reported = append(reported, err) }),
	}
	if opts.Previews {
		lister := preview.NewLister(preview.NewHTTPProber(nil, cfg.PreviewTimeout), cfg.PreviewConcurrency)
		engineOpts = append(engineOpts, engine.WithPreviewLister(lister))
	}
	coord := engine.New(room.ReadOnly(player), anchor, pool.Factory(), engineOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := coord.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Error("coordinator stopped", "error", err)
		}
	}()
	stop := func() {
		cancel()
		<-done
	}

	settle := func() error {
		sctx, scancel := context.WithTimeout(ctx, replaySettleTimeout)
		defer scancel()
		if err := coord.Settle(sctx); err != nil {
			return err
		}
		clk.Advance(cfg.RestoreDebounce)
		return coord.Settle(sctx)
	}

	result := ReplayResult{RoomID: roomID, Events: len(recs), Frames: make([]ReplayFrame, 0, len(recs))}
	if err := settle(); err != nil {
		stop()
		return result, fmt.Errorf("initial settle: %w", err)
	}

	for {
		rec, ok, err := player.Step()
		if err != nil {
			stop()
			return result, fmt.Errorf("apply seq %d: %w", rec.Seq, err)
		}
		if !ok {
			break
		}
		if err := settle(); err != nil {
			stop()
			return result, fmt.Errorf("settle after seq %d: %w", rec.Seq, err)
		}

		frame := ReplayFrame{Seq: rec.Seq, Kind: string(rec.Kind), Author: rec.Author, ScenePath: player.CurrentScenePath()}
		if r := pool.Current(); r != nil {
			frame.Task, frame.Page, frame.Step = r.TaskID(), r.Page(), r.Step()
		}
		result.Frames = append(result.Frames, frame)
		if rec.Kind == store.KindScenePath {
			if msg := divergence(frame, player.State().Table); msg != "" {
				logger.Warn("replay diverged", "seq", rec.Seq, "detail", msg)
				result.Divergences = append(result.Divergences, fmt.Sprintf("seq %d: %s", rec.Seq, msg))
			}
		}
	}

	result.Position = player.Position()
	result.ScenePath = player.CurrentScenePath()
	if active, ok := coord.Active(); ok {
		result.Task, result.Page = active.TaskID, active.Index
	}
	var previewErr error
	if opts.Previews {
		result.Previews, previewErr = coord.ListSlidesWithPreview(ctx)
	}

	stop()
	if previewErr != nil {
		reported = append(reported, previewErr)
	}
	for _, err := range reported {
		result.Errors = append(result.Errors, err.Error())
	}
	return result, nil
}

// divergence explains how a frame fails to show its recorded scene, or
// returns "". Only namespaced scenes of decks present in the table are
// checked; other scenes leave the last deck on screen.
func divergence(f ReplayFrame, tbl deck.Table) string {
	sp, ok := deck.ParseScenePath(f.ScenePath)
	if !ok {
		return ""
	}
	if _, ok := tbl.Deck(sp.TaskID); !ok {
		return ""
	}
	if f.Task != sp.TaskID || f.Page != sp.Index {
		return fmt.Sprintf("scene %s but rendering %s page %d", f.ScenePath, orNone(f.Task), f.Page)
	}
	return ""
}

func printReplayText(w io.Writer, result ReplayResult, verbose bool) {
	fmt.Fprintf(w, "Replay of room %s: %d event(s), position %d\n", result.RoomID, result.Events, result.Position)
	if verbose {
		for _, f := range result.Frames {
			fmt.Fprintf(w, "  [%d] %s by %s -> %s page %d step %d (%s)\n",
				f.Seq, f.Kind, f.Author, orNone(f.Task), f.Page, f.Step, f.ScenePath)
		}
	}
	fmt.Fprintf(w, "Scene: %s\n", result.ScenePath)
	fmt.Fprintf(w, "Showing: %s page %d\n", orNone(result.Task), result.Page)
	for _, p := range result.Previews {
		fmt.Fprintf(w, "Preview: %s %s\n", p.TaskID, p.URL)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	for _, d := range result.Divergences {
		fmt.Fprintf(w, "  diverged: %s\n", d)
	}
	fmt.Fprintln(w)
}
