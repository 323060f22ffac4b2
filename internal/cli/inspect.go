package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/projector/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
	RoomID   string
	Seq      int64
	Events   bool
}

// InspectEvent is one recorded event as printed by inspect.
type InspectEvent struct {
	Seq    int64           `json:"seq"`
	Kind   string          `json:"kind"`
	Author string          `json:"author"`
	Body   json.RawMessage `json:"body"`
}

// InspectDeck is one deck entry of the attribute table.
type InspectDeck struct {
	TaskID    string `json:"task_id"`
	URL       string `json:"url,omitempty"`
	Page      int    `json:"page"`
	PageCount int    `json:"page_count,omitempty"`
}

// InspectRoom is a room folded up to a seq.
type InspectRoom struct {
	RoomID     string         `json:"room_id"`
	Seq        int64          `json:"seq"`
	Current    string         `json:"current,omitempty"`
	Decks      []InspectDeck  `json:"decks"`
	ScenePath  string         `json:"scene_path"`
	Scenes     map[string]int `json:"scenes"`
	Broadcasts int            `json:"broadcasts"`
	Events     []InspectEvent `json:"events,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show recorded rooms and their state",
		Long: `Show recorded rooms and their state.

Without --room, lists every recorded room. With --room, folds the room's
recording up to --seq (default: the whole recording) and prints the
attribute table, scene path and provisioned scenes.

Examples:
  projector inspect --db ./rooms.db
  projector inspect --db ./rooms.db --room 0190c6c4-... --seq 4
  projector inspect --db ./rooms.db --room 0190c6c4-... --events`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $PROJECTOR_DB)")
	cmd.Flags().StringVar(&opts.RoomID, "room", "", "room ID to inspect")
	cmd.Flags().Int64Var(&opts.Seq, "seq", 0, "fold up to this seq (0 = whole recording)")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "also list the recorded events")

	return cmd
}

func runInspect(ctx context.Context, opts *InspectOptions, cmd *cobra.Command) error {
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

	if opts.RoomID == "" {
		rooms, err := st.Rooms(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list rooms", err)
		}
		return out.ok(rooms, func(w io.Writer) {
			if len(rooms) == 0 {
				fmt.Fprintln(w, "No rooms recorded.")
				return
			}
			fmt.Fprintf(w, "%d room(s)\n", len(rooms))
			for _, r := range rooms {
				fmt.Fprintf(w, "  %s  %d event(s), last seq %d\n", r.ID, r.Events, r.LastSeq)
			}
		})
	}

	state, err := st.Snapshot(ctx, opts.RoomID, opts.Seq)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to fold room", err)
	}
	if state.Seq == 0 {
		return out.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no events recorded for room %s", opts.RoomID), nil, nil)
	}

	view := inspectRoom(state)
	if opts.Events {
		var recs []store.Record
		if opts.Seq > 0 {
			recs, err = st.ReadEventsUntil(ctx, opts.RoomID, opts.Seq)
		} else {
			recs, err = st.ReadEvents(ctx, opts.RoomID)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read events", err)
		}
		for _, rec := range recs {
			view.Events = append(view.Events, InspectEvent{Seq: rec.Seq, Kind: string(rec.Kind), Author: rec.Author, Body: rec.Body})
		}
	}

	return out.ok(view, func(w io.Writer) { printInspectText(w, view) })
}

func inspectRoom(state *store.State) InspectRoom {
	view := InspectRoom{
		RoomID:     state.RoomID,
		Seq:        state.Seq,
		Current:    state.Table.Current,
		Decks:      []InspectDeck{},
		ScenePath:  state.ScenePath,
		Scenes:     map[string]int{},
		Broadcasts: state.Broadcasts,
	}
	for _, id := range state.Table.TaskIDs() {
		d := state.Table.Decks[id]
		view.Decks = append(view.Decks, InspectDeck{TaskID: id, URL: d.ContentURL, Page: d.CurrentIndex, PageCount: d.PageCount})
	}
	for dir, names := range state.Scenes {
		view.Scenes[dir] = len(names)
	}
	return view
}

func printInspectText(w io.Writer, view InspectRoom) {
	fmt.Fprintf(w, "Room %s at seq %d\n", view.RoomID, view.Seq)
	fmt.Fprintf(w, "Current: %s\n", orNone(view.Current))
	fmt.Fprintf(w, "Scene: %s\n", view.ScenePath)

	fmt.Fprintf(w, "Decks: %d\n", len(view.Decks))
	for _, d := range view.Decks {
		if d.PageCount > 0 {
			fmt.Fprintf(w, "  %s page %d/%d\n", d.TaskID, d.Page, d.PageCount)
		} else {
			fmt.Fprintf(w, "  %s page %d\n", d.TaskID, d.Page)
		}
	}

	dirs := make([]string, 0, len(view.Scenes))
	for dir := range view.Scenes {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	fmt.Fprintf(w, "Scenes: %d dir(s)\n", len(dirs))
	for _, dir := range dirs {
		fmt.Fprintf(w, "  %s (%d)\n", dir, view.Scenes[dir])
	}
	fmt.Fprintf(w, "Broadcasts: %d\n", view.Broadcasts)

	for _, ev := range view.Events {
		fmt.Fprintf(w, "  [%d] %s by %s %s\n", ev.Seq, ev.Kind, ev.Author, ev.Body)
	}
}
