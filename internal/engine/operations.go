package engine

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/preview"
)

func (c *Coordinator) startSpan(ctx context.Context, op, taskID string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "coordinator."+op)
	if taskID != "" {
		span.SetAttributes(attribute.String("task_id", taskID))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func validTaskID(taskID string) error {
	if taskID == "" || taskID == deck.CurrentTaskKey || strings.Contains(taskID, "/") {
		return deck.NewRuntimeError(deck.ErrCodeInvalidArgument, fmt.Sprintf("invalid task id %q", taskID))
	}
	return nil
}

// CreateSlide instantiates (or replaces) the live session for taskID,
// provisions one scene per page if absent, records the deck as current at
// page 1, renders page 1 and navigates the room there.
//
// A failure before the attribute write leaves the room as it was; scenes
// provisioned by this call are removed again if the write is rejected.
func (c *Coordinator) CreateSlide(ctx context.Context, taskID, contentPrefix string) (err error) {
	ctx, span := c.startSpan(ctx, "create_slide", taskID)
	defer func() { endSpan(span, err) }()

	w, err := c.handle.Writer()
	if err != nil {
		return err
	}
	if err := validTaskID(taskID); err != nil {
		return err
	}
	if !c.lock.TryAcquire("create") {
		holder := c.lock.Holder()
		c.logger.Info("reconciliation pending; create dropped", "task_id", taskID, "holder", holder)
		return pendingError("create", holder)
	}
	defer c.lock.Release()

	c.debouncer.Cancel()
	c.destroy()

	sess, err := c.open(ctx, taskID, contentPrefix)
	if err != nil {
		return err
	}
	pages, err := sess.PageCount(ctx)
	if err != nil {
		sess.Teardown()
		return err
	}

	dir := deck.SceneDir(taskID)
	provisioned := false
	if len(w.Scenes(dir)) == 0 {
		if err := w.PutScenes(dir, deck.PageScenes(pages)); err != nil {
			sess.Teardown()
			return deck.NewResourceError(deck.ErrCodeSceneProvision, "provision scenes", err).WithTask(taskID)
		}
		provisioned = true
	}

	st := deck.NewSlideState(taskID, contentPrefix, pages)
	c.trackWrite(st)
	if err := w.Attributes().Write(deck.Patch{}.SetDeck(st).SetCurrent(taskID)); err != nil {
		if provisioned {
			if rmErr := w.RemoveScenes(dir); rmErr != nil {
				c.logger.Warn("could not remove provisioned scenes", "task_id", taskID, "error", rmErr)
			}
		}
		sess.Teardown()
		return fmt.Errorf("write deck %s: %w", taskID, err)
	}

	c.install(sess)
	if err := sess.RenderPage(1); err != nil {
		return err
	}
	if err := w.SetScenePath(st.ScenePath().String()); err != nil {
		return fmt.Errorf("navigate to %s: %w", st.ScenePath(), err)
	}
	c.logger.Info("deck created", "task_id", taskID, "pages", pages, "provisioned", provisioned)
	return nil
}

// ChangeOption adjusts ChangeSlide.
type ChangeOption func(*changeRequest)

type changeRequest struct {
	index    int
	hasIndex bool
}

// AtPage requests a specific page. Out-of-range values are clamped.
func AtPage(index int) ChangeOption {
	return func(r *changeRequest) {
		r.index = index
		r.hasIndex = true
	}
}

// ChangeSlide makes a previously created deck current and navigates the
// room to the resolved page: the requested page (clamped), else the deck's
// recorded page, else 1. Every peer, this one included, switches its
// session when the scene notification arrives.
func (c *Coordinator) ChangeSlide(ctx context.Context, taskID string, opts ...ChangeOption) (err error) {
	ctx, span := c.startSpan(ctx, "change_slide", taskID)
	defer func() { endSpan(span, err) }()

	var req changeRequest
	for _, opt := range opts {
		opt(&req)
	}

	w, err := c.handle.Writer()
	if err != nil {
		return err
	}
	st, ok := w.Attributes().Read().Deck(taskID)
	if !ok {
		return deck.NewRuntimeError(deck.ErrCodeDeckNotCreated, "deck was never created").WithTask(taskID)
	}

	index := st.CurrentIndex
	if req.hasIndex {
		if st.PageCount == 0 {
			if sess := c.current(); sess != nil && sess.TaskID() == taskID {
				if n, err := sess.PageCount(ctx); err == nil {
					st.PageCount = n
				}
			}
		}
		resolved, clamped := st.Clamp(req.index)
		if clamped {
			c.logger.Warn("page index out of range; clamped", "task_id", taskID, "requested", req.index, "resolved", resolved, "pages", st.PageCount)
		}
		index = resolved
	}
	if index < 1 {
		index = 1
	}
	span.SetAttributes(attribute.Int("index", index))

	if !c.lock.TryAcquire("change") {
		holder := c.lock.Holder()
		c.logger.Info("reconciliation pending; change dropped", "task_id", taskID, "holder", holder)
		return pendingError("change", holder)
	}
	defer c.lock.Release()

	next := st.At(index)
	if index != st.CurrentIndex {
		next.Snapshot = nil
	}
	c.debouncer.Cancel()
	c.trackWrite(next)
	if err := w.Attributes().Write(deck.Patch{}.SetDeck(next).SetCurrent(taskID)); err != nil {
		return fmt.Errorf("write deck %s: %w", taskID, err)
	}
	if err := w.SetScenePath(next.ScenePath().String()); err != nil {
		return fmt.Errorf("navigate to %s: %w", next.ScenePath(), err)
	}
	c.logger.Info("deck changed", "task_id", taskID, "index", index)
	return nil
}

// NextStep advances the live session. Failures are logged and reported,
// never returned; UI input may call this speculatively.
func (c *Coordinator) NextStep() {
	c.step("next_step", func(s stepper) error { return s.NextStep() })
}

// PrevStep goes back one step in the live session. Failures are logged and
// reported, never returned.
func (c *Coordinator) PrevStep() {
	c.step("prev_step", func(s stepper) error { return s.PrevStep() })
}

type stepper interface {
	NextStep() error
	PrevStep() error
}

func (c *Coordinator) step(op string, fn func(stepper) error) {
	_, span := c.startSpan(context.Background(), op, "")
	var err error
	defer func() { endSpan(span, err) }()

	if _, err = c.handle.Writer(); err != nil {
		c.report(op, err)
		return
	}
	sess := c.current()
	if sess == nil {
		err = deck.NewRuntimeError(deck.ErrCodeNoSession, "no active deck")
		c.report(op, err)
		return
	}
	span.SetAttributes(attribute.String("task_id", sess.TaskID()))
	if err = fn(sess); err != nil {
		c.report(op, err)
	}
}

// DeleteSlide removes a deck's recorded state and its scenes. It returns
// false without mutating anything when the deck is current, on screen, or
// bound to the live session, and when nothing is recorded for it.
func (c *Coordinator) DeleteSlide(ctx context.Context, taskID string) (deleted bool, err error) {
	_, span := c.startSpan(ctx, "delete_slide", taskID)
	defer func() {
		span.SetAttributes(attribute.Bool("deleted", deleted))
		endSpan(span, err)
	}()

	w, err := c.handle.Writer()
	if err != nil {
		return false, err
	}
	if err := validTaskID(taskID); err != nil {
		return false, err
	}

	tbl := w.Attributes().Read()
	if tbl.Current == taskID {
		c.logger.Info("refusing to delete current deck", "task_id", taskID, "reason", "current")
		return false, nil
	}
	if sp, ok := deck.ParseScenePath(w.CurrentScenePath()); ok && sp.TaskID == taskID {
		c.logger.Info("refusing to delete current deck", "task_id", taskID, "reason", "scene")
		return false, nil
	}
	if sess := c.current(); sess != nil && sess.TaskID() == taskID {
		c.logger.Info("refusing to delete current deck", "task_id", taskID, "reason", "session")
		return false, nil
	}

	dir := deck.SceneDir(taskID)
	_, recorded := tbl.Deck(taskID)
	scenes := len(w.Scenes(dir)) > 0
	if !recorded && !scenes {
		return false, nil
	}

	if recorded {
		if err := w.Attributes().Write(deck.Patch{}.DeleteDeck(taskID)); err != nil {
			return false, fmt.Errorf("delete deck %s: %w", taskID, err)
		}
	}
	if scenes {
		if err := w.RemoveScenes(dir); err != nil {
			return false, fmt.Errorf("remove scenes of %s: %w", taskID, err)
		}
	}
	c.logger.Info("deck deleted", "task_id", taskID)
	return true, nil
}

// ListSlides returns every recorded deck id in sorted order.
func (c *Coordinator) ListSlides() []string {
	return c.disp.Attributes().Read().TaskIDs()
}

// ListSlidesWithPreview returns the decks whose first page has a published
// preview image.
func (c *Coordinator) ListSlidesWithPreview(ctx context.Context) (entries []preview.Entry, err error) {
	ctx, span := c.startSpan(ctx, "list_slides_with_preview", "")
	defer func() { endSpan(span, err) }()

	if c.previews == nil {
		return nil, deck.NewResourceError(deck.ErrCodePreviewUnavailable, "no preview lister configured", nil)
	}
	tbl := c.disp.Attributes().Read()
	decks := make([]deck.SlideState, 0, len(tbl.Decks))
	for _, id := range tbl.TaskIDs() {
		decks = append(decks, tbl.Decks[id])
	}
	return c.previews.Decks(ctx, decks)
}

// ListPagePreviews returns the published preview URLs of taskID's pages.
func (c *Coordinator) ListPagePreviews(ctx context.Context, taskID string) (urls []string, err error) {
	ctx, span := c.startSpan(ctx, "list_page_previews", taskID)
	defer func() { endSpan(span, err) }()

	if c.previews == nil {
		return nil, deck.NewResourceError(deck.ErrCodePreviewUnavailable, "no preview lister configured", nil).WithTask(taskID)
	}
	st, ok := c.disp.Attributes().Read().Deck(taskID)
	if !ok {
		return nil, deck.NewRuntimeError(deck.ErrCodeDeckNotCreated, "deck was never created").WithTask(taskID)
	}
	pages := st.PageCount
	if pages == 0 {
		if sess := c.current(); sess != nil && sess.TaskID() == taskID {
			if pages, err = sess.PageCount(ctx); err != nil {
				return nil, err
			}
		}
	}
	if pages == 0 {
		return nil, deck.NewResourceError(deck.ErrCodeContentUnavailable, "page count unknown", nil).WithTask(taskID)
	}
	return c.previews.Pages(ctx, st.ContentURL, taskID, pages)
}

// CleanAttributes deletes every deck entry and clears the current pointer.
// Scenes and the live session are left alone.
func (c *Coordinator) CleanAttributes(ctx context.Context) (err error) {
	_, span := c.startSpan(ctx, "clean_attributes", "")
	defer func() { endSpan(span, err) }()

	w, err := c.handle.Writer()
	if err != nil {
		return err
	}
	patch := deck.Patch{}.ClearCurrent()
	for _, id := range w.Attributes().Read().TaskIDs() {
		patch = patch.DeleteDeck(id)
	}
	if err := w.Attributes().Write(patch); err != nil {
		return fmt.Errorf("clean attributes: %w", err)
	}
	c.logger.Info("attributes cleaned")
	return nil
}

// SetInteractive toggles pointer interaction inside the renderer. The
// setting carries over to sessions created later.
func (c *Coordinator) SetInteractive(on bool) {
	c.mu.Lock()
	c.interactive = on
	sess := c.session
	c.mu.Unlock()
	if sess != nil {
		sess.SetInteractive(on)
	}
}
