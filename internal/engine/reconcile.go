package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/room"
	"github.com/roach88/projector/internal/session"
	"github.com/roach88/projector/internal/viewport"
)

// onScenePath handles a scene-path notification. A path outside the deck
// namespace is an exit only if the previous path was inside it; a path
// inside is reconciled against the attribute table. local marks a
// navigation made by this peer.
func (c *Coordinator) onScenePath(ctx context.Context, path string, local bool) error {
	c.mu.Lock()
	prev := c.lastPath
	c.lastPath = path
	if deck.InNamespace(path) {
		c.exited = ""
	}
	c.mu.Unlock()

	if !deck.InNamespace(path) {
		if deck.InNamespace(prev) {
			c.unmount(prev, local)
		}
		return nil
	}

	sp, ok := deck.ParseScenePath(path)
	if !ok {
		c.logger.Warn("ignoring malformed deck scene path", "path", path)
		return nil
	}
	return c.reconcile(ctx, sp, c.disp.Attributes().Read())
}

// onAttributes handles a change on the local replica. With a current deck
// and no session this is the late-join attach; otherwise the room's scene is
// re-checked against the new table.
func (c *Coordinator) onAttributes(ctx context.Context, tbl deck.Table) error {
	c.observe(tbl)

	c.mu.Lock()
	exited := c.exited
	c.mu.Unlock()

	if tbl.Current != "" && c.current() == nil {
		if tbl.Current == exited {
			// The pointer still names the deck the room just left; the
			// navigating peer's clear has not replicated yet.
			c.logger.Debug("ignoring current deck left by the room", "task_id", exited)
			return nil
		}
		st, ok := tbl.Active()
		if !ok {
			c.logger.Debug("current deck has not replicated yet", "task_id", tbl.Current)
			return nil
		}
		// Scenes already exist; any disagreement with the room's scene is
		// settled by scene reconciliation afterwards.
		return c.attach(ctx, "attach", st)
	}

	c.mu.Lock()
	last := c.lastPath
	c.mu.Unlock()
	if sp, ok := deck.ParseScenePath(last); ok {
		return c.reconcile(ctx, sp, tbl)
	}
	return nil
}

// reconcile compares a decoded scene path with the table; the table wins.
func (c *Coordinator) reconcile(ctx context.Context, sp deck.ScenePath, tbl deck.Table) error {
	sess := c.current()
	entry, known := tbl.Deck(sp.TaskID)

	if !known {
		if sess != nil && sess.TaskID() == sp.TaskID {
			// A fresh creator whose write has not replicated yet.
			return c.renderDirect(sess, sp.Index)
		}
		c.scheduleRestore("scene references a deck with no recorded state", sp)
		return nil
	}

	if tbl.Current == "" {
		// Nothing names the current deck; follow the scene without writing.
		if sess != nil && sess.TaskID() == sp.TaskID {
			return c.renderDirect(sess, sp.Index)
		}
		return c.attach(ctx, "attach", entry.At(sp.Index))
	}

	active, ok := tbl.Active()
	if !ok || active.ScenePath() != sp {
		c.scheduleRestore("scene disagrees with attribute table", sp)
		return nil
	}

	// Agreement: the idempotent rest state.
	c.debouncer.Cancel()
	c.mu.Lock()
	c.restoreAttempt = 0
	c.mu.Unlock()

	switch {
	case sess == nil || sess.TaskID() != active.TaskID:
		return c.attach(ctx, "switch", active)
	case sess.CurrentIndex() != active.CurrentIndex:
		return sess.ApplyState(active)
	default:
		return nil
	}
}

func (c *Coordinator) renderDirect(sess *session.Session, index int) error {
	if sess.CurrentIndex() == index {
		return nil
	}
	return sess.RenderPage(index)
}

// attach binds a new session to an existing deck and restores its recorded
// state. Scenes are never provisioned here.
func (c *Coordinator) attach(ctx context.Context, op string, st deck.SlideState) error {
	if !c.lock.TryAcquire(op) {
		c.logger.Info("reconciliation pending; request dropped", "op", op, "holder", c.lock.Holder(), "task_id", st.TaskID)
		return nil
	}
	defer c.lock.Release()

	ctx, span := c.tracer.Start(ctx, "coordinator."+op)
	defer span.End()
	span.SetAttributes(attribute.String("task_id", st.TaskID), attribute.Int("index", st.CurrentIndex))

	c.destroy()
	sess, err := c.open(ctx, st.TaskID, st.ContentURL)
	if err != nil {
		span.RecordError(err)
		return err
	}
	c.install(sess)
	return sess.ApplyState(st)
}

// scheduleRestore arms the debounced restore; a newer request replaces an
// older one.
func (c *Coordinator) scheduleRestore(reason string, sp deck.ScenePath) {
	superseded := c.debouncer.Schedule(func() {
		c.queue.Enqueue(Event{Type: EventRestore})
	})
	c.logger.Debug("restore scheduled", "reason", reason, "scene", sp.String(), "superseded", superseded)
}

// restore brings the session and the room's scene in line with the table.
// The table and scene are re-read at fire time. The table is never written.
func (c *Coordinator) restore(ctx context.Context) error {
	c.mu.Lock()
	last := c.lastPath
	c.mu.Unlock()
	if !deck.InNamespace(last) {
		// Armed before an exit; the room has left the deck namespace since.
		c.logger.Debug("restore skipped: outside deck namespace", "scene", last)
		return nil
	}

	tbl := c.disp.Attributes().Read()
	active, ok := tbl.Active()
	if !ok {
		c.logger.Debug("restore skipped: no current deck")
		return nil
	}

	if c.awaitingOwnWrite(active) {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "coordinator.restore")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", active.TaskID), attribute.Int("index", active.CurrentIndex))

	sess := c.current()
	switch {
	case sess == nil || sess.TaskID() != active.TaskID:
		if err := c.attach(ctx, "restore", active); err != nil {
			span.RecordError(err)
			return err
		}
	case sess.CurrentIndex() != active.CurrentIndex:
		if err := sess.ApplyState(active); err != nil {
			span.RecordError(err)
			return err
		}
	}

	want := active.ScenePath().String()
	current := c.disp.CurrentScenePath()
	if current == want || !deck.InNamespace(current) {
		return nil
	}
	w, ok := c.handle.Room()
	if !ok || !w.IsWritable() {
		return nil
	}
	c.logger.Info("rewriting scene path to match attribute table", "from", current, "to", want)
	return w.SetScenePath(want)
}

// awaitingOwnWrite re-arms the restore while this peer's own write for the
// active deck has not reached the local replica, up to the retry bound.
func (c *Coordinator) awaitingOwnWrite(active deck.SlideState) bool {
	c.mu.Lock()
	w, pending := c.pending[active.TaskID]
	want := w.index
	if !pending || want == active.CurrentIndex {
		c.restoreAttempt = 0
		c.mu.Unlock()
		return false
	}
	c.restoreAttempt++
	attempt := c.restoreAttempt
	if attempt > c.restoreRetries {
		delete(c.pending, active.TaskID)
		c.restoreAttempt = 0
		c.mu.Unlock()
		c.logger.Warn("own write never observed; applying attribute table", "task_id", active.TaskID, "index", active.CurrentIndex)
		return false
	}
	c.mu.Unlock()

	c.logger.Debug("restore deferred: own write in flight", "task_id", active.TaskID, "written", want, "observed", active.CurrentIndex, "attempt", attempt)
	c.scheduleRestore("own write in flight", active.ScenePath())
	return true
}

// ownWrite is a local deck write the replica has not reflected yet. from is
// the replica's index when the write was made, 0 if the deck was absent.
type ownWrite struct {
	index int
	from  int
}

// trackWrite remembers a local deck write until the replica reflects it.
func (c *Coordinator) trackWrite(st deck.SlideState) {
	from := 0
	if prev, ok := c.disp.Attributes().Read().Deck(st.TaskID); ok {
		from = prev.CurrentIndex
	}
	c.mu.Lock()
	c.pending[st.TaskID] = ownWrite{index: st.CurrentIndex, from: from}
	c.mu.Unlock()
}

// observe forgets tracked writes once the replica moves off the index it had
// when they were made: either to the written index, or to a newer write from
// another peer.
func (c *Coordinator) observe(tbl deck.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, w := range c.pending {
		st, ok := tbl.Deck(id)
		switch {
		case !ok:
			if w.from != 0 {
				delete(c.pending, id)
			}
		case st.CurrentIndex == w.index, st.CurrentIndex != w.from:
			delete(c.pending, id)
		}
	}
}

// unmount handles a genuine exit from the deck namespace. Every peer drops
// its session; only the peer that navigated out clears the current deck.
func (c *Coordinator) unmount(prev string, local bool) {
	c.debouncer.Cancel()
	sess := c.current()
	c.destroy()
	c.anchor.Reset()

	owned := ""
	if sess != nil {
		owned = sess.TaskID()
	} else if sp, ok := deck.ParseScenePath(prev); ok {
		owned = sp.TaskID
	}
	c.mu.Lock()
	c.exited = owned
	c.mu.Unlock()

	if !local {
		return
	}
	w, err := c.handle.Writer()
	if err != nil {
		return
	}
	// Only clear the pointer if it still names the deck being left; a newer
	// create may already have moved it.
	if tbl := w.Attributes().Read(); tbl.Current == "" || tbl.Current != owned {
		return
	}
	if err := w.Attributes().Write(deck.Patch{}.ClearCurrent()); err != nil {
		c.report("unmount", err)
	}
	c.logger.Info("left deck namespace", "task_id", owned)
}

// onMember recomputes page-turn permission for the local user.
func (c *Coordinator) onMember(m room.MemberState) {
	clickable := c.handle.CanWrite() && m.CurrentApplianceName == c.clicker
	c.anchor.SetClickable(clickable)
}

// onCamera realigns the overlay under the whiteboard camera.
func (c *Coordinator) onCamera(cam viewport.Camera) {
	if sess := c.current(); sess != nil {
		sess.Align(cam)
	}
}
