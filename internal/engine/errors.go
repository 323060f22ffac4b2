package engine

import "github.com/roach88/projector/internal/deck"

// report logs err and forwards it to the error callback. Used on paths that
// have no caller to return to.
func (c *Coordinator) report(op string, err error) {
	if err == nil {
		return
	}
	c.logger.Error("operation failed",
		"op", op,
		"error", err,
		"error_type", string(deck.TypeOf(err)),
		"error_code", string(deck.CodeOf(err)),
	)
	if c.onError != nil {
		c.onError(err)
	}
}

// logEventError records a failed event with enough context to investigate.
// Processing continues with the next event.
func (c *Coordinator) logEventError(ev Event, err error) {
	attrs := []any{"event", ev.Type.String(), "error", err}
	switch ev.Type {
	case EventScenePath:
		attrs = append(attrs, "path", ev.Path)
	case EventAttributes:
		attrs = append(attrs, "current_task", ev.Table.Current)
	}
	c.logger.Error("event processing failed", attrs...)
	if c.onError != nil {
		c.onError(err)
	}
}

func pendingError(op, holder string) error {
	return deck.NewStatusError(deck.ErrCodeReconcilePending,
		op+" dropped while "+holder+" holds the reconciliation lock")
}
