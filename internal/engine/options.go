package engine

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/projector/internal/clock"
	"github.com/roach88/projector/internal/preview"
	"github.com/roach88/projector/internal/session"
)

// DefaultClickerAppliance is the tool that grants page-turn permission.
const DefaultClickerAppliance = "clicker"

// DefaultRestoreRetries bounds how often a restore waits for the local
// replica to observe this peer's own write before applying the table anyway.
const DefaultRestoreRetries = 3

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithErrorCallback receives errors from passive handlers and UI-driven
// navigation, which never return errors to a caller.
func WithErrorCallback(fn func(error)) Option {
	return func(c *Coordinator) { c.onError = fn }
}

// WithClock sets the clock used for the restore debounce and anchor
// timeout. Default: clock.Real().
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithRestoreDebounce sets the restore coalescing window.
// Default: 500ms (DefaultRestoreDebounce).
func WithRestoreDebounce(d time.Duration) Option {
	return func(c *Coordinator) { c.debounce = d }
}

// WithRestoreRetries bounds restore re-arming while an own write is in
// flight. Default: 3.
func WithRestoreRetries(n int) Option {
	return func(c *Coordinator) { c.restoreRetries = n }
}

// WithAnchorTimeout bounds the wait for the overlay anchor.
// Default: 10s (session.DefaultAnchorTimeout).
func WithAnchorTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.anchorTimeout = d }
}

// WithClickerAppliance names the page-turn tool. Default: "clicker".
func WithClickerAppliance(name string) Option {
	return func(c *Coordinator) { c.clicker = name }
}

// WithSessionIDs sets the session id generator.
// Default: session.UUIDv7Generator.
func WithSessionIDs(g session.IDGenerator) Option {
	return func(c *Coordinator) { c.ids = g }
}

// WithPreviewLister enables preview listing.
func WithPreviewLister(l *preview.Lister) Option {
	return func(c *Coordinator) { c.previews = l }
}

// WithRenderComplete receives page-settled notifications.
func WithRenderComplete(fn func(taskID string, index int)) Option {
	return func(c *Coordinator) { c.onRenderComplete = fn }
}

// WithTracerProvider sets the tracer provider. Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) { c.tracerProvider = tp }
}
