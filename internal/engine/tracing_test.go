package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func spanNamed(spans []sdktrace.ReadOnlySpan, name string) (sdktrace.ReadOnlySpan, bool) {
	for _, s := range spans {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestCoordinator_OperationSpans(t *testing.T) {
	ctx := context.Background()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t)
	p1 := f.join("p1", withOpts(WithTracerProvider(tp)))
	f.settle()

	require.NoError(t, p1.coord.CreateSlide(ctx, "A", ""))
	f.settle()
	require.Error(t, p1.coord.ChangeSlide(ctx, "ghost"))

	spans := sr.Ended()

	create, ok := spanNamed(spans, "coordinator.create_slide")
	require.True(t, ok, "create span recorded")
	assert.Equal(t, codes.Unset, create.Status().Code)
	task, ok := spanAttr(create, "task_id")
	require.True(t, ok)
	assert.Equal(t, "A", task.AsString())

	change, ok := spanNamed(spans, "coordinator.change_slide")
	require.True(t, ok, "change span recorded")
	assert.Equal(t, codes.Error, change.Status().Code)
	assert.Contains(t, change.Status().Description, "DECK_NOT_CREATED")
	require.NotEmpty(t, change.Events(), "error recorded as a span event")
}

func TestCoordinator_LateJoinAttachSpan(t *testing.T) {
	ctx := context.Background()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t)
	p1 := f.join("p1")
	f.settle()
	require.NoError(t, p1.coord.CreateSlide(ctx, "A", ""))
	f.settle()

	f.join("p2", withOpts(WithTracerProvider(tp)))
	f.settle()

	attach, ok := spanNamed(sr.Ended(), "coordinator.attach")
	require.True(t, ok, "late joiner attach span recorded")
	idx, ok := spanAttr(attach, "index")
	require.True(t, ok)
	assert.Equal(t, int64(1), idx.AsInt64())

	_, ok = spanNamed(sr.Ended(), "coordinator.create_slide")
	assert.False(t, ok, "p1 used the global provider")
}
