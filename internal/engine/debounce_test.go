package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/projector/internal/clock"
)

func TestDebouncer_NewestWins(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	d := NewDebouncer(fake, 500*time.Millisecond)

	var fired []string
	assert.False(t, d.Schedule(func() { fired = append(fired, "first") }))
	fake.Advance(300 * time.Millisecond)
	assert.True(t, d.Schedule(func() { fired = append(fired, "second") }))

	fake.Advance(300 * time.Millisecond)
	assert.Empty(t, fired, "window restarts on reschedule")
	assert.True(t, d.Pending())

	fake.Advance(200 * time.Millisecond)
	assert.Equal(t, []string{"second"}, fired)
	assert.False(t, d.Pending())
}

func TestDebouncer_Cancel(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	d := NewDebouncer(fake, time.Second)

	fired := false
	d.Schedule(func() { fired = true })
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel())

	fake.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestDebouncer_RescheduleFromCallback(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	d := NewDebouncer(fake, time.Second)

	count := 0
	var fn func()
	fn = func() {
		count++
		if count < 3 {
			d.Schedule(fn)
		}
	}
	d.Schedule(fn)

	for range 5 {
		fake.Advance(time.Second)
	}
	assert.Equal(t, 3, count)
}

func TestReconciliationLock(t *testing.T) {
	var l ReconciliationLock

	assert.True(t, l.TryAcquire("create"))
	assert.False(t, l.TryAcquire("restore"))
	assert.Equal(t, "create", l.Holder())

	l.Release()
	assert.Empty(t, l.Holder())
	assert.True(t, l.TryAcquire("restore"))
}
