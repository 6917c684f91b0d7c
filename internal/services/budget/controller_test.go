package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }
func (f *fakeClock) Rewind(d time.Duration)  { f.now = f.now.Add(-d) }

func TestController_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    Status
	}{
		{"start", 0, StatusNormal},
		{"inside run", 10 * time.Minute, StatusNormal},
		{"exactly at run budget", 15 * time.Minute, StatusNormal},
		{"just past run budget", 15*time.Minute + time.Nanosecond, StatusGrace},
		{"exactly at run plus grace", 20 * time.Minute, StatusGrace},
		{"past run plus grace", 20*time.Minute + time.Nanosecond, StatusExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			c := New(15*time.Minute, 5*time.Minute, WithClock(clock.Now))
			clock.Advance(tt.elapsed)
			assert.Equal(t, tt.want, c.Status())
		})
	}
}

func TestController_StatusIsMonotonic(t *testing.T) {
	clock := newFakeClock()
	c := New(time.Minute, time.Minute, WithClock(clock.Now))

	clock.Advance(90 * time.Second)
	assert.Equal(t, StatusGrace, c.Status())

	clock.Rewind(time.Minute)
	assert.Equal(t, StatusGrace, c.Status(), "grace never reverts to normal")

	clock.Advance(2 * time.Minute)
	assert.Equal(t, StatusExpired, c.Status())

	clock.Rewind(2 * time.Minute)
	assert.Equal(t, StatusExpired, c.Status(), "expired is terminal")
}

func TestController_GraceEnteredOnce(t *testing.T) {
	clock := newFakeClock()
	c := New(time.Minute, time.Minute, WithClock(clock.Now))

	_, entered := c.GraceEnteredAt()
	assert.False(t, entered)

	clock.Advance(61 * time.Second)
	c.Status()
	first, entered := c.GraceEnteredAt()
	assert.True(t, entered)

	clock.Advance(10 * time.Second)
	c.Status()
	again, _ := c.GraceEnteredAt()
	assert.Equal(t, first, again)
}

func TestController_ZeroRunBudget(t *testing.T) {
	clock := newFakeClock()
	c := New(0, 5*time.Minute, WithClock(clock.Now))

	assert.Equal(t, StatusNormal, c.Status(), "no time has passed yet")

	clock.Advance(time.Millisecond)
	assert.Equal(t, StatusGrace, c.Status())
}

func TestController_NegativeBudgetsClampToZero(t *testing.T) {
	clock := newFakeClock()
	c := New(-time.Minute, -time.Minute, WithClock(clock.Now))

	assert.Equal(t, time.Duration(0), c.RunBudget())
	assert.Equal(t, time.Duration(0), c.GraceBudget())

	clock.Advance(time.Nanosecond)
	assert.Equal(t, StatusExpired, c.Status())
}

func TestController_Remaining(t *testing.T) {
	clock := newFakeClock()
	c := New(10*time.Minute, 2*time.Minute, WithClock(clock.Now))

	clock.Advance(4 * time.Minute)
	assert.Equal(t, 6*time.Minute, c.Remaining())

	clock.Advance(7 * time.Minute)
	assert.Equal(t, time.Minute, c.Remaining())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, time.Duration(0), c.Remaining())
	assert.Equal(t, 13*time.Minute, c.Elapsed())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "normal", StatusNormal.String())
	assert.Equal(t, "grace", StatusGrace.String())
	assert.Equal(t, "expired", StatusExpired.String())
	assert.Equal(t, "unknown", Status(42).String())
}
