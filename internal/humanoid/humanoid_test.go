// internal/humanoid/humanoid_test.go
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
)

// recordingDispatcher captures every synthesized event. Sleeps return
// immediately unless sleepCap is set, in which case they really sleep up to
// the cap so wall-clock driven loops make progress without slowing the test.
type recordingDispatcher struct {
	mu       sync.Mutex
	events   []schemas.MouseEventData
	keys     []string
	sleeps   []time.Duration
	sleepCap time.Duration
}

func (d *recordingDispatcher) Sleep(ctx context.Context, dur time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.sleeps = append(d.sleeps, dur)
	limit := d.sleepCap
	d.mu.Unlock()
	if limit > 0 {
		if dur > limit {
			dur = limit
		}
		time.Sleep(dur)
	}
	return nil
}

func (d *recordingDispatcher) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.events = append(d.events, data)
	d.mu.Unlock()
	return nil
}

func (d *recordingDispatcher) SendKeys(ctx context.Context, keys string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.keys = append(d.keys, keys)
	d.mu.Unlock()
	return nil
}

func (d *recordingDispatcher) snapshot() []schemas.MouseEventData {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]schemas.MouseEventData, len(d.events))
	copy(out, d.events)
	return out
}

// quietPersona zeroes the cursor noise so trajectories are exact.
func quietPersona() config.HumanoidConfig {
	return config.HumanoidConfig{
		Enabled:          true,
		FittsA:           100,
		FittsB:           50,
		PerlinAmplitude:  0,
		GaussianStrength: 0,
		ClickHoldMinMs:   1,
		ClickHoldMaxMs:   2,
		KeyHoldMeanMs:    30,
		KeyHoldStdDevMs:  0,
		KeyPauseMeanMs:   100,
		KeyPauseStdDevMs: 0,
		ScrollIncrements: 4,
	}
}

func newTestHumanoid(t *testing.T, d Dispatcher) *Humanoid {
	t.Helper()
	return New(quietPersona(), d, zaptest.NewLogger(t),
		WithRand(rand.New(rand.NewSource(42))),
		WithStartPosition(Vector2D{X: 50, Y: 50}))
}

func TestMoveTo_ReachesTargetExactly(t *testing.T) {
	disp := &recordingDispatcher{}
	h := newTestHumanoid(t, disp)
	target := Vector2D{X: 400, Y: 300}

	require.NoError(t, h.MoveTo(context.Background(), target, nil))

	events := disp.snapshot()
	require.GreaterOrEqual(t, len(events), 2, "a trajectory has intermediate points")
	for _, ev := range events {
		assert.Equal(t, schemas.MouseMove, ev.Type)
		assert.Equal(t, schemas.ButtonNone, ev.Button)
	}

	last := events[len(events)-1]
	assert.InDelta(t, target.X, last.X, 1e-9)
	assert.InDelta(t, target.Y, last.Y, 1e-9)

	pos := h.Position()
	assert.InDelta(t, target.X, pos.X, 1e-9)
	assert.InDelta(t, target.Y, pos.Y, 1e-9)
}

func TestMoveTo_CancelledContextStops(t *testing.T) {
	disp := &recordingDispatcher{}
	h := newTestHumanoid(t, disp)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.MoveTo(ctx, Vector2D{X: 500, Y: 500}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, disp.snapshot())
}

func TestClick_PressThenReleaseAtCurrentPosition(t *testing.T) {
	disp := &recordingDispatcher{}
	h := newTestHumanoid(t, disp)

	require.NoError(t, h.Click(context.Background()))

	events := disp.snapshot()
	require.Len(t, events, 2)

	press, release := events[0], events[1]
	assert.Equal(t, schemas.MousePress, press.Type)
	assert.Equal(t, schemas.ButtonLeft, press.Button)
	assert.Equal(t, int64(1), press.Buttons)
	assert.Equal(t, 1, press.ClickCount)
	assert.Equal(t, 50.0, press.X)
	assert.Equal(t, 50.0, press.Y)

	assert.Equal(t, schemas.MouseRelease, release.Type)
	assert.Equal(t, schemas.ButtonLeft, release.Button)
	assert.Equal(t, int64(0), release.Buttons)
	assert.Equal(t, press.X, release.X)
	assert.Equal(t, press.Y, release.Y)
}

func TestClickAt_LandsInsideElement(t *testing.T) {
	disp := &recordingDispatcher{}
	h := newTestHumanoid(t, disp)

	geo := &schemas.ElementGeometry{BBox: schemas.BBox{X: 200, Y: 100, W: 120, H: 40}}
	require.NoError(t, h.ClickAt(context.Background(), geo))

	events := disp.snapshot()
	require.GreaterOrEqual(t, len(events), 4, "moves plus press and release")

	press := events[len(events)-2]
	release := events[len(events)-1]
	require.Equal(t, schemas.MousePress, press.Type)
	require.Equal(t, schemas.MouseRelease, release.Type)

	assert.GreaterOrEqual(t, press.X, geo.BBox.X)
	assert.LessOrEqual(t, press.X, geo.BBox.X+geo.BBox.W)
	assert.GreaterOrEqual(t, press.Y, geo.BBox.Y)
	assert.LessOrEqual(t, press.Y, geo.BBox.Y+geo.BBox.H)
}

func TestScroll_IncrementsSumToAmount(t *testing.T) {
	disp := &recordingDispatcher{}
	h := newTestHumanoid(t, disp)

	require.NoError(t, h.Scroll(context.Background(), 600))

	var deltas []float64
	total := 0.0
	for _, ev := range disp.snapshot() {
		require.Equal(t, schemas.MouseWheel, ev.Type)
		deltas = append(deltas, ev.DeltaY)
		total += ev.DeltaY
	}
	assert.Equal(t, 600.0, total, "no pixel of the requested distance is dropped")
	require.GreaterOrEqual(t, len(deltas), 3)
	assert.Greater(t, deltas[0], deltas[1], "the gesture decelerates")
	assert.Greater(t, deltas[1], deltas[2])
}

func TestScroll_NegativeAndZeroAmounts(t *testing.T) {
	disp := &recordingDispatcher{}
	h := newTestHumanoid(t, disp)

	require.NoError(t, h.Scroll(context.Background(), 0))
	assert.Empty(t, disp.snapshot())

	require.NoError(t, h.Scroll(context.Background(), -300))
	total := 0.0
	for _, ev := range disp.snapshot() {
		total += ev.DeltaY
	}
	assert.Equal(t, -300.0, total)
}

func TestTypeText_PreservesCharacterOrder(t *testing.T) {
	disp := &recordingDispatcher{}
	h := newTestHumanoid(t, disp)

	require.NoError(t, h.TypeText(context.Background(), "hunter2!"))

	var typed string
	disp.mu.Lock()
	for _, k := range disp.keys {
		typed += k
	}
	disp.mu.Unlock()
	assert.Equal(t, "hunter2!", typed)
}

func TestTypeText_NgramsCompressFlightTime(t *testing.T) {
	disp := &recordingDispatcher{}
	h := newTestHumanoid(t, disp)

	// With zero deviation the recorded flight times are exact: 100ms for the
	// first key, 70ms for the "th" digraph, 55ms for the "the" trigraph.
	// Each key is followed by a 30ms hold sleep.
	require.NoError(t, h.TypeText(context.Background(), "the"))

	disp.mu.Lock()
	sleeps := append([]time.Duration(nil), disp.sleeps...)
	disp.mu.Unlock()

	require.Len(t, sleeps, 6)
	assert.Equal(t, 100*time.Millisecond, sleeps[0])
	assert.Equal(t, 70*time.Millisecond, sleeps[2])
	assert.Equal(t, 55*time.Millisecond, sleeps[4])
}

func TestCognitivePause_ShortPauseIsASingleSleep(t *testing.T) {
	disp := &recordingDispatcher{}
	h := newTestHumanoid(t, disp)

	require.NoError(t, h.CognitivePause(context.Background(), 50, 0))

	disp.mu.Lock()
	defer disp.mu.Unlock()
	assert.Len(t, disp.sleeps, 1)
	assert.Empty(t, disp.events, "short pauses do not move the cursor")
}

func TestCognitivePause_LongPauseDriftsCursor(t *testing.T) {
	disp := &recordingDispatcher{sleepCap: 2 * time.Millisecond}
	h := newTestHumanoid(t, disp)

	require.NoError(t, h.CognitivePause(context.Background(), 150, 0))

	events := disp.snapshot()
	require.NotEmpty(t, events, "long pauses idle with micro-movements")

	start := Vector2D{X: 50, Y: 50}
	for _, ev := range events {
		require.Equal(t, schemas.MouseMove, ev.Type)
		assert.InDelta(t, start.X, ev.X, 30, "drift stays near the resting point")
		assert.InDelta(t, start.Y, ev.Y, 30)
	}
}
