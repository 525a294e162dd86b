// internal/humanoid/trajectory.go
package humanoid

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// computeEaseInOutCubic provides a smooth acceleration and deceleration
// profile for movement.
func computeEaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// calculateFittsLaw determines a realistic movement duration based on
// Fitts's Law, which models the time required to move to a target area.
func (h *Humanoid) calculateFittsLaw(distance float64) time.Duration {
	const targetWidth = 30.0 // assumed default target width in pixels

	id := math.Log2(1.0 + distance/targetWidth)

	h.mu.Lock()
	a, b := h.cfg.FittsA, h.cfg.FittsB
	jitter := h.rng.Float64()*0.3 - 0.15
	h.mu.Unlock()

	mt := a + b*id
	mt += mt * jitter // +/- 15%
	return time.Duration(mt) * time.Millisecond
}

// generateIdealPath creates a quadratic-to-cubic Bezier trajectory deformed
// by forces from a potential field.
func (h *Humanoid) generateIdealPath(start, end Vector2D, field *PotentialField, numSteps int) []Vector2D {
	p0, p3 := start, end
	mainVec := end.Sub(start)
	dist := mainVec.Mag()

	if dist < 1.0 || numSteps <= 1 {
		return []Vector2D{end}
	}

	mainDir := mainVec.Normalize()

	// Sample forces at 1/3rd and 2/3rds along the path to place control points.
	sample1 := start.Add(mainDir.Mul(dist / 3.0))
	force1 := field.CalculateNetForce(sample1)
	sample2 := start.Add(mainDir.Mul(dist * 2.0 / 3.0))
	force2 := field.CalculateNetForce(sample2)

	p1 := sample1.Add(force1.Mul(dist * 0.1))
	p2 := sample2.Add(force2.Mul(dist * 0.1))

	path := make([]Vector2D, numSteps)
	for i := 0; i < numSteps; i++ {
		t := float64(i) / float64(numSteps-1)
		omt := 1.0 - t
		omt2 := omt * omt
		omt3 := omt2 * omt
		t2 := t * t
		t3 := t2 * t
		path[i] = p0.Mul(omt3).Add(p1.Mul(3 * omt2 * t)).Add(p2.Mul(3 * omt * t2)).Add(p3.Mul(t3))
	}
	return path
}

// MoveTo moves the pointer from its current position to target along a
// generated curve, dispatching a mouseMoved event per segment with eased
// per-segment delays and Perlin/Gaussian perturbation.
func (h *Humanoid) MoveTo(ctx context.Context, target Vector2D, field *PotentialField) error {
	h.mu.Lock()
	start := h.currentPos
	h.mu.Unlock()

	if field == nil {
		field = NewPotentialField()
	}

	dist := start.Dist(target)
	duration := h.calculateFittsLaw(dist)
	numSteps := int(duration.Seconds() * 100)
	if numSteps < 2 {
		numSteps = 2
	}

	path := h.generateIdealPath(start, target, field, numSteps)
	startTime := time.Now()

	for i := 0; i < len(path); i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Ease time to simulate acceleration and deceleration.
		t := float64(i) / float64(len(path)-1)
		easedT := computeEaseInOutCubic(t)
		idx := int(easedT * float64(len(path)-1))
		if idx >= len(path) {
			idx = len(path) - 1
		}
		pos := path[idx]

		// Sleep until this segment's target time if we are ahead of schedule.
		segmentTime := startTime.Add(time.Duration(easedT * float64(duration)))
		if wait := time.Until(segmentTime); wait > 0 {
			if err := h.dispatcher.Sleep(ctx, wait); err != nil {
				return err
			}
		}

		perturbed := h.perturb(pos, time.Since(startTime).Seconds())

		event := schemas.MouseEventData{
			Type:   schemas.MouseMove,
			X:      perturbed.X,
			Y:      perturbed.Y,
			Button: schemas.ButtonNone,
		}
		if err := h.dispatcher.DispatchMouseEvent(ctx, event); err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("Failed to dispatch mouse move event", zap.Error(err))
			}
			return err
		}

		h.mu.Lock()
		h.currentPos = perturbed
		randPart := h.rng.Intn(4)
		h.mu.Unlock()

		// Tiny per-event delay mimicking the host event loop.
		if err := h.dispatcher.Sleep(ctx, time.Duration(2+randPart)*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

// perturb applies Perlin drift plus Gaussian jitter to a path point.
func (h *Humanoid) perturb(pos Vector2D, elapsed float64) Vector2D {
	const perlinFrequency = 0.8

	h.mu.Lock()
	amp := h.cfg.PerlinAmplitude
	gauss := h.cfg.GaussianStrength
	nx := h.rng.NormFloat64()
	ny := h.rng.NormFloat64()
	h.mu.Unlock()

	drift := Vector2D{
		X: h.noiseX.Noise1D(elapsed*perlinFrequency) * amp,
		Y: h.noiseY.Noise1D(elapsed*perlinFrequency) * amp,
	}
	jitter := Vector2D{X: nx * gauss, Y: ny * gauss}
	return pos.Add(drift).Add(jitter)
}

// ClickAt moves to a realistic point inside the element geometry, dwells
// briefly, then clicks. The landing point follows a Gaussian distribution
// around the element center, clamped to its effective area.
func (h *Humanoid) ClickAt(ctx context.Context, geo *schemas.ElementGeometry) error {
	target := h.pickTargetPoint(geo)
	if err := h.MoveTo(ctx, target, nil); err != nil {
		return err
	}
	// Short randomized dwell between arriving and pressing.
	if err := h.dispatcher.Sleep(ctx, h.randDurationMs(90, 35, 30)); err != nil {
		return err
	}
	return h.Click(ctx)
}

// Click presses and releases the left button at the current pointer position
// with a randomized hold between the two events.
func (h *Humanoid) Click(ctx context.Context) error {
	h.mu.Lock()
	pos := h.currentPos
	hold := h.cfg.ClickHoldMinMs
	if span := h.cfg.ClickHoldMaxMs - h.cfg.ClickHoldMinMs; span > 0 {
		hold += h.rng.Intn(span + 1)
	}
	h.mu.Unlock()

	press := schemas.MouseEventData{
		Type:       schemas.MousePress,
		X:          pos.X,
		Y:          pos.Y,
		Button:     schemas.ButtonLeft,
		Buttons:    1,
		ClickCount: 1,
	}
	if err := h.dispatcher.DispatchMouseEvent(ctx, press); err != nil {
		return err
	}
	if err := h.dispatcher.Sleep(ctx, time.Duration(hold)*time.Millisecond); err != nil {
		return err
	}
	release := press
	release.Type = schemas.MouseRelease
	release.Buttons = 0
	return h.dispatcher.DispatchMouseEvent(ctx, release)
}

// pickTargetPoint picks a Gaussian-distributed point inside the effective
// target area (90% of the element's dimensions).
func (h *Humanoid) pickTargetPoint(geo *schemas.ElementGeometry) Vector2D {
	if geo == nil || geo.BBox.Empty() {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.currentPos
	}
	cx, cy := geo.BBox.Center()

	effW := geo.BBox.W * 0.9
	effH := geo.BBox.H * 0.9

	h.mu.Lock()
	offX := h.rng.NormFloat64() * (effW / 6.0)
	offY := h.rng.NormFloat64() * (effH / 6.0)
	h.mu.Unlock()

	offX = clamp(offX, -effW/2, effW/2)
	offY = clamp(offY, -effH/2, effH/2)
	return Vector2D{X: cx + offX, Y: cy + offY}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
