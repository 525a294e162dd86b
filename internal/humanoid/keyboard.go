// internal/humanoid/keyboard.go
package humanoid

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// commonNgrams covers digraphs and trigraphs a practiced typist rolls through
// faster than isolated keys.
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
	"the": true, "and": true, "ing": true, "ion": true, "tio": true,
}

// TypeText emits text one character at a time with normally-distributed
// inter-key delays and hold times. Delays are never uniform: common n-grams
// compress the rhythm, everything else follows the configured persona.
func (h *Humanoid) TypeText(ctx context.Context, text string) error {
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if err := h.keyPause(ctx, runes, i); err != nil {
			return err
		}
		if err := h.sendKey(ctx, runes[i]); err != nil {
			return fmt.Errorf("humanoid: failed to send key %q: %w", runes[i], err)
		}
	}
	return nil
}

// sendKey dispatches a single key and simulates its hold duration.
func (h *Humanoid) sendKey(ctx context.Context, key rune) error {
	if err := h.dispatcher.SendKeys(ctx, string(key)); err != nil {
		return err
	}
	hold := h.randDurationMs(h.cfg.KeyHoldMeanMs, h.cfg.KeyHoldStdDevMs, 20)
	return h.dispatcher.Sleep(ctx, hold)
}

// keyPause introduces a human-like inter-key delay (flight time), compressed
// for common n-grams.
func (h *Humanoid) keyPause(ctx context.Context, runes []rune, index int) error {
	mean := h.cfg.KeyPauseMeanMs
	stdDev := h.cfg.KeyPauseStdDevMs
	minDelay := mean / 2
	ngramFactor := 1.0

	if index > 0 && index < len(runes) {
		if index >= 2 {
			trigraph := strings.ToLower(string(runes[index-2 : index+1]))
			if commonNgrams[trigraph] {
				ngramFactor = 0.55
			}
		}
		if ngramFactor == 1.0 {
			digraph := strings.ToLower(string(runes[index-1 : index+1]))
			if commonNgrams[digraph] {
				ngramFactor = 0.7
			}
		}
	}

	mean *= ngramFactor
	minDelay *= ngramFactor

	delay := h.randDurationMs(mean, stdDev, math.Max(1, minDelay))
	return h.dispatcher.Sleep(ctx, delay)
}
