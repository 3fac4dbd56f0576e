package viewport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsmoker-project/chainsmoker/internal/tactic"
)

var full = tactic.All() // Execution at 1, C2 at 9, Exfiltration at 10

func window(y0, y1 float64) Window {
	return Window{
		X: [2]string{"2025-04-01T08:00:00Z", "2025-04-01T12:00:00Z"},
		Y: [2]float64{y0, y1},
	}
}

func TestTranslateCompactToFull(t *testing.T) {
	compact := []string{"Execution", "C2", "Exfiltration"}

	// Spec'd scenario: [1.2, 3.8] anchors on ceil(1.2)=2 and floor(3.8)=3,
	// clamped to row 2 (Exfiltration, full index 10), offsets re-applied.
	out, fallbacks, err := Translate(window(1.2, 3.8), compact, full)
	require.NoError(t, err)
	assert.Empty(t, fallbacks)
	assert.InDelta(t, 10-0.2, out.Y[0], 1e-9)
	assert.InDelta(t, 10+0.8, out.Y[1], 1e-9)

	// X passes through untouched.
	assert.Equal(t, window(0, 0).X, out.X)
}

func TestTranslateDistinctAnchors(t *testing.T) {
	compact := []string{"Execution", "C2", "Exfiltration"}

	// [0.5, 2.0]: anchors ceil(0.5)=1 (C2 -> 9) and floor(2.0)=2
	// (Exfiltration -> 10).
	out, fallbacks, err := Translate(window(0.5, 2.0), compact, full)
	require.NoError(t, err)
	assert.Empty(t, fallbacks)
	assert.InDelta(t, 9-0.5, out.Y[0], 1e-9)
	assert.InDelta(t, 10.0, out.Y[1], 1e-9)
}

func TestTranslateRoundTrip(t *testing.T) {
	compact := []string{"Execution", "C2", "Exfiltration"}

	windows := [][2]float64{
		{1.2, 2.8},
		{0.5, 1.5},
		{0.0, 2.0},
		{1.0, 1.9},
	}
	for _, y := range windows {
		there, _, err := Translate(window(y[0], y[1]), compact, full)
		require.NoError(t, err)
		back, _, err := Translate(there, full, compact)
		require.NoError(t, err)
		assert.InDelta(t, y[0], back.Y[0], 1.0, "y0 of %v", y)
		assert.InDelta(t, y[1], back.Y[1], 1.0, "y1 of %v", y)
	}
}

func TestTranslateRoundTripExactWhenAnchorsShared(t *testing.T) {
	compact := []string{"Execution", "C2", "Exfiltration"}

	there, _, err := Translate(window(1.2, 2.8), compact, full)
	require.NoError(t, err)
	back, _, err := Translate(there, full, compact)
	require.NoError(t, err)
	assert.InDelta(t, 1.2, back.Y[0], 1e-9)
	assert.InDelta(t, 2.8, back.Y[1], 1e-9)
}

func TestTranslateFullToCompactFallback(t *testing.T) {
	compact := []string{"Execution", "C2", "Exfiltration"}

	// Window anchored on Persistence (full row 2), which has no events:
	// nearest source row whose tactic exists in compact is Execution
	// (row 1, distance 1).
	out, fallbacks, err := Translate(window(1.5, 2.5), full, compact)
	require.NoError(t, err)

	// i0 = ceil(1.5) = 2 (Persistence) -> fallback; i1 = floor(2.5) = 2.
	require.Len(t, fallbacks, 2)
	assert.Equal(t, "Persistence", fallbacks[0].Tactic)
	assert.Equal(t, "Execution", fallbacks[0].Substitute)

	// Execution sits at compact index 0.
	assert.InDelta(t, 0-0.5, out.Y[0], 1e-9)
	assert.InDelta(t, 0+0.5, out.Y[1], 1e-9)
}

func TestTranslateFallbackTieBreaksTowardCenter(t *testing.T) {
	from := []string{"A", "Shared1", "Gap", "Shared2", "B"}
	to := []string{"Shared1", "Shared2"}

	// Anchor row 2 ("Gap") is equidistant from rows 1 and 3; the window
	// center (3.0) is nearer row 3, so Shared2 wins.
	out, fallbacks, err := Translate(Window{Y: [2]float64{2.0, 4.0}}, from, to)
	require.NoError(t, err)
	require.NotEmpty(t, fallbacks)
	assert.Equal(t, "Shared2", fallbacks[0].Substitute)
	assert.InDelta(t, 1.0, out.Y[0], 1e-9)
}

func TestTranslateClampsOutOfRangeWindow(t *testing.T) {
	compact := []string{"Execution", "C2"}

	// Window extends past the plotted rows on both sides.
	out, _, err := Translate(window(-3.4, 7.9), compact, full)
	require.NoError(t, err)
	// Both anchors clamp to valid rows: ceil(-3.4)=-3 -> 0 (Execution at 1),
	// floor(7.9)=7 -> 1 (C2 at 9).
	assert.InDelta(t, 1-frac(-3.4), out.Y[0], 1e-9)
	assert.InDelta(t, 9+frac(7.9), out.Y[1], 1e-9)
}

func TestTranslateNoCommonCategory(t *testing.T) {
	_, _, err := Translate(window(0, 1), []string{"X"}, []string{"Y"})
	assert.ErrorIs(t, err, ErrNoCommonCategory)

	_, _, err = Translate(window(0, 1), nil, full)
	assert.ErrorIs(t, err, ErrNoCommonCategory)
}
