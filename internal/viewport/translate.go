// Package viewport translates a pan/zoom window between the compact and
// full views' y-axis coordinate spaces so a toggle never jumps visually.
//
// A window's y-range is expressed in fractional category-index units:
// 1.4 means 40% of the way between category row 1 and row 2. Translation
// anchors on whole rows that are certainly on screen, maps them by
// category name into the target list, and re-applies the fractional
// sub-row offsets the analyst had.
package viewport

import (
	"errors"
	"fmt"
	"math"
)

// Window is a zoom window in one view's coordinate space. X carries the
// time-axis range opaquely; only the categorical y-axis needs remapping.
type Window struct {
	X [2]string  `json:"x"`
	Y [2]float64 `json:"y"`
}

// Fallback records a nearest-neighbor substitution made because an
// anchor row's category does not exist in the target view. It is logged
// by callers, never surfaced as an error: the visual result is still
// reasonable.
type Fallback struct {
	Anchor     int    // source row index that had no direct mapping
	Tactic     string // category at the anchor row
	Substitute string // neighboring category actually used
	Row        int    // source row index of the substitute
}

func (f Fallback) String() string {
	return fmt.Sprintf("row %d (%s) not in target view, substituted row %d (%s)",
		f.Anchor, f.Tactic, f.Row, f.Substitute)
}

// ErrNoCommonCategory means the source and target category lists share
// no names at all, so no translation is possible. Callers render the
// target view at its default extent.
var ErrNoCommonCategory = errors.New("no category common to both views")

func clamp(i, lo, hi int) int {
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}

func frac(v float64) float64 {
	return v - math.Floor(v)
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}

// Translate maps the window's y-range from the source view's category
// space into the target's, preserving fractional sub-row offsets. The
// x-range passes through unchanged. Any nearest-neighbor substitutions
// are returned for logging.
func Translate(win Window, from, to []string) (Window, []Fallback, error) {
	if len(from) == 0 || len(to) == 0 {
		return win, nil, ErrNoCommonCategory
	}

	y0, y1 := win.Y[0], win.Y[1]

	// Anchor on the first fully visible row above y0 and the last fully
	// visible row below y1. The ceil/floor tie-break is deliberate: the
	// fractional edges may not have a counterpart row in the target list.
	i0 := clamp(int(math.Ceil(y0)), 0, len(from)-1)
	i1 := clamp(int(math.Floor(y1)), 0, len(from)-1)

	center := (y0 + y1) / 2

	var fallbacks []Fallback
	resolve := func(anchor int) (int, error) {
		if idx := indexOf(to, from[anchor]); idx >= 0 {
			return idx, nil
		}
		sub, err := nearestShared(from, to, anchor, center)
		if err != nil {
			return 0, err
		}
		fallbacks = append(fallbacks, Fallback{
			Anchor:     anchor,
			Tactic:     from[anchor],
			Substitute: from[sub],
			Row:        sub,
		})
		return indexOf(to, from[sub]), nil
	}

	t0, err := resolve(i0)
	if err != nil {
		return win, nil, err
	}
	t1, err := resolve(i1)
	if err != nil {
		return win, nil, err
	}

	out := win
	out.Y = [2]float64{
		float64(t0) - frac(y0),
		float64(t1) + frac(y1),
	}
	return out, fallbacks, nil
}

// nearestShared finds the source row closest to anchor whose category
// also exists in the target list. Ties by row distance break toward the
// row nearer the window's center.
func nearestShared(from, to []string, anchor int, center float64) (int, error) {
	best := -1
	bestDist := 0
	for i := range from {
		if indexOf(to, from[i]) < 0 {
			continue
		}
		dist := i - anchor
		if dist < 0 {
			dist = -dist
		}
		switch {
		case best < 0 || dist < bestDist:
			best, bestDist = i, dist
		case dist == bestDist:
			if math.Abs(float64(i)-center) < math.Abs(float64(best)-center) {
				best = i
			}
		}
	}
	if best < 0 {
		return 0, ErrNoCommonCategory
	}
	return best, nil
}
