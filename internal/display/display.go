// Package display owns per-display geometry (LED count, edge positions,
// per-LED sampling rectangles) and the rolling prior-frame color vector that
// the sampler reads and writes every tick.
package display

import (
	"github.com/scheerer/adalight-pipeline/internal/colorvec"
	"github.com/scheerer/adalight-pipeline/internal/config"
)

// Rect is a pixel-space sampling rectangle, half-open on both axes:
// [X0, X1) x [Y0, Y1).
type Rect struct {
	X0, Y0, X1, Y1 int
}

// Width returns the rectangle's pixel width.
func (r Rect) Width() int { return r.X1 - r.X0 }

// Height returns the rectangle's pixel height.
func (r Rect) Height() int { return r.Y1 - r.Y0 }

// Display is the runtime state for one configured display: its static
// config, its per-LED sampling rectangles (recomputed only when the
// display's pixel dimensions change), and its prior-frame color vector.
type Display struct {
	cfg config.DisplayConfig

	pixelW, pixelH int
	rects          []Rect
	prior          []colorvec.RGB
}

func newDisplay(cfg config.DisplayConfig) *Display {
	d := &Display{cfg: cfg}
	d.prior = make([]colorvec.RGB, cfg.LEDCount())
	return d
}

// IsSkip reports whether this display is a skip placeholder.
func (d *Display) IsSkip() bool { return d.cfg.IsSkip() }

// LEDCount returns the number of LEDs on this display.
func (d *Display) LEDCount() int { return len(d.prior) }

// Rects returns the current sampling rectangles, one per LED in wire order.
// Empty until the first call to RecomputeRects.
func (d *Display) Rects() []Rect { return d.rects }

// Prior returns the display's prior-frame color vector. The sampler mutates
// entries in place; no other stage should write to it.
func (d *Display) Prior() []colorvec.RGB { return d.prior }

// RecomputeRects rebuilds the sampling rectangles for actual pixel
// dimensions (pixelW, pixelH), but only if they differ from the last
// computed dimensions or no rectangles exist yet. Cell (x, y) maps to
// [floor(x*W/H), floor((x+1)*W/H)) x [floor(y*H_px/V), floor((y+1)*H_px/V)),
// so adjacent cells share edges with no gap and no overlap.
func (d *Display) RecomputeRects(pixelW, pixelH int) {
	if d.rects != nil && d.pixelW == pixelW && d.pixelH == pixelH {
		return
	}

	d.pixelW, d.pixelH = pixelW, pixelH
	d.rects = make([]Rect, len(d.cfg.Positions))
	h, v := d.cfg.HorizontalCount, d.cfg.VerticalCount

	for i, pos := range d.cfg.Positions {
		d.rects[i] = Rect{
			X0: pixelW * pos.X / h,
			X1: pixelW * (pos.X + 1) / h,
			Y0: pixelH * pos.Y / v,
			Y1: pixelH * (pos.Y + 1) / v,
		}
	}
}

// Set owns one Display per configured display, indexed identically to
// config.Config.Displays (including skip placeholders, which carry zero
// LEDs and are never rendered).
type Set struct {
	cfg      *config.Config
	displays []*Display
}

// NewSet allocates a Set from a validated Config.
func NewSet(cfg *config.Config) *Set {
	s := &Set{cfg: cfg, displays: make([]*Display, len(cfg.Displays))}
	for i, dc := range cfg.Displays {
		s.displays[i] = newDisplay(dc)
	}
	return s
}

// Count returns the number of configured display slots (including
// placeholders).
func (s *Set) Count() int { return len(s.displays) }

// Display returns the runtime Display at configuration index i.
func (s *Set) Display(i int) *Display { return s.displays[i] }

// Lookup returns the current color of LED j on display i, as last written
// by the sampler. Used by OPC sinks to gather a channel's source vector.
func (s *Set) Lookup(displayIndex, led int) colorvec.RGB {
	return s.displays[displayIndex].prior[led]
}

// GlobalVector concatenates every non-skip display's current color vector
// in configuration order.
func (s *Set) GlobalVector() []colorvec.RGB {
	out := make([]colorvec.RGB, 0, s.cfg.TotalLEDCount())
	for _, d := range s.displays {
		if d.IsSkip() {
			continue
		}
		out = append(out, d.prior...)
	}
	return out
}
