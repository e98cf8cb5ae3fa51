// Package sampler averages pixels inside each LED's sampling rectangle,
// applies gamma, fade, and minimum brightness, and updates the owning
// display's prior-frame vector in place.
package sampler

import (
	"math"

	"github.com/scheerer/adalight-pipeline/internal/capture"
	"github.com/scheerer/adalight-pipeline/internal/colorvec"
	"github.com/scheerer/adalight-pipeline/internal/display"
	"github.com/scheerer/adalight-pipeline/internal/gamma"
)

// Sampler converts one display's frame into a fresh color vector, written
// into that display's prior-frame vector.
type Sampler struct {
	gamma         *gamma.Table
	fade          float64
	minBrightness int
}

// New builds a Sampler. fade must be within [0, 0.5] and minBrightness
// within [0, 255] — both are validated by internal/config before reaching
// here.
func New(table *gamma.Table, fade float64, minBrightness int) *Sampler {
	return &Sampler{gamma: table, fade: fade, minBrightness: minBrightness}
}

// Sample processes one display's frame against its rectangles and prior
// vector, mutating the prior vector in place with the new post-fade,
// post-floor colors. It does not check the frame's dimensions against the
// ones the display's rectangles were computed for; callers must
// RecomputeRects first.
func (s *Sampler) Sample(d *display.Display, frame capture.Frame) {
	rects := d.Rects()
	prior := d.Prior()

	for i, rect := range rects {
		avgR, avgG, avgB := averageRect(frame, rect)

		gammaR := s.gamma.Red(avgR)
		gammaG := s.gamma.Green(avgG)
		gammaB := s.gamma.Blue(avgB)

		p := prior[i]
		fadedR := fade(gammaR, p.R, s.fade)
		fadedG := fade(gammaG, p.G, s.fade)
		fadedB := fade(gammaB, p.B, s.fade)

		prior[i] = floor(colorvec.RGB{R: fadedR, G: fadedG, B: fadedB}, s.minBrightness)
	}
}

// averageRect computes the full-rectangle mean of every pixel inside rect,
// truncating with integer division. Every pixel is included; no
// sub-sampling is performed, per spec.
func averageRect(frame capture.Frame, rect display.Rect) (r, g, b uint8) {
	var sumR, sumG, sumB, count int

	for y := rect.Y0; y < rect.Y1; y++ {
		rowStart := y * frame.Stride
		for x := rect.X0; x < rect.X1; x++ {
			offset := rowStart + x*4
			sumR += int(frame.Pixels[offset])
			sumG += int(frame.Pixels[offset+1])
			sumB += int(frame.Pixels[offset+2])
			count++
		}
	}

	if count == 0 {
		return 0, 0, 0
	}

	return uint8(sumR / count), uint8(sumG / count), uint8(sumB / count)
}

// fade blends a freshly sampled, gamma-corrected channel value c with the
// prior channel value p, weighted by the configured fade factor. With
// fade == 0 the emitted value is c unchanged.
func fade(c, p uint8, f float64) uint8 {
	if f == 0 {
		return c
	}
	v := float64(c)*(1-f) + float64(p)*f
	return uint8(math.Round(v))
}

// floor replaces every channel of c with minBrightness/3 (integer
// division, remainder dropped) whenever the post-fade channel sum is below
// minBrightness. The comparison is on the sum, not per channel.
func floor(c colorvec.RGB, minBrightness int) colorvec.RGB {
	if c.Sum() >= minBrightness {
		return c
	}
	v := uint8(minBrightness / 3)
	return colorvec.RGB{R: v, G: v, B: v}
}
