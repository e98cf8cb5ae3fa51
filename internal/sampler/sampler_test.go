package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scheerer/adalight-pipeline/internal/capture"
	"github.com/scheerer/adalight-pipeline/internal/colorvec"
	"github.com/scheerer/adalight-pipeline/internal/config"
	"github.com/scheerer/adalight-pipeline/internal/display"
	"github.com/scheerer/adalight-pipeline/internal/gamma"
)

func rgb(r, g, b uint8) colorvec.RGB { return colorvec.RGB{R: r, G: g, B: b} }

func solidFrame(w, h int, r, g, b byte) capture.Frame {
	stride := w * 4
	pix := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := y*stride + x*4
			pix[o], pix[o+1], pix[o+2], pix[o+3] = r, g, b, 0xFF
		}
	}
	return capture.Frame{Pixels: pix, Stride: stride, Width: w, Height: h}
}

func oneLEDSet(t *testing.T) *display.Set {
	t.Helper()
	cfg := &config.Config{
		Displays: []config.DisplayConfig{{
			HorizontalCount: 1,
			VerticalCount:   1,
			Positions:       []config.LEDPosition{{X: 0, Y: 0}},
		}},
	}
	set := display.NewSet(cfg)
	set.Display(0).RecomputeRects(1, 1)
	return set
}

func TestSingleLEDSolidRed(t *testing.T) {
	set := oneLEDSet(t)
	gammaTable := gamma.New()
	s := New(gammaTable, 0, 0)

	frame := solidFrame(1, 1, 255, 0, 0)
	s.Sample(set.Display(0), frame)

	got := set.Display(0).Prior()[0]
	assert.Equal(t, rgb(gammaTable.Red(255), gammaTable.Green(0), gammaTable.Blue(0)), got)
}

func TestMinimumBrightnessFloor(t *testing.T) {
	set := oneLEDSet(t)
	s := New(gamma.New(), 0, 64)

	// gamma is applied, but (10,10,10) maps to (0,0,0) through the table,
	// so the post-fade sum stays below 64 and the floor takes over.
	frame := solidFrame(1, 1, 10, 10, 10)
	s.Sample(set.Display(0), frame)

	got := set.Display(0).Prior()[0]
	assert.Equal(t, uint8(64/3), got.R)
	assert.Equal(t, got.R, got.G)
	assert.Equal(t, got.R, got.B)
}

func TestFadeConvergesToFixedPoint(t *testing.T) {
	set := oneLEDSet(t)
	gammaTable := gamma.New()
	s := New(gammaTable, 0.5, 0)

	// Feed a raw frame whose gamma-corrected value is exactly 128 for every
	// channel isn't guaranteed by the asymmetric table, so instead confirm
	// convergence using the gamma-corrected average directly: pick a raw
	// input and check that after many ticks the prior equals gamma(mean).
	frame := solidFrame(1, 1, 200, 200, 200)
	target := rgb(gammaTable.Red(200), gammaTable.Green(200), gammaTable.Blue(200))

	for i := 0; i < 40; i++ {
		s.Sample(set.Display(0), frame)
	}

	got := set.Display(0).Prior()[0]
	assert.InDelta(t, int(target.R), int(got.R), 1)
	assert.InDelta(t, int(target.G), int(got.G), 1)
	assert.InDelta(t, int(target.B), int(got.B), 1)
}

func TestAverageIsFullRectangleMean(t *testing.T) {
	set := oneLEDSet(t)
	set.Display(0).RecomputeRects(2, 2)
	s := New(gamma.New(), 0, 0)

	stride := 2 * 4
	pix := make([]byte, stride*2)
	// four pixel colors; mean should be exact integer average.
	colors := [4][3]byte{{0, 0, 0}, {100, 100, 100}, {100, 100, 100}, {200, 200, 200}}
	i := 0
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			o := y*stride + x*4
			pix[o], pix[o+1], pix[o+2] = colors[i][0], colors[i][1], colors[i][2]
			i++
		}
	}
	frame := capture.Frame{Pixels: pix, Stride: stride, Width: 2, Height: 2}

	s.Sample(set.Display(0), frame)
	got := set.Display(0).Prior()[0]

	gammaTable := gamma.New()
	want := rgb(gammaTable.Red(100), gammaTable.Green(100), gammaTable.Blue(100))
	assert.Equal(t, want, got)
}
