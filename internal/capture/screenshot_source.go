package capture

import (
	"context"

	"github.com/kbinani/screenshot"
)

// ThrottleDetector reports whether the current desktop session is not
// capturable at all (Throttled is true during e.g. a UAC secure-desktop
// prompt). It is
// a narrow, platform-specific capability — see throttle_windows.go and
// throttle_other.go.
type ThrottleDetector interface {
	Throttled() bool
}

// ScreenshotSource is the default Source, built on
// github.com/kbinani/screenshot for per-display bitmap capture.
type ScreenshotSource struct {
	displayCount int
	throttle     ThrottleDetector
}

// NewScreenshotSource builds a Source over the first displayCount active
// displays as enumerated by the OS.
func NewScreenshotSource(displayCount int, throttle ThrottleDetector) *ScreenshotSource {
	return &ScreenshotSource{displayCount: displayCount, throttle: throttle}
}

func (s *ScreenshotSource) Snapshot(ctx context.Context) ([]DisplayResult, bool, error) {
	if s.throttle.Throttled() {
		results := make([]DisplayResult, s.displayCount)
		for i := range results {
			results[i] = DisplayResult{Status: StatusThrottled}
		}
		return results, true, nil
	}

	active := screenshot.NumActiveDisplays()
	results := make([]DisplayResult, s.displayCount)

	for i := 0; i < s.displayCount; i++ {
		if i >= active {
			results[i] = DisplayResult{Status: StatusTransientFailure}
			continue
		}

		img, err := screenshot.CaptureDisplay(i)
		if err != nil {
			results[i] = DisplayResult{Status: StatusTransientFailure}
			continue
		}

		results[i] = DisplayResult{
			Status: StatusFrame,
			Frame: Frame{
				Pixels: img.Pix,
				Stride: img.Stride,
				Width:  img.Rect.Dx(),
				Height: img.Rect.Dy(),
			},
		}
	}

	return results, false, nil
}

func (s *ScreenshotSource) Close() error { return nil }
