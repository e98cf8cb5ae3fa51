package pipeline_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scheerer/adalight-pipeline/internal/capture"
	"github.com/scheerer/adalight-pipeline/internal/colorvec"
	"github.com/scheerer/adalight-pipeline/internal/config"
	"github.com/scheerer/adalight-pipeline/internal/display"
	"github.com/scheerer/adalight-pipeline/internal/gamma"
	"github.com/scheerer/adalight-pipeline/internal/pipeline"
	"github.com/scheerer/adalight-pipeline/internal/sampler"
)

type fakeSource struct {
	mu        sync.Mutex
	snapshots int
	throttled bool
	frame     capture.Frame
}

func (f *fakeSource) Snapshot(ctx context.Context) ([]capture.DisplayResult, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	if f.throttled {
		return []capture.DisplayResult{{Status: capture.StatusThrottled}}, true, nil
	}
	return []capture.DisplayResult{{Status: capture.StatusFrame, Frame: f.frame}}, false, nil
}

func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots
}

type fakeSerialSink struct {
	mu     sync.Mutex
	sends  int
	closed bool
}

func (s *fakeSerialSink) Send(ctx context.Context, vector []colorvec.RGB) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	return nil
}

func (s *fakeSerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSerialSink) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends
}

type fakeOpcSink struct {
	mu     sync.Mutex
	sends  int
	closed bool
}

func (s *fakeOpcSink) Send(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
}

func (s *fakeOpcSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

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

func newTestSet() *display.Set {
	cfg := &config.Config{
		Displays: []config.DisplayConfig{{
			HorizontalCount: 1,
			VerticalCount:   1,
			Positions:       []config.LEDPosition{{X: 0, Y: 0}},
		}},
	}
	return display.NewSet(cfg)
}

var _ = Describe("Driver", func() {
	var (
		source *fakeSource
		serial *fakeSerialSink
		opc    *fakeOpcSink
		drv    *pipeline.Driver
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		source = &fakeSource{frame: solidFrame(1, 1, 100, 100, 100)}
		serial = &fakeSerialSink{}
		opc = &fakeOpcSink{}
		set := newTestSet()
		smp := sampler.New(gamma.New(), 0, 0)
		drv = pipeline.New(source, set, smp, serial, opc, 1000, 50)
		ctx, cancel = context.WithCancel(context.Background())
	})

	It("fans every tick out to both sinks", func() {
		go drv.Run(ctx)

		Eventually(func() int { return serial.sendCount() }, time.Second).Should(BeNumerically(">=", 2))
		Eventually(func() int {
			opc.mu.Lock()
			defer opc.mu.Unlock()
			return opc.sends
		}, time.Second).Should(BeNumerically(">=", 2))
		cancel()

		Eventually(func() bool {
			serial.mu.Lock()
			defer serial.mu.Unlock()
			return serial.closed
		}, time.Second).Should(BeTrue())
		Eventually(func() bool {
			opc.mu.Lock()
			defer opc.mu.Unlock()
			return opc.closed
		}, time.Second).Should(BeTrue())
	})

	It("stops sending to sinks once throttled and resumes when capturable again", func() {
		source.mu.Lock()
		source.throttled = true
		source.mu.Unlock()

		go drv.Run(ctx)

		Consistently(func() int { return serial.sendCount() }, 150*time.Millisecond).Should(Equal(0))

		source.mu.Lock()
		source.throttled = false
		source.mu.Unlock()

		Eventually(func() int { return serial.sendCount() }, time.Second).Should(BeNumerically(">=", 1))
		cancel()
	})
})
