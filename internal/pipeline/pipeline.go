// Package pipeline implements the Driver: a single cooperative loop that
// ties capture, sampling, and the serial/OPC sinks together at a governed
// frame rate. Grounded in the teacher's Run loop (main.go) — same no-catchup
// tick timing, same select-on-ctx.Done shutdown poll — generalized from one
// capture-source-to-one-light-service to many displays and many sinks.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/scheerer/adalight-pipeline/internal/capture"
	"github.com/scheerer/adalight-pipeline/internal/colorvec"
	"github.com/scheerer/adalight-pipeline/internal/display"
	"github.com/scheerer/adalight-pipeline/internal/logging"
	"github.com/scheerer/adalight-pipeline/internal/sampler"
)

var logger = logging.New("pipeline")

// SerialSink is the subset of serialsink.Sink the driver depends on.
type SerialSink interface {
	Send(ctx context.Context, vector []colorvec.RGB) error
	Close() error
}

// OpcSink is the subset of opcsink.Sink the driver depends on.
type OpcSink interface {
	Send(ctx context.Context)
	Close() error
}

// Driver runs the capture -> sample -> fan-out loop until its context is
// cancelled.
type Driver struct {
	source  capture.Source
	set     *display.Set
	sampler *sampler.Sampler
	serial  SerialSink
	opc     OpcSink

	fpsMax        int
	throttleTimer time.Duration
}

// New builds a Driver. Sinks are closed in the reverse of the order they
// were created by the caller (serial, then OPC), matching the teacher's
// defer-stack convention for cleanup ordering.
func New(source capture.Source, set *display.Set, smp *sampler.Sampler, serial SerialSink, opc OpcSink, fpsMax, throttleTimerMs int) *Driver {
	return &Driver{
		source:        source,
		set:           set,
		sampler:       smp,
		serial:        serial,
		opc:           opc,
		fpsMax:        fpsMax,
		throttleTimer: time.Duration(throttleTimerMs) * time.Millisecond,
	}
}

// Run executes ticks until ctx is cancelled. Each tick: snapshot capture,
// sample every display with a fresh frame, fan the resulting global vector
// out to the serial sink and every OPC sink, then sleep for whatever
// remains of the frame budget. An overrun tick never makes up lost time —
// the next tick starts immediately.
func (d *Driver) Run(ctx context.Context) error {
	frameBudget := time.Second / time.Duration(d.fpsMax)

	for {
		select {
		case <-ctx.Done():
			return d.close()
		default:
		}

		tickStart := time.Now()

		results, throttled, err := d.source.Snapshot(ctx)
		if err != nil {
			logger.With(zap.Error(err)).Error("Capture snapshot failed")
			elapsed := time.Since(tickStart)
			if remaining := frameBudget - elapsed; remaining > 0 {
				sleepOrDone(ctx, remaining)
			}
			continue
		}

		if throttled {
			logger.Debug("Desktop not capturable, throttling")
			sleepOrDone(ctx, d.throttleTimer)
			continue
		}

		d.sampleAll(results)

		vector := d.set.GlobalVector()
		if err := d.serial.Send(ctx, vector); err != nil {
			logger.With(zap.Error(err)).Warn("Serial sink send failed")
		}
		d.opc.Send(ctx)

		elapsed := time.Since(tickStart)
		if remaining := frameBudget - elapsed; remaining > 0 {
			sleepOrDone(ctx, remaining)
		}
	}
}

func (d *Driver) sampleAll(results []capture.DisplayResult) {
	for i, r := range results {
		if i >= d.set.Count() {
			break
		}
		disp := d.set.Display(i)
		if disp.IsSkip() {
			continue
		}
		switch r.Status {
		case capture.StatusFrame:
			disp.RecomputeRects(r.Frame.Width, r.Frame.Height)
			d.sampler.Sample(disp, r.Frame)
		case capture.StatusUnchanged:
			// prior vector is already correct; nothing to do.
		case capture.StatusTransientFailure:
			logger.With(zap.Int("display", i)).Debug("Transient capture failure, reusing prior frame")
		}
	}
}

func (d *Driver) close() error {
	var err error
	err = multierr.Append(err, d.opc.Close())
	err = multierr.Append(err, d.serial.Close())
	return err
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
