package media

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// slowProbeOpener stalls in ProbeTiming long enough for concurrent
// callers to pile up on the same flight.
type slowProbeOpener struct {
	delay  time.Duration
	probes atomic.Int64
}

func (o *slowProbeOpener) OpenVideo(path string, w, h int, fps float64) (VideoDecoder, error) {
	return newFakeDecoder(w, h), nil
}

func (o *slowProbeOpener) DecodeStill(ctx context.Context, path string, w, h int) ([]byte, error) {
	return nil, errors.New("not a still opener")
}

func (o *slowProbeOpener) ProbeTiming(ctx context.Context, path string) (TimingDecision, error) {
	o.probes.Add(1)
	time.Sleep(o.delay)
	return TimingDecision{Normalize: true, FPS: 24}, nil
}

// fakeDecoder serves synthetic frames at fixed presentation times.
// Each frame's first byte encodes its index so tests can tell frames
// apart.
type fakeDecoder struct {
	pts    []float64
	w, h   int
	idx    int
	reads  int
	closed bool
}

func newFakeDecoder(w, h int, pts ...float64) *fakeDecoder {
	return &fakeDecoder{pts: pts, w: w, h: h}
}

func (d *fakeDecoder) ReadFrame() (*Frame, error) {
	if d.idx >= len(d.pts) {
		return nil, io.EOF
	}
	d.reads++
	i := d.idx
	d.idx++
	buf := make([]byte, d.w*d.h*4)
	buf[0] = byte(i)
	return &Frame{PTS: d.pts[i], RGBA: buf, Width: d.w, Height: d.h}, nil
}

// Restart mimics a container seek: position at the last sample at or
// before the target, or past the end when the target is beyond the
// stream (a seek past EOF delivers nothing).
func (d *fakeDecoder) Restart(at float64) error {
	d.idx = len(d.pts)
	for i, p := range d.pts {
		if p > at {
			if i > 0 {
				d.idx = i - 1
			} else {
				d.idx = 0
			}
			break
		}
	}
	return nil
}

func (d *fakeDecoder) Close() error {
	d.closed = true
	return nil
}

func ptsGrid(fps float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) / fps
	}
	return out
}

func TestCursorNearestSelection(t *testing.T) {
	var restarts uint64
	dec := newFakeDecoder(2, 2, 0, 0.5, 1.0, 1.5)
	c := newCursor(dec, 2, 2, &restarts)

	// 0.6 is nearer to 0.5 than to 1.0.
	f, err := c.frameAt(0.6)
	if err != nil {
		t.Fatalf("frameAt: %v", err)
	}
	if f.PTS != 0.5 {
		t.Errorf("frameAt(0.6) = PTS %v, want 0.5", f.PTS)
	}

	// 0.8 is nearer to 1.0.
	f, _ = c.frameAt(0.8)
	if f.PTS != 1.0 {
		t.Errorf("frameAt(0.8) = PTS %v, want 1.0", f.PTS)
	}
	if restarts != 0 {
		t.Errorf("forward requests restarted %d times", restarts)
	}
}

func TestCursorBackwardSeekRestarts(t *testing.T) {
	var restarts uint64
	dec := newFakeDecoder(2, 2, ptsGrid(10, 40)...)
	c := newCursor(dec, 2, 2, &restarts)

	if _, err := c.frameAt(3.0); err != nil {
		t.Fatalf("frameAt: %v", err)
	}
	f, err := c.frameAt(0.5)
	if err != nil {
		t.Fatalf("frameAt backward: %v", err)
	}
	if f.PTS != 0.5 {
		t.Errorf("backward seek = PTS %v, want 0.5", f.PTS)
	}
	if restarts != 1 {
		t.Errorf("restarts = %d, want 1", restarts)
	}
}

func TestCursorForwardGapRestarts(t *testing.T) {
	var restarts uint64
	dec := newFakeDecoder(2, 2, ptsGrid(10, 100)...)
	c := newCursor(dec, 2, 2, &restarts)

	if _, err := c.frameAt(0.1); err != nil {
		t.Fatalf("frameAt: %v", err)
	}
	readsBefore := dec.reads

	// A jump well past the forward gap threshold restarts instead of
	// churning through every intervening frame.
	if _, err := c.frameAt(9.0); err != nil {
		t.Fatalf("frameAt after gap: %v", err)
	}
	if restarts != 1 {
		t.Errorf("restarts = %d, want 1", restarts)
	}
	if dec.reads-readsBefore > 5 {
		t.Errorf("gap seek read %d frames, want a restart instead", dec.reads-readsBefore)
	}

	// A small forward step keeps reading forward.
	if _, err := c.frameAt(9.2); err != nil {
		t.Fatalf("frameAt small step: %v", err)
	}
	if restarts != 1 {
		t.Errorf("small forward step restarted (restarts = %d)", restarts)
	}
}

func TestCursorSecondRestartFromZero(t *testing.T) {
	var restarts uint64
	// Only one early sample exists; requesting far past it after a
	// restart finds an empty window and retries from zero.
	dec := newFakeDecoder(2, 2, 0.1)
	c := newCursor(dec, 2, 2, &restarts)

	if _, err := c.frameAt(0.1); err != nil {
		t.Fatalf("frameAt: %v", err)
	}
	f, err := c.frameAt(20.0)
	if err != nil {
		t.Fatalf("frameAt far forward: %v", err)
	}
	if f.PTS != 0.1 {
		t.Errorf("fallback frame PTS = %v, want 0.1", f.PTS)
	}
	if restarts != 2 {
		t.Errorf("restarts = %d, want 2 (gap restart, then retry from zero)", restarts)
	}
}

func TestCursorEmptyStreamFails(t *testing.T) {
	var restarts uint64
	dec := newFakeDecoder(2, 2)
	c := newCursor(dec, 2, 2, &restarts)

	if _, err := c.frameAt(1.0); !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("empty stream: err = %v, want ErrDecodeFailed", err)
	}
}

func TestCursorSizeMismatchFatal(t *testing.T) {
	var restarts uint64
	dec := newFakeDecoder(3, 3, 0, 0.5)
	c := newCursor(dec, 2, 2, &restarts)

	if _, err := c.frameAt(0); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("err = %v, want ErrSizeMismatch", err)
	}
}

func TestDecideTiming(t *testing.T) {
	tests := []struct {
		name          string
		pts           []float64
		wantNormalize bool
	}{
		{"constant 25fps passes through", []float64{0, 0.04, 0.08, 0.12}, false},
		{"variable normalizes", []float64{0, 0.04, 0.1, 0.12}, true},
		{"dropped-frame stutter normalizes", []float64{0, 0.040, 0.073, 0.123}, true},
		{"single sample inconclusive", []float64{0}, false},
		{"empty inconclusive", nil, false},
		{"non-monotonic normalizes", []float64{0, 0.04, 0.02}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DecideTiming(tt.pts)
			if d.Normalize != tt.wantNormalize {
				t.Errorf("Normalize = %v, want %v", d.Normalize, tt.wantNormalize)
			}
		})
	}
}

func TestDecideTimingAverageRate(t *testing.T) {
	// Uneven spacing over an 0.12s span of three intervals: average 25fps.
	d := DecideTiming([]float64{0, 0.04, 0.1, 0.12})
	if !d.Normalize {
		t.Fatal("uneven spacing should normalize")
	}
	if d.FPS != 25 {
		t.Errorf("FPS = %v, want 25 (window average)", d.FPS)
	}
}

func TestTimingAdjustSnapsToGrid(t *testing.T) {
	d := TimingDecision{Normalize: true, FPS: 25}
	// Just before and just after a frame boundary land on the same sample.
	a := d.Adjust(0.799, 0)
	b := d.Adjust(0.801, 0)
	if a != b {
		t.Errorf("Adjust(0.799) = %v, Adjust(0.801) = %v, want equal", a, b)
	}
	if a != 0.8 {
		t.Errorf("snapped time = %v, want 0.8", a)
	}

	// No detected rate: the caller's fallback supplies the grid.
	fb := TimingDecision{Normalize: true}
	if got := fb.Adjust(0.799, 25); got != 0.8 {
		t.Errorf("fallback-rate Adjust = %v, want 0.8", got)
	}
	if got := fb.Adjust(0.799, 0); got != 0.799 {
		t.Errorf("no-rate Adjust = %v, want pass-through", got)
	}

	// Regular assets pass through untouched.
	v := TimingDecision{}
	if got := v.Adjust(0.799, 25); got != 0.799 {
		t.Errorf("pass-through Adjust = %v", got)
	}
}

func TestTimingProberMemoizesFailure(t *testing.T) {
	opener := &fakeOpener{probeErr: errors.New("boom")}
	p := newTimingProber(opener)

	d1 := p.decide(context.Background(), "a.mp4")
	d2 := p.decide(context.Background(), "a.mp4")
	if d1.Normalize || d2.Normalize {
		t.Error("failed probe should yield pass-through")
	}
	if opener.probes != 1 {
		t.Errorf("probe ran %d times, want 1", opener.probes)
	}
}

func TestTimingProberSharesConcurrentProbe(t *testing.T) {
	opener := &slowProbeOpener{delay: 20 * time.Millisecond}
	p := newTimingProber(opener)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := p.decide(context.Background(), "a.mp4")
			if !d.Normalize {
				t.Error("probe decision lost")
			}
		}()
	}
	wg.Wait()

	if got := opener.probes.Load(); got != 1 {
		t.Errorf("probe ran %d times for concurrent first uses, want 1", got)
	}
}
