// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package media

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegOpener decodes through ffmpeg/ffprobe subprocesses. Video
// decodes stream raw RGBA over a pipe; stills and probes run as
// bounded one-shot invocations.
type FFmpegOpener struct {
	// FFmpegPath and FFprobePath override the binaries found on PATH.
	FFmpegPath  string
	FFprobePath string
}

func (o *FFmpegOpener) ffmpeg() string {
	if o.FFmpegPath != "" {
		return o.FFmpegPath
	}
	return "ffmpeg"
}

func (o *FFmpegOpener) ffprobe() string {
	if o.FFprobePath != "" {
		return o.FFprobePath
	}
	return "ffprobe"
}

// OpenVideo starts an ffmpeg process streaming w x h RGBA frames.
// The scale filter makes the output size exact, so any short read is a
// stream error rather than a size surprise.
func (o *FFmpegOpener) OpenVideo(path string, w, h int, fps float64) (VideoDecoder, error) {
	d := &ffmpegDecoder{
		binary: o.ffmpeg(),
		path:   path,
		w:      w,
		h:      h,
		fps:    fps,
	}
	if err := d.start(0); err != nil {
		return nil, err
	}
	return d, nil
}

// ffmpegDecoder reads raw RGBA frames from an ffmpeg pipe. Frame
// timestamps are reconstructed as index/fps relative to the seek
// origin, which is exact for the constant-rate output ffmpeg produces
// after the -r flag.
type ffmpegDecoder struct {
	binary string
	path   string
	w, h   int
	fps    float64

	cmd    *exec.Cmd
	out    io.ReadCloser
	reader *bufio.Reader
	origin float64
	index  int
}

func (d *ffmpegDecoder) start(at float64) error {
	args := []string{"-v", "error", "-nostdin"}
	if at > 0 {
		args = append(args, "-ss", strconv.FormatFloat(at, 'f', 3, 64))
	}
	args = append(args,
		"-i", d.path,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-vf", fmt.Sprintf("scale=%d:%d", d.w, d.h),
		"-r", strconv.FormatFloat(d.fps, 'f', -1, 64),
		"-",
	)

	cmd := exec.Command(d.binary, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrDecodeFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %v", ErrDecodeFailed, err)
	}

	d.cmd = cmd
	d.out = out
	d.reader = bufio.NewReaderSize(out, d.w*4)
	d.origin = at
	d.index = 0
	return nil
}

func (d *ffmpegDecoder) stop() {
	if d.cmd != nil && d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
		_ = d.cmd.Wait()
	}
	d.cmd = nil
	d.out = nil
	d.reader = nil
}

// ReadFrame reads the next full frame from the pipe.
func (d *ffmpegDecoder) ReadFrame() (*Frame, error) {
	if d.reader == nil {
		return nil, io.EOF
	}
	buf := make([]byte, d.w*d.h*4)
	if _, err := io.ReadFull(d.reader, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	f := &Frame{
		PTS:    d.origin + float64(d.index)/d.fps,
		RGBA:   buf,
		Width:  d.w,
		Height: d.h,
	}
	d.index++
	return f, nil
}

// Restart kills the pipe and reopens with a seek just before at, so
// the first delivered frame lands at or before the target.
func (d *ffmpegDecoder) Restart(at float64) error {
	d.stop()
	seek := at - 0.5/d.fps
	if seek < 0 {
		seek = 0
	}
	return d.start(seek)
}

func (d *ffmpegDecoder) Close() error {
	d.stop()
	return nil
}

// DecodeStill shells a one-shot ffmpeg decode for image formats the
// standard codecs do not cover. The context bounds the process.
func (o *FFmpegOpener) DecodeStill(ctx context.Context, path string, w, h int) ([]byte, error) {
	cmd := exec.CommandContext(ctx, o.ffmpeg(),
		"-v", "error", "-nostdin",
		"-i", path,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-vf", fmt.Sprintf("scale=%d:%d", w, h),
		"-",
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	if len(out) != w*h*4 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrSizeMismatch, len(out), w, h)
	}
	return out, nil
}

// ProbeTiming samples the leading frame timestamps with ffprobe.
func (o *FFmpegOpener) ProbeTiming(ctx context.Context, path string) (TimingDecision, error) {
	cmd := exec.CommandContext(ctx, o.ffprobe(),
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "frame=pts_time",
		"-of", "csv=p=0",
		"-read_intervals", fmt.Sprintf("0%%+%g", probeWindowSeconds),
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return TimingDecision{}, fmt.Errorf("%w: ffprobe: %v", ErrDecodeFailed, err)
	}

	var pts []float64
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, ","))
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			continue
		}
		pts = append(pts, v)
		if len(pts) >= probeMaxSamples {
			break
		}
	}
	return DecideTiming(pts), nil
}
