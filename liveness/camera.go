// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package liveness

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

var (
	// ErrNoFrame means the camera has not produced a frame yet
	ErrNoFrame = errors.New("no frame available yet")

	// ErrCameraClosed means the stream ended or Close was called
	ErrCameraClosed = errors.New("camera closed")
)

// Camera yields the most recent video frame
type Camera interface {
	Frame(ctx context.Context) (Frame, error)
	Close() error
}

var (
	jpegSOI = []byte{0xFF, 0xD8} // Start of Image
	jpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJPEG is a bufio.SplitFunc that yields whole JPEG images from an MJPEG
// stream by locating SOI and EOI markers.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], jpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// maxFrameSize bounds the scanner buffer
const maxFrameSize = 8 << 20

// StreamCamera keeps the latest frame from an MJPEG stream. A background
// goroutine reads continuously so Frame never blocks on the stream.
type StreamCamera struct {
	mu     sync.Mutex
	latest Frame
	err    error
	closer func() error
	done   chan struct{}
	once   sync.Once
}

// NewStreamCamera starts reading frames from r. closer is called by Close.
func NewStreamCamera(r io.Reader, closer func() error) *StreamCamera {
	c := &StreamCamera{closer: closer, done: make(chan struct{})}
	go c.read(r)
	return c
}

func (c *StreamCamera) read(r io.Reader) {
	defer close(c.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 512*1024), maxFrameSize)
	scanner.Split(SplitJPEG)

	for scanner.Scan() {
		frame := make(Frame, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())

		c.mu.Lock()
		c.latest = frame
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.err = ErrCameraClosed
	if err := scanner.Err(); err != nil {
		c.err = fmt.Errorf("%w: %v", ErrCameraClosed, err)
	}
	c.mu.Unlock()
}

// Frame returns the latest frame. Once the stream has ended it keeps
// returning the error instead.
func (c *StreamCamera) Frame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if c.latest == nil {
		return nil, ErrNoFrame
	}
	return c.latest, nil
}

// Close releases the stream and waits for the reader to finish. Safe to call
// more than once.
func (c *StreamCamera) Close() error {
	var err error
	c.once.Do(func() {
		if c.closer != nil {
			err = c.closer()
		}
		<-c.done
	})
	return err
}

// FFmpegCamera streams MJPEG frames from an ffmpeg child process
type FFmpegCamera struct {
	*StreamCamera
	cmd *exec.Cmd
}

// NewFFmpegCmd builds the ffmpeg decoder pipeline. input is a device such as
// /dev/video0 (format "v4l2") or a video file (format "").
func NewFFmpegCmd(input, format string) *exec.Cmd {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if format != "" {
		args = append(args, "-f", format)
	}
	args = append(args, "-i", input, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
	return exec.Command("ffmpeg", args...)
}

// OpenFFmpegCamera starts ffmpeg on input and begins buffering frames
func OpenFFmpegCamera(input, format string) (*FFmpegCamera, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	cmd := NewFFmpegCmd(input, format)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	closer := func() error {
		cmd.Process.Kill()
		stdout.Close()
		cmd.Wait()
		return nil
	}
	return &FFmpegCamera{StreamCamera: NewStreamCamera(stdout, closer), cmd: cmd}, nil
}
