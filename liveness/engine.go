// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package liveness

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// ErrEngineStopped means the face engine process is gone
var ErrEngineStopped = errors.New("face engine stopped")

// Model selects the detector network the engine runs
type Model string

const (
	ModelTiny Model = "tiny" // fast, lower accuracy
	ModelSSD  Model = "ssd"  // slower, more accurate
)

// engineOptions are the per-model arguments passed to the engine
var engineOptions = map[Model][]string{
	ModelTiny: {"--model", "tiny", "--input-size", "224", "--score-threshold", "0.5"},
	ModelSSD:  {"--model", "ssd", "--min-confidence", "0.5"},
}

// ParseModel validates a model name
func ParseModel(s string) (Model, error) {
	m := Model(s)
	if _, ok := engineOptions[m]; !ok {
		return "", fmt.Errorf("unknown face model %q (want tiny or ssd)", s)
	}
	return m, nil
}

// engineCommand wraps exec.Cmd and keeps the engine's stderr for error reports
type engineCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

func newEngineCommand(name string, args ...string) *engineCommand {
	cmd := exec.Command(name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &engineCommand{Cmd: cmd, Stderr: stderr}
}

// engineConn speaks the engine protocol: each request is a big-endian uint32
// length followed by a JPEG frame on the engine's stdin; each reply is a
// length-prefixed JSON document on a side pipe the engine sees as FD 3.
type engineConn struct {
	Cmd      *engineCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
}

func startEngine(name string, args ...string) (*engineConn, error) {
	cmd := newEngineCommand(name, args...)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{w}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("face engine failed to start: %w", err)
	}

	// Only the child keeps the write end
	w.Close()

	return &engineConn{Cmd: cmd, Stdin: stdin, DataPipe: r}, nil
}

func (c *engineConn) communicate(data []byte) ([]byte, error) {
	if err := binary.Write(c.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineStopped, err)
	}
	if _, err := c.Stdin.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineStopped, err)
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(c.DataPipe, header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineStopped, err)
	}

	body := make([]byte, binary.BigEndian.Uint32(header))
	if _, err := io.ReadFull(c.DataPipe, body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineStopped, err)
	}
	return body, nil
}

type engineFace struct {
	Box        []float64    `json:"box"`
	Score      float64      `json:"score"`
	LeftEye    [][2]float64 `json:"left_eye"`
	RightEye   [][2]float64 `json:"right_eye"`
	Descriptor []float64    `json:"descriptor"`
}

type engineReply struct {
	Faces []engineFace `json:"faces"`
	Error string       `json:"error,omitempty"`
}

// processFrame sends one frame and decodes every face in the reply
func (c *engineConn) processFrame(frame Frame) ([]Detection, error) {
	body, err := c.communicate(frame)
	if err != nil {
		return nil, err
	}

	var reply engineReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("invalid engine reply: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("face engine error: %s", reply.Error)
	}

	dets := make([]Detection, 0, len(reply.Faces))
	for _, f := range reply.Faces {
		if len(f.Box) != 4 {
			return nil, fmt.Errorf("invalid engine reply: box has %d values", len(f.Box))
		}
		dets = append(dets, Detection{
			Box:        Box{X: f.Box[0], Y: f.Box[1], Width: f.Box[2], Height: f.Box[3]},
			Score:      f.Score,
			LeftEye:    toPoints(f.LeftEye),
			RightEye:   toPoints(f.RightEye),
			Descriptor: f.Descriptor,
		})
	}
	return dets, nil
}

func toPoints(raw [][2]float64) []Point {
	pts := make([]Point, len(raw))
	for i, p := range raw {
		pts[i] = Point{X: p[0], Y: p[1]}
	}
	return pts
}

func (c *engineConn) close() error {
	c.Stdin.Close()
	c.DataPipe.Close()
	if c.Cmd == nil {
		return nil
	}
	return c.Cmd.Wait()
}

// EngineDetector runs detection in an external face engine process
type EngineDetector struct {
	mu    sync.Mutex
	model Model
	conn  *engineConn
}

// NewEngineDetector starts the engine binary with the options for model
func NewEngineDetector(model Model, engine string, args ...string) (*EngineDetector, error) {
	opts, ok := engineOptions[model]
	if !ok {
		return nil, fmt.Errorf("unknown face model %q", model)
	}

	conn, err := startEngine(engine, append(append([]string{}, args...), opts...)...)
	if err != nil {
		return nil, err
	}
	return &EngineDetector{model: model, conn: conn}, nil
}

func (d *EngineDetector) Model() Model { return d.model }

// Detect sends frame to the engine. Cancelling ctx mid-request kills the
// engine, since a half-read reply cannot be resynchronized.
func (d *EngineDetector) Detect(ctx context.Context, frame Frame) (*Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	type result struct {
		dets []Detection
		err  error
	}
	done := make(chan result, 1)
	go func() {
		dets, err := d.conn.processFrame(frame)
		done <- result{dets, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return BestDetection(res.dets), nil
	case <-ctx.Done():
		d.kill()
		<-done
		return nil, ctx.Err()
	}
}

func (d *EngineDetector) kill() {
	if d.conn.Cmd != nil && d.conn.Cmd.Process != nil {
		d.conn.Cmd.Process.Kill()
	}
}

// Close stops the engine and reports anything it wrote to stderr
func (d *EngineDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.conn.close()
	if err != nil && d.conn.Cmd != nil && d.conn.Cmd.Stderr.Len() > 0 {
		return fmt.Errorf("%w: %s", err, strconv.Quote(d.conn.Cmd.Stderr.String()))
	}
	return err
}
