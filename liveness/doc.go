// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package liveness runs the head-tilt liveness challenge on the client.

# Challenge

The subject is led through three phases:

	loading → position → tilt → straighten → success
	            └────────┴──→ failed (30 s after first entering position)

  - position: a face must be detected continuously for 1 s
  - tilt: head roll beyond 15° either way, held for 500 ms
  - straighten: roll back within 8°, held for 800 ms

Any hold restarts from zero the moment its condition breaks, including a tick
where no face is found. A failed challenge stays failed until Retry.

Challenge is a pure state machine: Observe takes the tick time and the
detection and returns the new state. It never sleeps or starts timers.

# Runner

Runner polls a Camera every 200 ms, sends the frame to a FaceDetector off the
loop goroutine and feeds the result to the Challenge. A tick that arrives
while the previous detection is still running is skipped. The camera is
always closed when Run returns.

# Detectors

EngineDetector talks to an external face engine process: frames go out on
its stdin as [uint32 length][JPEG], replies come back as [uint32 length][JSON]
on file descriptor 3. The model ("tiny" or "ssd") is a start-up option of the
engine; the challenge never knows which one is running.

FFmpegCamera decodes a v4l2 device or a video file with ffmpeg and splits the
MJPEG output on JPEG SOI/EOI markers.
*/
package liveness
