// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package liveness

import (
	"context"
	"math"
)

type Point struct {
	X, Y float64
}

type Box struct {
	X, Y, Width, Height float64
}

func (b Box) Area() float64 { return b.Width * b.Height }

// Detection is one face found in a frame
type Detection struct {
	Box        Box
	Score      float64
	LeftEye    []Point
	RightEye   []Point
	Descriptor []float64
}

// FaceDetector finds at most one face in a frame. It returns nil, nil when
// there is no face.
type FaceDetector interface {
	Detect(ctx context.Context, frame Frame) (*Detection, error)
}

// Roll is the head roll in degrees, from the outer corner of the left eye to
// the outer corner of the right eye. ok is false when the landmarks are
// missing.
func Roll(det *Detection) (deg float64, ok bool) {
	if det == nil || len(det.LeftEye) < 1 || len(det.RightEye) < 4 {
		return 0, false
	}
	left := det.LeftEye[0]
	right := det.RightEye[3]
	return math.Atan2(right.Y-left.Y, right.X-left.X) * 180 / math.Pi, true
}

// BestDetection picks the largest face, or nil for an empty slice
func BestDetection(dets []Detection) *Detection {
	var best *Detection
	for i := range dets {
		if best == nil || dets[i].Box.Area() > best.Box.Area() {
			best = &dets[i]
		}
	}
	return best
}
