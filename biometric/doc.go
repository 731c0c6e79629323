// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package biometric compares face descriptors.
//
// A descriptor is a fixed-length vector of floats produced by the face
// recognition model (128 values in practice). Two descriptors belong to the
// same person when their Euclidean distance is below a context threshold:
// ThresholdLogin (0.55) during login and the stricter ThresholdExplicitVerify
// (0.45) for the explicit verification step.
//
// Stored descriptors are JSON arrays. ParseDescriptor reports
// ErrCorruptBiometricData for anything it cannot decode, which callers treat
// as a server-side fault rather than a failed match.
package biometric
