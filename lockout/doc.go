// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package lockout throttles password guessing per account.
//
// Five consecutive failures lock the account for fifteen minutes. While
// locked, Check rejects the login before the password is examined and the
// counter is left alone. A successful login resets everything. Once a lock
// expires the next failure starts a new window of five.
//
// The guard is keyed by account id only; there is no per-address limit.
package lockout
