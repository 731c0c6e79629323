// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Command votectl seeds administrators, manages the ballot and election
// window, and runs the liveness challenge against a live server.
package main

func main() {
	Execute()
}
