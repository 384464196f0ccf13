// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package cliutil holds the handful of helpers shared by the swapd and
// swapcli command-line entrypoints.
package cliutil

// version is set via -ldflags at build time; "dev" otherwise.
var version = "dev"

// GetVersion returns the build version string for use in cli.App.Version.
func GetVersion() string {
	return version
}
