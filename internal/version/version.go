/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

// Version is the current version of the AdVero screen agent.
// Set at build time via ldflags:
//
//	-X github.com/adverolabs/advero/internal/version.Version=X.Y.Z
var Version = "0.4.0"
