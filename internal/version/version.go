/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries build-time version information.
package version

// Version is the current version of Botdeck.
// This is set at build time via ldflags:
//
//	-X github.com/botdeckhq/botdeck/internal/version.Version=X.Y.Z
var Version = "0.9.0"
