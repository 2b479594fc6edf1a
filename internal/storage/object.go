/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage stores coupon creatives either on the local filesystem
// or in S3-compatible object storage, selected by configuration.
package storage

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/botdeckhq/botdeck/internal/config"
)

// ObjectStore abstracts object storage operations for uploaded creatives.
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// URL returns a publicly servable URL or path for the key.
	URL(key string) string
}

// New selects an object store backend from configuration: S3 when a bucket
// is configured, local filesystem otherwise.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ObjectStore, error) {
	if cfg.S3Bucket != "" {
		return NewS3Store(ctx, cfg, logger)
	}
	return NewFilesystemStore(cfg.StorageRoot, logger)
}
