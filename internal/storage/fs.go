/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// FilesystemStore implements ObjectStore using the local filesystem.
type FilesystemStore struct {
	rootDir string
	logger  zerolog.Logger
}

// NewFilesystemStore creates a filesystem-based store rooted at rootDir.
func NewFilesystemStore(rootDir string, logger zerolog.Logger) (*FilesystemStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FilesystemStore{
		rootDir: rootDir,
		logger:  logger.With().Str("component", "storage").Logger(),
	}, nil
}

// resolve joins the key with the root and rejects path traversal.
func (fs *FilesystemStore) resolve(key string) (string, error) {
	cleaned := filepath.Clean("/" + key)
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(fs.rootDir, cleaned), nil
}

// Put writes data to the key, creating parent directories as needed.
func (fs *FilesystemStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	fullPath, err := fs.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	fs.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("stored object on filesystem")
	return nil
}

// Get reads the object stored at key.
func (fs *FilesystemStore) Get(ctx context.Context, key string) ([]byte, error) {
	fullPath, err := fs.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Delete removes the object at key. Missing objects are not an error.
func (fs *FilesystemStore) Delete(ctx context.Context, key string) error {
	fullPath, err := fs.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// URL returns the storage key unchanged; the HTTP layer serves creatives
// from the storage root.
func (fs *FilesystemStore) URL(key string) string {
	return key
}
