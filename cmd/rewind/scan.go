// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianRewind/cmd/rewind/config"
	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

// =============================================================================
// Directory Scanning
// =============================================================================

// scanOptions controls buildFileSet.
type scanOptions struct {
	// MaxFileBytes skips larger files. 0 disables the limit.
	MaxFileBytes int64

	// Ignore lists base names and glob patterns to exclude. A matching
	// directory prunes its whole subtree.
	Ignore []string

	// IncludeHidden scans dot-files and dot-directories too.
	IncludeHidden bool
}

// scanResult reports what a scan captured and what it skipped.
type scanResult struct {
	Files          snapshot.FileSet
	SkippedLarge   int
	SkippedBinary  int
	SkippedIgnored int
}

// scanOptionsFromConfig merges the loaded ingest config with flags.
func scanOptionsFromConfig() scanOptions {
	opts := scanOptions{
		MaxFileBytes:  config.Global.Ingest.MaxFileBytes,
		Ignore:        config.Global.Ingest.Ignore,
		IncludeHidden: includeHiddenFlag || config.Global.Ingest.IncludeHidden,
	}
	if maxFileBytesFlag > 0 {
		opts.MaxFileBytes = maxFileBytesFlag
	}
	return opts
}

// buildFileSet walks root and captures regular text files into a
// FileSet keyed by slash-separated paths relative to root. Symlinks
// are not followed.
func buildFileSet(root string, opts scanOptions) (*scanResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot scan %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cannot scan %s: not a directory", root)
	}

	result := &scanResult{Files: make(snapshot.FileSet)}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		name := d.Name()
		hidden := strings.HasPrefix(name, ".")

		if d.IsDir() {
			if (hidden && !opts.IncludeHidden) || matchesIgnore(name, opts.Ignore) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if (hidden && !opts.IncludeHidden) || matchesIgnore(name, opts.Ignore) {
			result.SkippedIgnored++
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		if opts.MaxFileBytes > 0 && fi.Size() > opts.MaxFileBytes {
			result.SkippedLarge++
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			// Files vanish between the walk and the read during rapid
			// rewrites; watch mode hits this constantly.
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if isBinary(content) {
			result.SkippedBinary++
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		result.Files[filepath.ToSlash(rel)] = content
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// matchesIgnore reports whether name matches any ignore entry, either
// literally or as a glob.
func matchesIgnore(name string, patterns []string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// isBinary sniffs for a null byte in the first 8000 bytes, the same
// heuristic git uses.
func isBinary(content []byte) bool {
	n := len(content)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}
