// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package meta derives per-file metadata for captured snapshots: language,
// size, line metrics, a structural complexity score, and a best-effort
// dependency list.
//
// # Design Principles
//
// Extraction is deterministic, side-effect-free, and never fatal to
// ingestion. A file that cannot be analyzed (parse failure, size limit,
// invalid encoding) still yields a metadata record with size, language, and
// line metrics, marked AnalysisIncomplete. Complexity is computed only for
// languages with a structural analyzer; everything else reports it as
// unavailable, never as a fabricated zero.
//
// # Thread Safety
//
// Extractor is safe for concurrent use. Each analysis creates its own
// tree-sitter parser instance.
package meta

import (
	"context"
	"runtime"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

// DefaultMaxFileSize is the largest file the structural analyzer will
// accept (10MB). Larger files keep their size and language metadata and are
// flagged AnalysisIncomplete.
const DefaultMaxFileSize = 10 * 1024 * 1024

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxFileSize overrides the structural analysis size limit.
func WithMaxFileSize(bytes int64) Option {
	return func(e *Extractor) {
		if bytes > 0 {
			e.maxFileSize = bytes
		}
	}
}

// Extractor computes snapshot.Metadata for captured files.
type Extractor struct {
	maxFileSize int64
}

// New creates an Extractor with default limits.
func New(opts ...Option) *Extractor {
	e := &Extractor{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract derives metadata for one file.
//
// Description:
//
//	Language is inferred from the file name first, then from content
//	(shebang lines, binary byte patterns) when the extension is absent or
//	unknown. Structural analysis runs only for languages with a
//	tree-sitter grammar wired in; its failures are recorded on the
//	metadata, never returned. Extract itself cannot fail.
//
// Inputs:
//
//	ctx - Bounds structural analysis. Cancellation marks the record
//	      AnalysisIncomplete rather than erroring.
//	path - Repository-relative path with forward slashes.
//	content - Raw file bytes.
//
// Outputs:
//
//	snapshot.Metadata - Always populated with size, language, and hash.
//
// Thread Safety: safe for concurrent use.
func (e *Extractor) Extract(ctx context.Context, path string, content []byte) snapshot.Metadata {
	ctx, span := startExtractSpan(ctx, path, len(content))
	defer span.End()
	start := time.Now()

	md := snapshot.Metadata{
		Language:    DetectLanguage(path, content),
		SizeBytes:   int64(len(content)),
		ContentHash: snapshot.HashContent(content),
	}

	textual := md.Language != LangBinary && utf8.Valid(content)
	if textual {
		md.Lines = CountLines(content, md.Language)
	}

	switch {
	case int64(len(content)) > e.maxFileSize:
		// Oversized files are only "incomplete" when analysis would have
		// run at all.
		md.AnalysisIncomplete = md.Language == LangGoMod || hasAnalyzer(md.Language)

	case md.Language == LangGoMod:
		deps, ok := parseGoMod(content)
		md.Dependencies = deps
		md.AnalysisIncomplete = !ok

	case hasAnalyzer(md.Language):
		if !textual {
			md.AnalysisIncomplete = true
			break
		}
		res := analyzeSource(ctx, md.Language, content)
		md.Complexity = res.complexity
		md.Dependencies = res.deps
		md.AnalysisIncomplete = res.incomplete
	}

	setExtractSpanResult(span, md)
	recordExtractMetrics(ctx, md.Language, time.Since(start), !md.AnalysisIncomplete)
	return md
}

// ExtractSet derives metadata for a set of files in parallel, bounded by
// GOMAXPROCS. The result has exactly one entry per input path.
func (e *Extractor) ExtractSet(ctx context.Context, files snapshot.FileSet) map[string]snapshot.Metadata {
	out := make(map[string]snapshot.Metadata, len(files))
	if len(files) == 0 {
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, path := range files.Paths() {
		content := files[path]
		g.Go(func() error {
			md := e.Extract(gctx, path, content)
			mu.Lock()
			out[path] = md
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors; analysis failures land on the records.
	_ = g.Wait()
	return out
}
