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
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianRewind/cmd/rewind/config"
	"github.com/AleutianAI/AleutianRewind/pkg/logging"
	"github.com/AleutianAI/AleutianRewind/pkg/ux"
	"github.com/AleutianAI/AleutianRewind/services/rewind"
	"github.com/AleutianAI/AleutianRewind/services/rewind/delta"
	"github.com/AleutianAI/AleutianRewind/services/rewind/telemetry"
)

const appVersion = "0.1.0"

// =============================================================================
// Store Access
// =============================================================================

// openCoordinator opens the versioning store described by the loaded
// config, with flag overrides applied. The returned cleanup closes the
// store, flushes telemetry, and releases the log file; callers should
// defer it immediately.
func openCoordinator(ctx context.Context) (*rewind.Coordinator, func(), error) {
	cfg := config.Global

	// Interactive commands own stderr for their output. Routine logs
	// stay at warn unless a log file is configured or the user asked
	// for debug.
	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.Dir == "" && level == logging.LevelInfo {
		level = logging.LevelWarn
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "rewind",
		JSON:    cfg.Logging.JSON,
		Quiet:   cfg.Logging.Dir != "",
	})

	shutdown := func(context.Context) error { return nil }
	if cfg.Observability.Enabled {
		s, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:    "rewind",
			ServiceVersion: appVersion,
			TraceExporter:  cfg.Observability.TraceExporter,
			MetricExporter: cfg.Observability.MetricExporter,
			OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
			OTLPInsecure:   cfg.Observability.OTLPInsecure,
			PrometheusPort: cfg.Observability.PrometheusPort,
			SampleRate:     cfg.Observability.SampleRate,
		})
		if err != nil {
			_ = logger.Close()
			return nil, nil, fmt.Errorf("telemetry init failed: %w", err)
		}
		shutdown = s
	}

	storePath := cfg.Store.Path
	if storePathFlag != "" {
		storePath = storePathFlag
	}

	rcfg := rewind.DefaultConfig(config.ExpandPath(storePath))
	rcfg.InMemory = cfg.Store.InMemory
	rcfg.SyncWrites = cfg.Store.SyncWrites
	rcfg.GCInterval = cfg.Store.GCIntervalDuration(rcfg.GCInterval)
	if cfg.Store.GCDiscardRatio > 0 {
		rcfg.GCDiscardRatio = cfg.Store.GCDiscardRatio
	}
	if cfg.Store.CacheMaxEntries > 0 {
		rcfg.CacheMaxEntries = cfg.Store.CacheMaxEntries
	}
	rcfg.CacheTTL = cfg.Store.CacheTTLDuration(rcfg.CacheTTL)
	if cfg.Session.MaxReplayDepth != 0 {
		rcfg.MaxReplayDepth = cfg.Session.MaxReplayDepth
	}
	rcfg.Logger = logger.Slog()

	co, err := rewind.Open(ctx, rcfg)
	if err != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
		_ = logger.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := co.Close(); err != nil {
			logger.Slog().Error("store close failed", "error", err)
		}
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Slog().Error("telemetry shutdown failed", "error", err)
		}
		_ = logger.Close()
	}
	return co, cleanup, nil
}

// =============================================================================
// Session Resolution
// =============================================================================

// resolveSession returns the session for this invocation: the --session
// flag, then the loaded config (which already overlays REWIND_SESSION).
func resolveSession() string {
	if sessionFlag != "" {
		return sessionFlag
	}
	return config.Global.Session.Default
}

// requireSession is resolveSession for commands that cannot proceed
// without one.
func requireSession() string {
	id := resolveSession()
	if id == "" {
		fail("No session specified. Pass --session, set REWIND_SESSION, or set session.default in the config.")
	}
	return id
}

// fail prints an error line in the active personality and exits 1.
func fail(format string, args ...any) {
	ux.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// =============================================================================
// Prompts and Formatting
// =============================================================================

// confirmPrompt asks a yes/no question on stdin. Non-interactive runs
// answer no; pass --yes to skip the prompt in scripts.
func confirmPrompt(question string) bool {
	if !ux.IsInteractive() {
		return false
	}
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// relativeAge renders a millisecond timestamp as a coarse age.
func relativeAge(unixMilli int64) string {
	if unixMilli <= 0 {
		return ""
	}
	d := time.Since(time.UnixMilli(unixMilli))
	switch {
	case d < 10*time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// humanBytes renders a byte count for terminal display.
func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// reportChanges lists a capture's per-file operations, capped so watch
// mode stays readable during bulk rewrites.
func reportChanges(d *delta.Diff) {
	const maxListed = 20
	for i, op := range d.Ops {
		if i == maxListed {
			ux.Muted(fmt.Sprintf("and %d more", len(d.Ops)-maxListed))
			return
		}
		switch op.Kind {
		case delta.OpAdd:
			ux.FileStatus(op.Path, ux.IconSuccess, "added")
		case delta.OpRemove:
			ux.FileStatus(op.Path, ux.IconError, "removed")
		default:
			ux.FileStatus(op.Path, ux.IconArrow, "modified")
		}
	}
}
