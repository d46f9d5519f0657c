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
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianRewind/pkg/ux"
	"github.com/AleutianAI/AleutianRewind/services/rewind/delta"
)

// runWatch snapshots a directory tree after each quiet period of
// filesystem activity, rate-limited to --max-rate captures per second.
func runWatch(cmd *cobra.Command, args []string) {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	debounce, err := time.ParseDuration(debounceFlag)
	if err != nil || debounce <= 0 {
		fail("Invalid --debounce %q", debounceFlag)
	}
	if maxRateFlag <= 0 {
		fail("Invalid --max-rate %v", maxRateFlag)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	co, cleanup, err := openCoordinator(ctx)
	if err != nil {
		fail("Failed to open store: %v", err)
	}
	defer cleanup()

	opts := scanOptionsFromConfig()
	result, err := buildFileSet(root, opts)
	if err != nil {
		fail("Scan failed: %v", err)
	}
	if len(result.Files) == 0 {
		fail("No files captured from %s (check ignore patterns and --include-hidden)", root)
	}

	sessionID := resolveSession()
	if sessionID == "" {
		v, err := co.Submit(ctx, "", result.Files, "watch baseline")
		if err != nil {
			fail("Baseline capture failed: %v", err)
		}
		sessionID = v.SessionID
		ux.Success(fmt.Sprintf("Created session %s (v%d baseline, %d files)",
			sessionID, v.Number, len(result.Files)))
	} else {
		cur, err := co.CurrentSnapshot(ctx, sessionID)
		if err != nil {
			fail("Failed to load current snapshot: %v", err)
		}
		if result.Files.Equal(cur) {
			ux.Info("Tree matches the session's current version.")
		} else {
			v, err := co.Ingest(ctx, sessionID, result.Files, "watch baseline")
			if err != nil {
				fail("Baseline capture failed: %v", err)
			}
			ux.Success(fmt.Sprintf("Captured v%d baseline (%d files changed)",
				v.Number, v.ChangedFiles))
		}
	}
	last := result.Files

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fail("Failed to start watcher: %v", err)
	}
	defer watcher.Close()
	if err := addWatchDirs(watcher, root, opts); err != nil {
		fail("Failed to watch %s: %v", root, err)
	}

	ux.Box(fmt.Sprintf("Watching %s", root),
		fmt.Sprintf("session %s · debounce %s · max %.2g captures/s · Ctrl-C to stop",
			shortID(sessionID), debounce, maxRateFlag))

	limiter := rate.NewLimiter(rate.Limit(maxRateFlag), 1)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			ux.Muted(ux.IconRewind.Render() + " stopped; history preserved")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if skipWatchEvent(event, opts) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					_ = addWatchDirs(watcher, event.Name, opts)
				}
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			ux.Warning(fmt.Sprintf("watch error: %v", err))

		case <-timerC:
			timer, timerC = nil, nil

			// Tokens refill at --max-rate; rather than blocking event
			// consumption, push the capture out to when one is free.
			r := limiter.Reserve()
			if d := r.Delay(); d > 0 {
				r.Cancel()
				timer = time.NewTimer(d)
				timerC = timer.C
				continue
			}

			res, err := buildFileSet(root, opts)
			if err != nil {
				ux.Warning(fmt.Sprintf("scan failed: %v", err))
				continue
			}
			if len(res.Files) == 0 {
				ux.Warning("tree is empty; skipping capture")
				continue
			}
			d := delta.Compute(last, res.Files)
			if d.IsEmpty() {
				continue
			}

			v, err := co.Ingest(ctx, sessionID, res.Files, "")
			if err != nil {
				ux.Warning(fmt.Sprintf("capture failed: %v", err))
				continue
			}
			last = res.Files
			ux.Success(fmt.Sprintf("Captured v%d (%d files changed)", v.Number, v.ChangedFiles))
			reportChanges(d)
		}
	}
}

// addWatchDirs registers root and every non-ignored subdirectory with
// the watcher.
func addWatchDirs(watcher *fsnotify.Watcher, root string, opts scanOptions) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			name := d.Name()
			if (!opts.IncludeHidden && strings.HasPrefix(name, ".")) ||
				matchesIgnore(name, opts.Ignore) {
				return filepath.SkipDir
			}
		}
		return watcher.Add(path)
	})
}

// skipWatchEvent filters events that should not re-arm the debounce:
// chmod-only noise and paths the scanner would ignore anyway.
func skipWatchEvent(event fsnotify.Event, opts scanOptions) bool {
	if event.Op == fsnotify.Chmod {
		return true
	}
	name := filepath.Base(event.Name)
	if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return matchesIgnore(name, opts.Ignore)
}
