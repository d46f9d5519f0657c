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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRewind/pkg/ux"
)

// runListSessions prints every session with its state and age.
func runListSessions(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	co, cleanup, err := openCoordinator(ctx)
	if err != nil {
		fail("Failed to open store: %v", err)
	}
	defer cleanup()

	sessions, err := co.Sessions(ctx)
	if err != nil {
		fail("Failed to list sessions: %v", err)
	}
	if len(sessions) == 0 {
		ux.Info("No sessions. Create one with 'rewind ingest'.")
		return
	}

	ux.Title(fmt.Sprintf("%d sessions", len(sessions)))
	for _, s := range sessions {
		status := "open"
		if s.Closed {
			status = "closed"
		}
		fmt.Printf("  %-36s  v%-4d  %-6s  %s\n", s.ID, s.Current, status, relativeAge(s.CreatedAt))
	}
}

// runCreateSession scans a directory into a new session's first version.
func runCreateSession(cmd *cobra.Command, args []string) {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	result, err := buildFileSet(root, scanOptionsFromConfig())
	if err != nil {
		fail("Scan failed: %v", err)
	}
	if len(result.Files) == 0 {
		fail("No files captured from %s (check ignore patterns and --include-hidden)", root)
	}

	ctx := context.Background()
	co, cleanup, err := openCoordinator(ctx)
	if err != nil {
		fail("Failed to open store: %v", err)
	}
	defer cleanup()

	spin := ux.NewSpinner("Capturing initial snapshot")
	spin.Start()
	sess, err := co.CreateSession(ctx, result.Files, descriptionFlag)
	if err != nil {
		spin.StopWithError(fmt.Sprintf("Failed to create session: %v", err))
		os.Exit(1)
	}
	spin.Stop()

	ux.Success(fmt.Sprintf("Created session %s (%d files)", sess.ID, len(result.Files)))
	ux.Tip(fmt.Sprintf("export REWIND_SESSION=%s to target it in later commands", sess.ID))
}

// runCloseSession marks a session read-only.
func runCloseSession(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	co, cleanup, err := openCoordinator(ctx)
	if err != nil {
		fail("Failed to open store: %v", err)
	}
	defer cleanup()

	if err := co.CloseSession(ctx, args[0]); err != nil {
		fail("Failed to close session: %v", err)
	}
	ux.Success(fmt.Sprintf("Closed session %s", shortID(args[0])))
}

// runDeleteSession removes a session and everything it owns.
func runDeleteSession(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	if !yesFlag {
		ux.WarningBox("Destructive operation",
			fmt.Sprintf("Deletes session %s and every version and snapshot it owns.", shortID(sessionID)))
		if !confirmPrompt("Proceed?") {
			ux.Info("Aborted.")
			return
		}
	}

	ctx := context.Background()
	co, cleanup, err := openCoordinator(ctx)
	if err != nil {
		fail("Failed to open store: %v", err)
	}
	defer cleanup()

	n, err := co.DeleteSession(ctx, sessionID)
	if err != nil {
		fail("Failed to delete session: %v", err)
	}
	ux.Success(fmt.Sprintf("Deleted session %s (%d versions removed)", shortID(sessionID), n))
}

// runPruneSessions deletes sessions idle longer than --older-than.
func runPruneSessions(cmd *cobra.Command, args []string) {
	olderThan, err := time.ParseDuration(olderThanFlag)
	if err != nil || olderThan <= 0 {
		fail("Invalid --older-than %q", olderThanFlag)
	}

	ctx := context.Background()
	co, cleanup, err := openCoordinator(ctx)
	if err != nil {
		fail("Failed to open store: %v", err)
	}
	defer cleanup()

	n, err := co.PruneSessions(ctx, olderThan)
	if err != nil {
		fail("Prune failed: %v", err)
	}
	if n == 0 {
		ux.Info(fmt.Sprintf("No sessions idle longer than %s.", olderThan))
		return
	}
	ux.Success(fmt.Sprintf("Pruned %d sessions idle longer than %s", n, olderThan))
}

// runSessionStats prints store-wide counts and sizes.
func runSessionStats(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	co, cleanup, err := openCoordinator(ctx)
	if err != nil {
		fail("Failed to open store: %v", err)
	}
	defer cleanup()

	st, err := co.Stats(ctx)
	if err != nil {
		fail("Failed to read stats: %v", err)
	}

	ux.Title("Store statistics")
	fmt.Printf("  sessions   %d\n", st.Sessions)
	fmt.Printf("  snapshots  %d\n", st.Snapshots)
	fmt.Printf("  versions   %d\n", st.Versions)
	fmt.Printf("  lsm size   %s\n", humanBytes(st.LSMBytes))
	fmt.Printf("  value log  %s\n", humanBytes(st.VLogBytes))
	if st.Cache != nil {
		fmt.Printf("  cache      %d entries · %s · %.0f%% hit rate\n",
			st.Cache.EntryCount, humanBytes(st.Cache.TotalBytes), st.Cache.HitRate())
	}
}
