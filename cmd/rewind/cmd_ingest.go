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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRewind/pkg/ux"
)

// runIngest scans a directory and appends a version. Without a session
// a new one is created and its ID printed.
func runIngest(cmd *cobra.Command, args []string) {
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

	sessionID := resolveSession()

	spin := ux.NewSpinner("Capturing snapshot")
	spin.Start()
	v, err := co.Submit(ctx, sessionID, result.Files, descriptionFlag)
	if err != nil {
		spin.StopWithError(fmt.Sprintf("Ingest failed: %v", err))
		os.Exit(1)
	}
	spin.Stop()

	if sessionID == "" {
		ux.Success(fmt.Sprintf("Created session %s", v.SessionID))
		ux.Tip(fmt.Sprintf("export REWIND_SESSION=%s to target it in later commands", v.SessionID))
	}
	ux.Success(fmt.Sprintf("Captured v%d: %d files, %d changed", v.Number, len(result.Files), v.ChangedFiles))
	if result.SkippedLarge+result.SkippedBinary > 0 {
		ux.Muted(fmt.Sprintf("skipped %d oversized and %d binary files",
			result.SkippedLarge, result.SkippedBinary))
	}
}

// runApply reads a unified diff from a file or stdin and appends the
// patched version.
func runApply(cmd *cobra.Command, args []string) {
	var (
		patch []byte
		err   error
	)
	if len(args) == 0 || args[0] == "-" {
		patch, err = io.ReadAll(os.Stdin)
	} else {
		patch, err = os.ReadFile(args[0])
	}
	if err != nil {
		fail("Failed to read patch: %v", err)
	}
	if len(patch) == 0 {
		fail("Patch is empty")
	}

	ctx := context.Background()
	co, cleanup, err := openCoordinator(ctx)
	if err != nil {
		fail("Failed to open store: %v", err)
	}
	defer cleanup()

	sessionID := requireSession()
	v, err := co.ApplyPatch(ctx, sessionID, patch, descriptionFlag)
	if err != nil {
		fail("Apply failed: %v", err)
	}
	ux.Success(fmt.Sprintf("Applied patch as v%d (%d files changed)", v.Number, v.ChangedFiles))
}
