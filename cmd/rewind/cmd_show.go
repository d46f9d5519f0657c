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
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRewind/pkg/ux"
	"github.com/AleutianAI/AleutianRewind/services/rewind/delta"
	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

// runShow prints one version's summary, plus its file inventory and
// diff on request.
func runShow(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	co, cleanup, err := openCoordinator(ctx)
	if err != nil {
		fail("Failed to open store: %v", err)
	}
	defer cleanup()

	sessionID := requireSession()
	number := versionFlag
	if number == 0 {
		sess, err := co.Session(ctx, sessionID)
		if err != nil {
			fail("Failed to load session: %v", err)
		}
		number = sess.Current
	}

	v, err := co.Version(ctx, sessionID, number)
	if err != nil {
		fail("Failed to load v%d: %v", number, err)
	}

	ux.Title(fmt.Sprintf("%s v%d — %s", ux.IconSnapshot.Render(), v.Number, v.Description))
	ux.Info(fmt.Sprintf("created %s · %d files changed", relativeAge(v.CreatedAt), v.ChangedFiles))
	if v.RevertedFrom > 0 {
		ux.Info(fmt.Sprintf("restores v%d", v.RevertedFrom))
	}

	// Version 1 stores no diff; every file counts as added.
	if len(v.Diff) > 0 {
		if d, err := delta.Unmarshal(v.Diff); err == nil {
			adds, mods, rems := d.Stats()
			ux.ChangeSummary(adds, mods, rems)
		}
	} else if v.Number == 1 {
		ux.ChangeSummary(v.ChangedFiles, 0, 0)
	}

	if filesFlag {
		snap, err := co.Snapshot(ctx, sessionID, number)
		if err != nil {
			fail("Failed to load snapshot: %v", err)
		}
		fmt.Println()
		printInventory(snap)
	}

	if diffFlag {
		text, err := co.RenderDiff(ctx, sessionID, number, contextFlag)
		if err != nil {
			fail("Failed to render diff: %v", err)
		}
		fmt.Println()
		if text == "" {
			ux.Muted("no changes recorded for this version")
		} else {
			fmt.Println(ux.ColorizeDiff(text))
		}
	}
}

// printInventory lists a snapshot's files with their extracted metadata.
func printInventory(snap *snapshot.Snapshot) {
	paths := make([]string, 0, len(snap.Files))
	for p := range snap.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		meta := snap.Meta[p]
		line := fmt.Sprintf("  %-40s %-10s %6d lines %10s",
			p, meta.Language, meta.Lines.Total, humanBytes(meta.SizeBytes))
		if meta.Complexity != nil {
			line += fmt.Sprintf("  cx %.0f", *meta.Complexity)
		}
		if meta.AnalysisIncomplete {
			line += "  (partial)"
		}
		fmt.Println(line)
	}
	ux.Muted(fmt.Sprintf("%d files · %s", len(paths), humanBytes(snap.Files.TotalBytes())))
}
