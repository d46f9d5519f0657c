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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRewind/pkg/ux"
)

// runHistory lists a session's versions oldest first, optionally with
// each version's diff.
func runHistory(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	co, cleanup, err := openCoordinator(ctx)
	if err != nil {
		fail("Failed to open store: %v", err)
	}
	defer cleanup()

	sessionID := requireSession()
	versions, err := co.History(ctx, sessionID)
	if err != nil {
		fail("Failed to load history: %v", err)
	}
	sess, err := co.Session(ctx, sessionID)
	if err != nil {
		fail("Failed to load session: %v", err)
	}

	if len(versions) == 0 {
		ux.Info("No versions yet. Capture one with 'rewind ingest'.")
		return
	}

	shown := versions
	if limitFlag > 0 && limitFlag < len(versions) {
		shown = versions[len(versions)-limitFlag:]
	}

	ux.Title(fmt.Sprintf("Session %s — %d of %d versions", shortID(sessionID), len(shown), len(versions)))
	for _, v := range shown {
		desc := v.Description
		if v.RevertedFrom > 0 {
			desc = fmt.Sprintf("%s [restores v%d]", desc, v.RevertedFrom)
		}
		ux.VersionLine(v.Number, desc, relativeAge(v.CreatedAt), v.Number == sess.Current)

		if patchFlag {
			text, err := co.RenderDiff(ctx, sessionID, v.Number, contextFlag)
			if err != nil {
				fail("Failed to render diff for v%d: %v", v.Number, err)
			}
			if text != "" {
				fmt.Println(ux.ColorizeDiff(text))
			}
		}
	}
}
