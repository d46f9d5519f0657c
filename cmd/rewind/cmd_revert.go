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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRewind/pkg/ux"
)

// runRevert restores the session to an earlier version by appending a
// new one; history is never rewritten.
func runRevert(cmd *cobra.Command, args []string) {
	target, err := strconv.Atoi(args[0])
	if err != nil || target < 1 {
		fail("Invalid version number %q", args[0])
	}

	ctx := context.Background()
	co, cleanup, err := openCoordinator(ctx)
	if err != nil {
		fail("Failed to open store: %v", err)
	}
	defer cleanup()

	sessionID := requireSession()
	if !yesFlag {
		if !confirmPrompt(fmt.Sprintf("Revert session %s to v%d?", shortID(sessionID), target)) {
			ux.Info("Aborted.")
			return
		}
	}

	v, err := co.Revert(ctx, sessionID, target, descriptionFlag)
	if err != nil {
		fail("Revert failed: %v", err)
	}
	ux.Success(fmt.Sprintf("Reverted to v%d as new version v%d", target, v.Number))
	ux.Tip("Nothing was deleted; 'rewind history' still shows every version.")
}
