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
	"github.com/AleutianAI/AleutianRewind/services/rewind/tui"
)

// runBrowse opens the interactive history browser and reports any
// reverts performed inside it after it exits.
func runBrowse(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	co, cleanup, err := openCoordinator(ctx)
	if err != nil {
		fail("Failed to open store: %v", err)
	}
	defer cleanup()

	sessionID := requireSession()
	cfg := tui.DefaultBrowseConfig()
	cfg.ContextLines = contextFlag
	cfg.ConfirmRevert = !noConfirmFlag

	result, err := tui.Browse(ctx, co, sessionID, cfg)
	if err != nil {
		fail("Browse failed: %v", err)
	}
	for _, r := range result.Reverts {
		ux.Success(fmt.Sprintf("Reverted to v%d as new version v%d", r.Target, r.Created))
	}
}
