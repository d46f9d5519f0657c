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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRewind/pkg/ux"
)

// runGC triggers one value-log garbage collection cycle and reports
// store sizes afterwards.
func runGC(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	co, cleanup, err := openCoordinator(ctx)
	if err != nil {
		fail("Failed to open store: %v", err)
	}
	defer cleanup()

	spin := ux.NewSpinner("Collecting garbage")
	spin.Start()
	if err := co.RunGC(); err != nil {
		spin.StopWithError(fmt.Sprintf("GC failed: %v", err))
		os.Exit(1)
	}
	spin.StopWithSuccess("GC cycle complete")

	st, err := co.Stats(ctx)
	if err != nil {
		fail("Failed to read stats: %v", err)
	}
	ux.Muted(fmt.Sprintf("lsm %s · value log %s", humanBytes(st.LSMBytes), humanBytes(st.VLogBytes)))
}
