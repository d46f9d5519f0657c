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
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRewind/cmd/rewind/config"
	"github.com/AleutianAI/AleutianRewind/pkg/ux"
)

// =============================================================================
// Command Definitions
// =============================================================================

var (
	// Persistent flags
	personalityLevel string
	sessionFlag      string
	storePathFlag    string

	// Command flags
	descriptionFlag   string
	versionFlag       int
	diffFlag          bool
	filesFlag         bool
	contextFlag       int
	patchFlag         bool
	limitFlag         int
	includeHiddenFlag bool
	maxFileBytesFlag  int64
	yesFlag           bool
	noConfirmFlag     bool
	debounceFlag      string
	maxRateFlag       float64
	olderThanFlag     string

	rootCmd = &cobra.Command{
		Use:   "rewind",
		Short: "Snapshot, diff, and revert codebase state during debugging sessions",
		Long: `Rewind captures immutable snapshots of a codebase as it changes during a
debugging session, stores them as compressed deltas, and lets you diff,
browse, and revert to any earlier version without losing history.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := config.Load(); err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}

			switch {
			case personalityLevel != "":
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			case config.Global.UX.Personality != "":
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(config.Global.UX.Personality))
			default:
				ux.InitPersonality()
			}
			p := ux.GetPersonality()
			p.ShowTips = config.Global.UX.ShowTips
			ux.SetPersonality(p)
		},
	}

	ingestCmd = &cobra.Command{
		Use:   "ingest [path]",
		Short: "Capture a snapshot of a directory",
		Long: `Scans a directory (default: the working directory) and appends a new
version to the session. Without a session, a new one is created and its
ID printed for use in later commands.`,
		Args: cobra.MaximumNArgs(1),
		Run:  runIngest, // Defined in cmd_ingest.go
	}

	applyCmd = &cobra.Command{
		Use:   "apply [patch-file]",
		Short: "Apply a unified diff to the session's current version",
		Long: `Reads a unified diff from a file (or stdin when the argument is "-" or
omitted) and appends a version with the patched content.`,
		Args: cobra.MaximumNArgs(1),
		Run:  runApply, // Defined in cmd_ingest.go
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List the versions of a session",
		Run:   runHistory, // Defined in cmd_history.go
	}

	showCmd = &cobra.Command{
		Use:   "show",
		Short: "Show a version's summary, file inventory, or diff",
		Run:   runShow, // Defined in cmd_show.go
	}

	revertCmd = &cobra.Command{
		Use:   "revert <version>",
		Short: "Restore the session to an earlier version",
		Long: `Appends a new version whose content matches the target version. History
is preserved; nothing is rewritten.`,
		Args: cobra.ExactArgs(1),
		Run:  runRevert, // Defined in cmd_revert.go
	}

	browseCmd = &cobra.Command{
		Use:   "browse",
		Short: "Browse session history in an interactive terminal UI",
		Run:   runBrowse, // Defined in cmd_browse.go
	}

	watchCmd = &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a directory and snapshot it as it changes",
		Long: `Watches a directory tree for file changes and appends a version after
each quiet period. Snapshot frequency is rate-limited. Stop with Ctrl-C.`,
		Args: cobra.MaximumNArgs(1),
		Run:  runWatch, // Defined in cmd_watch.go
	}

	gcCmd = &cobra.Command{
		Use:   "gc",
		Short: "Run one garbage collection cycle on the store",
		Run:   runGC, // Defined in cmd_gc.go
	}

	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "Manage debugging sessions",
	}

	sessionsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		Run:   runListSessions, // Defined in cmd_session.go
	}

	sessionsCreateCmd = &cobra.Command{
		Use:   "create [path]",
		Short: "Create a session from a directory snapshot",
		Args:  cobra.MaximumNArgs(1),
		Run:   runCreateSession, // Defined in cmd_session.go
	}

	sessionsCloseCmd = &cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a session to further writes",
		Args:  cobra.ExactArgs(1),
		Run:   runCloseSession, // Defined in cmd_session.go
	}

	sessionsDeleteCmd = &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and all its snapshots and versions",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteSession, // Defined in cmd_session.go
	}

	sessionsPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions idle longer than a cutoff",
		Run:   runPruneSessions, // Defined in cmd_session.go
	}

	sessionsStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Run:   runSessionStats, // Defined in cmd_session.go
	}
)

// =============================================================================
// Command Registration
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output personality: full, standard, minimal, machine (default: auto-detect)")
	rootCmd.PersistentFlags().StringVarP(&sessionFlag, "session", "s", "",
		"Session ID (default: REWIND_SESSION, then config session.default)")
	rootCmd.PersistentFlags().StringVar(&storePathFlag, "store", "",
		"Store directory (default: config store.path)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(revertCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(sessionsCmd)

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCreateCmd)
	sessionsCmd.AddCommand(sessionsCloseCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsPruneCmd)
	sessionsCmd.AddCommand(sessionsStatsCmd)

	ingestCmd.Flags().StringVarP(&descriptionFlag, "description", "d", "",
		"Version description")
	ingestCmd.Flags().BoolVar(&includeHiddenFlag, "include-hidden", false,
		"Include dot-files and dot-directories")
	ingestCmd.Flags().Int64Var(&maxFileBytesFlag, "max-file-bytes", 0,
		"Skip files larger than this (default: config ingest.max_file_bytes)")

	applyCmd.Flags().StringVarP(&descriptionFlag, "description", "d", "",
		"Version description")

	historyCmd.Flags().BoolVar(&patchFlag, "patch", false,
		"Print each version's diff")
	historyCmd.Flags().IntVar(&limitFlag, "limit", 0,
		"Show only the newest N versions")
	historyCmd.Flags().IntVar(&contextFlag, "context", 3,
		"Context lines for --patch")

	showCmd.Flags().IntVarP(&versionFlag, "version", "v", 0,
		"Version number (default: current)")
	showCmd.Flags().BoolVar(&diffFlag, "diff", false,
		"Print the version's diff")
	showCmd.Flags().BoolVar(&filesFlag, "files", false,
		"Print the version's file inventory")
	showCmd.Flags().IntVar(&contextFlag, "context", 3,
		"Context lines for --diff")

	revertCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false,
		"Skip the confirmation prompt")
	revertCmd.Flags().StringVarP(&descriptionFlag, "description", "d", "",
		"Version description")

	browseCmd.Flags().IntVar(&contextFlag, "context", 3,
		"Context lines for diffs")
	browseCmd.Flags().BoolVar(&noConfirmFlag, "no-confirm", false,
		"Revert without the confirmation prompt")

	watchCmd.Flags().StringVar(&debounceFlag, "debounce", "500ms",
		"Quiet period before a changed tree is snapshotted")
	watchCmd.Flags().Float64Var(&maxRateFlag, "max-rate", 0.5,
		"Maximum snapshots per second")
	watchCmd.Flags().BoolVar(&includeHiddenFlag, "include-hidden", false,
		"Include dot-files and dot-directories")

	sessionsCreateCmd.Flags().StringVarP(&descriptionFlag, "description", "d", "",
		"Description for the first version")
	sessionsCreateCmd.Flags().BoolVar(&includeHiddenFlag, "include-hidden", false,
		"Include dot-files and dot-directories")

	sessionsDeleteCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false,
		"Skip the confirmation prompt")

	sessionsPruneCmd.Flags().StringVar(&olderThanFlag, "older-than", "720h",
		"Delete sessions with no activity for this long")
}
