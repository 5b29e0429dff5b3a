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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/movi/pkg/ux"
	"github.com/AleutianAI/movi/services/agent/safety"
	"github.com/AleutianAI/movi/services/fleet"
)

func runSeed(cmd *cobra.Command, _ []string) error {
	logger := newLogger("cli")
	defer logger.Close()

	out := ux.NewOutput(os.Stdout, os.Stderr, ux.GetPersonality().Level)

	db, err := fleet.Open(cfg.Server.Fleet.DSN, logger.Slog())
	if err != nil {
		out.Error(fmt.Sprintf("Could not open the fleet database: %v", err))
		return err
	}
	defer db.Close()

	spinner := ux.NewSpinner(os.Stderr, ux.GetPersonality().Level, "Loading demo fleet data...")
	spinner.Start()
	summary, err := db.Seed(cmd.Context())
	spinner.Stop()
	if err != nil {
		out.Error(fmt.Sprintf("Seeding failed: %v", err))
		return err
	}

	out.Success(fmt.Sprintf("Seeded %s", cfg.Server.Fleet.DSN))
	out.Counts("Fleet data", seedCounts(summary))
	return nil
}

func seedCounts(s fleet.SeedSummary) map[string]int {
	return map[string]int{
		"stops":       s.Stops,
		"paths":       s.Paths,
		"routes":      s.Routes,
		"vehicles":    s.Vehicles,
		"drivers":     s.Drivers,
		"trips":       s.Trips,
		"deployments": s.Deployments,
	}
}

func runRules(_ *cobra.Command, _ []string) error {
	policy, err := safety.LoadPolicy(cfg.Server.RulesPath)
	if err != nil {
		return err
	}
	printPolicy(os.Stdout, ux.GetPersonality().Level, policy)
	return nil
}

// printPolicy lists the high-impact rules followed by the parameter aliases.
func printPolicy(w io.Writer, level ux.PersonalityLevel, policy safety.Policy) {
	out := ux.NewOutput(w, w, level)
	out.Title("High-impact actions")
	for _, r := range policy.HighImpact {
		checker := r.Checker
		if checker == "" {
			checker = "-"
		}
		if level == ux.PersonalityMachine {
			fmt.Fprintf(w, "RULE: action=%s entity=%s checker=%s keys=%s\n",
				r.Action, r.EntityType, checker, strings.Join(r.EntityKeys, ","))
			continue
		}
		out.Info(fmt.Sprintf("%-28s %-6s checker=%-18s keys=%s",
			r.Action, r.EntityType, checker, strings.Join(r.EntityKeys, ", ")))
	}

	out.Title("Parameter aliases")
	for _, n := range policy.Normalization {
		if level == ux.PersonalityMachine {
			fmt.Fprintf(w, "ALIAS: %s=%s\n", n.Canonical, strings.Join(n.Synonyms, ","))
			continue
		}
		out.Info(fmt.Sprintf("%-20s <- %s", n.Canonical, strings.Join(n.Synonyms, ", ")))
	}
}
