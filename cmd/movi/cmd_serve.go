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
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/movi/services/orchestrator"
)

// serverConfig applies the serve flags to the loaded config.
func serverConfig() orchestrator.Config {
	sc := cfg.Server
	if servePort != 0 {
		sc.Port = servePort
	}
	if serveSeed {
		sc.Fleet.Seed = true
	}
	if serveMemory {
		sc.Fleet.DSN = ":memory:"
		sc.Sessions.Backend = "memory"
	}
	return sc
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger("server")
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	svc, err := orchestrator.New(serverConfig(), orchestrator.WithLogger(logger.Slog()))
	if err != nil {
		logger.Error("Failed to create Movi service", "error", err)
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return svc.Run(ctx)
}
