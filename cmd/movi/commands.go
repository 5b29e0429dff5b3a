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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/movi/cmd/movi/config"
	"github.com/AleutianAI/movi/pkg/logging"
	"github.com/AleutianAI/movi/pkg/ux"
)

// --- Global Command Variables ---
var (
	configPath       string
	personalityLevel string
	logLevel         string

	// cfg is loaded by the root PersistentPreRunE.
	cfg config.MoviConfig

	// serve flags
	servePort   int
	serveSeed   bool
	serveMemory bool

	// chat flags
	chatSession string
	chatPage    string

	rootCmd = &cobra.Command{
		Use:           "movi",
		Short:         "Movi, the fleet operations assistant",
		Long:          `Movi answers questions about trips, routes, vehicles and drivers, and asks before it changes anything that matters.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}

			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				loaded.Logging.Level = logLevel
			}
			if _, err := logging.ParseLevel(loaded.Logging.Level); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the Movi HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Replace the fleet database contents with the demo data set",
		Args:  cobra.NoArgs,
		RunE:  runSeed, // Defined in cmd_seed.go
	}

	rulesCmd = &cobra.Command{
		Use:   "rules",
		Short: "List the actions that require confirmation",
		Args:  cobra.NoArgs,
		RunE:  runRules, // Defined in cmd_seed.go
	}

	sessionCmd = &cobra.Command{
		Use:   "session [session_id]",
		Short: "Show the state of a conversation session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSession, // Defined in cmd_chat.go
	}

	chatCmd = &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with Movi. With a message argument, send it once and exit.",
		RunE:  runChat, // Defined in cmd_chat.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		fmt.Sprintf("config file (default %s)", config.DefaultPath()))
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"output style: full, minimal or machine (env MOVI_PERSONALITY)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	serveCmd.Flags().BoolVar(&serveSeed, "seed", false, "reload the demo fleet data on start")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "keep fleet data and sessions in memory")

	chatCmd.Flags().StringVar(&chatSession, "session", "", "session id to continue (default: new)")
	chatCmd.Flags().StringVar(&chatPage, "page", "", "UI page context, e.g. busDashboard or manageRoute")

	rootCmd.AddCommand(serveCmd, seedCmd, rulesCmd, sessionCmd, chatCmd)
}

// newLogger builds the process logger from the loaded config.
func newLogger(service string) *logging.Logger {
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: service,
		JSON:    cfg.Logging.JSON,
	})
}
