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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianMentor/pkg/logging"
	"github.com/AleutianAI/AleutianMentor/services/mentor/patterns"
	"github.com/AleutianAI/AleutianMentor/services/mentor/policy"
	"github.com/AleutianAI/AleutianMentor/services/mentor/riskanalyst"
	"github.com/AleutianAI/AleutianMentor/services/mentor/server"
	storage "github.com/AleutianAI/AleutianMentor/services/mentor/storage/badger"
)

var (
	dbPath         string
	policyDir      string
	asJSON         bool
	servePort      string
	servePolicyDir string

	rootCmd = &cobra.Command{
		Use:   "mentor",
		Short: "Operator tooling for the Aleutian mentor service",
		Long: `Inspect sessions, re-run risk analysis, and validate activity
policy files against the store the mentor service writes.`,
	}

	historyCmd = &cobra.Command{
		Use:   "history [session-id]",
		Short: "Print the full trace sequence of a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze [session-id]",
		Short: "Run a risk analysis pass over a session and print the report",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}

	policyCmd = &cobra.Command{
		Use:   "policy",
		Short: "Work with activity policy files",
	}

	policyCheckCmd = &cobra.Command{
		Use:   "check [file...]",
		Short: "Validate activity policy YAML files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPolicyCheck,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the mentor HTTP service",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "/data/mentor", "path to the mentor badger store")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "emit machine-readable JSON")
	analyzeCmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory of activity policy files")
	serveCmd.Flags().StringVar(&servePort, "port", "", "HTTP port (overrides MENTOR_PORT)")
	serveCmd.Flags().StringVar(&servePolicyDir, "policy-dir", "", "directory of activity policy files (overrides MENTOR_POLICY_DIR)")
	policyCmd.AddCommand(policyCheckCmd)
	rootCmd.AddCommand(serveCmd, historyCmd, analyzeCmd, policyCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := server.ConfigFromEnv()
	if cmd.Flags().Changed("db") {
		cfg.DBPath = dbPath
	}
	if servePort != "" {
		cfg.Port = servePort
	}
	if servePolicyDir != "" {
		cfg.PolicyDir = servePolicyDir
	}
	return server.Run(cfg)
}

func openStore() (*storage.DB, error) {
	db, err := storage.Open(storage.DefaultConfig(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", dbPath, err)
	}
	return db, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	traces, err := storage.NewTraceStore(db).LoadSequence(context.Background(), args[0])
	if err != nil {
		return err
	}
	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(traces)
	}
	for _, tr := range traces {
		content := tr.Content
		if len(content) > 96 {
			content = content[:96] + "..."
		}
		fmt.Printf("%4d  %-15s  %s\n", tr.Seq, tr.Direction, content)
	}
	fmt.Printf("%d traces\n", len(traces))
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	logWrapper := logging.Default()
	defer logWrapper.Close()
	logger := logWrapper.Logger
	lib, err := patterns.NewLibrary()
	if err != nil {
		return err
	}
	defer lib.Close()

	provider, err := policy.NewProvider(policyDir, logger)
	if err != nil {
		return err
	}
	defer provider.Close()

	analyst := riskanalyst.NewAnalyst(
		storage.NewTraceStore(db),
		storage.NewSessionStore(db),
		storage.NewRiskStore(db),
		provider, lib, logger)

	report, err := analyst.Analyze(context.Background(), args[0])
	if err != nil {
		return err
	}
	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(report)
	}
	findings := 0
	for _, n := range report.SeverityTotals {
		findings += n
	}
	fmt.Printf("report %s\n", report.ReportID)
	fmt.Printf("  overall severity: %s\n", report.OverallSeverity)
	fmt.Printf("  trend:            %s\n", report.Trend)
	fmt.Printf("  findings:         %d\n", findings)
	for _, iv := range report.Interventions {
		fmt.Printf("  [%d] (%s) %s\n", iv.Priority, iv.Dimension, iv.Action)
	}
	return nil
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("FAIL  %s: %v\n", path, err)
			failed++
			continue
		}
		activityID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if _, err := policy.ParsePolicy(data, activityID); err != nil {
			fmt.Printf("FAIL  %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("OK    %s\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d policy files failed validation", failed, len(args))
	}
	return nil
}
