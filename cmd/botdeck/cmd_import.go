/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botdeckhq/botdeck/internal/db"
	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/botdeckhq/botdeck/internal/migration"
	"github.com/botdeckhq/botdeck/internal/migration/legacy"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import data from other dashboard systems",
	Long:  "Import channels, managers, coupons, and posting schedules from a previous dashboard installation",
}

var importLegacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Import from a legacy dashboard database",
	Long:  "Import channels, editors, coupons, and posting schedules from the legacy dashboard's PostgreSQL database",
	RunE:  runImportLegacy,
}

var (
	legacyDBHost       string
	legacyDBPort       int
	legacyDBName       string
	legacyDBUser       string
	legacyDBPassword   string
	legacyDBSSLMode    string
	legacySkipChannels bool
	legacySkipManagers bool
	legacySkipCoupons  bool
	legacySkipRules    bool
	legacyDryRun       bool
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importLegacyCmd)

	importLegacyCmd.Flags().StringVar(&legacyDBHost, "db-host", "localhost", "Legacy dashboard database host")
	importLegacyCmd.Flags().IntVar(&legacyDBPort, "db-port", 5432, "Legacy dashboard database port")
	importLegacyCmd.Flags().StringVar(&legacyDBName, "db-name", "dashboard", "Legacy dashboard database name")
	importLegacyCmd.Flags().StringVar(&legacyDBUser, "db-user", "", "Legacy dashboard database user (required)")
	importLegacyCmd.Flags().StringVar(&legacyDBPassword, "db-password", "", "Legacy dashboard database password")
	importLegacyCmd.Flags().StringVar(&legacyDBSSLMode, "db-sslmode", "disable", "Legacy dashboard database sslmode")
	importLegacyCmd.Flags().BoolVar(&legacySkipChannels, "skip-channels", false, "Skip channel import")
	importLegacyCmd.Flags().BoolVar(&legacySkipManagers, "skip-managers", false, "Skip editor/manager import")
	importLegacyCmd.Flags().BoolVar(&legacySkipCoupons, "skip-coupons", false, "Skip coupon import")
	importLegacyCmd.Flags().BoolVar(&legacySkipRules, "skip-rules", false, "Skip posting schedule import")
	importLegacyCmd.Flags().BoolVar(&legacyDryRun, "dry-run", false, "Walk the source database without writing anything")
	importLegacyCmd.MarkFlagRequired("db-user")
}

func runImportLegacy(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().
		Str("db_host", legacyDBHost).
		Str("db_name", legacyDBName).
		Bool("dry_run", legacyDryRun).
		Msg("starting legacy dashboard import")

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	bus := events.NewBus()
	migrationSvc := migration.NewService(database, bus, logger)
	importer := legacy.NewImporter(database, logger)
	migrationSvc.RegisterImporter(migration.SourceTypeLegacyDashboard, importer)

	options := migration.Options{
		DryRun:           legacyDryRun,
		SkipChannels:     legacySkipChannels,
		SkipManagers:     legacySkipManagers,
		SkipCoupons:      legacySkipCoupons,
		SkipRules:        legacySkipRules,
		LegacyDBHost:     legacyDBHost,
		LegacyDBPort:     legacyDBPort,
		LegacyDBName:     legacyDBName,
		LegacyDBUser:     legacyDBUser,
		LegacyDBPassword: legacyDBPassword,
		LegacyDBSSLMode:  legacyDBSSLMode,
	}

	ctx := context.Background()

	job, err := migrationSvc.CreateJob(ctx, migration.SourceTypeLegacyDashboard, options)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	logger.Info().Str("job_id", job.ID).Msg("import job created")

	// Run the importer directly so progress lands on the terminal.
	progressCallback := func(progress migration.Progress) {
		fmt.Printf("\r%-45s [%3.0f%%]", progress.CurrentStep, progress.Percentage)
		if progress.CompletedSteps == progress.TotalSteps {
			fmt.Println()
		}
	}

	result, err := importer.Import(ctx, options, progressCallback)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if legacyDryRun {
		fmt.Printf("\nImport preview (dry run):\n")
	} else {
		fmt.Printf("\nImport complete:\n")
	}
	fmt.Printf("  Channels:  %d\n", result.ChannelsCreated)
	fmt.Printf("  Managers:  %d\n", result.ManagersCreated)
	fmt.Printf("  Coupons:   %d\n", result.CouponsCreated)
	fmt.Printf("  Rules:     %d (skipped %d)\n", result.RulesCreated, result.RulesSkipped)

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, warning := range result.Warnings {
			fmt.Printf("  - %s\n", warning)
		}
	}
	return nil
}
