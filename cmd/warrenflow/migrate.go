package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"
)

var (
	migrateDataDir string
	migrateDryRun  bool
	migrateBackup  string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate logs.db from the legacy flat 'logs' bucket to 'log_entries'",
	Long: `migrate upgrades an older logs.db that stored entries in a single
flat 'logs' bucket to the current schema, which splits live entries
('log_entries') from archive segment pointers ('archive_pointers').
A backup is taken before any write unless --dry-run is set.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDataDir, "data-dir", "./data", "warrenflow data directory")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Show what would be migrated without making changes")
	migrateCmd.Flags().StringVar(&migrateBackup, "backup", "", "Path to back up logs.db before migrating (default: <data-dir>/logs.db.backup)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	log.SetFlags(log.LstdFlags)
	log.Println("warrenflow log store migration - logs -> log_entries")
	log.Println("=====================================================")

	dbPath := filepath.Join(migrateDataDir, "logs.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database not found at %s", dbPath)
	}

	log.Printf("Database: %s", dbPath)
	log.Printf("Dry run: %v", migrateDryRun)

	if !migrateDryRun {
		backupFile := migrateBackup
		if backupFile == "" {
			backupFile = dbPath + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(dbPath, backupFile); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		log.Println("✓ Backup created successfully")
	}

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := migrateLogsToLogEntries(db, migrateDryRun); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if migrateDryRun {
		log.Println("\nDry run completed. No changes made.")
	} else {
		log.Println("\n✓ Migration completed successfully!")
		log.Println("Old 'logs' bucket has been preserved for rollback if needed.")
	}
	return nil
}

func migrateLogsToLogEntries(db *bolt.DB, dryRun bool) error {
	var legacyCount int
	var migratedCount int

	err := db.View(func(tx *bolt.Tx) error {
		legacy := tx.Bucket([]byte("logs"))
		if legacy == nil {
			log.Println("✓ No legacy 'logs' bucket found - database is already using the current schema")
			return nil
		}
		if tx.Bucket([]byte("log_entries")) != nil {
			log.Println("⚠ Warning: both 'logs' and 'log_entries' buckets exist")
		}
		return legacy.ForEach(func(k, v []byte) error {
			legacyCount++
			return nil
		})
	})
	if err != nil {
		return err
	}
	if legacyCount == 0 {
		log.Println("✓ No legacy entries found to migrate")
		return nil
	}
	log.Printf("Found %d legacy log entries to migrate", legacyCount)

	if dryRun {
		log.Println("\n[DRY RUN] Would perform the following operations:")
		log.Println("1. Create 'log_entries' bucket")
		log.Printf("2. Copy %d entries from 'logs' to 'log_entries'", legacyCount)
		log.Println("3. Preserve 'logs' bucket for rollback")
		return nil
	}

	return db.Update(func(tx *bolt.Tx) error {
		logEntries, err := tx.CreateBucketIfNotExists([]byte("log_entries"))
		if err != nil {
			return fmt.Errorf("create log_entries bucket: %w", err)
		}
		legacy := tx.Bucket([]byte("logs"))
		if legacy == nil {
			return nil
		}

		log.Println("\nMigrating logs to log_entries...")
		err = legacy.ForEach(func(k, v []byte) error {
			var data map[string]any
			if err := json.Unmarshal(v, &data); err != nil {
				log.Printf("⚠ Warning: skipping invalid JSON for key %s: %v", k, err)
				return nil
			}
			if err := logEntries.Put(k, v); err != nil {
				return fmt.Errorf("copy entry %s: %w", k, err)
			}
			migratedCount++
			if migratedCount%100 == 0 {
				log.Printf("  Migrated %d/%d...", migratedCount, legacyCount)
			}
			return nil
		})
		if err != nil {
			return err
		}

		log.Printf("✓ Migrated %d/%d entries to log_entries", migratedCount, legacyCount)
		log.Println("✓ Preserved 'logs' bucket for rollback")
		return nil
	})
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0o600)
}
