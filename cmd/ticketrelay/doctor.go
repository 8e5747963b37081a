package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"ticketrelay/internal/config"
	"ticketrelay/internal/provider"
	"ticketrelay/internal/relay"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your ticketrelay setup",
		Long: `Verifies that the configuration, Airtable access, classifier backend,
Telegram token, audit database and gateway port are usable. Reports
pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("ticketrelay doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed, warned, failed := 0, 0, 0

			// 1. Config loads and validates
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				printFail("Config", err.Error())
				fmt.Printf("\nRun 'ticketrelay init' to create a default configuration.\n")
				return fmt.Errorf("config invalid")
			}
			printPass("Config", resolveConfigPath())
			passed++

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			// 2. Airtable credentials and table
			if err := cfg.RequireStore(); err != nil {
				printFail("Airtable", err.Error())
				failed++
			} else {
				_, discoverer := buildStore(cfg)
				if fields, err := discoverer.Fetch(ctx, cfg.Store.Table); err != nil {
					printFail("Airtable", err.Error())
					failed++
				} else {
					printPass("Airtable", fmt.Sprintf("table %q, %d fields", cfg.Store.Table, len(fields)))
					passed++
				}
			}

			// 3. Classifier
			if cfg.Classifier.Mode == "rules" {
				printPass("Classifier", "keyword rules")
				passed++
			} else {
				name := cfg.Classifier.Provider
				if pc := cfg.Providers[name]; pc.APIKey == "" && name != "ollama" {
					printWarn("Classifier", fmt.Sprintf("%s has no API key, keyword rules will be used", name))
					warned++
				} else if err := provider.NewFactory(cfg.Providers, logger).Check(ctx, name); err != nil {
					printFail("Classifier", fmt.Sprintf("%s: %v", name, err))
					failed++
				} else {
					printPass("Classifier", name+" reachable")
					passed++
				}
			}

			// 4. Telegram relay
			if cfg.Relay.Token == "" {
				printWarn("Telegram", "no bot token, relay cannot run")
				warned++
			} else if _, err := relay.NewTelegramSource(relay.TelegramConfig{Token: cfg.Relay.Token, Logger: logger}); err != nil {
				printFail("Telegram", err.Error())
				failed++
			} else {
				printPass("Telegram", fmt.Sprintf("token valid, watching thread %d", cfg.Relay.TargetThreadID))
				passed++
			}

			// 5. Audit database writable
			if cfg.Audit.Enabled {
				if err := checkDatabase(cfg.Audit.DBPath); err != nil {
					printFail("Audit database", err.Error())
					failed++
				} else {
					printPass("Audit database", cfg.Audit.DBPath)
					passed++
				}
			} else {
				printWarn("Audit database", "disabled")
				warned++
			}

			// 6. Gateway port
			if err := checkPort(cfg.Gateway.Addr()); err != nil {
				printWarn("Gateway port", fmt.Sprintf("%s may be in use: %v", cfg.Gateway.Addr(), err))
				warned++
			} else {
				printPass("Gateway port", cfg.Gateway.Addr()+" available")
				passed++
			}

			// 7. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running ticketrelay.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nticketrelay should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! ticketrelay is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")
	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-16s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-16s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-16s %s\n", check, detail)
}
