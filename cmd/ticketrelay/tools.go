package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify a message without storing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			classifier, err := buildClassifier(cfg)
			if err != nil {
				return err
			}

			out := classifier.Classify(cmd.Context(), strings.Join(args, " "))
			data, _ := json.MarshalIndent(out.Result, "", "  ")
			fmt.Println(string(data))
			if out.Fallback() {
				fmt.Fprintf(os.Stderr, "fallback: %v\n", out.Err)
			}
			return nil
		},
	}
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show the live field schema of the destination table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			if err := cfg.RequireStore(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			_, discoverer := buildStore(cfg)
			fields, err := discoverer.Fetch(ctx, cfg.Store.Table)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FIELD\tTYPE")
			for _, f := range fields {
				fmt.Fprintf(w, "%s\t%s\n", f.Name, f.Type)
			}
			return w.Flush()
		},
	}
}

func historyCmd() *cobra.Command {
	var (
		limit  int
		status string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent ingestion attempts from the local ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			ledger, err := openLedger(cfg)
			if err != nil {
				return err
			}
			if ledger == nil {
				return fmt.Errorf("audit ledger is disabled (audit.enabled)")
			}
			defer ledger.Close()

			entries, err := ledger.Recent(cmd.Context(), limit, status)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSOURCE\tSENDER\tCATEGORY\tPRIORITY\tTEAM\tSTATUS\tDETAIL")
			for _, e := range entries {
				detail := e.RecordID
				if e.Status != "success" {
					detail = truncate(e.Error, 60)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					e.Source, e.Sender, e.Category, e.Priority, e.Team, e.Status, detail)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			sum, err := ledger.Summarize(cmd.Context(), time.Now().Add(-24*time.Hour))
			if err != nil {
				return err
			}
			fmt.Printf("\nlast 24h: %d total, %d stored, %d failed\n", sum.Total, sum.Success, sum.Error)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (success, error)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
