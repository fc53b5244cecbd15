package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	auditLimit int
	auditSince string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit log",
	Long: `Shows recorded operations. Vault names appear only as HMACs; the log
records what happened and when, not what is protected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var since time.Time
		if auditSince != "" {
			d, err := time.ParseDuration(auditSince)
			if err != nil {
				return fmt.Errorf("invalid --since duration: %w", err)
			}
			since = time.Now().Add(-d)
		}

		events, err := auditLog.ListEvents(auditLimit, since)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No audit events")
			return nil
		}

		for _, e := range events {
			detail := ""
			if e.Error != nil {
				detail = " " + e.Error.Code
			}
			fmt.Printf("%-30s %-20s %-8s%s\n", e.Timestamp, e.Operation, e.Result, detail)
		}
		return nil
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := auditLog.Verify()
		if err != nil {
			return err
		}

		if !result.Valid {
			for _, msg := range result.Errors {
				dangerColor.Println(msg)
			}
			return fmt.Errorf("audit chain invalid: %d record(s) checked", result.RecordsTotal)
		}
		successColor.Printf("Audit chain valid: %d record(s) verified\n", result.RecordsVerified)
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)

	auditCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g. 24h)")
}
