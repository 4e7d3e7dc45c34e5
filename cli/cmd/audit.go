package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mowgliph/vento/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit records",
	Long: `Query audit trail records with optional filters.
Timestamps accept RFC 3339 ("2024-01-02T15:04:05Z") or dates ("2024-01-02").`,
	RunE: queryAudit,
}

var (
	auditSince    string
	auditUntil    string
	auditUser     string
	auditType     string
	auditFailures bool
	auditLimit    int
	auditJSON     bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd)

	auditQueryCmd.Flags().StringVar(&auditSince, "since", "", "only records at or after this time")
	auditQueryCmd.Flags().StringVar(&auditUntil, "until", "", "only records before this time")
	auditQueryCmd.Flags().StringVar(&auditUser, "user", "", "filter by user id")
	auditQueryCmd.Flags().StringVar(&auditType, "type", "", "filter by event type")
	auditQueryCmd.Flags().BoolVar(&auditFailures, "failures", false, "only failed operations")
	auditQueryCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum number of records")
	auditQueryCmd.Flags().BoolVar(&auditJSON, "json", false, "emit records as JSON")
}

func queryAudit(cmd *cobra.Command, args []string) error {
	options := audit.QueryOptions{
		UserID:    auditUser,
		EventType: auditType,
		Limit:     auditLimit,
	}

	if auditSince != "" {
		t, err := parseTimeFlag(auditSince)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		options.Since = &t
	}
	if auditUntil != "" {
		t, err := parseTimeFlag(auditUntil)
		if err != nil {
			return fmt.Errorf("invalid --until value: %w", err)
		}
		options.Until = &t
	}
	if auditFailures {
		failed := false
		options.Success = &failed
	}

	result, err := pipeline.AuditQuery(options)
	if err != nil {
		return err
	}

	if auditJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	if len(result.Events) == 0 {
		fmt.Println("No audit records matched")
		return nil
	}

	for _, event := range result.Events {
		status := "ok"
		if !event.Success {
			status = "FAILED"
		}
		fmt.Printf("%s  %-20s %-8s user=%s resource=%s action=%s\n",
			formatTime(event.Timestamp), event.EventType, status,
			event.UserID, event.Resource, event.Action)
	}
	fmt.Printf("\n%d of %d matching records shown\n", len(result.Events), result.Filtered)
	if result.HasMore {
		fmt.Println("More records available; raise --limit to see them")
	}
	return nil
}

func parseTimeFlag(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
