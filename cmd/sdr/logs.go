package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Napageneral/sdr/internal/dashboard"
	"github.com/Napageneral/sdr/internal/sendlogs"
)

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show send logs, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Logs []sendlogs.Log `json:"logs"`
			}
			result := Result{status: status{OK: true}}

			var f sendlogs.Filter
			f.CampaignID, _ = cmd.Flags().GetString("campaign")
			f.JobID, _ = cmd.Flags().GetString("job")
			f.Status, _ = cmd.Flags().GetString("status")
			f.Limit, _ = cmd.Flags().GetInt("limit")

			_, database := openStore(&result)
			defer database.Close()
			ctx := context.Background()
			u := resolveUser(ctx, database, &result)

			logs, err := sendlogs.List(ctx, database, u.ID, f)
			if err != nil {
				fail(&result, "Failed to list logs: %v", err)
			}
			result.Logs = logs

			if jsonOutput {
				printJSON(result)
				return
			}
			if len(logs) == 0 {
				fmt.Println("No send logs")
				return
			}
			for _, l := range logs {
				line := fmt.Sprintf("%s  %-6s  %-8s  %s", l.CreatedAt.Format(time.DateTime), l.Status, l.Type, l.ContactID)
				if l.Error != "" {
					line += "  " + l.Error
				}
				fmt.Println(line)
			}
		},
	}
	cmd.Flags().String("campaign", "", "Filter by campaign id")
	cmd.Flags().String("job", "", "Filter by dispatch job id")
	cmd.Flags().String("status", "", "Filter by status (sent, failed)")
	cmd.Flags().Int("limit", sendlogs.DefaultLimit, "Maximum logs to show")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard totals",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Summary *dashboard.Summary `json:"summary,omitempty"`
			}
			result := Result{status: status{OK: true}}

			_, database := openStore(&result)
			defer database.Close()
			ctx := context.Background()
			u := resolveUser(ctx, database, &result)

			sum, err := dashboard.Summarize(ctx, database, u.ID)
			if err != nil {
				fail(&result, "Failed to build stats: %v", err)
			}
			result.Summary = &sum

			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Printf("Contacts:       %d\n", sum.TotalContacts)
			fmt.Printf("Messages sent:  %d\n", sum.MessagesSent)
			fmt.Printf("Failed:         %d\n", sum.MessagesFailed)
			fmt.Printf("Response rate:  %.1f%%\n", sum.ResponseRate)
			fmt.Printf("Conversions:    %d\n", sum.Conversions)
			if len(sum.Campaigns) > 0 {
				fmt.Println("\nCampaigns:")
				for _, c := range sum.Campaigns {
					fmt.Printf("  %-30s %3d%%  (%d/%d)\n", c.Name, c.Progress, c.MessagesSent, c.TotalContacts)
				}
			}
		},
	}
}
