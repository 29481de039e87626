package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Napageneral/sdr/internal/bus"
	"github.com/Napageneral/sdr/internal/campaigns"
)

func newCampaignCmd() *cobra.Command {
	campaignCmd := &cobra.Command{
		Use:     "campaign",
		Aliases: []string{"campaigns"},
		Short:   "Manage campaigns",
	}

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a campaign",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Campaign *campaigns.Campaign `json:"campaign,omitempty"`
			}
			result := Result{status: status{OK: true}}

			description, _ := cmd.Flags().GetString("description")
			keywords, _ := cmd.Flags().GetString("keywords")

			_, database := openStore(&result)
			defer database.Close()
			ctx := context.Background()
			u := resolveUser(ctx, database, &result)

			c, err := campaigns.Create(ctx, database, u.ID, campaigns.Input{
				Name:        args[0],
				Description: description,
				Keywords:    campaigns.ParseKeywords(keywords),
			})
			if err != nil {
				fail(&result, "Failed to create campaign: %v", err)
			}
			_ = bus.Emit(ctx, database, u.ID, bus.TypeCampaignCreated, c.ID, map[string]any{"name": c.Name})
			result.Campaign = &c

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Created campaign %s (%s)\n", c.Name, c.ID)
			}
		},
	}
	createCmd.Flags().String("description", "", "Campaign description")
	createCmd.Flags().String("keywords", "", "Comma-separated search keywords")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Campaigns []campaigns.Campaign `json:"campaigns"`
			}
			result := Result{status: status{OK: true}}

			statusFilter, _ := cmd.Flags().GetString("status")

			_, database := openStore(&result)
			defer database.Close()
			ctx := context.Background()
			u := resolveUser(ctx, database, &result)

			list, err := campaigns.List(ctx, database, u.ID, campaigns.Filter{Status: statusFilter})
			if err != nil {
				fail(&result, "Failed to list campaigns: %v", err)
			}
			result.Campaigns = list

			if jsonOutput {
				printJSON(result)
				return
			}
			if len(list) == 0 {
				fmt.Println("No campaigns")
				return
			}
			for _, c := range list {
				fmt.Printf("%s  %-9s  %3d contacts  %3d sent  %s", c.ID, c.Status, c.TotalContacts, c.MessagesSent, c.Name)
				if len(c.Keywords) > 0 {
					fmt.Printf("  [%s]", strings.Join(c.Keywords, ", "))
				}
				fmt.Println()
			}
		},
	}
	listCmd.Flags().String("status", "", "Filter by status (active, paused, completed)")

	statusCmd := &cobra.Command{
		Use:   "status <campaign-id> <active|paused|completed>",
		Short: "Change a campaign's status",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				CampaignID string `json:"campaign_id"`
				Status     string `json:"status"`
			}
			result := Result{status: status{OK: true}, CampaignID: args[0], Status: args[1]}

			_, database := openStore(&result)
			defer database.Close()
			ctx := context.Background()
			u := resolveUser(ctx, database, &result)

			if err := campaigns.SetStatus(ctx, database, u.ID, args[0], args[1]); err != nil {
				fail(&result, "Failed to set status: %v", err)
			}

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Campaign %s is now %s\n", args[0], args[1])
			}
		},
	}

	campaignCmd.AddCommand(createCmd, listCmd, statusCmd)
	return campaignCmd
}
