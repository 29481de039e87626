package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Napageneral/sdr/internal/bus"
	"github.com/Napageneral/sdr/internal/contacts"
)

func newContactCmd() *cobra.Command {
	contactCmd := &cobra.Command{
		Use:     "contact",
		Aliases: []string{"contacts"},
		Short:   "Manage contacts",
	}

	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a contact",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Contact *contacts.Contact `json:"contact,omitempty"`
			}
			result := Result{status: status{OK: true}}

			in := contacts.Input{Name: args[0]}
			in.CampaignID, _ = cmd.Flags().GetString("campaign")
			in.Phone, _ = cmd.Flags().GetString("phone")
			in.Email, _ = cmd.Flags().GetString("email")
			in.Address, _ = cmd.Flags().GetString("address")
			in.Website, _ = cmd.Flags().GetString("website")
			in.Category, _ = cmd.Flags().GetString("category")
			in.Notes, _ = cmd.Flags().GetString("notes")

			_, database := openStore(&result)
			defer database.Close()
			ctx := context.Background()
			u := resolveUser(ctx, database, &result)

			c, err := contacts.Create(ctx, database, u.ID, in)
			if err != nil {
				fail(&result, "Failed to add contact: %v", err)
			}
			_ = bus.Emit(ctx, database, u.ID, bus.TypeContactsAdded, c.CampaignID, map[string]any{"count": 1})
			result.Contact = &c

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Added contact %s (%s)\n", c.Name, c.ID)
			}
		},
	}
	addCmd.Flags().String("campaign", "", "Campaign id")
	addCmd.Flags().String("phone", "", "Phone number")
	addCmd.Flags().String("email", "", "Email address")
	addCmd.Flags().String("address", "", "Street address")
	addCmd.Flags().String("website", "", "Website")
	addCmd.Flags().String("category", "", "Business category")
	addCmd.Flags().String("notes", "", "Free-form notes")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Contacts []contacts.Contact `json:"contacts"`
			}
			result := Result{status: status{OK: true}}

			var f contacts.Filter
			f.CampaignID, _ = cmd.Flags().GetString("campaign")
			f.Status, _ = cmd.Flags().GetString("status")
			f.Search, _ = cmd.Flags().GetString("search")
			f.Limit, _ = cmd.Flags().GetInt("limit")

			_, database := openStore(&result)
			defer database.Close()
			ctx := context.Background()
			u := resolveUser(ctx, database, &result)

			list, err := contacts.List(ctx, database, u.ID, f)
			if err != nil {
				fail(&result, "Failed to list contacts: %v", err)
			}
			result.Contacts = list

			if jsonOutput {
				printJSON(result)
				return
			}
			if len(list) == 0 {
				fmt.Println("No contacts")
				return
			}
			for _, c := range list {
				fmt.Printf("%s  %-9s  %-30s  %-16s  %s\n", c.ID, c.Status, c.Name, c.Phone, c.Email)
			}
		},
	}
	listCmd.Flags().String("campaign", "", "Filter by campaign id")
	listCmd.Flags().String("status", "", "Filter by status (new, contacted, replied, converted)")
	listCmd.Flags().String("search", "", "Match name or category")
	listCmd.Flags().Int("limit", 0, "Maximum contacts to list")

	contactCmd.AddCommand(addCmd, listCmd)
	return contactCmd
}
