package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Napageneral/sdr/internal/users"
)

func newUserCmd() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users and API tokens",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user and print its API token",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				User  *users.User `json:"user,omitempty"`
				Token string      `json:"token,omitempty"`
			}
			result := Result{status: status{OK: true}}

			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")

			_, database := openStore(&result)
			defer database.Close()

			u, token, err := users.Create(context.Background(), database, name, email)
			if err != nil {
				fail(&result, "Failed to create user: %v", err)
			}
			result.User = &u
			result.Token = token

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Created user %s (%s)\n", u.Name, u.ID)
				fmt.Printf("  Token: %s\n", token)
				fmt.Println("  Store it now; it cannot be shown again.")
			}
		},
	}
	addCmd.Flags().String("name", "", "Display name")
	addCmd.Flags().String("email", "", "Contact email")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Users []users.User `json:"users"`
			}
			result := Result{status: status{OK: true}}

			_, database := openStore(&result)
			defer database.Close()

			list, err := users.List(context.Background(), database)
			if err != nil {
				fail(&result, "Failed to list users: %v", err)
			}
			result.Users = list

			if jsonOutput {
				printJSON(result)
				return
			}
			if len(list) == 0 {
				fmt.Println("No users")
				return
			}
			for _, u := range list {
				fmt.Printf("%s  %s  %s\n", u.ID, u.Name, u.Email)
			}
		},
	}

	rotateCmd := &cobra.Command{
		Use:   "rotate <user-id>",
		Short: "Issue a new API token, invalidating the old one",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				UserID string `json:"user_id"`
				Token  string `json:"token,omitempty"`
			}
			result := Result{status: status{OK: true}, UserID: args[0]}

			_, database := openStore(&result)
			defer database.Close()

			token, err := users.RotateToken(context.Background(), database, args[0])
			if err != nil {
				fail(&result, "Failed to rotate token: %v", err)
			}
			result.Token = token

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ New token for %s: %s\n", args[0], token)
			}
		},
	}

	userCmd.AddCommand(addCmd, listCmd, rotateCmd)
	return userCmd
}
