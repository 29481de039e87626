package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Napageneral/sdr/internal/bus"
	"github.com/Napageneral/sdr/internal/templates"
)

func newTemplateCmd() *cobra.Command {
	templateCmd := &cobra.Command{
		Use:     "template",
		Aliases: []string{"templates"},
		Short:   "Manage message templates",
		Long: "Templates may use the placeholders " +
			"{" + strings.Join(templates.KnownVariables(), "}, {") + "}.",
	}

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a template",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Template *templates.Template `json:"template,omitempty"`
			}
			result := Result{status: status{OK: true}}

			in := templates.Input{Name: args[0]}
			in.Type, _ = cmd.Flags().GetString("type")
			in.Subject, _ = cmd.Flags().GetString("subject")
			in.Content, _ = cmd.Flags().GetString("content")
			if file, _ := cmd.Flags().GetString("file"); file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					fail(&result, "Failed to read %s: %v", file, err)
				}
				in.Content = string(data)
			}

			_, database := openStore(&result)
			defer database.Close()
			ctx := context.Background()
			u := resolveUser(ctx, database, &result)

			t, err := templates.Create(ctx, database, u.ID, in)
			if err != nil {
				fail(&result, "Failed to create template: %v", err)
			}
			_ = bus.Emit(ctx, database, u.ID, bus.TypeTemplateCreated, t.ID, map[string]any{"name": t.Name, "type": t.Type})
			result.Template = &t

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Created %s template %s (%s)\n", t.Type, t.Name, t.ID)
				if len(t.Variables) > 0 {
					fmt.Printf("  Variables: %s\n", strings.Join(t.Variables, ", "))
				}
			}
		},
	}
	createCmd.Flags().String("type", templates.TypeWhatsApp, "Template type (email or whatsapp)")
	createCmd.Flags().String("subject", "", "Email subject")
	createCmd.Flags().String("content", "", "Message body")
	createCmd.Flags().String("file", "", "Read the message body from a file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Templates []templates.Template `json:"templates"`
			}
			result := Result{status: status{OK: true}}

			activeOnly, _ := cmd.Flags().GetBool("active")

			_, database := openStore(&result)
			defer database.Close()
			ctx := context.Background()
			u := resolveUser(ctx, database, &result)

			list, err := templates.List(ctx, database, u.ID, activeOnly)
			if err != nil {
				fail(&result, "Failed to list templates: %v", err)
			}
			result.Templates = list

			if jsonOutput {
				printJSON(result)
				return
			}
			if len(list) == 0 {
				fmt.Println("No templates")
				return
			}
			for _, t := range list {
				state := "active"
				if !t.Active {
					state = "inactive"
				}
				fmt.Printf("%s  %-8s  %-8s  %s\n", t.ID, t.Type, state, t.Name)
			}
		},
	}
	listCmd.Flags().Bool("active", false, "Only active templates")

	templateCmd.AddCommand(createCmd, listCmd)
	return templateCmd
}
