package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Napageneral/sdr/internal/settings"
)

func newSettingsCmd() *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change outreach settings",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show settings",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Settings *settings.Settings `json:"settings,omitempty"`
			}
			result := Result{status: status{OK: true}}

			_, database := openStore(&result)
			defer database.Close()
			ctx := context.Background()
			u := resolveUser(ctx, database, &result)

			st, err := settings.Get(ctx, database, u.ID)
			if err != nil {
				fail(&result, "Failed to get settings: %v", err)
			}
			result.Settings = &st

			if jsonOutput {
				printJSON(result)
			} else {
				printSettings(st)
			}
		},
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Settings *settings.Settings `json:"settings,omitempty"`
			}
			result := Result{status: status{OK: true}}

			_, database := openStore(&result)
			defer database.Close()
			ctx := context.Background()
			u := resolveUser(ctx, database, &result)

			st, err := settings.Get(ctx, database, u.ID)
			if err != nil {
				fail(&result, "Failed to get settings: %v", err)
			}
			flags := cmd.Flags()
			if flags.Changed("interval") {
				st.SendInterval, _ = flags.GetInt("interval")
			}
			if flags.Changed("email") {
				st.EmailEnabled, _ = flags.GetBool("email")
			}
			if flags.Changed("whatsapp") {
				st.WhatsAppEnabled, _ = flags.GetBool("whatsapp")
			}
			if flags.Changed("default-message") {
				st.DefaultMessage, _ = flags.GetString("default-message")
			}
			if flags.Changed("sheets-id") {
				st.SheetsID, _ = flags.GetString("sheets-id")
			}

			st, err = settings.Upsert(ctx, database, st)
			if err != nil {
				fail(&result, "Failed to save settings: %v", err)
			}
			result.Settings = &st

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Println("✓ Settings saved")
				printSettings(st)
			}
		},
	}
	setCmd.Flags().Int("interval", settings.DefaultSendInterval, "Seconds between messages")
	setCmd.Flags().Bool("email", true, "Allow email sends")
	setCmd.Flags().Bool("whatsapp", true, "Allow WhatsApp sends")
	setCmd.Flags().String("default-message", "", "Default message text")
	setCmd.Flags().String("sheets-id", "", "Linked spreadsheet id")

	settingsCmd.AddCommand(showCmd, setCmd)
	return settingsCmd
}

func printSettings(st settings.Settings) {
	fmt.Printf("  Send interval: %ds\n", st.SendInterval)
	fmt.Printf("  Email:         %s\n", onOff(st.EmailEnabled))
	fmt.Printf("  WhatsApp:      %s\n", onOff(st.WhatsAppEnabled))
	if st.SheetsID != "" {
		fmt.Printf("  Sheets id:     %s\n", st.SheetsID)
	}
	fmt.Printf("  Default message:\n    %s\n", st.DefaultMessage)
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
