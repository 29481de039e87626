package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Napageneral/sdr/internal/channels"
	"github.com/Napageneral/sdr/internal/logging"
	"github.com/Napageneral/sdr/internal/outreach"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a template to a campaign's contacts",
		Long: `Send renders the template for every selected contact and delivers it
over email or WhatsApp, pausing between contacts for the configured
interval. Interrupting stops before the next contact.`,
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				outreach.Result
			}
			result := Result{status: status{OK: true}}

			campaignID, _ := cmd.Flags().GetString("campaign")
			templateID, _ := cmd.Flags().GetString("template")
			contactIDs, _ := cmd.Flags().GetStringSlice("contacts")
			all, _ := cmd.Flags().GetBool("all")
			interval, _ := cmd.Flags().GetDuration("interval")

			cfg, database := openStore(&result)
			defer database.Close()

			logger, err := logging.New(cfg.Logging.Level, "console")
			if err != nil {
				fail(&result, "Failed to create logger: %v", err)
			}
			defer logger.Sync()

			registry, err := channels.Build(cfg, logger.Sugar().Infof)
			if err != nil {
				fail(&result, "Failed to build channels: %v", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			u := resolveUser(ctx, database, &result)

			d := &outreach.Dispatcher{
				DB:              database,
				Channels:        registry,
				Logger:          logger,
				DefaultInterval: time.Duration(cfg.Dispatch.DefaultIntervalSeconds) * time.Second,
			}
			if cmd.Flags().Changed("interval") {
				d.Sleep = func(ctx context.Context, _ time.Duration) error {
					t := time.NewTimer(interval)
					defer t.Stop()
					select {
					case <-t.C:
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}

			res, err := d.Send(ctx, u.ID, outreach.Request{
				CampaignID: campaignID,
				TemplateID: templateID,
				ContactIDs: contactIDs,
				SendToAll:  all || len(contactIDs) == 0,
			})
			if err != nil {
				fail(&result, "Send failed: %v", err)
			}
			result.Result = res
			result.OK = res.Success

			if jsonOutput {
				printJSON(result)
			} else {
				for _, r := range res.Results {
					if r.Success {
						fmt.Printf("✓ %s (%s)\n", r.Contact, r.Channel)
					} else {
						fmt.Printf("✗ %s: %s\n", r.Contact, r.Error)
					}
				}
				fmt.Printf("\nSent %d of %d (%d failed)", res.Successes, res.Total, res.Failures)
				if res.Canceled {
					fmt.Print(", canceled")
				}
				fmt.Printf("  job %s\n", res.JobID)
			}
			if res.Canceled {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().String("campaign", "", "Campaign id (required)")
	cmd.Flags().String("template", "", "Template id (required)")
	cmd.Flags().StringSlice("contacts", nil, "Contact ids to send to (default: all contacts in the campaign)")
	cmd.Flags().Bool("all", false, "Send to every contact in the campaign")
	cmd.Flags().Duration("interval", 0, "Override the pause between contacts")
	cmd.MarkFlagRequired("campaign")
	cmd.MarkFlagRequired("template")
	return cmd
}
