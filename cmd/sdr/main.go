package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Napageneral/sdr/internal/config"
	"github.com/Napageneral/sdr/internal/db"
	"github.com/Napageneral/sdr/internal/users"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
	userFlag   string
)

// status is embedded in every command's Result.
type status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func (s *status) setError(msg string) {
	s.OK = false
	s.Message = msg
}

type failer interface {
	setError(msg string)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "sdr",
		Short: "Lead outreach agent",
		Long: `SDR stores businesses as contacts, groups them into campaigns and
sends personalized email and WhatsApp messages from templates,
logging every attempt.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", os.Getenv("SDR_USER"), "User id to act as (defaults to the only user)")

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("sdr %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	})

	// init command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize sdr config and database",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				ConfigPath string `json:"config_path,omitempty"`
				DataDir    string `json:"data_dir,omitempty"`
				DBPath     string `json:"db_path,omitempty"`
			}
			result := Result{status: status{OK: true}}

			configPath, err := config.GetConfigPath()
			if err != nil {
				fail(&result, "Failed to get config path: %v", err)
			}
			result.ConfigPath = configPath

			dataDir, err := config.GetDataDir()
			if err != nil {
				fail(&result, "Failed to get data directory: %v", err)
			}
			result.DataDir = dataDir

			if err := os.MkdirAll(dataDir, 0755); err != nil {
				fail(&result, "Failed to create data directory: %v", err)
			}

			cfg, err := config.LoadFile(configPath)
			if err != nil {
				fail(&result, "Failed to load config: %v", err)
			}
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := cfg.Save(); err != nil {
					fail(&result, "Failed to write config: %v", err)
				}
			}

			if err := db.Init(cfg); err != nil {
				fail(&result, "Failed to initialize database: %v", err)
			}
			dbPath, err := db.GetPath(cfg)
			if err != nil {
				fail(&result, "Failed to get database path: %v", err)
			}
			result.DBPath = dbPath
			result.Message = "SDR initialized successfully"

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Config: %s\n", result.ConfigPath)
				fmt.Printf("✓ Data directory: %s\n", result.DataDir)
				fmt.Printf("✓ Database: %s\n", result.DBPath)
				fmt.Println("\nSDR initialized successfully!")
				fmt.Println("Next: sdr user add --name \"Your Name\"")
			}
		},
	})

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newUserCmd())
	rootCmd.AddCommand(newCampaignCmd())
	rootCmd.AddCommand(newContactCmd())
	rootCmd.AddCommand(newTemplateCmd())
	rootCmd.AddCommand(newSettingsCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newStatsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// fail reports an error through result and exits 1.
func fail(result failer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	result.setError(msg)
	if jsonOutput {
		printJSON(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}

// openStore loads the config and opens the database with the schema applied.
func openStore(result failer) (*config.Config, *sql.DB) {
	cfg, err := config.Load()
	if err != nil {
		fail(result, "Failed to load config: %v", err)
	}
	database, err := db.Open(cfg)
	if err != nil {
		fail(result, "Failed to open database: %v", err)
	}
	if err := db.ApplySchema(database); err != nil {
		database.Close()
		fail(result, "Failed to apply schema: %v", err)
	}
	return cfg, database
}

// resolveUser returns --user, or the only user when exactly one exists.
func resolveUser(ctx context.Context, database *sql.DB, result failer) users.User {
	if userFlag != "" {
		u, err := users.Get(ctx, database, userFlag)
		if err != nil {
			fail(result, "User %s not found: %v", userFlag, err)
		}
		return u
	}
	list, err := users.List(ctx, database)
	if err != nil {
		fail(result, "Failed to list users: %v", err)
	}
	switch len(list) {
	case 0:
		fail(result, "No users yet; run: sdr user add --name <name>")
	case 1:
		return list[0]
	}
	fail(result, "Several users exist; pass --user <id>")
	return users.User{}
}
