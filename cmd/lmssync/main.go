package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tonio1998/snsulms-sub001/internal/app"
	"github.com/tonio1998/snsulms-sub001/internal/config"
	"github.com/tonio1998/snsulms-sub001/internal/encryption"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an LMSApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "scan", "sync").
// Unless probe is false the connectivity signal is refreshed once before returning.
func newApp(cmd *cobra.Command, operation string, probe bool) (*app.LMSApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if token := os.Getenv("LMSSYNC_API_TOKEN"); token != "" {
		cfg.API.Token = token
	}

	offline, _ := cmd.Flags().GetBool("offline")
	verbose, _ := cmd.Flags().GetBool("verbose")
	opts := app.Options{Operation: operation, Offline: offline}
	if verbose {
		opts.StderrLevel = slog.LevelDebug
	}

	ctx := cmd.Context()
	a, err := app.NewLMSApp(ctx, cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	if a.Locked() {
		if err := unlock(a); err != nil {
			a.Close()
			return nil, err
		}
	}
	if probe && !offline {
		a.Connect(ctx)
	}
	return a, nil
}

// loadConfig reads the config file at the default path and returns it with
// the path it came from.
func loadConfig() (*config.Config, string, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, paths.ConfigPath, nil
}

var rootCmd = &cobra.Command{
	Use:          "lmssync",
	Short:        "Offline-first sync for the LMS mobile client",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A .env in the working directory may carry LMSSYNC_* overrides.
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		baseURL, _ := cmd.Flags().GetString("api")
		deviceID := uuid.New().String()

		cfg := config.NewConfig(deviceID, paths.BaseDir)
		cfg.API.BaseURL = baseURL
		if err := config.ValidateAPI(cfg.API); err != nil {
			return fmt.Errorf("invalid --api: %w", err)
		}

		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Base Dir:  %s\n", paths.BaseDir)
		fmt.Printf("API:       %s\n", baseURL)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		token := "(none)"
		if cfg.API.Token != "" {
			token = "(set)"
		}
		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Device ID:     %s\n", cfg.DeviceID)
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("API:           %s\n", cfg.API.BaseURL)
		fmt.Printf("API Token:     %s\n", token)
		fmt.Printf("Store:         %s (encrypted: %t)\n", cfg.Store.Type, cfg.Store.Encrypted)
		fmt.Printf("Database:      %s\n", cfg.Database.Type)
		fmt.Printf("Sync Interval: %s\n", cfg.Sync.Interval())
		fmt.Printf("Stalled After: %d attempts\n", cfg.Sync.StalledThreshold())
		if cfg.Sync.ConnectivityURL != "" {
			fmt.Printf("Connectivity:  %s\n", cfg.Sync.ConnectivityURL)
		}
		if cfg.Status.Listen != "" {
			fmt.Printf("Status Listen: %s\n", cfg.Status.Listen)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the at-rest encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair protecting the entity cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		if enc.IsConfigured() {
			return fmt.Errorf("keys already exist at %s", cfg.Encryption.PublicKeyPath)
		}

		passphrase, err := newPassphrase()
		if err != nil {
			return err
		}
		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Printf("Keys written to %s\n", cfg.Encryption.PublicKeyPath)
		if !cfg.Store.Encrypted {
			fmt.Println("Set store.encrypted = true in the config to start encrypting the cache.")
		}
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan SUBJECT",
	Short: "Record an attendance scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		classID, _ := cmd.Flags().GetInt64("class")
		atFlag, _ := cmd.Flags().GetString("at")

		a, err := newApp(cmd, "scan", true)
		if err != nil {
			return err
		}
		defer a.Close()

		at := a.Now()
		if atFlag != "" {
			at, err = time.Parse(time.RFC3339, atFlag)
			if err != nil {
				return fmt.Errorf("parsing --at: %w", err)
			}
		}

		queued, err := a.RecordScan(cmd.Context(), args[0], classID, at)
		if err != nil {
			return err
		}

		if queued {
			fmt.Printf("Queued scan of %s in class %d; it will be sent when the connection is back.\n", args[0], classID)
		} else {
			fmt.Printf("Recorded scan of %s in class %d.\n", args[0], classID)
		}
		return nil
	},
}

// queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the offline write queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scans waiting to be sent",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "queue-list", false)
		if err != nil {
			return err
		}
		defer a.Close()

		scans, err := a.PendingScans(cmd.Context())
		if err != nil {
			return err
		}
		if len(scans) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		for _, s := range scans {
			lastErr := ""
			if s.LastError != "" {
				lastErr = "  " + s.LastError
			}
			fmt.Printf("#%d  %-12s  class %-6d  %s  attempts:%d%s\n",
				s.ID,
				s.SubjectID,
				s.ClassID,
				s.ScannedAt.Local().Format("2006-01-02 15:04:05"),
				s.Attempts,
				lastErr,
			)
		}
		return nil
	},
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Send queued scans now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "drain", true)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Drain(cmd.Context())
		if err != nil {
			return err
		}
		if res.Skipped {
			fmt.Println("Offline or already draining; nothing sent.")
			return nil
		}
		fmt.Printf("Sent %d, failed %d, %d still queued\n", res.Submitted, res.Failed, res.Remaining)
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send queued scans and refresh every cached entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "sync", true)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Sync(cmd.Context())
		if err != nil {
			return err
		}

		if res.Drain.Skipped {
			fmt.Println("Queue:   skipped")
		} else {
			fmt.Printf("Queue:   sent %d, failed %d, %d still queued\n", res.Drain.Submitted, res.Drain.Failed, res.Drain.Remaining)
		}
		if res.Resync.Skipped {
			fmt.Println("Refresh: skipped (offline or already running)")
			return nil
		}
		for _, name := range res.Resync.Succeeded {
			fmt.Printf("  ok      %s\n", name)
		}
		for _, name := range a.Tasks() {
			if err, ok := res.Resync.Failed[name]; ok {
				fmt.Printf("  failed  %s: %v\n", name, err)
			}
		}
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, queue and freshness",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "status", true)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}

		online := "offline"
		if st.Online {
			online = "online"
		}
		fmt.Printf("Device:  %s\n", st.DeviceID)
		fmt.Printf("Network: %s\n", online)
		if st.Locked {
			fmt.Println("Cache:   locked")
		}
		fmt.Printf("Queue:   %d pending\n", st.Pending)
		if banner := st.StalledBanner(); banner != "" {
			fmt.Printf("\n! %s\n", banner)
		}

		fmt.Println("\nLast updated:")
		for _, f := range st.Freshness {
			fmt.Printf("  %-17s %s\n", f.Entity, f.Label)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View drain and resync history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "history", false)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No sync runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-6s  %s  %-8s  %-8s  %s\n",
				r.ID,
				r.Kind,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				duration,
				r.Detail,
			)
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the local database",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Write a copy of the local database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "db-backup", false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BackupDatabase(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Printf("Database written to %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("offline", false, "Treat the network as unavailable")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Mirror log output to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("api", "", "Base URL of the LMS API")
	configInitCmd.MarkFlagRequired("api")
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueDrainCmd)

	dbCmd.AddCommand(dbBackupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Int64("class", 0, "Class the scan belongs to")
	scanCmd.MarkFlagRequired("class")
	scanCmd.Flags().String("at", "", "Scan time in RFC 3339 (default now)")
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().String("listen", "", "Address for the status endpoints (overrides status.listen)")
	rootCmd.AddCommand(dbCmd)
}

// withTimeout bounds shutdown work after the command context is gone.
func withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
