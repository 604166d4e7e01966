package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"arstudio/internal/app"
	"arstudio/internal/config"
	"arstudio/internal/store"
	"arstudio/internal/store/migrations"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configPath returns the config file location, honoring ARSTUDIO_CONFIG.
func configPath() string {
	if p := os.Getenv("ARSTUDIO_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "arstudio.toml"
	}
	return filepath.Join(home, ".config", "arstudio", "config.toml")
}

// loadConfig reads the config file (missing file yields defaults) and
// applies environment overrides on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.ReadFromFile(configPath())
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// newApp creates a fully wired App. The caller must defer a.Close().
func newApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "arstudio",
	Short: "AR activity authoring backend",
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
		managed, _ := cmd.Flags().GetBool("managed")

		cfg := config.NewConfig(managed)
		if err := config.Init(configPath(), cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", configPath())
		fmt.Printf("Data Dir: %s\n", cfg.Store.DataDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", configPath())
		fmt.Printf("Listen:   %s\n", cfg.ListenAddr)
		fmt.Printf("Managed:  %v\n", cfg.Managed)
		fmt.Printf("Data Dir: %s\n", cfg.Store.DataDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		if cfg.UseDocumentDB() {
			fmt.Printf("Backend:  mongodb (%s)\n", cfg.MongoDatabaseName())
		} else {
			fmt.Printf("Backend:  sqlite (%s)\n", cfg.DatabasePath())
		}
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(ctx)
	},
}

// pair command
var pairCmd = &cobra.Command{
	Use:   "pair ORG_ID",
	Short: "Generate a headset pairing code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		code, err := a.GeneratePairingCode(ctx, args[0])
		if err != nil {
			return fmt.Errorf("generating pairing code: %w", err)
		}

		fmt.Printf("Pairing code: %s\n", code.Code)
		fmt.Printf("Expires at:   %d\n", code.ExpiresAt)
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the embedded database schema",
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the schema is current",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.UseDocumentDB() {
			fmt.Println("Managed backend selected; no embedded schema to migrate.")
			return nil
		}

		db, err := store.OpenConnection(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if err := migrations.CheckStatus(db); err != nil {
			fmt.Printf("Schema check failed: %v\n", err)
			fmt.Println("Run 'arstudio migrate up' to apply pending migrations.")
			return nil
		}
		fmt.Println("Schema is up to date.")
		return nil
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.UseDocumentDB() {
			fmt.Println("Managed backend selected; no embedded schema to migrate.")
			return nil
		}

		db, err := store.OpenConnection(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if err := migrations.MigrateUp(db); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		fmt.Println("Schema is up to date.")
		return nil
	},
}

// diag command
var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Check storage backend health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("Backend: %s\n", a.Backend())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().Bool("managed", false, "Configure for the managed (hosted) environment")

	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateUpCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(diagCmd)
}
