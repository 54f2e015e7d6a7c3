// Command auth manages the API keys the gateway accepts.
//
// Keys are stored as SHA-256 hashes in PostgreSQL; the raw key is printed
// exactly once at creation and cannot be recovered afterwards.
package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/corpuslab/corpus-analytics-platform/internal/auth/apikey"
	"github.com/corpuslab/corpus-analytics-platform/pkg/config"
	"github.com/corpuslab/corpus-analytics-platform/pkg/logger"
	"github.com/corpuslab/corpus-analytics-platform/pkg/postgres"
)

var (
	configPath string

	// Shared command state, wired by the root PersistentPreRunE before any
	// subcommand runs.
	db        *postgres.Client
	validator *apikey.Validator
)

var rootCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage gateway API keys",
	Long: `auth creates, revokes, and lists the API keys the gateway accepts.

Every key carries its own scope list and per-minute rate limit. The raw key
is shown once at creation; only its hash is stored.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		validator = apikey.NewValidator(db)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

var (
	createName      string
	createRateLimit int
	createScopes    string
	createExpiresIn time.Duration
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	Example: `  auth create --name "my-app" --rate-limit 100 --scopes read,write --expires-in 720h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scopes := parseScopes(createScopes)
		if len(scopes) == 0 {
			return fmt.Errorf("--scopes must name at least one of read, write, admin")
		}

		var expiresAt *time.Time
		if createExpiresIn > 0 {
			t := time.Now().Add(createExpiresIn)
			expiresAt = &t
		}

		key, err := validator.CreateKey(cmd.Context(), createName, createRateLimit, scopes, expiresAt)
		if err != nil {
			return fmt.Errorf("creating key: %w", err)
		}

		fmt.Println("API key created.")
		fmt.Println("Store it securely, it cannot be retrieved again.")
		fmt.Println()
		fmt.Printf("  Key:        %s\n", key)
		fmt.Printf("  Name:       %s\n", createName)
		fmt.Printf("  Rate limit: %d req/min\n", createRateLimit)
		fmt.Printf("  Scopes:     %s\n", strings.Join(scopes, ", "))
		if expiresAt != nil {
			fmt.Printf("  Expires:    %s\n", expiresAt.Format(time.RFC3339))
		} else {
			fmt.Println("  Expires:    never")
		}
		return nil
	},
}

var revokeKey string

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an existing API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validator.RevokeKey(cmd.Context(), revokeKey); err != nil {
			return fmt.Errorf("revoking key: %w", err)
		}
		fmt.Println("API key revoked.")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := validator.ListKeys(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing keys: %w", err)
		}
		if len(keys) == 0 {
			fmt.Println("No active API keys.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tRATE LIMIT\tSCOPES\tEXPIRES")
		for _, k := range keys {
			expires := "never"
			if k.ExpiresAt != nil {
				expires = k.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%d/min\t%s\t%s\n",
				k.ID, k.Name, k.RateLimit, strings.Join(k.Scopes, ","), expires)
		}
		w.Flush()

		fmt.Printf("\n%d active key(s)\n", len(keys))
		return nil
	},
}

// parseScopes splits a comma-separated scope list, keeping known scopes and
// warning about the rest.
func parseScopes(raw string) []string {
	var scopes []string
	for _, s := range strings.Split(raw, ",") {
		switch strings.TrimSpace(s) {
		case apikey.ScopeRead:
			scopes = append(scopes, apikey.ScopeRead)
		case apikey.ScopeWrite:
			scopes = append(scopes, apikey.ScopeWrite)
		case apikey.ScopeAdmin:
			scopes = append(scopes, apikey.ScopeAdmin)
		case "":
		default:
			fmt.Fprintf(os.Stderr, "warning: ignoring unknown scope %q\n", s)
		}
	}
	return scopes
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/development.yaml", "path to config file")

	createCmd.Flags().StringVar(&createName, "name", "", "name for the API key")
	createCmd.Flags().IntVar(&createRateLimit, "rate-limit", 100, "requests per minute")
	createCmd.Flags().StringVar(&createScopes, "scopes", apikey.ScopeRead, "comma-separated scopes: read, write, admin")
	createCmd.Flags().DurationVar(&createExpiresIn, "expires-in", 0, "expiry duration, e.g. 720h (0 means never)")
	createCmd.MarkFlagRequired("name")

	revokeCmd.Flags().StringVar(&revokeKey, "key", "", "raw API key to revoke")
	revokeCmd.MarkFlagRequired("key")

	rootCmd.AddCommand(createCmd, revokeCmd, listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
