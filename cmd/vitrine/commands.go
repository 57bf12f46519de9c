// ABOUTME: Maintenance subcommands: init, health, reindex, recent, audit, and token
// ABOUTME: Offline commands open the SQLite store directly instead of calling the server

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/vitrine/internal/auth"
	"github.com/2389/vitrine/internal/config"
	"github.com/2389/vitrine/internal/install"
	"github.com/2389/vitrine/internal/ledger"
	"github.com/2389/vitrine/internal/reconcile"
	"github.com/2389/vitrine/internal/store"
)

// defaultTokenTTL is how long issued actor tokens stay valid.
const defaultTokenTTL = 30 * 24 * time.Hour

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println("healthy")
	return nil
}

// openStore loads the config and opens its database for offline commands.
func openStore() (*config.Config, *store.SQLiteStore, error) {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, s, nil
}

// runReindex backfills install state rows for working copies already on disk.
func runReindex(ctx context.Context) error {
	cfg, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	logger := setupLogger(cfg.Logging)
	r := reconcile.New(s, install.Layout{Root: cfg.Storage.UploadsDir}, logger)
	report, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("reindexing: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("  ✓ ")
	fmt.Printf("Scanned %d working copies in %d stores, added %d index rows\n",
		report.Scanned, report.Stores, report.Added)
	return nil
}

func runRecent(ctx context.Context) error {
	_, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := ledger.New(s, slog.New(slog.NewTextHandler(io.Discard, nil))).List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No installations yet.")
		return nil
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, e := range entries {
		kind := "theme"
		if e.IsCustom {
			kind = "custom"
		}
		cyan.Printf("  %-24s", e.PackageName)
		fmt.Printf(" %-7s store=%s", kind, e.StoreID)
		gray.Printf("  %s\n", e.InstalledAt.Local().Format("Jan 02 15:04"))
	}
	return nil
}

// auditListLimit is how many audit entries `vitrine audit` prints.
const auditListLimit = 20

func runAudit(ctx context.Context) error {
	_, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.ListAuditLog(ctx, store.AuditFilter{Limit: auditListLimit})
	if err != nil {
		return fmt.Errorf("listing audit log: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No theme changes recorded.")
		return nil
	}

	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)
	for _, e := range entries {
		actor := e.ActorID
		if actor == "" {
			actor = "-"
		}
		gray.Printf("  %s ", e.Timestamp.Local().Format("Jan 02 15:04:05"))
		yellow.Printf("%-22s", e.Action)
		fmt.Printf(" %s/%s actor=%s", e.TargetType, e.TargetID, actor)
		if e.StoreID != "" {
			fmt.Printf(" store=%s", e.StoreID)
		}
		fmt.Println()
	}
	return nil
}

// runToken issues a JWT for an actor. Supports "--actor value" and "--actor=value".
func runToken(args []string) error {
	var actorID string
	var roles []string
	ttl := defaultTokenTTL

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--actor", "--role", "--ttl":
			if !hasValue {
				if i+1 >= len(args) {
					return fmt.Errorf("%s requires a value", name)
				}
				value = args[i+1]
				i++
			}
		default:
			if strings.HasPrefix(arg, "-") {
				return fmt.Errorf("unknown flag: %s", arg)
			}
			return fmt.Errorf("unexpected argument: %s", arg)
		}

		switch name {
		case "--actor":
			actorID = strings.TrimSpace(value)
		case "--role":
			roles = append(roles, value)
		case "--ttl":
			d, err := time.ParseDuration(value)
			if err != nil || d <= 0 {
				return fmt.Errorf("invalid --ttl %q", value)
			}
			ttl = d
		}
	}
	if actorID == "" {
		return errors.New("--actor flag is required")
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(actorID, roles, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("vitrine configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	dataDir := prompt(reader, "Data directory (database and uploads)", getDataPath())

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(config.DefaultYAML(dataDir)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "uploads"), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nSet VITRINE_JWT_SECRET (32+ bytes) or clear auth.jwt_secret, then start the server:")
	fmt.Printf("  vitrine serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
