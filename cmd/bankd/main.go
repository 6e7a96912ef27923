// ABOUTME: Entry point for the bankd banking API server
// ABOUTME: Provides serve, init, bootstrap and health subcommands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/northbridge/bankd/internal/config"
	"github.com/northbridge/bankd/internal/server"
)

// Version is set at build time.
var version = "dev"

const banner = `
                 _   _     _               _     _
  _ __   ___  _ __| |_| |__ | |__  _ __ (_) __| | __ _  ___
 | '_ \ / _ \| '__| __| '_ \| '_ \| '__|| |/ _' |/ _' |/ _ \
 | | | | (_) | |  | |_| | | | |_) | |   | | (_| | (_| |  __/
 |_| |_|\___/|_|   \__|_| |_|_.__/|_|   |_|\__,_|\__, |\___|
                                                 |___/
`

// getConfigPath returns the path to the bankd config file.
// Priority: NORTHBRIDGE_CONFIG env var > XDG_CONFIG_HOME/northbridge/bankd.yaml > ~/.config/northbridge/bankd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("NORTHBRIDGE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bankd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "northbridge", "bankd.yaml")
}

// getDataPath returns the path to the bankd data directory.
// Priority: XDG_DATA_HOME/northbridge > ~/.local/share/northbridge
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "northbridge")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: bankd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                          Start the API server")
		fmt.Println("  init                           Create a new config file interactively")
		fmt.Println("  bootstrap --password PASSWORD  Register the configured admin account")
		fmt.Println("  health                         Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Admin:     %s\n", cfg.Auth.AdminEmail)
	fmt.Println()

	logger.Info("starting bankd",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"token_ttl", cfg.Auth.TokenTTL,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// configTemplate holds the values written by init.
type configTemplate struct {
	HTTPAddr   string
	DBPath     string
	JWTSecret  string
	AdminEmail string
	TokenTTL   string
	LogLevel   string
	LogFormat  string
}

// render produces the YAML config file contents.
func (c configTemplate) render() string {
	var b strings.Builder
	b.WriteString("# bankd configuration\n")
	b.WriteString("# Generated by bankd init\n\n")

	b.WriteString("server:\n")
	b.WriteString(fmt.Sprintf("  http_addr: %q\n", c.HTTPAddr))
	b.WriteString("  auth_rate_limit: 30\n")
	b.WriteString("\n")

	b.WriteString("database:\n")
	b.WriteString(fmt.Sprintf("  path: %q\n", c.DBPath))
	b.WriteString("\n")

	b.WriteString("auth:\n")
	b.WriteString(fmt.Sprintf("  jwt_secret: %q\n", c.JWTSecret))
	b.WriteString(fmt.Sprintf("  admin_email: %q\n", c.AdminEmail))
	b.WriteString(fmt.Sprintf("  token_ttl: %q\n", c.TokenTTL))
	b.WriteString("\n")

	b.WriteString("logging:\n")
	b.WriteString(fmt.Sprintf("  level: %q\n", c.LogLevel))
	b.WriteString(fmt.Sprintf("  format: %q\n", c.LogFormat))
	return b.String()
}

// generateSecret returns a random base64 secret of 48 bytes of entropy.
func generateSecret() (string, error) {
	secretBytes := make([]byte, 48)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("bankd configuration setup")
	fmt.Println("=========================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDbPath := filepath.Join(getDataPath(), "bank.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	fmt.Println("\n--- Server Configuration ---")
	tmpl := configTemplate{JWTSecret: secret}
	tmpl.HTTPAddr = prompt(reader, "HTTP address", "localhost:8000")

	fmt.Println("\n--- Database Configuration ---")
	tmpl.DBPath = prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Auth Configuration ---")
	tmpl.AdminEmail = prompt(reader, "Admin email", config.DefaultAdminEmail)
	tmpl.TokenTTL = prompt(reader, "Access token lifetime", config.DefaultTokenTTL.String())

	fmt.Println("\n--- Logging Configuration ---")
	tmpl.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	tmpl.LogFormat = prompt(reader, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The file holds the signing secret.
	if err := os.WriteFile(outputFile, []byte(tmpl.render()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(tmpl.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  bankd serve\n")

	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
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
