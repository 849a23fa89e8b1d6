// ABOUTME: Entry point for the realtime-gateway server
// ABOUTME: Serves client HTTP/WebSocket traffic and forwards envelopes to the orchestrator

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/realtime-gateway/internal/config"
	"github.com/2389/realtime-gateway/internal/gateway"
	"github.com/2389/realtime-gateway/internal/logging"
)

// version is set at build time with -ldflags.
var version = "dev"

const banner = `
                 _ _   _                                _
  _ __ ___  __ _| | |_(_)_ __ ___   ___    __ _  __ _| |_ _____      ____ _ _   _
 | '__/ _ \/ _' | | __| | '_ ' _ \ / _ \  / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | | |  __/ (_| | | |_| | | | | | |  __/ | (_| | (_| | ||  __/\ V  V / (_| | |_| |
 |_|  \___|\__,_|_|\__|_|_| |_| |_|\___|  \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                          |___/                             |___/
`

func usage() {
	fmt.Println("Usage: realtime-gateway <command> [--config PATH]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve      Start the gateway server")
	fmt.Println("  init       Write a config file with default values")
	fmt.Println("  health     Check gateway liveness")
	fmt.Println("  ready      Check gateway readiness (store and orchestrator)")
	fmt.Println("  version    Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	configFlag := fs.String("config", "", "config file path (default $REALTIME_GATEWAY_CONFIG or ./config.yaml)")
	_ = fs.Parse(os.Args[2:])
	configPath := config.ResolvePath(*configFlag)

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, configPath)
	case "init":
		err = runInit(configPath)
	case "health":
		err = runProbe(ctx, configPath, "/health", "healthy")
	case "ready":
		err = runProbe(ctx, configPath, "/health/ready", "ready")
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, configPath string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:        %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("gRPC:          %s\n", cfg.Server.GRPCAddr)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:          %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Orchestrator:  %s\n", cfg.Orchestrator.URL)
	green.Print("    ▶ ")
	fmt.Printf("Replay:        ")
	cyan.Print(cfg.Replay.Backend)
	gray.Printf(" (ttl %s)\n", cfg.Replay.TTL)
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! auth disabled (auth.jwt_secret is empty)")
	}
	fmt.Println()

	logger.Info("starting realtime-gateway",
		"config", configPath,
		"version", version,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runInit(configPath string) error {
	if err := config.Default().Save(configPath); err != nil {
		return err
	}
	color.New(color.FgGreen).Print("✓ ")
	fmt.Printf("wrote %s\n", configPath)
	return nil
}

// runProbe GETs path on the configured HTTP address and expects 200.
func runProbe(ctx context.Context, configPath, path, okMessage string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := "http://" + localAddr(cfg.Server.HTTPAddr) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	fmt.Println(okMessage)
	return nil
}

// localAddr turns a listen address like ":8080" into a dialable one.
func localAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
