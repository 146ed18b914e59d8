// ABOUTME: Entry point for the studio-bridge MCP server.
// ABOUTME: Binds the coordination port (primary) or forwards to its owner (dud).

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/2389/studio-bridge/internal/bridge"
	"github.com/2389/studio-bridge/internal/config"
	"github.com/2389/studio-bridge/internal/forward"
	"github.com/2389/studio-bridge/internal/gateway"
	"github.com/2389/studio-bridge/internal/mcp"
)

// getConfigPath returns the path to the config file.
// Priority: STUDIO_BRIDGE_CONFIG env var > XDG_CONFIG_HOME/studio-bridge/config.yaml > ~/.config/studio-bridge/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("STUDIO_BRIDGE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "studio-bridge", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: studio-bridge <command>")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  serve     Run the MCP server on stdio")
		fmt.Fprintln(os.Stderr, "  health    Check the coordination server")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runServe starts the MCP stdio surface and, depending on whether the
// coordination port is free, either the long-poll gateway (primary mode)
// or the failover forwarder (dud mode). Stdout belongs to the MCP stream;
// everything else goes to stderr or the configured log file.
func runServe(ctx context.Context) error {
	// Optional .env for local overrides; absence is fine.
	_ = godotenv.Load()

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closeLog()

	logger.Info("starting studio-bridge",
		"version", mcp.Version,
		"config", configPath,
		"addr", cfg.Server.Addr(),
	)

	state := bridge.NewState(cfg.Poll.StaleGap, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err == nil {
		logger.Info("coordination port bound, running in primary mode")
		srv := gateway.New(state, gateway.Config{PollTimeout: cfg.Poll.Timeout}, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(ctx, ln); err != nil {
				logger.Error("coordination server failed", "error", err)
				cancel()
			}
		}()
	} else {
		logger.Info("coordination port busy, running in dud mode", "reason", err)
		endpoint := fmt.Sprintf("http://%s/proxy", cfg.Server.Addr())
		fwd := forward.New(state, endpoint, cfg.Proxy.Timeout, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = fwd.Run(ctx)
		}()
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Submitter: state,
		Logger:    logger,
		In:        os.Stdin,
		Out:       os.Stdout,
	})
	if err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("creating MCP server: %w", err)
	}

	runErr := mcpServer.Run(ctx)

	cancel()
	wg.Wait()
	logger.Info("bye")
	return runErr
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.Addr())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
