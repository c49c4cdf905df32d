// Command server runs the FormPilot MCP server: a conversational
// form-filling engine bridged to Chrome over the DevTools protocol.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"formpilot/internal/backend"
	"formpilot/internal/browser"
	"formpilot/internal/config"
	"formpilot/internal/facts"
	mcpserver "formpilot/internal/mcp"
	"formpilot/internal/observability"
	"formpilot/internal/recorder"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath   string
		noWorkspace  bool
		workspaceDir string
		ssePort      int
	)

	root := &cobra.Command{
		Use:           "formpilot",
		Short:         "Conversational form-filling MCP server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio by default, SSE when configured)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, wsDir, err := config.LoadWithWorkspace(configPath, config.WorkspaceOptions{
				Disable:     noWorkspace,
				ExplicitDir: workspaceDir,
			})
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if ssePort != 0 {
				cfg.MCP.SSEPort = ssePort
			}
			return runServer(cmd.Context(), cfg, wsDir)
		},
	}
	serve.Flags().StringVar(&configPath, "config", "", "explicit config file (overrides workspace config)")
	serve.Flags().BoolVar(&noWorkspace, "no-workspace", false, "skip .formpilot workspace discovery")
	serve.Flags().StringVar(&workspaceDir, "workspace-dir", "", "use this directory as the workspace root")
	serve.Flags().IntVar(&ssePort, "sse-port", 0, "serve over SSE on this port instead of stdio")

	initCmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a .formpilot workspace with template config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			if err := config.InitWorkspace(root); err != nil {
				return err
			}
			fmt.Printf("initialized workspace in %s/%s\n", root, config.WorkspaceDirName)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(*cobra.Command, []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(serve, initCmd, versionCmd)
	return root
}

func runServer(parent context.Context, cfg config.Config, wsDir string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, closeLogger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closeLogger()

	if wsDir != "" {
		logger.Info("workspace config loaded", zap.String("workspace", wsDir))
	}

	store, err := facts.NewStore(cfg.Facts)
	if err != nil {
		return fmt.Errorf("init fact store: %w", err)
	}

	var rec *recorder.Recorder
	if cfg.Recorder.Enable {
		rec, err = recorder.NewRecorder(cfg.Recorder.Dir)
		if err != nil {
			return fmt.Errorf("init recorder: %w", err)
		}
		defer rec.Close()
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout(), logger)

	manager := browser.NewManager(cfg.Browser, logger)
	if cfg.Browser.AutoStart {
		if err := manager.Start(ctx); err != nil {
			return fmt.Errorf("start browser: %w", err)
		}
	} else {
		logger.Info("browser auto-start disabled; use launch-browser later")
	}
	defer func() {
		_ = manager.Shutdown(context.Background())
	}()

	server, err := mcpserver.NewServer(cfg, manager, client, store, rec, logger)
	if err != nil {
		return fmt.Errorf("init MCP server: %w", err)
	}

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		logger.Info("starting SSE server", zap.Int("port", cfg.MCP.SSEPort))
		startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		logger.Info("starting stdio server")
		startErr = server.Start(ctx)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		return startErr
	}
	return nil
}
