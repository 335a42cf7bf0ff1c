package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"chronicle/internal/config"
	"chronicle/internal/mcp"
)

func serveCmd() *cobra.Command {
	var logFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(logFile)
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")
	return cmd
}

func runServe(logFile string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var extra []io.Writer
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		extra = append(extra, f)
	}

	e, err := loadEnv(extra...)
	if err != nil {
		return err
	}
	defer e.close()

	packsDir := e.cfg.Packs
	server := mcp.NewServer(e.system(), func(id string) (*config.Pack, error) {
		return config.FindPack(packsDir, id)
	}, version)

	e.logger.Info("mcp server starting", "storage", e.cfg.Storage.Driver, "packs", packsDir)
	return server.Run(ctx, &sdk.StdioTransport{})
}
