// Package main provides the ectop-mcp binary — MCP server for AI agents.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ectop-dev/ectop/pkg/config"
	"github.com/ectop-dev/ectop/pkg/gateway"
	emcp "github.com/ectop-dev/ectop/pkg/mcp"
	"github.com/ectop-dev/ectop/pkg/session"
)

var version = "dev"

func main() {
	sess, err := connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Periodic syncs keep tool answers fresh while the server blocks on
	// stdio.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	s := emcp.NewServer(sess, version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// connect loads the configuration and performs the initial sync. The
// config path comes from ECTOP_CONFIG, falling back to the per-user
// config dir; stdout belongs to the MCP transport, so findings go to
// stderr.
func connect() (*session.Session, error) {
	path := os.Getenv("ECTOP_CONFIG")
	if path == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			path = filepath.Join(dir, "ectop", "config.yaml")
		} else {
			path = "config.yaml"
		}
	}

	cfg, errs := config.LoadFile(path)
	if config.HasErrors(errs) {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  [%s] %s\n", e.Phase, e.Message)
		}
		return nil, fmt.Errorf("invalid configuration %s", path)
	}

	gw, err := gateway.Dial(cfg.Host, cfg.Port, cfg.Timeout())
	if err != nil {
		return nil, fmt.Errorf("connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	sess := session.New(gw, cfg.RefreshInterval(), cfg.Timeout())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout()+10*time.Second)
	defer cancel()
	if err := sess.Connect(ctx); err != nil {
		gw.Close()
		return nil, fmt.Errorf("initial sync against %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return sess, nil
}
