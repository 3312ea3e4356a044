package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ectop-dev/ectop/pkg/config"
	"github.com/ectop-dev/ectop/pkg/gateway"
	"github.com/ectop-dev/ectop/pkg/logging"
	"github.com/ectop-dev/ectop/pkg/session"
	"github.com/ectop-dev/ectop/pkg/shell"
	"github.com/ectop-dev/ectop/pkg/tui"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	flagConfig  string
	flagHost    string
	flagPort    int
	flagRefresh float64
	flagTimeout float64
	flagEditor  string
	flagLogFile string
	flagDemo    bool
)

var rootCmd = &cobra.Command{
	Use:   "ectop",
	Short: "Interactive monitor for workflow suites",
	Long:  "ectop — a terminal monitor and controller for a workflow server: live suite tree, dependency explanations, and node control.",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	sess, err := connect(cfg)
	if err != nil {
		return err
	}
	log.Printf("connected to %s:%d", cfg.Host, cfg.Port)

	return tui.Run(tui.Config{
		Session: sess,
		Host:    cfg.Host,
		Port:    cfg.Port,
		Refresh: cfg.RefreshInterval(),
		Editor:  cfg.EditorCommand(),
		Logger:  log,
	})
}

// --- shell ---

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Line-oriented shell for scripts and slow links",
	Long: `Open a command shell against the workflow server instead of the
full-screen interface. Useful over slow links and in scripted sessions.
Type "help" at the prompt for the command list.`,
	RunE: runShell,
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	sess, err := connect(cfg)
	if err != nil {
		return err
	}
	log.Printf("shell connected to %s:%d", cfg.Host, cfg.Port)

	// Keep the cache fresh in the background while the shell blocks on
	// the prompt.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	return shell.New(sess).Run(ctx)
}

// --- schema export ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the configuration JSON Schema to stdout",
	RunE:  runSchemaExport,
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	data, err := config.GenerateJSONSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	var out json.RawMessage = data
	formatted, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(string(formatted))
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ectop %s (build: %s)\n", version, commit)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", defaultConfigPath(), "Path to the configuration file")
	pf.StringVar(&flagHost, "host", "", "Workflow server host (overrides config)")
	pf.IntVar(&flagPort, "port", 0, "Workflow server port (overrides config)")
	pf.Float64Var(&flagRefresh, "refresh", 0, "Refresh interval in seconds (overrides config)")
	pf.Float64Var(&flagTimeout, "timeout", 0, "Per-call timeout in seconds (overrides config)")
	pf.StringVar(&flagEditor, "editor", "", "Script editor command (overrides config and $EDITOR)")
	pf.StringVar(&flagLogFile, "log-file", "", "Diagnostic log file (overrides config)")
	pf.BoolVar(&flagDemo, "demo", false, "Browse a built-in sample tree without a server")

	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "ectop", "config.yaml")
}

// loadConfig reads the config file, reports validation findings, and
// applies flag overrides on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, errs := config.LoadFile(flagConfig)
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "    at: %s\n", e.Path)
			}
		}
	}
	if config.HasErrors(errs) {
		fmt.Fprintf(os.Stderr, "Invalid configuration %s:\n", flagConfig)
		for _, e := range errs {
			if e.Severity != "warning" {
				fmt.Fprintf(os.Stderr, "  [%s] %s\n", e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(os.Stderr, "    at: %s\n", e.Path)
				}
			}
		}
		return nil, fmt.Errorf("configuration failed validation")
	}

	if cmd.Flags().Changed("host") {
		cfg.Host = flagHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = flagPort
	}
	if cmd.Flags().Changed("refresh") {
		cfg.RefreshSeconds = flagRefresh
	}
	if cmd.Flags().Changed("timeout") {
		cfg.TimeoutSeconds = flagTimeout
	}
	if cmd.Flags().Changed("editor") {
		cfg.Editor = flagEditor
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = flagLogFile
	}
	return cfg, nil
}

func openLog(cfg *config.Config) (*logging.Logger, error) {
	if cfg.LogFile == "" {
		return nil, nil
	}
	log, err := logging.Open(cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return log, nil
}

// connect dials the server (or builds the demo gateway) and performs
// the initial full sync.
func connect(cfg *config.Config) (*session.Session, error) {
	var gw gateway.Gateway
	var closer interface{ Close() error }
	if flagDemo {
		gw = demoGateway()
	} else {
		client, err := gateway.Dial(cfg.Host, cfg.Port, cfg.Timeout())
		if err != nil {
			return nil, fmt.Errorf("connect to %s:%d: %w", cfg.Host, cfg.Port, err)
		}
		gw = client
		closer = client
	}

	sess := session.New(gw, cfg.RefreshInterval(), cfg.Timeout())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout()+10*time.Second)
	defer cancel()
	if err := sess.Connect(ctx); err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("initial sync against %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return sess, nil
}
