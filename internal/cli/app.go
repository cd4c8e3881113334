// Package cli provides the freetable-mcp command line.
package cli

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/freetable/config"
	"github.com/effective-security/freetable/server"
	"github.com/effective-security/xlog"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Version of the application
var Version = "1.0.0"

// NewApp creates the CLI application.
func NewApp() *cli.App {
	app := &cli.App{
		Name:    "freetable-mcp",
		Usage:   "MCP server for the FreeTable restaurant booking API",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				EnvVars: []string{"FREETABLE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Address to listen on",
				EnvVars: []string{"FREETABLE_LISTEN"},
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "FreeTable API origin",
				EnvVars: []string{"FREETABLE_BASE_URL"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (trace, debug, info, notice, warn, error)",
				Value:   "info",
				EnvVars: []string{"FREETABLE_LOG_LEVEL"},
			},
		},
		Before: setupLogger,
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the MCP server",
				Action: serve,
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration",
				Action: printConfig,
			},
		},
	}

	return app
}

func setupLogger(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	xlog.SetFormatter(xlog.NewStringFormatter(c.App.ErrWriter))
	xlog.SetGlobalLogLevel(level)
	return nil
}

func parseLevel(s string) (xlog.LogLevel, error) {
	switch strings.ToLower(s) {
	case "trace":
		return xlog.TRACE, nil
	case "debug":
		return xlog.DEBUG, nil
	case "info", "":
		return xlog.INFO, nil
	case "notice":
		return xlog.NOTICE, nil
	case "warn", "warning":
		return xlog.WARNING, nil
	case "error":
		return xlog.ERROR, nil
	default:
		return xlog.INFO, errors.Errorf("invalid log level: %s", s)
	}
}

// loadConfig loads the config file and applies the flag overrides
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if v := c.String("listen"); v != "" {
		cfg.ListenAddress = v
	}
	if v := c.String("base-url"); v != "" {
		cfg.FreeTable.BaseURL = v
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}

func printConfig(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(c.App.Writer)
	enc.SetIndent(2)
	if err = enc.Encode(cfg); err != nil {
		return errors.WithStack(err)
	}
	return enc.Close()
}
