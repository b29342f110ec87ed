package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"
)

var (
	// Build-time variables set via ldflags
	// Example: go build -ldflags "-X main.Version=1.0.0 -X main.DefaultAPIURL=https://api.example.com"
	Version       = "v0.3.0"
	DefaultAPIURL = "https://api.skiffdeploy.io"
)

func main() {
	app := &cli.App{
		Name:                   "skiff",
		Usage:                  "Idempotent deployment of a containerized app to a platform or a bare host",
		Version:                Version,
		UseShortOptionHandling: true,
		EnableBashCompletion:   true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "skiff.hcl",
				Usage:   "Path to configuration file",
				EnvVars: []string{"SKIFF_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"SKIFF_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Platform API access token",
				EnvVars: []string{"SKIFF_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "api-url",
				Value:   DefaultAPIURL,
				Usage:   "Platform API URL (overrides the config file)",
				EnvVars: []string{"SKIFF_API_URL"},
			},
		},
		Commands: []*cli.Command{
			deployCommand(),
			buildCommand(),
			statusCommand(),
			rolloutCommand(),
		},
		Before: func(c *cli.Context) error {
			level := hclog.LevelFromString(c.String("log-level"))
			logger := hclog.New(&hclog.LoggerOptions{
				Name:  "skiff",
				Level: level,
				Color: hclog.AutoColor,
			})
			hclog.SetDefault(logger)

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
