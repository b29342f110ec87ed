package main

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	"github.com/skiffdeploy/skiff/pkg/deploy"
)

// statusCommand reads back the target's state. Read-only and repeatable.
func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the target's current state",
		ArgsUsage: "[app]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "revisions",
				Usage: "List the revision history with traffic weights",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			_, app, err := loadApp(c)
			if err != nil {
				return err
			}

			logger := hclog.Default()
			pipeline, cleanup, err := pipelineFor(c, app, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			req := requestFor(app)
			report, err := pipeline.Status(c.Context, req)
			if err != nil {
				if c.Bool("json") {
					printJSON(failureOutput(err))
					return cli.Exit("", 1)
				}
				return err
			}

			if c.Bool("json") {
				return printJSON(report)
			}

			fmt.Printf("Target: %s\n", req.Target.Identity())
			fmt.Println(strings.Repeat("-", 50))
			printState(&report.State)

			if c.Bool("revisions") {
				fmt.Println()
				fmt.Print(renderRevisions(report.Revisions))
			}
			return nil
		},
	}
}

// renderRevisions formats the revision history as a table, newest first as
// the platform returns it.
func renderRevisions(revisions []deploy.Revision) string {
	if len(revisions) == 0 {
		return "No revisions recorded\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-40s %8s  %s\n", "REVISION", "TRAFFIC", "CREATED")
	for _, rev := range revisions {
		fmt.Fprintf(&b, "%-40s %7d%%  %s\n",
			rev.Name, rev.TrafficWeight, rev.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
