package main

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"
)

// rolloutCommand forces a fresh revision on a platform target so the
// artifact is pulled again even when the tag is unchanged. This is the
// recovery path for a same-tag update the platform treated as a no-op.
func rolloutCommand() *cli.Command {
	return &cli.Command{
		Name:      "rollout",
		Usage:     "Force a new revision that re-pulls the artifact (platform targets only)",
		ArgsUsage: "[app]",
		Flags: []cli.Flag{
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
			state, err := pipeline.ForceRollout(c.Context, req)
			if err != nil {
				if c.Bool("json") {
					printJSON(failureOutput(err))
					return cli.Exit("", 1)
				}
				return err
			}

			if c.Bool("json") {
				return printJSON(map[string]interface{}{
					"success": true,
					"state":   state,
				})
			}

			fmt.Printf("Forced rollout of %s on %s\n", req.Ref.String(), req.Target.Identity())
			printState(state)
			return nil
		},
	}
}
