package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/worldsnap/internal/cli/output"
	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/core/service"
)

// RestoreCommand returns the restore command.
func RestoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Replace the world with a generation",
		ArgsUsage: "[<generation>|recent]",
		Description: `Every file of the generation is resolved before the destination is
emptied, so a broken chain leaves the world untouched.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "into",
				Usage: "restore into this directory instead of the world",
			},
		},
		Action: withSession(runRestore),
	}
}

func runRestore(c *cli.Context, s *session) error {
	if c.NArg() > 1 {
		return domain.ErrInvalidArgument.WithDetails("restore takes at most one generation")
	}
	target := c.Args().First()
	if target == "" {
		target = domain.RecentTarget
	}

	req := service.RestoreRequest{Target: target, Into: c.String("into")}
	var bar *output.ProgressBar
	if s.interactive() {
		bar = output.NewProgressBar(s.errOut, "restoring")
		req.Progress = bar.Update
	}
	result, err := s.restoreService().Restore(c.Context, req)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}
	return s.print(result)
}
