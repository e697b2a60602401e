package command

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/worldsnap/internal/cli/output"
	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/core/service"
)

// BackupCommand returns the backup command.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:      "backup",
		Usage:     "Take a snapshot of the world as a new generation",
		ArgsUsage: "[iterative|full]",
		Description: `Iterative mode copies files modified since the previous generation and
references the rest. Full mode copies every file.

The label defaults to the current minute in world.location.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "label",
				Aliases: []string{"l"},
				Usage:   "generation label (YYYY-MM-DDTHH-MM)",
			},
		},
		Action: withSession(runBackup),
	}
}

func runBackup(c *cli.Context, s *session) error {
	if c.NArg() > 1 {
		return domain.ErrInvalidArgument.WithDetails("backup takes at most one mode argument")
	}
	mode, err := domain.ParseBackupMode(c.Args().First())
	if err != nil {
		return err
	}
	label := domain.NewGenerationID(time.Now().In(s.location()))
	if c.IsSet("label") {
		if label, err = domain.ParseGenerationID(c.String("label")); err != nil {
			return err
		}
	}

	svc, err := s.backupService()
	if err != nil {
		return err
	}

	var spin *output.Spinner
	if s.interactive() {
		spin = output.NewSpinner(s.errOut, fmt.Sprintf("backing up %s as %s", s.cfg.World.Dir, label))
		spin.Start()
	}
	result, err := svc.Run(c.Context, service.BackupRequest{Label: label, Mode: mode, RunID: s.runID})
	if spin != nil {
		if err != nil {
			spin.Fail(string(label))
		} else {
			spin.Success(string(label))
		}
	}
	if err != nil {
		return err
	}
	return s.print(newBackupView(label, result))
}
