package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

// CleanupCommand returns the cleanup command.
func CleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Discard provisional generations left by interrupted backups",
		Action: withSession(func(c *cli.Context, s *session) error {
			discarded, err := s.compactionService().Cleanup(c.Context)
			if perr := s.print(idList(discarded)); perr != nil && err == nil {
				err = perr
			}
			return err
		}),
	}
}

// PruneCommand returns the prune command.
func PruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Remove the oldest generations beyond a retention count",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "keep",
				Usage: "generations to keep (default retention.keep)",
			},
		},
		Action: withSession(func(c *cli.Context, s *session) error {
			keep := s.cfg.Retention.Keep
			if c.IsSet("keep") {
				keep = c.Int("keep")
			}
			if keep < 1 {
				return domain.ErrInvalidArgument.WithDetails("set --keep or retention.keep to at least 1")
			}
			results, err := s.compactionService().Prune(c.Context, keep)
			if perr := s.print(compactionList(results)); perr != nil && err == nil {
				err = perr
			}
			return err
		}),
	}
}
