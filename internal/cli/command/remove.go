package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

// RemoveCommand returns the remove command.
func RemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "Remove generations, forwarding shared files to later generations",
		ArgsUsage: "<generation> | --from <generation> --to <generation>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "first generation of a range"},
			&cli.StringFlag{Name: "to", Usage: "last generation of a range"},
		},
		Action: withSession(runRemove),
	}
}

func runRemove(c *cli.Context, s *session) error {
	svc := s.compactionService()
	ranged := c.IsSet("from") || c.IsSet("to")
	switch {
	case ranged && c.NArg() > 0:
		return domain.ErrInvalidArgument.WithDetails("give a generation or a range, not both")
	case ranged:
		if !c.IsSet("from") || !c.IsSet("to") {
			return domain.ErrInvalidArgument.WithDetails("a range needs both --from and --to")
		}
		from, err := domain.ParseGenerationID(c.String("from"))
		if err != nil {
			return err
		}
		to, err := domain.ParseGenerationID(c.String("to"))
		if err != nil {
			return err
		}
		results, err := svc.RemoveRange(c.Context, from, to)
		if len(results) > 0 {
			if perr := s.print(compactionList(results)); perr != nil && err == nil {
				err = perr
			}
		}
		return err
	case c.NArg() != 1:
		return domain.ErrInvalidArgument.WithDetails("remove takes exactly one generation")
	}

	id, err := domain.ParseGenerationID(c.Args().First())
	if err != nil {
		return err
	}
	result, err := svc.RemoveGeneration(c.Context, id)
	if err != nil {
		return err
	}
	return s.print(compactionList{result})
}
