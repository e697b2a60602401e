package command

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

// ListCommand returns the list command.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List generations, oldest first",
		Action: withSession(func(c *cli.Context, s *session) error {
			gens, err := s.store.Generations(c.Context)
			if err != nil {
				return err
			}
			return s.print(generationList(gens))
		}),
	}
}

// ShowCommand returns the show command.
func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show the files of a generation and where their bytes live",
		ArgsUsage: "<generation>",
		Action:    withSession(runShow),
	}
}

func runShow(c *cli.Context, s *session) error {
	if c.NArg() != 1 {
		return domain.ErrInvalidArgument.WithDetails("show takes exactly one generation")
	}
	id, err := domain.ParseGenerationID(c.Args().First())
	if err != nil {
		return err
	}
	gen, err := s.store.Generation(c.Context, id)
	if err != nil {
		return err
	}
	refs, err := s.store.ListReferences(c.Context, id)
	if err != nil {
		return err
	}
	owners := make(map[string]domain.Reference, len(refs))
	broken := make(map[string]error)
	for p := range refs {
		owner, err := s.store.Resolve(c.Context, id, p)
		switch {
		case err == nil:
			owners[p] = owner
		case errors.Is(err, domain.ErrBrokenChain):
			broken[p] = err
		default:
			return err
		}
	}
	return s.print(newGenerationDetail(gen, refs, owners, broken))
}

// VerifyCommand returns the verify command.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Check that every reference of every generation resolves",
		Action: withSession(func(c *cli.Context, s *session) error {
			report, err := s.store.Verify(c.Context)
			if err != nil {
				return err
			}
			if err := s.print(&reportView{Report: report, OK: report.OK()}); err != nil {
				return err
			}
			if !report.OK() {
				return domain.ErrBrokenChain.WithDetails("store failed verification")
			}
			return nil
		}),
	}
}
