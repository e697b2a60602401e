package command

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/worldsnap/internal/cli/output"
	"github.com/yndnr/worldsnap/internal/config"
	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/infra/confloader"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration after files, environment and flags",
				Action: configShow,
			},
			{
				Name:      "validate",
				Usage:     "Validate a configuration file on its own, ignoring WORLDSNAP_* variables",
				ArgsUsage: "FILE",
				Action:    configValidate,
			},
			{
				Name:  "init",
				Usage: "Write the default configuration to --config or ~/.worldsnap/config.yaml",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
				},
				Action: configInit,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	if s.format == output.FormatJSON {
		return s.print(s.cfg)
	}
	return writeYAML(s.out, s.cfg)
}

func configValidate(c *cli.Context) error {
	if c.NArg() != 1 {
		return domain.ErrInvalidArgument.WithDetails("validate takes exactly one file")
	}
	path := c.Args().First()
	cfg := config.Default()
	if err := confloader.NewLoader(confloader.WithConfigFile(path), confloader.WithoutEnv()).Load(cfg); err != nil {
		return err
	}
	if err := config.Verify(cfg); err != nil {
		return domain.ErrInvalidArgument.WithDetails(path).WithCause(err)
	}
	_, err := fmt.Fprintf(c.App.Writer, "%s: ok\n", path)
	return err
}

func configInit(c *cli.Context) error {
	path := c.String("config")
	if path == "" {
		path = config.DefaultPath()
	}
	if path == "" {
		return domain.ErrInvalidArgument.WithDetails("no home directory; pass --config")
	}
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return domain.ErrInvalidArgument.WithDetails(path + " exists; use --force to overwrite")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.ErrAccess.WithDetails(path).WithCause(err)
	}
	f, err := os.Create(path)
	if err != nil {
		return domain.ErrAccess.WithDetails(path).WithCause(err)
	}
	if err := writeYAML(f, config.Default()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return domain.ErrAccess.WithDetails(path).WithCause(err)
	}
	_, err = fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return err
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
