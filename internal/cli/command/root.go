package command

import (
	"io"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/worldsnap/internal/infra/buildinfo"
)

// App creates the CLI application writing results to stdout and
// diagnostics to stderr.
func App(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:                 "worldsnap",
		Usage:                "Incremental generation backups of a directory tree",
		Version:              buildinfo.Get().String(),
		HideVersion:          true,
		Writer:               stdout,
		ErrWriter:            stderr,
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			BackupCommand(),
			RestoreCommand(),
			RemoveCommand(),
			ListCommand(),
			ShowCommand(),
			VerifyCommand(),
			CleanupCommand(),
			PruneCommand(),
			DaemonCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "configuration file (default ~/.worldsnap/config.yaml if present)",
			EnvVars: []string{"WORLDSNAP_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "world",
			Usage: "world directory to back up",
		},
		&cli.StringFlag{
			Name:  "store",
			Usage: "store directory holding the generations",
		},
		&cli.StringFlag{
			Name:  "index",
			Usage: "reference index backend: badger, sqlite or file",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show more columns in tables",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "log at debug level",
		},
	}
}

// overrides maps set global flags to configuration keys.
func overrides(c *cli.Context) map[string]any {
	m := map[string]any{}
	for flag, key := range map[string]string{
		"world": "world.dir",
		"store": "store.dir",
		"index": "index.backend",
	} {
		if c.IsSet(flag) {
			m[key] = c.String(flag)
		}
	}
	if c.Bool("verbose") {
		m["log.level"] = "debug"
	}
	return m
}
