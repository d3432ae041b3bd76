// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

const (
	envSourceKey    = "TMX_SOURCE_API_KEY"
	envSourceTenant = "TMX_SOURCE_TENANT"
	envDestKey      = "TMX_DEST_API_KEY"
	envDestTenant   = "TMX_DEST_TENANT"
)

func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "source-key",
			Usage:   "Source account API key",
			Sources: cli.EnvVars(envSourceKey),
		},
		&cli.StringFlag{
			Name:    "source-tenant",
			Usage:   "Source account tenant (location) ID",
			Sources: cli.EnvVars(envSourceTenant),
		},
	}
}

func destinationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "dest-key",
			Usage:   "Destination account API key",
			Sources: cli.EnvVars(envDestKey),
		},
		&cli.StringFlag{
			Name:    "dest-tenant",
			Usage:   "Destination account tenant (location) ID",
			Sources: cli.EnvVars(envDestTenant),
		},
	}
}

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
}

func serverFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Base URL of a running 'tmx serve' (e.g. http://127.0.0.1:3000); reads the local job store when empty",
		Sources: cli.EnvVars("TMX_SERVER"),
	}
}

func flags(groups ...[]cli.Flag) []cli.Flag {
	out := []cli.Flag{}
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// setupCommand handles setup operations for the configuration and database.
func setupCommand(r *Runner) *cli.Command {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Create the config file if missing, initialize the database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   configPath,
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// validateCommand checks a pair of account credentials.
func validateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "Check that the source and destination credentials work",
		Flags:  flags(sourceFlags(), destinationFlags(), jsonFlags()),
		Action: r.Validate,
	}
}

// analyzeCommand counts the records of a source account.
func analyzeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Count source records per category and estimate the migration time",
		Flags: flags(sourceFlags(), jsonFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:  "previous",
				Usage: "Path to the JSON output of an earlier analysis to compare counts against",
			},
		}),
		Action: r.Analyze,
	}
}

// migrateCommand starts a job and watches it.
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Migrate data from the source to the destination account",
		Flags: flags(sourceFlags(), destinationFlags(), []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "category",
				Aliases: []string{"c"},
				Usage:   "Category to migrate (repeatable); all categories when omitted",
			},
			&cli.BoolFlag{
				Name:  "merge-duplicates",
				Usage: "Match existing destination contacts by email instead of creating duplicates",
				Value: true,
			},
			&cli.BoolFlag{
				Name:  "overwrite",
				Usage: "Overwrite matching destination records instead of skipping them",
			},
			&cli.BoolFlag{
				Name:  "historical-appointments",
				Usage: "Include appointments in the past",
			},
			&cli.BoolFlag{
				Name:  "form-submissions",
				Usage: "Include form submissions",
			},
			&cli.BoolFlag{
				Name:  "conversations",
				Usage: "Include conversation history",
			},
			&cli.BoolFlag{
				Name:  "no-tui",
				Usage: "Print progress lines instead of the interactive view",
			},
		}),
		Action: r.Migrate,
	}
}

// jobsCommand reads and controls migration jobs.
func jobsCommand(r *Runner) *cli.Command {
	idArg := []cli.Argument{&cli.StringArg{Name: "id"}}

	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect and control migration jobs",
		Commands: []*cli.Command{
			{
				Name:      "status",
				Usage:     "Show the state of a job",
				Arguments: idArg,
				Flags:     flags(jsonFlags(), []cli.Flag{serverFlag()}),
				Action:    r.JobsStatus,
			},
			{
				Name:  "history",
				Usage: "List recent jobs, newest first",
				Flags: flags(jsonFlags(), []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to list",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "destination",
						Usage: "Only list jobs targeting this destination tenant",
					},
				}),
				Action: r.JobsHistory,
			},
			{
				Name:      "errors",
				Usage:     "Export the per-record error log of a job as CSV",
				Arguments: idArg,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries (0 for all)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: stdout)",
					},
				},
				Action: r.JobsErrors,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a running job",
				Arguments: idArg,
				Flags:     []cli.Flag{serverFlag()},
				Action:    r.JobsCancel,
			},
			{
				Name:      "watch",
				Usage:     "Watch a job's progress; lists recent jobs when no id is given",
				Arguments: idArg,
				Flags:     []cli.Flag{serverFlag()},
				Action:    r.JobsWatch,
			},
		},
	}
}

// backupCommand exports a full snapshot of the source account.
func backupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Export every category of the source account to a JSON file",
		Flags: flags(sourceFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file or directory (default: tmx-backup-<tenant>-<timestamp>.json)",
			},
		}),
		Action: r.Backup,
	}
}

// serveCommand runs the HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: [server] host and port from the config)",
			},
		},
		Action: r.Serve,
	}
}

// apiCommand makes raw calls against a running 'tmx serve'.
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to a running tmx API server",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
					serverFlag(),
				},
				Action: r.APIGet,
			},
		},
	}
}
