// Package cli provides the command-line interface for emuflow.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "serial",
		Aliases: []string{"s"},
		Usage:   "Emulator serial to drive (auto-detect when empty)",
		EnvVars: []string{"EMUFLOW_SERIAL"},
	},
	&cli.StringFlag{
		Name:    "package",
		Aliases: []string{"p"},
		Usage:   "Target package id",
		EnvVars: []string{"EMUFLOW_PACKAGE"},
	},
	&cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Artifact output directory",
		EnvVars: []string{"EMUFLOW_OUTPUT"},
	},
	&cli.StringFlag{
		Name:    "templates",
		Usage:   "Screen template directory",
		EnvVars: []string{"EMUFLOW_TEMPLATES"},
	},
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Config file (default: config.yaml in the working directory)",
		EnvVars: []string{"EMUFLOW_CONFIG"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"EMUFLOW_VERBOSE"},
	},
}

// Execute runs the CLI.
func Execute() {
	app := &cli.App{
		Name:    "emuflow",
		Usage:   "Android emulator game install and screenshot automation",
		Version: Version,
		Description: `Emuflow drives an Android emulator through the Play Store install of a
mobile game and captures a post-launch screenshot, without human
interaction.

Examples:
  emuflow install
  emuflow capture -s emulator-5554
  emuflow run -p com.garena.game.kgvn -o ./screenshots`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			installCommand,
			captureCommand,
			runCommand,
			devicesCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
