package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/emulab-dev/emuflow/pkg/emulator"
)

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List attached emulators and their boot state",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "wait",
			Usage: "Wait for the selected emulator to finish booting",
		},
		&cli.DurationFlag{
			Name:  "boot-timeout",
			Usage: "How long to wait for boot with --wait",
			Value: 2 * time.Minute,
		},
	},
	Action: func(c *cli.Context) error {
		ctx := context.Background()

		emulators, err := emulator.List(ctx)
		if err != nil {
			return err
		}
		if len(emulators) == 0 {
			return cli.Exit("no devices attached", 1)
		}

		for _, e := range emulators {
			line := fmt.Sprintf("%s\t%s", e.Serial, e.State)
			if e.Model != "" {
				line += "\t" + e.Model
			}
			fmt.Println(line)
		}

		if !c.Bool("wait") {
			return nil
		}

		serial := c.String("serial")
		if serial == "" {
			serial = emulators[0].Serial
		}
		waitCtx, cancel := context.WithTimeout(ctx, c.Duration("boot-timeout"))
		defer cancel()
		if err := emulator.WaitForBoot(waitCtx, serial); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		fmt.Printf("%s booted\n", serial)
		return nil
	},
}
