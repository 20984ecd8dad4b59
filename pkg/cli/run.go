package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/emulab-dev/emuflow/pkg/adb"
	"github.com/emulab-dev/emuflow/pkg/artifact"
	"github.com/emulab-dev/emuflow/pkg/config"
	"github.com/emulab-dev/emuflow/pkg/core"
	"github.com/emulab-dev/emuflow/pkg/engine"
	"github.com/emulab-dev/emuflow/pkg/flow"
	"github.com/emulab-dev/emuflow/pkg/logger"
	"github.com/emulab-dev/emuflow/pkg/screen"
)

var installCommand = &cli.Command{
	Name:  "install",
	Usage: "Install the target game through the Play Store",
	Action: func(c *cli.Context) error {
		return runFlows(c, flowSpec{name: flow.FlowInstall})
	},
}

var captureCommand = &cli.Command{
	Name:  "capture",
	Usage: "Launch the installed game and capture a screenshot",
	Action: func(c *cli.Context) error {
		return runFlows(c, flowSpec{name: flow.FlowCapture})
	},
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Install, then launch and capture",
	Action: func(c *cli.Context) error {
		return runFlows(c,
			flowSpec{name: flow.FlowInstall},
			flowSpec{name: flow.FlowCapture},
		)
	},
}

type flowSpec struct {
	name string
}

// resolve picks the flow definition: a configured YAML override when
// present, the builtin otherwise.
func (f flowSpec) resolve(cfg *config.Config) (*flow.Definition, error) {
	switch f.name {
	case flow.FlowInstall:
		if cfg.InstallFlow != "" {
			return flow.Load(cfg.InstallFlow)
		}
		return flow.Install(), nil
	case flow.FlowCapture:
		if cfg.CaptureFlow != "" {
			return flow.Load(cfg.CaptureFlow)
		}
		return flow.Capture(), nil
	default:
		return nil, fmt.Errorf("unknown flow %q", f.name)
	}
}

// loadConfig merges the config file with command-line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if s := c.String("serial"); s != "" {
		cfg.Serial = s
	}
	if p := c.String("package"); p != "" {
		cfg.Package = p
	}
	if o := c.String("output"); o != "" {
		cfg.ScreenshotDir = o
	}
	if t := c.String("templates"); t != "" {
		cfg.TemplateDir = t
	}
	return cfg, nil
}

// runFlows executes the given flows in order against one device session,
// stopping at the first failure. The process exit code is the
// success/failure signal the invoking layer consumes.
func runFlows(c *cli.Context, specs ...flowSpec) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.LogFile, c.Bool("verbose")); err != nil {
		return err
	}
	defer logger.Close()

	if cfg.TemplateDir == "" {
		return fmt.Errorf("no template directory configured; set templateDir or --templates")
	}
	classifier, err := screen.LoadTemplates(cfg.TemplateDir)
	if err != nil {
		return fmt.Errorf("loading screen templates: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dev, err := adb.New(ctx, cfg.Serial)
	if err != nil {
		return err
	}

	store, err := artifact.NewStore(cfg.ScreenshotDir)
	if err != nil {
		return err
	}

	eng := engine.New(dev, classifier, store)
	opts := engine.RunOptions{Package: cfg.Package, Activity: cfg.Activity}

	for _, spec := range specs {
		def, err := spec.resolve(cfg)
		if err != nil {
			return err
		}
		run := eng.Run(ctx, def, opts)
		fmt.Printf("%s: %s", run.Flow, run.Outcome)
		if run.Reason != "" {
			fmt.Printf(" (%s)", run.Reason)
		}
		fmt.Println()
		if run.Outcome != core.OutcomeSuccess {
			return cli.Exit(fmt.Sprintf("flow %s failed: %s %s", run.Flow, run.Outcome, run.Reason), 2)
		}
	}
	return nil
}
