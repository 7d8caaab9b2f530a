package main

import (
	"context"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/lectorlips/internal"
	pkgconfig "github.com/starford/lectorlips/pkg/config"
)

const defaultConfigFile = "config/config.yaml"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	load := pkgconfig.LoadOptional[internal.Config]
	if cmd.IsSet("config") {
		load = pkgconfig.Load[internal.Config]
	}

	cfg := internal.NewDefaultConfig()
	if err := load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func newRootCommand(debug bool) *cli.Command {
	return &cli.Command{
		Name:     "lectorlips",
		Usage:    "Turn lip-sync keyframe exports into Blockbuster sequencer morph lists",
		HideHelp: true,
		Action:   rootAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfigFile,
				Value:       defaultConfigFile,
				Sources:     cli.EnvVars("LECTORLIPS_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			createSequencerCommand(debug),
			createVisemeMappingCommand(debug),
			serveCommand(debug),
			mcpCommand(debug),
			historyCommand(debug),
		},
	}
}

func main() {
	args, help, debug := stripStandardParams(os.Args)
	if help {
		printHelp(os.Stdout, args)
		return
	}

	cmd := newRootCommand(debug)
	if err := cmd.Run(context.Background(), args); err != nil {
		reportError(os.Stderr, err, debug)
		os.Exit(1)
	}
}
