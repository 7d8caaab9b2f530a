package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/starford/lectorlips/internal"
	"github.com/starford/lectorlips/internal/apperr"
	"github.com/starford/lectorlips/internal/sequencer"
	"github.com/starford/lectorlips/internal/viseme"
)

var sequencerDoc = `Command arguments:
<file path> <image morph texture path> optional: <end tick duration> <viseme mapping filename>

Documentation:
<file path> the global or relative path to the keyframe data (.txt)
<image morph texture path> the Blockbuster path to the folder containing the mouth images, for example "b.a:skins/mouths/"
Optional:
<end tick duration> the duration of the last morph. Default is ` + strconv.Itoa(sequencer.DefaultEndTickDuration) + `
<viseme mapping filename> the viseme mapping file to use instead of the configured one`

const mappingDoc = `Command arguments:
<list of 15 image file names> optional: <viseme mapping filename>

<list of 15 image file names> type in 15 image file names in ascending order matching the viseme mapping.
Optional:
<viseme mapping filename> if you want multiple viseme mapping files, you can specify your own filename. The filename should end with .json`

const serveDoc = `Runs the HTTP API on app.http.port and compiles keyframe files dropped into
inbox.path (requires sequencer.texture_base in the config).`

const mcpDoc = `Serves the MCP tools compile_keyframes, get_viseme_mapping, list_compiles and
get_sequencer_format over stdin/stdout.`

const historyDoc = `Command arguments:
optional: --limit <n>

Prints the most recent compiles, newest first.`

// usageError marks a command line shape error; the command documentation
// is printed along with it.
type usageError struct {
	doc string
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usage(doc string, err error) error {
	return &usageError{doc: doc, err: err}
}

func createSequencerCommand(debug bool) *cli.Command {
	return &cli.Command{
		Name:            "create-sequencer",
		Aliases:         []string{"create_sequencer"},
		Usage:           "Compile a keyframe file into a sequencer output file",
		ArgsUsage:       "<keyframes.txt> <texture-base> [end-tick-duration] [mapping.json]",
		Description:     sequencerDoc,
		HideHelp:        true,
		SkipFlagParsing: true,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			in, err := parseSequencerArgs(cmd.Args().Slice())
			if err != nil {
				return usage(sequencerDoc, err)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			res, err := internal.CreateSequencer(ctx, in, internal.WithConfig(cfg), internal.WithDebug(debug))
			if err != nil {
				return err
			}

			w := cmd.Root().Writer
			for _, s := range res.Skips {
				fmt.Fprintf(w, "Skipped frame %s with mouth %d. Mouth out of viseme mapping range!\n",
					strconv.FormatFloat(s.Keyframe.Time, 'f', -1, 64), s.Keyframe.Mouth)
			}
			fmt.Fprintf(w, "File was successfully created: %s\n", filepath.Join(cfg.Output.Path, res.Output))
			return nil
		},
	}
}

// parseSequencerArgs validates the positional arguments of create-sequencer.
func parseSequencerArgs(args []string) (internal.SequencerInput, error) {
	var in internal.SequencerInput
	if len(args) < 2 {
		return in, fmt.Errorf("%w: not all required arguments were provided", apperr.ErrInvalidArguments)
	}
	if len(args) > 4 {
		return in, fmt.Errorf("%w: unknown arguments: %s", apperr.ErrInvalidArguments, quoteAll(args[4:]))
	}

	in.KeyframeFile = args[0]
	in.TextureBase = args[1]
	if len(args) > 2 {
		end, err := strconv.ParseFloat(args[2], 64)
		if err != nil || end < 0 || math.IsNaN(end) || math.IsInf(end, 0) {
			return in, fmt.Errorf("%w: third argument %q should be a non-negative number", apperr.ErrInvalidArguments, args[2])
		}
		in.EndTickDuration = &end
	}
	if len(args) > 3 {
		in.MappingFile = args[3]
	}
	return in, nil
}

func createVisemeMappingCommand(debug bool) *cli.Command {
	return &cli.Command{
		Name:            "create-viseme-mapping",
		Aliases:         []string{"create_viseme_mapping"},
		Usage:           "Write the viseme mapping file from 15 texture names",
		ArgsUsage:       "<15 texture names...> [mapping.json]",
		Description:     mappingDoc,
		HideHelp:        true,
		SkipFlagParsing: true,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			switch {
			case len(args) < viseme.Count:
				return usage(mappingDoc, fmt.Errorf("%w: missing required %d arguments", apperr.ErrInvalidArguments, viseme.Count))
			case len(args) > viseme.Count+1:
				return usage(mappingDoc, fmt.Errorf("%w: more than %d arguments were given", apperr.ErrInvalidArguments, viseme.Count+1))
			}
			file := ""
			if len(args) > viseme.Count {
				file = args[viseme.Count]
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Sequencer.MappingFile
			}

			_, err = internal.CreateVisemeMapping(ctx, args[:viseme.Count], file, internal.WithConfig(cfg), internal.WithDebug(debug))
			if errors.Is(err, apperr.ErrInvalidArguments) {
				return usage(mappingDoc, err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "Successfully created json viseme mapping configuration file: %s\n", file)
			return nil
		},
	}
}

func serveCommand(debug bool) *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Usage:       "Run the HTTP API and the inbox watcher",
		Description: serveDoc,
		HideHelp:    true,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithDebug(debug)); err != nil {
				return fmt.Errorf("app run error: %w", err)
			}
			return nil
		},
	}
}

func mcpCommand(debug bool) *cli.Command {
	return &cli.Command{
		Name:        "mcp",
		Usage:       "Serve the MCP tools over stdio",
		Description: mcpDoc,
		HideHelp:    true,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithDebug(debug))
		},
	}
}

func historyCommand(debug bool) *cli.Command {
	return &cli.Command{
		Name:        "history",
		Usage:       "List recent compiles",
		Description: historyDoc,
		HideHelp:    true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of compiles to list",
				Value: 20,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			limit := cmd.Int("limit")
			if limit < 1 {
				return usage(historyDoc, fmt.Errorf("%w: --limit must be positive", apperr.ErrInvalidArguments))
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rows, total, err := internal.History(ctx, int(limit), internal.WithConfig(cfg), internal.WithDebug(debug))
			if err != nil {
				return err
			}

			w := cmd.Root().Writer
			if len(rows) == 0 {
				fmt.Fprintln(w, "No compiles recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tOUTPUT\tSEGMENTS\tSKIPPED")
			for _, r := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n",
					r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Source, r.Output, r.Segments, r.Skipped)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(w, "%d of %d compiles\n", len(rows), total)
			return nil
		},
	}
}

func rootAction(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Present() {
		return usage(generalUsage(), fmt.Errorf("%w: unknown command %q", apperr.ErrInvalidArguments, cmd.Args().First()))
	}
	fmt.Fprint(cmd.Root().Writer, generalUsage())
	return nil
}

func quoteAll(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = strconv.Quote(a)
	}
	return strings.Join(quoted, ", ")
}
