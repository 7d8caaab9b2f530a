package internal

import (
	"context"

	"github.com/starford/lectorlips/internal/compileservice"
	"github.com/starford/lectorlips/internal/index"
	"github.com/starford/lectorlips/internal/mcpserver"
	"github.com/starford/lectorlips/internal/viseme"
)

// SequencerInput holds the arguments of the create-sequencer command.
type SequencerInput struct {
	KeyframeFile string
	TextureBase  string
	// EndTickDuration overrides the configured value when set.
	EndTickDuration *float64
	// MappingFile overrides the configured mapping when set.
	MappingFile string
}

// CreateSequencer compiles one keyframe file into an output file. The
// history database is only opened to record a finished compile, and a
// failure to open it is logged rather than returned.
func CreateSequencer(ctx context.Context, in SequencerInput, opts ...Option) (*compileservice.Result, error) {
	rt, err := newRuntime(opts, indexLazy)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	return rt.svc.CompileFile(ctx, in.KeyframeFile, compileservice.Request{
		TextureBase:     in.TextureBase,
		EndTickDuration: in.EndTickDuration,
		MappingFile:     in.MappingFile,
	})
}

// CreateVisemeMapping writes the mapping file, replacing an existing one.
func CreateVisemeMapping(ctx context.Context, suffixes []string, file string, opts ...Option) (viseme.Mapping, error) {
	rt, err := newRuntime(opts, indexLazy)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	return rt.svc.CreateMapping(ctx, suffixes, file, true)
}

// History returns the newest recorded compiles and the total count.
func History(ctx context.Context, limit int, opts ...Option) ([]index.CompileRow, int, error) {
	rt, err := newRuntime(opts, indexEager)
	if err != nil {
		return nil, 0, err
	}
	defer rt.Close()

	return rt.svc.History(ctx, limit, 0)
}

// RunMCP serves the MCP tools over stdin/stdout until the client disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	rt, err := newRuntime(opts, indexEager)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.svc).ServeStdio()
}
