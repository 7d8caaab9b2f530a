// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes LectorLips tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lectorlips/internal/compileservice"
)

const formatURI = "lectorlips://sequencer-format"

// Server wraps the MCP server with LectorLips tools.
type Server struct {
	mcp *server.MCPServer
	svc *compileservice.Service
}

// New creates a new MCP server with all LectorLips tools registered.
func New(svc *compileservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"LectorLips",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("compile_keyframes",
		mcp.WithDescription("Compile a lip-sync keyframe export into a Blockbuster sequencer morph list. "+
			"Writes a timestamped output file unless dry_run is set. Read the format first via "+
			"the get_sequencer_format tool or the "+formatURI+" resource."),
		mcp.WithString("keyframes", mcp.Required(), mcp.Description("Full text of the keyframe export")),
		mcp.WithString("source", mcp.Description("Name recorded in the compile history")),
		mcp.WithString("texture_base", mcp.Description("Texture path prefix containing ':' (defaults to the configured one)")),
		mcp.WithNumber("end_tick_duration", mcp.Description("Duration in ticks of the last keyframe (default 100)")),
		mcp.WithString("output_tag", mcp.Description("Optional tag inserted into the output file name")),
		mcp.WithBoolean("dry_run", mcp.Description("Return the morph list without writing a file")),
	), s.compileKeyframes)

	s.mcp.AddTool(mcp.NewTool("get_viseme_mapping",
		mcp.WithDescription("Return the mouth index to texture file mapping."),
	), s.getVisemeMapping)

	s.mcp.AddTool(mcp.NewTool("list_compiles",
		mcp.WithDescription("List recorded compiles, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to return (default 20)")),
	), s.listCompiles)

	s.mcp.AddTool(mcp.NewTool("get_sequencer_format",
		mcp.WithDescription("Returns the keyframe input format and the sequencer output format."),
	), s.getSequencerFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Sequencer Format",
			mcp.WithResourceDescription("Keyframe export input and sequencer morph list output."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) compileKeyframes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := req.RequireString("keyframes")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source := "mcp"
	if v, err := req.RequireString("source"); err == nil && v != "" {
		source = v
	}

	creq := compileservice.Request{
		TextureBase: req.GetString("texture_base", ""),
		OutputTag:   req.GetString("output_tag", ""),
		DryRun:      req.GetBool("dry_run", false),
	}
	if _, ok := req.GetArguments()["end_tick_duration"]; ok {
		end := req.GetFloat("end_tick_duration", 0)
		creq.EndTickDuration = &end
	}

	res, err := s.svc.Compile(ctx, source, []byte(data), creq)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getVisemeMapping(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := s.svc.Mapping(ctx, "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := m.MarshalJSON()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listCompiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, total, err := s.svc.History(ctx, req.GetInt("limit", 0), 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText("no compiles recorded"), nil
	}
	out, _ := json.MarshalIndent(map[string]any{"compiles": rows, "total": total}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getSequencerFormat(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SequencerFormatContract), nil
}

func (s *Server) readFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     SequencerFormatContract,
		},
	}, nil
}
