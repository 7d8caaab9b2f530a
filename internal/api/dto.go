package api

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lectorlips/internal/compileservice"
	"github.com/starford/lectorlips/internal/index"
	"github.com/starford/lectorlips/internal/viseme"
)

var outputTagRe = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

// CompileRequest is the request body for compiling keyframes.
type CompileRequest struct {
	Source          string   `json:"source" example:"line1.txt"`
	Keyframes       string   `json:"keyframes" example:"Units Per Second\t24\nTime Remap\n..." validate:"required"`
	TextureBase     string   `json:"texture_base" example:"blockbuster:textures/mouths/"`
	EndTickDuration *float64 `json:"end_tick_duration,omitempty" example:"100"`
	OutputTag       string   `json:"output_tag,omitempty" example:"line1"`
	DryRun          bool     `json:"dry_run,omitempty"`
}

// Validate checks the request body.
func (r *CompileRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Keyframes, validation.Required),
		validation.Field(&r.OutputTag, validation.Match(outputTagRe).Error("may only contain letters, digits, '-' and '_'")),
	)
}

func (r *CompileRequest) toService() compileservice.Request {
	return compileservice.Request{
		TextureBase:     r.TextureBase,
		EndTickDuration: r.EndTickDuration,
		OutputTag:       r.OutputTag,
		DryRun:          r.DryRun,
	}
}

// CompileResponse is returned after a compile (aliased from the domain layer).
type CompileResponse = compileservice.Result

// MappingRequest is the request body for writing the viseme mapping.
type MappingRequest struct {
	Suffixes []string `json:"suffixes" validate:"required"`
	Replace  bool     `json:"replace,omitempty"`
}

// Validate checks the request body.
func (r *MappingRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Suffixes, validation.Required, validation.Length(viseme.Count, viseme.Count)),
	)
}

// MappingResponse wraps the viseme mapping.
type MappingResponse struct {
	Mapping viseme.Mapping `json:"mapping" validate:"required"`
}

// CompileRow is one history entry (aliased from the index layer).
type CompileRow = index.CompileRow

// HistoryResponse wraps paginated compile history.
type HistoryResponse struct {
	Compiles []CompileRow `json:"compiles" validate:"required"`
	Total    int          `json:"total" example:"42" validate:"required"`
}
