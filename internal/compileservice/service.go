// Package compileservice coordinates keyframe parsing, mapping lookup,
// sequencer compilation, output files and the compile history.
package compileservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/starford/lectorlips/internal/apperr"
	"github.com/starford/lectorlips/internal/checksum"
	"github.com/starford/lectorlips/internal/index"
	"github.com/starford/lectorlips/internal/keyframe"
	"github.com/starford/lectorlips/internal/models"
	"github.com/starford/lectorlips/internal/sequencer"
	"github.com/starford/lectorlips/internal/storage"
	"github.com/starford/lectorlips/internal/viseme"
)

// OutputSuffix ends every generated output file name.
const OutputSuffix = "_output.txt"

// Defaults fill in request fields left empty.
type Defaults struct {
	TextureBase     string
	EndTickDuration float64
	MappingFile     string
}

// Request describes one compile.
type Request struct {
	TextureBase     string
	EndTickDuration *float64
	MappingFile     string
	// OutputTag is inserted before the output suffix so batch compiles
	// within one second get distinct names.
	OutputTag string
	// DryRun compiles without writing an output file or history row.
	DryRun bool
}

// Result is the outcome of a compile.
type Result struct {
	ID        int64                 `json:"id,omitempty"`
	Source    string                `json:"source"`
	Checksum  string                `json:"checksum"`
	Output    string                `json:"output,omitempty"`
	FrameRate float64               `json:"frame_rate"`
	Keyframes int                   `json:"keyframes"`
	Segments  []models.MorphSegment `json:"segments"`
	Skips     []models.Skip         `json:"skips"`
	Text      string                `json:"text"`
}

// Service coordinates compile operations.
type Service struct {
	out      storage.Provider
	db       index.History
	defaults Defaults
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new compile service writing outputs to out.
func NewService(out storage.Provider, db index.History, defaults Defaults, logger *slog.Logger) *Service {
	if defaults.MappingFile == "" {
		defaults.MappingFile = viseme.DefaultFileName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{out: out, db: db, defaults: defaults, logger: logger, now: time.Now}
}

// CompileFile compiles the keyframe export at path.
func (s *Service) CompileFile(ctx context.Context, path string, req Request) (*Result, error) {
	if err := CheckKeyframePath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compile: read keyframes: %w", err)
	}
	return s.Compile(ctx, path, data, req)
}

// Compile compiles in-memory keyframe data. source names the input in
// logs and history. Nothing is written unless every step succeeds.
func (s *Service) Compile(ctx context.Context, source string, data []byte, req Request) (*Result, error) {
	texture := req.TextureBase
	if texture == "" {
		texture = s.defaults.TextureBase
	}
	texture, err := NormalizeTextureBase(texture)
	if err != nil {
		return nil, err
	}
	end := s.defaults.EndTickDuration
	if req.EndTickDuration != nil {
		end = *req.EndTickDuration
	}
	if !(end >= 0) || math.IsInf(end, 0) {
		return nil, fmt.Errorf("%w: end tick duration must be a finite non-negative number", apperr.ErrInvalidInput)
	}
	mappingFile := req.MappingFile
	if mappingFile == "" {
		mappingFile = s.defaults.MappingFile
	}

	track, err := keyframe.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	mapping, err := viseme.Load(mappingFile)
	if err != nil {
		return nil, err
	}

	compiled, err := sequencer.Compile(track, mapping, sequencer.Options{
		TextureBase:     texture,
		EndTickDuration: end,
		Logger:          s.logger.With(slog.String("source", source)),
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Source:    source,
		Checksum:  checksum.Sum(data),
		FrameRate: track.FrameRate,
		Keyframes: len(track.Keyframes),
		Segments:  nonNilSlice(compiled.Segments),
		Skips:     nonNilSlice(compiled.Skips),
		Text:      compiled.Text,
	}
	if req.DryRun {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := OutputName(s.now(), req.OutputTag)
	if err := s.out.Create(name, []byte(res.Text)); err != nil {
		return nil, err
	}
	res.Output = name

	id, err := s.db.RecordCompile(index.CompileRow{
		Source:      source,
		Checksum:    res.Checksum,
		Output:      name,
		TextureBase: texture,
		FrameRate:   res.FrameRate,
		Keyframes:   res.Keyframes,
		Segments:    len(res.Segments),
		Skips:       res.Skips,
	})
	if err != nil {
		// The output is already on disk; history is best-effort.
		s.logger.Warn("record compile failed", slog.String("source", source), slog.String("error", err.Error()))
	}
	res.ID = id

	s.logger.Info("sequencer file created",
		slog.String("source", source),
		slog.String("output", name),
		slog.Int("segments", len(res.Segments)),
		slog.Int("skipped", len(res.Skips)))
	return res, nil
}

// CreateMapping writes a mapping file from 15 ordered suffixes. With
// replace set an existing file is removed first.
func (s *Service) CreateMapping(_ context.Context, suffixes []string, file string, replace bool) (viseme.Mapping, error) {
	if file == "" {
		file = s.defaults.MappingFile
	}
	if err := viseme.ValidateFileName(file); err != nil {
		return nil, err
	}
	m, err := viseme.New(suffixes)
	if err != nil {
		return nil, err
	}
	write := viseme.Write
	if replace {
		write = viseme.Replace
	}
	if err := write(file, m); err != nil {
		return nil, err
	}
	s.logger.Info("viseme mapping created", slog.String("file", file))
	return m, nil
}

// Mapping loads a mapping file, defaulting to the configured one.
func (s *Service) Mapping(_ context.Context, file string) (viseme.Mapping, error) {
	if file == "" {
		file = s.defaults.MappingFile
	}
	return viseme.Load(file)
}

// History returns recorded compiles newest first.
func (s *Service) History(_ context.Context, limit, offset int) ([]index.CompileRow, int, error) {
	rows, total, err := s.db.ListCompiles(limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return nonNilSlice(rows), total, nil
}

// GetCompile returns one recorded compile.
func (s *Service) GetCompile(_ context.Context, id int64) (*index.CompileRow, error) {
	return s.db.GetCompile(id)
}

// LastChecksum returns the checksum of the newest compile of source.
func (s *Service) LastChecksum(source string) (string, error) {
	return s.db.LastChecksum(source)
}

// Checksums returns the newest recorded checksum per source.
func (s *Service) Checksums() (map[string]string, error) {
	return s.db.AllChecksums()
}

// OutputName returns the output file name for a compile at t.
func OutputName(t time.Time, tag string) string {
	name := t.Format("2006-01-02_15.04.05")
	if tag != "" {
		name += "_" + tag
	}
	return name + OutputSuffix
}

// CheckKeyframePath rejects paths that are not existing .txt files.
func CheckKeyframePath(path string) error {
	if !strings.HasSuffix(path, ".txt") {
		return fmt.Errorf("%w: keyframe file path does not end with .txt; paste the keyframe data into a .txt file", apperr.ErrInvalidInput)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: keyframe file does not exist at %s", apperr.ErrInvalidInput, path)
		}
		return fmt.Errorf("compile: stat keyframes: %w", err)
	}
	return nil
}

// NormalizeTextureBase checks a Blockbuster texture path such as
// "b.a:skins/mouths" and ensures it ends with a slash.
func NormalizeTextureBase(base string) (string, error) {
	if !strings.Contains(base, ":") {
		return "", fmt.Errorf("%w: texture path %q misses ':', for example 'blockbuster:textures/..'", apperr.ErrInvalidInput, base)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
