// Package sequencer compiles keyframe tracks into Blockbuster sequencer
// morph records.
package sequencer

import (
	"log/slog"
	"strconv"

	"github.com/starford/lectorlips/internal/keyframe"
	"github.com/starford/lectorlips/internal/models"
)

const (
	// TicksPerSecond is the fixed clock of the target runtime.
	TicksPerSecond = 20
	// DefaultEndTickDuration is the duration of the final segment.
	DefaultEndTickDuration = 100
)

// Lookup resolves a mouth index to a texture suffix.
type Lookup interface {
	Lookup(mouth int) (string, bool)
}

// Options controls a compile.
type Options struct {
	TextureBase     string
	EndTickDuration float64
	Logger          *slog.Logger
}

// Outcome is the result for one keyframe: either a segment or a skip.
type Outcome struct {
	Index    int
	Keyframe models.Keyframe
	Segment  *models.MorphSegment
}

// Skipped reports whether the keyframe produced no segment.
func (o Outcome) Skipped() bool { return o.Segment == nil }

// Result is a compiled track.
type Result struct {
	Segments []models.MorphSegment
	Skips    []models.Skip
	Text     string
}

// Outcomes resolves every keyframe of track in order. Durations use the
// file-order adjacency, so a skipped keyframe never shifts its neighbours.
func Outcomes(track *models.Track, mapping Lookup, opts Options) []Outcome {
	frames := track.Keyframes
	out := make([]Outcome, len(frames))
	for i, kf := range frames {
		out[i] = Outcome{Index: i, Keyframe: kf}

		suffix, ok := mapping.Lookup(kf.Mouth)
		if !ok {
			continue
		}

		seg := models.MorphSegment{Texture: opts.TextureBase + suffix}
		if i < len(frames)-1 {
			seg.Duration = (frames[i+1].Time - kf.Time) / track.FrameRate * TicksPerSecond
		} else {
			seg.Duration = opts.EndTickDuration
			seg.Trailing = true
		}
		out[i].Segment = &seg
	}
	return out
}

// Compile turns track into a rendered sequencer record. Keyframes whose
// mouth index is missing from mapping are logged and dropped.
func Compile(track *models.Track, mapping Lookup, opts Options) (*Result, error) {
	if err := keyframe.Validate(track); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res := &Result{}
	for _, o := range Outcomes(track, mapping, opts) {
		if o.Skipped() {
			logger.Warn("skipped keyframe: mouth out of viseme mapping range",
				slog.String("time", strconv.FormatFloat(o.Keyframe.Time, 'f', -1, 64)),
				slog.Int("mouth", o.Keyframe.Mouth))
			res.Skips = append(res.Skips, models.Skip{Index: o.Index, Keyframe: o.Keyframe})
			continue
		}
		res.Segments = append(res.Segments, *o.Segment)
	}

	if len(res.Segments) == 0 {
		logger.Warn("no keyframe resolved to a texture", slog.Int("keyframes", len(track.Keyframes)))
	}
	res.Text = Render(res.Segments)
	return res, nil
}
