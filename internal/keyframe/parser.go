// Package keyframe reads lip-sync keyframe exports (frame rate plus a
// "Time Remap" section of time/mouth pairs).
package keyframe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/starford/lectorlips/internal/models"
)

// Marker lines written by the exporting tool.
const (
	FrameRateMarker = "Units Per Second"
	TimeRemapMarker = "Time Remap"
)

var (
	ErrMissingFrameRate  = errors.New(`the "` + FrameRateMarker + `" line was not found in the keyframe file`)
	ErrInvalidFrameRate  = errors.New(`the "` + FrameRateMarker + `" value must be a finite number greater than zero`)
	ErrMissingKeyframes  = errors.New(`the keyframes were not found or are empty; they are expected below the "` + TimeRemapMarker + `" line`)
	ErrMalformedKeyframe = errors.New("malformed keyframe line")
)

// Parse reads a keyframe export from r. Scanning stops at the end of the
// time remap section, so the frame rate has to appear before it.
func Parse(r io.Reader) (*models.Track, error) {
	sc := bufio.NewScanner(r)
	lineNo := 0
	next := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		lineNo++
		return strings.TrimSpace(sc.Text()), true
	}

	var (
		fps      float64
		fpsFound bool
		frames   []models.Keyframe
	)

	for {
		line, ok := next()
		if !ok {
			break
		}

		if strings.Contains(line, FrameRateMarker) {
			raw := strings.TrimSpace(strings.Replace(line, FrameRateMarker, "", -1))
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("keyframe: line %d: frame rate: %w", lineNo, err)
			}
			fps, fpsFound = v, true
			continue
		}

		if strings.Contains(line, TimeRemapMarker) {
			// Column header, never interpreted.
			next()

			for {
				line, ok := next()
				if !ok || line == "" {
					break
				}
				kf, err := parseLine(line)
				if err != nil {
					return nil, fmt.Errorf("keyframe: line %d: %w", lineNo, err)
				}
				frames = append(frames, kf)
			}
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("keyframe: read: %w", err)
	}

	track := &models.Track{FrameRate: fps, Keyframes: frames}
	if !fpsFound {
		return nil, ErrMissingFrameRate
	}
	if err := Validate(track); err != nil {
		return nil, err
	}
	return track, nil
}

// Validate checks the invariants a track must hold before compiling.
func Validate(t *models.Track) error {
	switch {
	case t == nil:
		return ErrMissingFrameRate
	case !(t.FrameRate > 0) || math.IsInf(t.FrameRate, 0):
		return ErrInvalidFrameRate
	case len(t.Keyframes) == 0:
		return ErrMissingKeyframes
	}
	for i, kf := range t.Keyframes {
		if !finite(kf.Time) {
			return fmt.Errorf("%w: keyframe %d has non-finite time %v", ErrMalformedKeyframe, i, kf.Time)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// parseLine turns "<time> <mouth>" into a Keyframe.
func parseLine(line string) (models.Keyframe, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return models.Keyframe{}, fmt.Errorf("%w: want 2 fields, got %d in %q", ErrMalformedKeyframe, len(fields), line)
	}
	t, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return models.Keyframe{}, fmt.Errorf("time: %w", err)
	}
	if !finite(t) {
		return models.Keyframe{}, fmt.Errorf("%w: time %q is not a finite number", ErrMalformedKeyframe, fields[0])
	}
	mouth, err := strconv.Atoi(fields[1])
	if err != nil {
		return models.Keyframe{}, fmt.Errorf("mouth: %w", err)
	}
	return models.Keyframe{Time: t, Mouth: mouth}, nil
}
