// Package models defines the domain types for lectorlips.
package models

import "time"

// Keyframe is one timed mouth shape from the source export.
type Keyframe struct {
	Time  float64 `json:"time"`
	Mouth int     `json:"mouth"`
}

// Track is a parsed keyframe export. Keyframes keep file order.
type Track struct {
	FrameRate float64    `json:"frame_rate"`
	Keyframes []Keyframe `json:"keyframes"`
}

// MorphSegment is a single timed texture change in the sequencer record.
type MorphSegment struct {
	Texture  string  `json:"texture"`
	Duration float64 `json:"duration"`
	// Trailing is set for the segment built from the track's final keyframe.
	Trailing bool `json:"trailing,omitempty"`
}

// Skip records a keyframe dropped for lack of a mapping entry.
type Skip struct {
	Index    int      `json:"index"`
	Keyframe Keyframe `json:"keyframe"`
}

// FileMetadata is a lightweight representation of a file in a storage root.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
