package sequencer

import (
	"strconv"
	"strings"

	"github.com/starford/lectorlips/internal/models"
)

const (
	listOpen  = "{List:["
	listClose = `],KeepProgress:1b,Name:"sequencer",Offset:[0.0f,0.0f,0.0f]}`
)

// Render writes segments as a sequencer NBT compound.
func Render(segments []models.MorphSegment) string {
	var b strings.Builder
	b.WriteString(listOpen)
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte(',')
		}
		writeMorph(&b, seg)
	}
	b.WriteString(listClose)
	return b.String()
}

func writeMorph(b *strings.Builder, seg models.MorphSegment) {
	b.WriteString(`{Random:0.0f, SetDuration:1b, Morph: { Texture:"`)
	b.WriteString(seg.Texture)
	b.WriteString(`", Name:"blockbuster.image"}, Duration:`)
	b.WriteString(FormatDuration(seg))
	b.WriteString(`f, EndPoint:0b}`)
}

// FormatDuration renders a segment duration without the float suffix.
// Computed durations always keep a fractional part ("10.0"); the
// configured end duration is written as given ("100").
func FormatDuration(seg models.MorphSegment) string {
	s := strconv.FormatFloat(seg.Duration, 'f', -1, 64)
	if seg.Trailing || strings.ContainsRune(s, '.') {
		return s
	}
	return s + ".0"
}
