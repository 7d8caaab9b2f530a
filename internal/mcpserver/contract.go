package mcpserver

// SequencerFormatContract describes the keyframe input LectorLips accepts
// and the sequencer morph list it produces.
const SequencerFormatContract = `# LectorLips Keyframe and Sequencer Format

## Input: keyframe export

A plain-text export from the lip-sync tool. Only two sections are read.

` + "```" + `text
Units Per Second	24
...
Time Remap
	Frame	seconds
	0	0
	6	3
	14	1
` + "```" + `

1. The line containing ` + "`" + `Units Per Second` + "`" + ` carries the frame rate (fps, > 0).
   It must appear before ` + "`" + `Time Remap` + "`" + `.
2. The line right after ` + "`" + `Time Remap` + "`" + ` is a column header and is always skipped.
3. Every following line is ` + "`" + `<frame time> <mouth index>` + "`" + ` (whitespace separated)
   until a blank line or the end of the file. Mouth indices are 0..14.

## Mapping: viseme_mapping.json

Fifteen entries keyed "0".."14", each a texture file name. Create it with the
create-viseme-mapping command or the PUT /api/mapping endpoint.

## Output: sequencer morph list

One record per keyframe whose mouth has a mapping entry, in input order:

` + "```" + `text
{Random:0.0f, SetDuration:1b, Morph: { Texture:"<texture base><file>", Name:"blockbuster.image"}, Duration:<ticks>f, EndPoint:0b}
` + "```" + `

- Records are joined with commas inside ` + "`" + `{List:[ ... ]` + "`" + ` followed by
  ` + "`" + `,KeepProgress:1b,Name:"sequencer",Offset:[0.0f,0.0f,0.0f]}` + "`" + `.
- Duration is ` + "`" + `(next time - time) / fps * 20` + "`" + ` ticks.
- The last keyframe uses the end tick duration (default 100).
- Keyframes with unmapped mouths are skipped and reported; the remaining
  records keep their original durations.
- The texture base must contain ':' (for example ` + "`" + `blockbuster:textures/mouths/` + "`" + `);
  a trailing '/' is added when missing.
`
