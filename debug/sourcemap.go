package debug

import (
	"fmt"
	"strings"

	"github.com/chazu/basil/vm"
)

// ---------------------------------------------------------------------------
// SourceMap: combined buffer lines <-> original file lines
// ---------------------------------------------------------------------------

// SourceFile is one input to Concat.
type SourceFile struct {
	Name string
	Text string
}

// FileSpan records where one file landed in the combined buffer.
type FileSpan struct {
	File  string `cbor:"1,keyasint"`
	Start int    `cbor:"2,keyasint"` // first line in the combined buffer
	Lines int    `cbor:"3,keyasint"`
}

// SourceMap maps between a buffer built from several files and the original
// per-file positions. Lines are 0-based. A nil map is the identity mapping
// for a single unnamed file.
type SourceMap struct {
	Files []FileSpan `cbor:"1,keyasint"`
}

// Concat joins files into one buffer, terminating each with a newline, and
// returns the buffer with its map.
func Concat(files ...SourceFile) (string, *SourceMap) {
	var sb strings.Builder
	m := &SourceMap{}
	line := 0
	for _, f := range files {
		text := f.Text
		if text != "" && !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		n := strings.Count(text, "\n")
		m.Files = append(m.Files, FileSpan{File: f.Name, Start: line, Lines: n})
		sb.WriteString(text)
		line += n
	}
	return sb.String(), m
}

// Resolve maps a line of file to its line in the combined buffer.
func (m *SourceMap) Resolve(file string, line int) (int, bool) {
	if m == nil {
		return line, line >= 0
	}
	for _, f := range m.Files {
		if f.File == file {
			if line < 0 || line >= f.Lines {
				return 0, false
			}
			return f.Start + line, true
		}
	}
	return 0, false
}

// Original maps a combined buffer line back to its file and line.
func (m *SourceMap) Original(line int) (file string, fileLine int, ok bool) {
	if m == nil {
		return "", line, line >= 0
	}
	for _, f := range m.Files {
		if line >= f.Start && line < f.Start+f.Lines {
			return f.File, line - f.Start, true
		}
	}
	return "", 0, false
}

// Encode packs the map as text suitable for embedding in generated files.
func (m *SourceMap) Encode() (string, error) {
	return vm.EncodeText(m)
}

// DecodeSourceMap reverses Encode.
func DecodeSourceMap(text string) (*SourceMap, error) {
	var m SourceMap
	if err := vm.DecodeText(text, &m); err != nil {
		return nil, fmt.Errorf("debug: source map: %w", err)
	}
	return &m, nil
}
