package debug

import "testing"

func TestConcat(t *testing.T) {
	src, m := Concat(
		SourceFile{Name: "a.bas", Text: "x = 1\ny = 2\n"},
		SourceFile{Name: "b.bas", Text: "z = 3"},
		SourceFile{Name: "empty.bas"},
		SourceFile{Name: "c.bas", Text: "print z\n"},
	)
	if want := "x = 1\ny = 2\nz = 3\nprint z\n"; src != want {
		t.Errorf("Concat() text = %q, want %q", src, want)
	}
	want := []FileSpan{
		{File: "a.bas", Start: 0, Lines: 2},
		{File: "b.bas", Start: 2, Lines: 1},
		{File: "empty.bas", Start: 3, Lines: 0},
		{File: "c.bas", Start: 3, Lines: 1},
	}
	if len(m.Files) != len(want) {
		t.Fatalf("len(Files) = %d, want %d", len(m.Files), len(want))
	}
	for i := range want {
		if m.Files[i] != want[i] {
			t.Errorf("Files[%d] = %+v, want %+v", i, m.Files[i], want[i])
		}
	}
}

func TestSourceMapResolve(t *testing.T) {
	_, m := Concat(
		SourceFile{Name: "a.bas", Text: "x = 1\ny = 2\n"},
		SourceFile{Name: "b.bas", Text: "z = 3\n"},
	)
	tests := []struct {
		file string
		line int
		want int
		ok   bool
	}{
		{"a.bas", 0, 0, true},
		{"a.bas", 1, 1, true},
		{"a.bas", 2, 0, false},
		{"b.bas", 0, 2, true},
		{"b.bas", -1, 0, false},
		{"c.bas", 0, 0, false},
	}
	for _, tt := range tests {
		got, ok := m.Resolve(tt.file, tt.line)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Resolve(%q, %d) = %d, %v, want %d, %v", tt.file, tt.line, got, ok, tt.want, tt.ok)
		}
	}

	var identity *SourceMap
	if got, ok := identity.Resolve("", 7); got != 7 || !ok {
		t.Errorf("nil Resolve(7) = %d, %v, want 7, true", got, ok)
	}
}

func TestSourceMapOriginal(t *testing.T) {
	_, m := Concat(
		SourceFile{Name: "a.bas", Text: "x = 1\ny = 2\n"},
		SourceFile{Name: "b.bas", Text: "z = 3\n"},
	)
	tests := []struct {
		line     int
		file     string
		fileLine int
		ok       bool
	}{
		{0, "a.bas", 0, true},
		{1, "a.bas", 1, true},
		{2, "b.bas", 0, true},
		{3, "", 0, false},
	}
	for _, tt := range tests {
		file, line, ok := m.Original(tt.line)
		if file != tt.file || line != tt.fileLine || ok != tt.ok {
			t.Errorf("Original(%d) = %q, %d, %v, want %q, %d, %v",
				tt.line, file, line, ok, tt.file, tt.fileLine, tt.ok)
		}
	}
}

func TestSourceMapEncode(t *testing.T) {
	_, m := Concat(
		SourceFile{Name: "main.bas", Text: "a = 1\n"},
		SourceFile{Name: "lib/util.bas", Text: "b = 2\nc = 3\n"},
	)
	text, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := DecodeSourceMap(text)
	if err != nil {
		t.Fatalf("DecodeSourceMap() error = %v", err)
	}
	if file, line, ok := got.Original(2); file != "lib/util.bas" || line != 1 || !ok {
		t.Errorf("decoded Original(2) = %q, %d, %v, want lib/util.bas, 1, true", file, line, ok)
	}
	if _, err := DecodeSourceMap("not a source map"); err == nil {
		t.Error("DecodeSourceMap(garbage) succeeded")
	}
}
