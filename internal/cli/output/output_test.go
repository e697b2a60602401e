package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

type generationRow struct {
	ID    string `json:"id"`
	Files int    `json:"files"`
}

type generationList []generationRow

func (l generationList) Table(wide bool) *Table {
	t := &Table{Headers: []string{"ID", "FILES"}}
	if wide {
		t.Headers = append(t.Headers, "EXTRA")
	}
	for _, r := range l {
		row := []string{r.ID, Value(r.Files)}
		if wide {
			row = append(row, "x")
		}
		t.AddRow(row...)
	}
	return t
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON, false).(*JSONFormatter); !ok {
		t.Error("json: wrong formatter")
	}
	if _, ok := NewFormatter(FormatYAML, false).(*YAMLFormatter); !ok {
		t.Error("yaml: wrong formatter")
	}
	if tf, ok := NewFormatter("other", true).(*TableFormatter); !ok || !tf.Wide {
		t.Error("default: want wide TableFormatter")
	}
}

func TestTableFormatter_Tabler(t *testing.T) {
	data := generationList{{"2024-01-01T10-00", 12}, {"2024-01-01T11-00", 3}}

	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, data); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[0], "ID") || strings.Contains(lines[0], "EXTRA") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "2024-01-01T10-00") || !strings.HasSuffix(lines[1], "12") {
		t.Errorf("row = %q", lines[1])
	}

	buf.Reset()
	(&TableFormatter{Wide: true, NoHeaders: true}).Format(&buf, data)
	if strings.Contains(buf.String(), "ID") || !strings.Contains(buf.String(), "x") {
		t.Errorf("wide/no-headers output = %q", buf.String())
	}
}

func TestTableFormatter_StructFallback(t *testing.T) {
	data := struct {
		Generation string        `json:"generation"`
		Files      int           `json:"files"`
		Elapsed    time.Duration `json:"elapsed"`
		Hidden     string        `json:"-"`
	}{"2024-01-01T10-00", 4, 1500 * time.Millisecond, "secret"}

	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, &data); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"FIELD", "generation", "2024-01-01T10-00", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "secret") {
		t.Error("json:\"-\" field rendered")
	}
}

func TestTableFormatter_NonStructFallsBackToYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "- a\n- b\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONFormatter{}).Format(&buf, generationRow{"g", 1}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "{\n  \"id\": \"g\",\n  \"files\": 1\n}\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	data := generationList{{"g1", 2}}
	if err := (&YAMLFormatter{}).Format(&buf, data); err != nil {
		t.Fatal(err)
	}
	want := "- files: 2\n  id: g1\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "-"},
		{"", "-"},
		{"x", "x"},
		{true, "yes"},
		{false, "no"},
		{42, "42"},
		{2 * time.Second, "2s"},
		{time.Time{}, "-"},
	}
	for _, tt := range tests {
		if got := Value(tt.in); got != tt.want {
			t.Errorf("Value(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{-1, "-"},
	}
	for _, tt := range tests {
		if got := Bytes(tt.in); got != tt.want {
			t.Errorf("Bytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressBar(&buf, "restore")
	p.Update(1, 4, 1024)
	if !strings.Contains(buf.String(), " 25% 1/4 files 1.0 KiB") {
		t.Errorf("output = %q", buf.String())
	}
	p.Update(4, 4, 4096)
	p.Finish()
	if !strings.HasSuffix(buf.String(), "100% 4/4 files 4.0 KiB\n") {
		t.Errorf("final output = %q", buf.String())
	}

	buf.Reset()
	NewProgressBar(&buf, "scan").Update(7, 0, 0)
	if !strings.Contains(buf.String(), "scan 7 files") {
		t.Errorf("unknown total output = %q", buf.String())
	}
}

// syncBuffer guards a buffer shared with the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, "backing up")
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Success("done")
	s.Stop()

	out := buf.String()
	if !strings.Contains(out, "backing up") || !strings.HasSuffix(out, "ok done\n") {
		t.Errorf("output = %q", out)
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}
