package export

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"lahtotiedot/api/internal/store"
)

func TestRenderAnswerSheetHTML(t *testing.T) {
	data := TemplateData{
		CustomerName:  "Maija Meikäläinen",
		CustomerEmail: "maija@example.fi",
		Version:       "2",
		SubmittedAt:   "1.6.2026 12.30",
		Fields: renderFields(map[string]string{
			"lamponlahde":  `"Maalämpö"`,
			"viemarointi":  `"Kunnallinen"`,
			"extra_kentta": `["a","b"]`,
		}),
		Files: []RenderedFile{
			{Label: FileFieldLabel("kaavaote"), FileName: "kaava.pdf"},
		},
	}

	html, err := RenderAnswerSheetHTML(data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"Suunnittelun lähtötiedot",
		"Maija Meikäläinen",
		"Lämmönlähde",
		"Maalämpö",
		"extra kentta",
		"a, b",
		"Kaavaote, kaavamääräykset, rakentamistapaohjeet",
		"kaava.pdf",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered sheet missing %q", want)
		}
	}
}

func TestRenderValue(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`"Maalämpö"`, "Maalämpö"},
		{`["a","b","c"]`, "a, b, c"},
		{`42`, "42"},
		{`true`, "true"},
		{`null`, ""},
		{`not json at all {`, "not json at all {"},
	}
	for _, tc := range cases {
		if got := renderValue(tc.raw); got != tc.want {
			t.Errorf("renderValue(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestFormatSubmittedAt(t *testing.T) {
	if formatSubmittedAt(nil) != "Ei lähetetty" {
		t.Fatalf("nil submitted_at should print as not submitted")
	}
	ts := time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)
	if formatSubmittedAt(&ts) == "" {
		t.Fatalf("expected formatted timestamp")
	}
}

type memBlobs map[string]string

func (m memBlobs) Open(_ context.Context, url string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(m[url])), nil
}

func TestBuildZIP(t *testing.T) {
	files := []store.FileEntry{
		{FieldName: "kaavaote", FileName: "kaava.pdf", FileURL: "/uploads/a.pdf"},
		{FieldName: "general", FileName: "muistio.doc", FileURL: "/uploads/b.doc"},
		{FieldName: "kaavaote", FileName: "kaava.pdf", FileURL: "/uploads/c.pdf"},
	}
	blobs := memBlobs{
		"/uploads/a.pdf": "first",
		"/uploads/b.doc": "second",
		"/uploads/c.pdf": "third",
	}

	data, err := buildZIP(context.Background(), files, blobs)
	if err != nil {
		t.Fatalf("build zip: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(reader.File) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(reader.File))
	}
	names := make(map[string]bool)
	for _, entry := range reader.File {
		names[entry.Name] = true
	}
	for _, want := range []string{"kaavaote/kaava.pdf", "general/muistio.doc", "kaavaote/1_kaava.pdf"} {
		if !names[want] {
			t.Errorf("zip missing entry %q, have %v", want, names)
		}
	}
}
