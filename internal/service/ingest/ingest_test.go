package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ashwinyue/next-datakit/internal/config"
	"github.com/ashwinyue/next-datakit/internal/observability"
	tu "github.com/ashwinyue/next-datakit/internal/testutil"
)

// ========== Clean 测试 ==========

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapse whitespace", "a  b\n\n c\t d", "a b c d"},
		{"trim", "  hello  ", "hello"},
		{"remove nul", "ab\x00c", "abc"},
		{"remove replacement char", "x\ufffdy", "xy"},
		{"nul between words", "one \x00 two", "one two"},
		{"nfc", "e\u0301", "\u00e9"},
		{"empty", " \n\t ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// ========== Discover 测试 ==========

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	tu.WriteFile(t, dir, "b.PDF", "x")
	tu.WriteFile(t, dir, "a.pdf", "x")
	tu.WriteFile(t, dir, "notes.txt", "x")
	tu.WriteFile(t, dir, "sub/c.pdf", "x")

	paths, err := Discover(dir, []string{".pdf"})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	want := []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "b.PDF")}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}

	paths, err = Discover(dir, []string{"txt", ".pdf"})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(paths) != 3 {
		t.Errorf("paths = %v, want 3 entries", paths)
	}
}

func TestDiscover_MissingDir(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "missing"), []string{".pdf"}); err == nil {
		t.Error("expected error for missing dir")
	}
}

// ========== ParseFile 测试 ==========

func TestParseFile_Text(t *testing.T) {
	dir := t.TempDir()
	path := tu.WriteFile(t, dir, "guide.md", "# Title\n\n  Some   body\x00 text.\n")

	metrics := observability.NewMetrics()
	s := NewService(config.PDFBackendEino, observability.Discard(), metrics)
	doc, err := s.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if doc.Text != "# Title Some body text." {
		t.Errorf("Text = %q", doc.Text)
	}
	if doc.Name != "guide.md" || doc.Stem != "guide" || doc.Chars != len(doc.Text) {
		t.Errorf("Name = %q, Stem = %q", doc.Name, doc.Stem)
	}
	if got := testutil.ToFloat64(metrics.DocumentsIngested.WithLabelValues("success")); got != 1 {
		t.Errorf("success count = %v", got)
	}
}

func TestParseFile_HTML(t *testing.T) {
	dir := t.TempDir()
	path := tu.WriteFile(t, dir, "page.html",
		"<html><head><title>T</title></head><body><h1>Hello</h1><p>world   wide</p></body></html>")

	s := NewService(config.PDFBackendEino, observability.Discard(), nil)
	doc, err := s.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if !strings.Contains(doc.Text, "Hello") || !strings.Contains(doc.Text, "world wide") {
		t.Errorf("Text = %q", doc.Text)
	}
}

func TestParseFile_Empty(t *testing.T) {
	dir := t.TempDir()
	path := tu.WriteFile(t, dir, "blank.txt", " \n\x00\n")

	metrics := observability.NewMetrics()
	s := NewService(config.PDFBackendEino, observability.Discard(), metrics)
	_, err := s.ParseFile(context.Background(), path)
	if !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("error = %v, want ErrEmptyDocument", err)
	}
	if got := testutil.ToFloat64(metrics.DocumentsIngested.WithLabelValues("error")); got != 1 {
		t.Errorf("error count = %v", got)
	}
}

func TestParseFile_Unsupported(t *testing.T) {
	dir := t.TempDir()
	path := tu.WriteFile(t, dir, "data.csv", "a,b")

	s := NewService(config.PDFBackendEino, observability.Discard(), nil)
	if _, err := s.ParseFile(context.Background(), path); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseFile_PlainPDFInvalid(t *testing.T) {
	dir := t.TempDir()
	path := tu.WriteFile(t, dir, "broken.pdf", "not a pdf")

	s := NewService(config.PDFBackendPlain, observability.Discard(), nil)
	if _, err := s.ParseFile(context.Background(), path); err == nil {
		t.Error("expected error for invalid PDF")
	}
}

// ========== LoadDir 测试 ==========

func TestLoadDir_SkipsFailures(t *testing.T) {
	dir := t.TempDir()
	tu.WriteFile(t, dir, "a.txt", "first document")
	tu.WriteFile(t, dir, "b.txt", "   ")
	tu.WriteFile(t, dir, "c.txt", "third document")

	s := NewService(config.PDFBackendEino, observability.Discard(), nil)
	docs, failures, err := s.LoadDir(context.Background(), dir, []string{".txt"})
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(docs) != 2 || docs[0].Stem != "a" || docs[1].Stem != "c" {
		t.Errorf("docs = %+v", docs)
	}
	if len(failures) != 1 || !errors.Is(failures[0], ErrEmptyDocument) {
		t.Errorf("failures = %v", failures)
	}
}

// ========== Supported 测试 ==========

func TestSupported(t *testing.T) {
	for _, ext := range []string{".pdf", ".PDF", ".docx", ".html", ".htm", ".txt", ".md"} {
		if !Supported(ext) {
			t.Errorf("Supported(%q) = false", ext)
		}
	}
	if Supported(".csv") {
		t.Error("Supported(.csv) = true")
	}
}
