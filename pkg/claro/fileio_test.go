package claro

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

// memFS is an in-memory FileSystem for tests.
type memFS struct {
	files map[string]string
}

func (m *memFS) ReadText(path string) (string, error) {
	content, ok := m.files[path]
	if !ok {
		return "", fmt.Errorf("no such file: %s", path)
	}
	return content, nil
}

func (m *memFS) WriteText(path, content string) error {
	if m.files == nil {
		m.files = make(map[string]string)
	}
	m.files[path] = content
	return nil
}

func TestImportRunsScriptInCurrentEnv(t *testing.T) {
	fs := &memFS{files: map[string]string{
		"lib.claro": "VARIABLE shared = 10\nPRINT \"imported\"",
	}}
	b := New()
	b.SetFileSystem(fs)
	b.Load("IMPORT \"lib.claro\"\nPRINT shared + 1")
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := b.Output()
	if !reflect.DeepEqual(out, []string{"imported", "11"}) {
		t.Errorf("output = %v", out)
	}
}

func TestImportMissingFile(t *testing.T) {
	b := New()
	b.SetFileSystem(&memFS{})
	b.Load("IMPORT \"gone.claro\"")
	err := b.Run(context.Background())
	var ce *ClaroError
	if !errors.As(err, &ce) || ce.Code != CodeFileError {
		t.Fatalf("expected FileError, got %v", err)
	}
}

func TestImportWithoutFileSystem(t *testing.T) {
	b := New()
	b.Load("IMPORT \"x\"")
	err := b.Run(context.Background())
	var ce *ClaroError
	if !errors.As(err, &ce) || ce.Code != CodeFileError {
		t.Fatalf("expected FileError, got %v", err)
	}
}

func TestReadFileBindsContent(t *testing.T) {
	fs := &memFS{files: map[string]string{"note.txt": "hello file"}}
	b := New()
	b.SetFileSystem(fs)
	b.Load("READFILE content \"note.txt\"\nPRINT content")
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out := b.Output(); !reflect.DeepEqual(out, []string{"hello file"}) {
		t.Errorf("output = %v", out)
	}
}

func TestWriteFileStoresDisplayForm(t *testing.T) {
	fs := &memFS{}
	b := New()
	b.SetFileSystem(fs)
	b.Load("WRITEFILE \"out.txt\" 6 * 7")
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if fs.files["out.txt"] != "42" {
		t.Errorf("file content = %q", fs.files["out.txt"])
	}
}

func TestParseSourceKeepsOriginalNumbers(t *testing.T) {
	lines := parseSource("\n# comment\nPRINT 1\n\nPRINT 2\r\nPRINT 3")
	if len(lines) != 3 {
		t.Fatalf("got %d lines", len(lines))
	}
	wantNums := []int{3, 5, 6}
	for i, want := range wantNums {
		if lines[i].num != want {
			t.Errorf("line %d num = %d, want %d", i, lines[i].num, want)
		}
	}
}

func TestSplitArgsRespectsQuotesAndBrackets(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain", "a b c", []string{"a", "b", "c"}},
		{"quoted", `f "a b" c`, []string{"f", `"a b"`, "c"}},
		{"list literal", "f [1, 2] 3", []string{"f", "[1, 2]", "3"}},
		{"parenthesized", "f (1 + 2) 3", []string{"f", "(1 + 2)", "3"}},
		{"map literal", `f {"a": 1}`, []string{"f", `{"a": 1}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitArgs(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitArgs(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
