// write_test.go tests [Write], [WriteFunc] and [WriteDir]: replacement,
// permissions, concurrent writers and temp file cleanup.

package atomicfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// leftovers returns temp files remaining in dir.
func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestWrite(t *testing.T) {
	tests := []struct {
		name   string
		before *string
		data   string
	}{
		{"new file", nil, `{"1":{}}`},
		{"replace file", func() *string { s := "old content that is longer"; return &s }(), "new"},
		{"empty data", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "qq_data.json")
			if tt.before != nil {
				if err := os.WriteFile(path, []byte(*tt.before), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			if err := Write(path, []byte(tt.data), 0o644); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if string(got) != tt.data {
				t.Errorf("content = %q, want %q", got, tt.data)
			}
			if left := leftovers(t, dir); len(left) > 0 {
				t.Errorf("temp files left behind: %v", left)
			}
		})
	}
}

func TestWritePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perm.txt")
	if err := Write(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	// Windows only honors the owner write bit.
	if info.Mode().Perm()&0o600 == 0 {
		t.Errorf("permissions = %o, want owner rw", info.Mode().Perm())
	}
}

func TestWriteFuncFillError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avatar.png")
	if err := os.WriteFile(path, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("encode failed")
	err := WriteFunc(path, 0o644, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WriteFunc error = %v, want wrapping %v", err, boom)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "keep" {
		t.Errorf("original replaced after failed fill: %q", got)
	}
	if left := leftovers(t, dir); len(left) > 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}

func TestWriteMissingDirectory(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "no-such-dir", "file.txt")
	if err := Write(path, []byte("data"), 0o644); err == nil {
		t.Fatal("expected error writing into missing directory")
	}
	if left := leftovers(t, root); len(left) > 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}

func TestWriteDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "file.txt")
	if err := WriteDir(path, []byte("nested"), 0o644); err != nil {
		t.Fatalf("WriteDir: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "nested" {
		t.Errorf("ReadFile = %q, %v", got, err)
	}
}

func TestWriteConcurrentFiles(t *testing.T) {
	dir := t.TempDir()
	const n = 20

	// Distinct targets: Windows refuses to rename over a file another
	// writer has open.
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := filepath.Join(dir, fmt.Sprintf("%d.png", i))
			if err := Write(path, []byte(fmt.Sprint(i)), 0o644); err != nil {
				t.Errorf("Write %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for i := range n {
		got, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("%d.png", i)))
		if err != nil {
			t.Errorf("ReadFile %d: %v", i, err)
			continue
		}
		if string(got) != fmt.Sprint(i) {
			t.Errorf("file %d = %q", i, got)
		}
	}
	if left := leftovers(t, dir); len(left) > 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}
