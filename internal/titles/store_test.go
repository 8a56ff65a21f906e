// store_test.go tests [Store]: opening missing, empty and corrupted files,
// persisting updates, and reloading external edits.

package titles

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// ///////////////////////////////////////////////
// Open
// ///////////////////////////////////////////////

func TestOpen(t *testing.T) {
	tests := []struct {
		name     string
		content  *string
		wantLen  int
		wantBack bool
	}{
		{"missing file", nil, 0, false},
		{"empty file", strPtr(""), 0, false},
		{"whitespace file", strPtr("  \n"), 0, false},
		{"valid file", strPtr(`{"1":{"color":"2","content":"VIP","notes":null},"2":{"color":null,"content":null,"notes":"Bo"}}`), 2, false},
		{"corrupted file", strPtr(`{"1": {`), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "qq_data.json")
			if tt.content != nil {
				if err := os.WriteFile(path, []byte(*tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			s, err := Open(path, "")
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if got := s.Len(); got != tt.wantLen {
				t.Errorf("Len() = %d, want %d", got, tt.wantLen)
			}
			_, statErr := os.Stat(path + ".corrupted")
			if gotBack := statErr == nil; gotBack != tt.wantBack {
				t.Errorf("backup exists = %v, want %v", gotBack, tt.wantBack)
			}
		})
	}
}

func TestOpenReadError(t *testing.T) {
	// A directory in place of the file cannot be read.
	dir := t.TempDir()
	if _, err := Open(dir, ""); err == nil {
		t.Error("Open(directory) expected error, got nil")
	}
}

// ///////////////////////////////////////////////
// Updates
// ///////////////////////////////////////////////

func TestStoreUpdatesPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qq_data.json")
	s, err := Open(path, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := s.SetColor("10001", "3"); err != nil {
		t.Fatalf("SetColor: %v", err)
	}
	if _, err := s.SetNote("10001", "Al"); err != nil {
		t.Fatalf("SetNote: %v", err)
	}
	rec, err := s.SetTitle("10002", "管理员")
	if err != nil {
		t.Fatalf("SetTitle: %v", err)
	}
	if rec.ColorID() != 1 || rec.Title() != "管理员" {
		t.Errorf("SetTitle returned %s", describe(rec))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "管理员") {
		t.Errorf("file does not contain unescaped title:\n%s", data)
	}
	if !strings.Contains(string(data), `"notes": null`) {
		t.Errorf("file does not keep null notes:\n%s", data)
	}

	reopened, err := Open(path, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Lookup("10001")
	if !ok {
		t.Fatal("record 10001 missing after reopen")
	}
	want := Record{Color: strPtr("3"), Content: strPtr(DefaultTitle), Notes: strPtr("Al")}
	if !recordsEqual(got, want) {
		t.Errorf("reopened = %s, want %s", describe(got), describe(want))
	}
}

func TestStoreCustomDefaultTitle(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "t.json"), "Member")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec, err := s.SetColor("7", "2")
	if err != nil {
		t.Fatalf("SetColor: %v", err)
	}
	if rec.Title() != "Member" {
		t.Errorf("Title() = %q, want Member", rec.Title())
	}
}

func TestStoreLookupReturnsCopy(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "t.json"), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.SetTitle("1", "VIP"); err != nil {
		t.Fatalf("SetTitle: %v", err)
	}
	rec, _ := s.Lookup("1")
	*rec.Content = "changed"
	again, _ := s.Lookup("1")
	if again.Title() != "VIP" {
		t.Errorf("store mutated through lookup copy: %q", again.Title())
	}

	snap := s.Snapshot()
	if r, ok := snap.Lookup("1"); !ok || r.Title() != "VIP" {
		t.Errorf("Snapshot lookup = %s, %v", describe(r), ok)
	}
}

func TestStoreSaveError(t *testing.T) {
	// The parent directory does not exist, so the atomic write fails.
	path := filepath.Join(t.TempDir(), "missing", "t.json")
	s, err := Open(path, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec, err := s.SetTitle("1", "VIP")
	if err == nil {
		t.Fatal("SetTitle expected save error, got nil")
	}
	if rec.Title() != "VIP" {
		t.Errorf("returned record = %s", describe(rec))
	}
	if _, ok := s.Lookup("1"); !ok {
		t.Error("in-memory record missing after failed save")
	}
}

func TestStoreConcurrentUpdates(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "t.json"), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	const n = 16
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			if _, err := s.SetTitle(id, "t"); err != nil {
				t.Errorf("SetTitle(%s): %v", id, err)
			}
			s.Lookup(id)
		}(i)
	}
	wg.Wait()
	if s.Len() != n {
		t.Errorf("Len() = %d, want %d", s.Len(), n)
	}
}

// ///////////////////////////////////////////////
// Reload
// ///////////////////////////////////////////////

func TestStoreReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.json")
	s, err := Open(path, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.SetTitle("1", "VIP"); err != nil {
		t.Fatalf("SetTitle: %v", err)
	}

	changed, err := s.Reload()
	if err != nil || changed {
		t.Fatalf("Reload after own write = %v, %v; want false, nil", changed, err)
	}

	if err := os.WriteFile(path, []byte(`{"2":{"color":"4","content":"Ops","notes":null}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	changed, err = s.Reload()
	if err != nil || !changed {
		t.Fatalf("Reload after external edit = %v, %v; want true, nil", changed, err)
	}
	if _, ok := s.Lookup("1"); ok {
		t.Error("record 1 still present after reload")
	}
	if r, ok := s.Lookup("2"); !ok || r.ColorID() != 4 {
		t.Errorf("record 2 = %s, %v", describe(r), ok)
	}

	if err := os.WriteFile(path, []byte(`{"2":`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reload(); err == nil {
		t.Error("Reload of partial file expected error, got nil")
	}
	if s.Len() != 1 {
		t.Errorf("Len() after failed reload = %d, want 1", s.Len())
	}
}

func TestStoreReloadDuringUpdates(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "t.json"), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	stop := make(chan struct{})
	reloaded := make(chan struct{})
	go func() {
		defer close(reloaded)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := s.Reload(); err != nil {
				t.Errorf("Reload: %v", err)
				return
			}
		}
	}()

	const n = 300
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := s.SetTitle(id, "t"); err != nil {
				t.Errorf("SetTitle(%s): %v", id, err)
			}
		}(strconv.Itoa(i))
	}
	wg.Wait()
	close(stop)
	<-reloaded

	if s.Len() != n {
		t.Fatalf("Len() = %d after %d updates with concurrent reloads, want %d", s.Len(), n, n)
	}
	for i := range n {
		if _, ok := s.Lookup(strconv.Itoa(i)); !ok {
			t.Errorf("record %d lost", i)
		}
	}
}

func TestStoreWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.json")
	s, err := Open(path, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, 50*time.Millisecond) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()

	// Give the watcher a moment to register before editing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"9":{"color":"2","content":"Guest","notes":null}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r, ok := s.Lookup("9"); ok && r.Title() == "Guest" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("external edit was not reloaded")
}
