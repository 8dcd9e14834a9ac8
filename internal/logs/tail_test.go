package logs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeLines(t *testing.T, path string, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestTailReturnsLastMatchingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dossier.log")
	writeLines(t, path, "one api\ntwo\nthree api\nfour api\npartial")

	res, err := Tail(path, Options{Lines: 2, Contains: "api"})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(res.Lines) != 2 || res.Lines[0] != "three api" || res.Lines[1] != "four api" {
		t.Fatalf("unexpected lines %q", res.Lines)
	}
	if want := int64(len("one api\ntwo\nthree api\nfour api\n")); res.Offset != want {
		t.Fatalf("expected offset %d before the partial line, got %d", want, res.Offset)
	}
}

func TestTailMissingFile(t *testing.T) {
	res, err := Tail(filepath.Join(t.TempDir(), "absent.log"), Options{Lines: 5})
	if err != nil || len(res.Lines) != 0 {
		t.Fatalf("expected empty result, got %+v, %v", res, err)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dossier.log")
	writeLines(t, path, "old\n")
	res, err := Tail(path, Options{})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, res.Offset, "", func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	writeLines(t, path, "new\n")
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "new" {
		t.Fatalf("expected only the appended line, got %q", got)
	}
}

func TestCurrentPathPrefersServerPointer(t *testing.T) {
	dir := t.TempDir()
	if got := CurrentPath(dir); got != filepath.Join(dir, "dossier.log") {
		t.Fatalf("expected CLI log fallback, got %s", got)
	}
	target := filepath.Join(dir, "dossier-run.log")
	writeLines(t, target, "x\n")
	if err := os.Symlink(target, filepath.Join(dir, "dossier-current.log")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	got := CurrentPath(dir)
	resolvedTarget, _ := filepath.EvalSymlinks(target)
	if got != resolvedTarget {
		t.Fatalf("expected %s, got %s", resolvedTarget, got)
	}
}
