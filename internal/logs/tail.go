package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const pollInterval = 250 * time.Millisecond

// Options selects which lines Tail returns.
type Options struct {
	// Lines is how many trailing lines to return; zero returns none and only
	// positions the offset at the end of the file.
	Lines int
	// Contains keeps only lines holding this substring.
	Contains string
}

// Result carries the selected lines and the offset to resume from.
type Result struct {
	Lines  []string
	Offset int64
}

// CurrentPath returns the log file of the most recent server run, falling back
// to the shared CLI log when no server has started yet.
func CurrentPath(logDir string) string {
	pointer := filepath.Join(logDir, "dossier-current.log")
	if target, err := filepath.EvalSymlinks(pointer); err == nil {
		return target
	}
	if _, err := os.Stat(pointer); err == nil {
		return pointer
	}
	return filepath.Join(logDir, "dossier.log")
}

// Tail returns the last opts.Lines matching lines of path. A missing file
// yields an empty result.
func Tail(path string, opts Options) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var ring []string
	if opts.Lines > 0 {
		ring = make([]string, 0, opts.Lines)
	}
	offset, err := scan(file, opts.Contains, func(line string) {
		if opts.Lines <= 0 {
			return
		}
		if len(ring) == opts.Lines {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: ring, Offset: offset}, nil
}

// Follow emits lines appended to path after offset until ctx is done. A
// truncated file is read again from the start.
func Follow(ctx context.Context, path string, offset int64, contains string, emit func(string)) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		next, err := readFrom(path, offset, contains, emit)
		if err != nil {
			return err
		}
		offset = next
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, contains string, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return offset, fmt.Errorf("log path %q is a directory", path)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	read, err := scan(file, contains, emit)
	if err != nil {
		return offset, err
	}
	return offset + read, nil
}

// scan feeds complete lines to emit and returns the bytes consumed. A
// trailing partial line is left for the next read.
func scan(r io.Reader, contains string, emit func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if contains == "" || strings.Contains(line, contains) {
			emit(line)
		}
	}
}
