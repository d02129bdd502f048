package outcome

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File appends bare JSON lines to a decisions log and a cycles log. Either
// path may be empty to skip that stream.
type File struct {
	mu        sync.Mutex
	decisions *os.File
	cycles    *os.File
}

// OpenFile opens (creating parents as needed) the two logs for appending.
func OpenFile(decisionsPath, cyclesPath string) (*File, error) {
	f := &File{}
	var err error
	if f.decisions, err = openAppend(decisionsPath); err != nil {
		return nil, err
	}
	if f.cycles, err = openAppend(cyclesPath); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func openAppend(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("outcome: mkdir: %w", err)
	}
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("outcome: open %s: %w", path, err)
	}
	return fh, nil
}

func (f *File) Decision(_ context.Context, d Decision) error {
	return f.writeLine(f.decisions, d)
}

func (f *File) Cycle(_ context.Context, c CycleSummary) error {
	return f.writeLine(f.cycles, c)
}

func (f *File) writeLine(fh *os.File, v any) error {
	if fh == nil {
		return nil
	}
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("outcome: marshal: %w", err)
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := fh.Write(line); err != nil {
		return fmt.Errorf("outcome: write %s: %w", fh.Name(), err)
	}
	return nil
}

func (f *File) Close() error {
	var firstErr error
	for _, fh := range []*os.File{f.decisions, f.cycles} {
		if fh == nil {
			continue
		}
		if err := fh.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
