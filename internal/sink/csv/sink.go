// Package csvsink writes result rows to append-only CSV files.
package csvsink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrSinkClosed is returned when appending to a closed sink.
var ErrSinkClosed = errors.New("sink closed")

// Sink is a CSV file that accepts whole rows from concurrent writers.
type Sink struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	path   string
	header []string
	rows   int
	closed bool
}

// Open creates (or truncates) the file at path and writes header once.
func Open(path string, header []string) (*Sink, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("header is required")
	}
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	// #nosec G304 -- path is built from the operator's output directory.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open sink %s: %w", path, err)
	}
	s := &Sink{
		file:   file,
		writer: csv.NewWriter(file),
		path:   path,
		header: append([]string(nil), header...),
	}
	if err := s.write(header); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return s, nil
}

// Append writes one row. Rows from concurrent callers never interleave.
func (s *Sink) Append(row []string) error {
	if len(row) != len(s.header) {
		return fmt.Errorf("row has %d fields, want %d", len(row), len(s.header))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if err := s.write(row); err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}
	s.rows++
	return nil
}

// Rows returns the number of rows appended, excluding the header.
func (s *Sink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Path returns the file path.
func (s *Sink) Path() string {
	return s.path
}

// Close flushes and closes the file. It is safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.writer.Flush()
	flushErr := s.writer.Error()
	closeErr := s.file.Close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		return fmt.Errorf("close sink %s: %w", s.path, err)
	}
	return nil
}

func (s *Sink) write(row []string) error {
	if err := s.writer.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush row: %w", err)
	}
	return nil
}

// EnsureDir creates dir when missing and checks that it is writable.
func EnsureDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return fmt.Errorf("failed to create output directory: %w", mkErr)
		}
	case err != nil:
		return fmt.Errorf("failed to stat output directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("output path %s is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".writable_test")
	if err != nil {
		return fmt.Errorf("output directory is not writable: %w", err)
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return fmt.Errorf("failed to close probe file: %w", err)
	}
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("failed to clean up probe file: %w", err)
	}
	return nil
}

// Reconcile rewrites the CSV at path without the rows whose column is empty
// or whitespace. It returns the number of data rows kept. encoding/csv reads
// a CRLF inside a quoted field as LF, so fields are only preserved byte for
// byte when they use LF line endings; the extractor emits LF only.
func Reconcile(path, column string) (int, error) {
	// #nosec G304 -- path is a sink written by this process.
	in, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = in.Close() }()

	reader := csv.NewReader(in)
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	idx := -1
	for i, name := range header {
		if name == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, fmt.Errorf("column %q not found in %s", column, path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	writer := csv.NewWriter(tmp)
	if err := writer.Write(header); err != nil {
		cleanup()
		return 0, fmt.Errorf("write header: %w", err)
	}
	kept := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cleanup()
			return 0, fmt.Errorf("read row: %w", err)
		}
		if strings.TrimSpace(record[idx]) == "" {
			continue
		}
		if err := writer.Write(record); err != nil {
			cleanup()
			return 0, fmt.Errorf("write row: %w", err)
		}
		kept++
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		cleanup()
		return 0, fmt.Errorf("flush rows: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		cleanup()
		return 0, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("replace %s: %w", path, err)
	}
	return kept, nil
}
