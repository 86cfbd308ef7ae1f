// Package sink writes conversion results as they are produced.
package sink

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/verte-zerg/imebench/internal/model"
)

// Sink receives records in input order. Every Write is flushed to disk so
// an aborted batch keeps what it produced.
type Sink interface {
	Write(rec model.Record) error
	Close() error
}

// FormatFor infers the sink format from the output path.
func FormatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return model.FormatCSV
	}
	return model.FormatText
}

// Open creates the output file and returns a sink for format. An empty
// format is inferred from the path.
func Open(path, format string) (Sink, error) {
	if format == "" {
		format = FormatFor(path)
	}
	if format != model.FormatText && format != model.FormatCSV {
		return nil, fmt.Errorf("%w: unsupported output format %q", model.ErrConfiguration, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create output: %v", model.ErrConfiguration, err)
	}
	if format == model.FormatCSV {
		s, err := newCSV(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return s, nil
	}
	return &textSink{f: f, w: bufio.NewWriter(f)}, nil
}

// CheckWritable verifies that the output directory exists and accepts new
// files, without touching the output itself.
func CheckWritable(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: output directory: %v", model.ErrConfiguration, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: output directory %s is not a directory", model.ErrConfiguration, dir)
	}
	probe, err := os.CreateTemp(dir, ".imebench-*")
	if err != nil {
		return fmt.Errorf("%w: output directory not writable: %v", model.ErrConfiguration, err)
	}
	name := probe.Name()
	if cerr := probe.Close(); cerr != nil {
		// Best-effort: the probe is removed below.
		_ = cerr
	}
	if rerr := os.Remove(name); rerr != nil {
		// Best-effort cleanup.
		_ = rerr
	}
	return nil
}

type textSink struct {
	f *os.File
	w *bufio.Writer
}

func (s *textSink) Write(rec model.Record) error {
	line := strings.NewReplacer("\r", " ", "\n", " ").Replace(rec.Output)
	if _, err := s.w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func (s *textSink) Close() error {
	if err := s.w.Flush(); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	return s.f.Close()
}

type csvSink struct {
	f *os.File
	w *csv.Writer
}

func newCSV(f *os.File) (*csvSink, error) {
	s := &csvSink{f: f, w: csv.NewWriter(f)}
	if err := s.writeRow("input", "output"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *csvSink) Write(rec model.Record) error {
	return s.writeRow(rec.Hiragana, rec.Output)
}

func (s *csvSink) writeRow(fields ...string) error {
	if err := s.w.Write(fields); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func (s *csvSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	return s.f.Close()
}
