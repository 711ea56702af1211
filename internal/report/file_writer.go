package report

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
)

// FileFlagWriter appends flag records to a line-delimited JSON file. The file
// is truncated on open; each record becomes one JSON object per line with the
// key order fixed by FlagRecord.
type FileFlagWriter struct {
	f *os.File
	w *bufio.Writer
}

var _ FlagWriter = (*FileFlagWriter)(nil)

// NewFileFlagWriter creates (or truncates) path.
func NewFileFlagWriter(path string) (*FileFlagWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileFlagWriter{f: f, w: bufio.NewWriter(f)}, nil
}

func (fw *FileFlagWriter) WriteFlag(_ context.Context, rec *FlagRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := fw.w.Write(data); err != nil {
		return err
	}
	return fw.w.WriteByte('\n')
}

// Close flushes buffered records and closes the file.
func (fw *FileFlagWriter) Close() error {
	if err := fw.w.Flush(); err != nil {
		fw.f.Close()
		return err
	}
	return fw.f.Close()
}

// FileInvalidWriter appends rejected lines to a file verbatim, one per line,
// with no transformation. The file is truncated on open.
type FileInvalidWriter struct {
	f *os.File
	w *bufio.Writer
}

var _ InvalidWriter = (*FileInvalidWriter)(nil)

// NewFileInvalidWriter creates (or truncates) path.
func NewFileInvalidWriter(path string) (*FileInvalidWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileInvalidWriter{f: f, w: bufio.NewWriter(f)}, nil
}

func (fw *FileInvalidWriter) WriteInvalid(_ context.Context, line string) error {
	if _, err := fw.w.WriteString(line); err != nil {
		return err
	}
	return fw.w.WriteByte('\n')
}

// Close flushes buffered lines and closes the file.
func (fw *FileInvalidWriter) Close() error {
	if err := fw.w.Flush(); err != nil {
		fw.f.Close()
		return err
	}
	return fw.f.Close()
}
