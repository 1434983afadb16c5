package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Sink interface {
	Save(ctx context.Context, name string, payload []byte) (string, error)
}

// Open picks a sink for target: "s3://bucket/key" goes to S3, "-" to w and
// anything else is a local path.
func Open(ctx context.Context, target string, cfg S3Config, w io.Writer) (Sink, error) {
	target = strings.TrimSpace(target)
	switch {
	case target == "":
		return nil, errors.New("export target is required")
	case target == "-":
		return &WriterSink{w: w}, nil
	case strings.HasPrefix(target, "s3://"):
		bucket, key, err := parseS3Target(target)
		if err != nil {
			return nil, err
		}
		return NewS3Sink(ctx, bucket, key, cfg)
	default:
		return NewFileSink(target), nil
	}
}

type WriterSink struct {
	w io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Save(_ context.Context, _ string, payload []byte) (string, error) {
	if s.w == nil {
		return "", errors.New("no output writer")
	}
	if _, err := s.w.Write(payload); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return "-", nil
}

// FileSink writes into path. When path is an existing directory or ends with
// a separator the export keeps its own file name inside it.
type FileSink struct {
	path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Save(_ context.Context, name string, payload []byte) (string, error) {
	target := s.path
	if strings.HasSuffix(target, string(os.PathSeparator)) || strings.HasSuffix(target, "/") {
		target = filepath.Join(target, name)
	} else if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, name)
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("move export into place: %w", err)
	}

	return target, nil
}
