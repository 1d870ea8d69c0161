// Package exportsink delivers finished CSV exports to a destination: a local
// file or an S3 object.
package exportsink

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Source is anything that can write a complete export to w.
// *core.CSVExport satisfies it.
type Source interface {
	Stream(ctx context.Context, w io.Writer) (int64, error)
}

// Sink receives one export.
type Sink interface {
	Deliver(ctx context.Context, src Source) (int64, error)
	String() string
}

// Destination is a parsed --output value.
type Destination struct {
	Bucket string // set for s3:// destinations
	Key    string
	Path   string // set for local files
}

// IsS3 reports whether d names an S3 object.
func (d Destination) IsS3() bool {
	return d.Bucket != ""
}

// ParseDestination accepts "s3://bucket/key" or a local file path.
func ParseDestination(raw string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Destination{}, fmt.Errorf("output destination is required")
	}
	if !strings.HasPrefix(raw, "s3://") {
		return Destination{Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, fmt.Errorf("parse %q: %w", raw, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Destination{}, fmt.Errorf("s3 destination must look like s3://bucket/key, got %q", raw)
	}
	return Destination{Bucket: u.Host, Key: key}, nil
}

// FileSink writes the export to a local path. The file is written under a
// temporary name in the same directory and renamed once complete, so readers
// never observe a partial export.
type FileSink struct {
	Path string
}

func (s FileSink) String() string {
	return s.Path
}

func (s FileSink) Deliver(ctx context.Context, src Source) (int64, error) {
	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := src.Stream(ctx, tmp)
	if err != nil {
		tmp.Close()
		return n, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return n, fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return n, fmt.Errorf("rename to %s: %w", s.Path, err)
	}
	return n, nil
}
