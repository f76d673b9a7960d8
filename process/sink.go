package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"chopper/archive"
	"chopper/config"
)

// sink receives produced files, names are relative to destination.
type sink interface {
	Write(name string, data []byte) error
	// Location returns where name ends up, for logs and report.
	Location(name string) string
	Close() error
}

type dirSink struct {
	root      string
	overwrite bool
	log       *zap.Logger
	rpt       *config.Report
}

func (s *dirSink) Location(name string) string {
	return filepath.Join(s.root, name)
}

func (s *dirSink) Write(name string, data []byte) error {
	path := s.Location(name)
	if _, err := os.Stat(path); err == nil {
		if !s.overwrite {
			return fmt.Errorf("output file already exists: %s", path)
		}
		s.log.Warn("Overwriting existing file", zap.String("file", path))
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("unable to write output file: %w", err)
	}
	s.rpt.Store("result/"+filepath.ToSlash(name), path)
	return nil
}

func (s *dirSink) Close() error {
	return nil
}

type zipSink struct {
	w *archive.Writer
}

func newZipSink(name string, overwrite bool, rpt *config.Report) (*zipSink, error) {
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return nil, fmt.Errorf("unable to create output directory: %w", err)
	}
	w, err := archive.Create(name, overwrite)
	if err != nil {
		return nil, err
	}
	rpt.Store("result/"+filepath.Base(name), w.Name())
	return &zipSink{w: w}, nil
}

func (s *zipSink) Location(name string) string {
	return s.w.Name() + ":" + filepath.ToSlash(name)
}

func (s *zipSink) Write(name string, data []byte) error {
	return s.w.Add(filepath.ToSlash(name), time.Now(), data)
}

func (s *zipSink) Close() error {
	return s.w.Close()
}
