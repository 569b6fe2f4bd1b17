package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Sink persists an assembled report.
type Sink interface {
	Write(report Report) error
}

// FileSink writes the report as indented JSON. The file is written to a
// temporary path and renamed into place so a crash never leaves a
// half-written report behind.
type FileSink struct {
	Path string
}

func (s FileSink) Write(report Report) error {
	if s.Path == "" {
		return fmt.Errorf("report path is required")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure report dir %q: %w", dir, err)
		}
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp report %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("commit report %q: %w", s.Path, err)
	}
	return nil
}
