// Package debugwriter writes per-stage pipeline artifacts to a debug
// directory, best-effort: a failure to create the directory or marshal a
// value is logged and swallowed, never propagated onto the pipeline's
// critical path. The naming mirrors the stage order of the EDC and
// Integration workflows.
package debugwriter

import (
	"encoding/json"
	"os"
	"path/filepath"

	"paperkg/pkg/logger"
)

const (
	PreParsed        = "00_preparsed.json"
	Extraction       = "01_extraction.json"
	Definition       = "02_definition.json"
	Canonicalization = "03_canonicalization.json"
	IntegrationLog   = "04_integration_log.json"
)

// Writer writes debug artifacts under a fixed root directory.
type Writer struct {
	dir string
}

// New builds a Writer rooted at dir. An empty dir disables all writes.
func New(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write pretty-prints v as two-space-indented JSON to name under the
// writer's root directory. Errors are logged, never returned: debug
// artifacts must not affect pipeline outcome.
func (w *Writer) Write(name string, v any) {
	if w == nil || w.dir == "" {
		return
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		logger.Warn("debugwriter: mkdir failed, skipping artifact", "dir", w.dir, "name", name, "error", err)
		return
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Warn("debugwriter: marshal failed, skipping artifact", "name", name, "error", err)
		return
	}

	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warn("debugwriter: write failed, skipping artifact", "path", path, "error", err)
	}
}
